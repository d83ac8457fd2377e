// Package router implements the Router described in spec §4.4: it
// resolves an inbound Envelope against the Registry, assembles the
// effective interceptor chain, executes the handler, and translates any
// escaping error into a typed Envelope. Grounded structurally on
// broady/tygor's handler dispatch (handler.go's serveHTTP path through a
// chained UnaryInterceptor) and on the teacher's layered validation
// approach in core/tool.go's request handling.
package router

import (
	"time"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/registry"
	"github.com/forattini-dev/raffel/rerrors"
)

// Router dispatches envelopes against a Registry using a precomputed,
// per-handler interceptor chain assembled from global, pattern-scoped,
// and handler-local interceptors.
type Router struct {
	reg                 *registry.Registry
	requestIDInterceptor interceptor.Interceptor
	globals             []interceptor.Interceptor
	patternInterceptors []patternInterceptor
}

type patternInterceptor struct {
	pattern     string
	interceptor interceptor.Interceptor
}

// New builds a Router bound to reg. reqIDInterceptor runs outermost on
// every call (spec's chain assembly order step 1); it may be nil.
func New(reg *registry.Registry, reqIDInterceptor interceptor.Interceptor) *Router {
	return &Router{reg: reg, requestIDInterceptor: reqIDInterceptor}
}

// Use registers a global interceptor, applied to every procedure, in the
// order registered (chain assembly order step 2).
func (r *Router) Use(ic interceptor.Interceptor) {
	r.globals = append(r.globals, ic)
}

// UsePattern registers an interceptor scoped to procedures matching
// pattern under the registry's glob language (chain assembly order step 3).
func (r *Router) UsePattern(pattern string, ic interceptor.Interceptor) {
	r.patternInterceptors = append(r.patternInterceptors, patternInterceptor{pattern, ic})
}

// effectiveChain assembles, in outer-to-inner order: request-id, globals
// (registration order), pattern-scoped interceptors matching procedure,
// then the descriptor's local interceptors (spec §4.4 chain assembly
// order, steps 1-4).
func (r *Router) effectiveChain(desc *registry.HandlerDescriptor) *interceptor.Chain {
	if cached := desc.Chain(); cached != nil {
		return cached.(*interceptor.Chain)
	}

	var chain []interceptor.Interceptor
	if r.requestIDInterceptor != nil {
		chain = append(chain, r.requestIDInterceptor)
	}
	chain = append(chain, r.globals...)
	for _, p := range r.patternInterceptors {
		if r.reg.Matches(desc.Name, p.pattern) {
			chain = append(chain, p.interceptor)
		}
	}
	chain = append(chain, desc.LocalInterceptors...)

	built := interceptor.NewChain(chain...)
	desc.SetChain(built)
	return built
}

// Dispatch resolves req against the registry, runs the effective
// interceptor chain around the handler (with input/output validation at
// steps 5 and 7), and always returns a well-formed response or error
// Envelope — it never lets an untyped error escape (spec §4.4's "a
// non-typed thrown value becomes INTERNAL").
func (r *Router) Dispatch(req *envelope.Envelope, ctx *envelope.Context) *envelope.Envelope {
	desc, ok := r.reg.Lookup(req.Procedure)
	if !ok {
		return req.ErrorEnvelope(rerrors.Newf(rerrors.NotFound, "no handler registered for procedure %q", req.Procedure))
	}
	if desc.Kind != registry.KindProcedure {
		return req.ErrorEnvelope(rerrors.Newf(rerrors.InvalidArgument, "procedure %q is not a unary handler", req.Procedure))
	}
	if deadlineExpired(ctx) {
		return req.ErrorEnvelope(rerrors.New(rerrors.DeadlineExceeded, "deadline already passed before dispatch"))
	}

	chain := r.effectiveChain(desc)

	terminal := func(env *envelope.Envelope, c *envelope.Context) (interface{}, error) {
		if desc.ValidateInput != nil {
			if err := desc.ValidateInput(env.Payload); err != nil {
				return nil, rerrors.Wrap(rerrors.InvalidArgument, err, "input validation failed")
			}
		}
		result, err := desc.Handler.Procedure(c, env.Payload)
		if err != nil {
			return nil, err
		}
		if desc.ValidateOutput != nil {
			if err := desc.ValidateOutput(result); err != nil {
				return nil, rerrors.Wrap(rerrors.Internal, err, "output validation failed")
			}
		}
		return result, nil
	}

	result, err := chain.Execute(req, ctx, terminal)
	if err != nil {
		return req.ErrorEnvelope(translate(err))
	}
	return req.Response(result)
}

// translate normalizes any error into an *rerrors.Error, mapping a
// non-typed error to INTERNAL per spec §4.4's final translation rule.
// The router is the only component permitted to do this; everything
// above it only ever receives envelopes already carrying a typed error.
func translate(err error) *rerrors.Error {
	if re, ok := err.(*rerrors.Error); ok {
		return re
	}
	return rerrors.Wrap(rerrors.Internal, err, "unhandled error")
}

// deadlineExpired reports whether ctx carries an x-deadline that has
// already passed. Checked unconditionally at every dispatch entry point,
// independent of whether a Timeout interceptor is configured, so
// spec §4.1/§8's "deadline already in the past at router entry fails with
// DEADLINE_EXCEEDED without invoking the handler" holds even when no
// resilience.Timeout is wired into the chain.
func deadlineExpired(ctx *envelope.Context) bool {
	if ctx == nil || ctx.Deadline == nil {
		return false
	}
	return time.Now().UnixMilli() > *ctx.Deadline
}
