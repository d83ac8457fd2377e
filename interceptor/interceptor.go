// Package interceptor defines the composable middleware that wraps every
// handler invocation: the Interceptor signature, the Next continuation,
// and the combinators (compose, when, forPattern, except, branch) used to
// assemble chains. This mirrors the onion model described in spec §4.4,
// generalizing the unary-interceptor-chain pattern from broady/tygor
// (interceptor.go: UnaryInterceptor + chainInterceptors) to Raffel's
// Envelope/Context carrier instead of bare (req, res).
package interceptor

import (
	"github.com/forattini-dev/raffel/envelope"
)

// Next is the downstream continuation an Interceptor calls to proceed.
type Next func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error)

// Interceptor wraps a handler invocation. Implementations either:
//   - recover from a downstream error and return a value,
//   - transform an error (wrap with a different code) and return it, or
//   - pass through unchanged.
//
// Every combinator in this package preserves that contract: when an
// interceptor elects to pass through, the result is exactly what next()
// returned, with no metadata mutation (spec §4.5).
type Interceptor func(env *envelope.Envelope, ctx *envelope.Context, next Next) (interface{}, error)

// Predicate decides whether an interceptor applies to a given envelope.
type Predicate func(env *envelope.Envelope, ctx *envelope.Context) bool

// Chain is an ordered, immutable list of interceptors. The Router builds
// one per handler on its first dispatch and caches it on the descriptor.
type Chain struct {
	interceptors []Interceptor
}

// NewChain captures interceptors in execution order (outer to inner).
func NewChain(interceptors ...Interceptor) *Chain {
	cp := make([]Interceptor, len(interceptors))
	copy(cp, interceptors)
	return &Chain{interceptors: cp}
}

// Execute runs the chain around terminal, which is typically the handler
// itself (or the next outer scope's continuation when chains nest).
func (c *Chain) Execute(env *envelope.Envelope, ctx *envelope.Context, terminal Next) (interface{}, error) {
	return Compose(c.interceptors...)(env, ctx, terminal)
}

// Compose returns a single Interceptor that runs i1 outermost, with each
// subsequent interceptor's next() traversing the rest of the chain down
// to the eventual terminal handler. This is C5's `compose` combinator.
func Compose(interceptors ...Interceptor) Interceptor {
	if len(interceptors) == 0 {
		return func(env *envelope.Envelope, ctx *envelope.Context, next Next) (interface{}, error) {
			return next(env, ctx)
		}
	}
	return func(env *envelope.Envelope, ctx *envelope.Context, next Next) (interface{}, error) {
		var chain Next = next
		for i := len(interceptors) - 1; i >= 0; i-- {
			current := interceptors[i]
			downstream := chain
			chain = func(e *envelope.Envelope, c *envelope.Context) (interface{}, error) {
				return current(e, c, downstream)
			}
		}
		return chain(env, ctx)
	}
}

// When invokes inner only if pred holds; otherwise it transparently calls
// next with no side effects.
func When(pred Predicate, inner Interceptor) Interceptor {
	return func(env *envelope.Envelope, ctx *envelope.Context, next Next) (interface{}, error) {
		if !pred(env, ctx) {
			return next(env, ctx)
		}
		return inner(env, ctx, next)
	}
}

// ForPattern is the pattern-scoped version of When: inner only applies to
// envelopes whose Procedure matches pattern under the registry glob
// language (`*` single segment, `**` any suffix).
func ForPattern(matcher func(procedure, pattern string) bool, pattern string, inner Interceptor) Interceptor {
	return When(func(env *envelope.Envelope, _ *envelope.Context) bool {
		return matcher(env.Procedure, pattern)
	}, inner)
}

// Except is the inverse of ForPattern: inner applies to every procedure
// whose name is NOT in names.
func Except(names []string, inner Interceptor) Interceptor {
	excluded := make(map[string]bool, len(names))
	for _, n := range names {
		excluded[n] = true
	}
	return When(func(env *envelope.Envelope, _ *envelope.Context) bool {
		return !excluded[env.Procedure]
	}, inner)
}

// Branch selects onTrue when pred holds, onFalse otherwise. A nil
// onFalse behaves as a transparent pass-through.
func Branch(pred Predicate, onTrue, onFalse Interceptor) Interceptor {
	return func(env *envelope.Envelope, ctx *envelope.Context, next Next) (interface{}, error) {
		if pred(env, ctx) {
			return onTrue(env, ctx, next)
		}
		if onFalse == nil {
			return next(env, ctx)
		}
		return onFalse(env, ctx, next)
	}
}
