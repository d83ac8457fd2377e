// Package observability implements the request-id/correlation-id
// propagation, structured request logging, and distributed tracing
// interceptors described in spec §4.6 / C10. Logging is grounded on the
// teacher's ComponentAwareLogger layering (mirrored by this module's
// logging package's WithComponent pattern); tracing is wired against
// go.opentelemetry.io/otel.
package observability

import (
	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
)

// RequestIDConfig configures the request-id interceptor.
type RequestIDConfig struct {
	// HeaderName is the inbound metadata key carrying a caller-supplied
	// request id. Defaults to "x-request-id".
	HeaderName string
}

// RequestID propagates an incoming request id (read from env's metadata)
// onto ctx.RequestID and back onto the envelope, or leaves the one
// NewContext already generated untouched if the caller sent none. This
// must run outermost in the chain (spec §4.4 chain assembly order) so
// every other interceptor and the handler observe the final id.
func RequestID(cfg RequestIDConfig) interceptor.Interceptor {
	header := cfg.HeaderName
	if header == "" {
		header = "x-request-id"
	}

	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		if incoming, ok := env.Get(header); ok && incoming != "" {
			ctx.RequestID = incoming
		}
		env.Set(header, ctx.RequestID)
		return next(env, ctx)
	}
}

// CorrelationIDConfig configures the correlation-id interceptor.
type CorrelationIDConfig struct {
	HeaderName string // defaults to "x-correlation-id"
}

// CorrelationID propagates (or seeds) a trace-correlation id, writing it
// into ctx.Tracing().TraceID so downstream logging/tracing interceptors
// can key off a single caller-visible identifier distinct from the
// per-hop request id.
func CorrelationID(cfg CorrelationIDConfig) interceptor.Interceptor {
	header := cfg.HeaderName
	if header == "" {
		header = "x-correlation-id"
	}

	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		traceID, ok := env.Get(header)
		if !ok || traceID == "" {
			traceID = envelope.NewID()
		}
		env.Set(header, traceID)

		tracing := ctx.Tracing()
		if tracing == nil {
			tracing = &envelope.TraceInfo{}
		}
		tracing.TraceID = traceID
		ctx.SetTracing(tracing)

		return next(env, ctx)
	}
}
