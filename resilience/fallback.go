package resilience

import (
	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
)

// FallbackConfig configures conditional recovery (spec §4.6 Fallback).
// Exactly one of StaticResponse or Handler is normally set; Handler takes
// precedence when both are non-nil.
type FallbackConfig struct {
	ShouldFallback func(err error) bool
	StaticResponse interface{}
	Handler        func(ctx *envelope.Context, err error) (interface{}, error)
}

// Fallback invokes next and, if it fails and cfg.ShouldFallback accepts
// the error, recovers with cfg.Handler (if set) or cfg.StaticResponse.
// The fallback handler observes the same cancellation scope as the
// original call: if ctx is already done, the recovery attempt still runs
// but Handler is responsible for checking ctx.Err() itself if it performs
// further I/O.
func Fallback(cfg FallbackConfig) interceptor.Interceptor {
	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		result, err := next(env, ctx)
		if err == nil {
			return result, nil
		}
		if cfg.ShouldFallback != nil && !cfg.ShouldFallback(err) {
			return nil, err
		}
		if cfg.Handler != nil {
			return cfg.Handler(ctx, err)
		}
		return cfg.StaticResponse, nil
	}
}
