package resilience

import (
	"time"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/rerrors"
)

// TimeoutConfig configures the timeout interceptor (spec §4.6 Timeout).
type TimeoutConfig struct {
	// Duration is the configured budget for the wrapped call. Zero means
	// "don't add a bound of my own" — the interceptor still honors any
	// deadline already present on ctx.
	Duration time.Duration
}

// Timeout returns an Interceptor that narrows ctx's cancellation scope to
// min(ctx.Deadline, now+cfg.Duration) and translates an expired deadline
// into DEADLINE_EXCEEDED. The tightened deadline is written back onto ctx
// (via Context.WithTimeout) so any nested timeout interceptor downstream
// observes the same or a tighter bound, never a looser one.
func Timeout(cfg TimeoutConfig) interceptor.Interceptor {
	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		if cfg.Duration <= 0 {
			return next(env, ctx)
		}

		cancel := ctx.WithTimeout(cfg.Duration)
		defer cancel()

		type outcome struct {
			result interface{}
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			result, err := next(env, ctx)
			done <- outcome{result, err}
		}()

		select {
		case o := <-done:
			return o.result, o.err
		case <-ctx.Done():
			return nil, rerrors.New(rerrors.DeadlineExceeded, "call exceeded its configured timeout")
		}
	}
}
