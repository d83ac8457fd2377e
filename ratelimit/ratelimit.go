// Package ratelimit implements the rate-limiting interceptor (spec §4.6
// Rate Limit / C8): sliding-window counting per derived key, pattern-rule
// overrides, and a pluggable Driver contract so the window can live
// in-process or in a shared Redis instance. Grounded on the teacher's
// core.RedisSchemaCache for the Redis-backed driver shape (atomic
// counters, graceful degrade) and orchestration.SimpleCache for the
// in-memory sliding-window bookkeeping style.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/rerrors"
)

// Driver is the pluggable sliding-window counter contract.
type Driver interface {
	// Increment records one hit for key inside the current window and
	// returns the count so far within window, plus the duration until
	// the oldest hit in the window expires (used for Retry-After).
	Increment(ctx context.Context, key string, window time.Duration) (count int, resetIn time.Duration, err error)
	Reset(ctx context.Context, key string) error
}

// Rule overrides the default limit for procedures matching Pattern.
// Rules are evaluated in declaration order; the first match wins.
type Rule struct {
	Pattern string
	Limit   int
	Window  time.Duration
}

// Config configures the rate-limit interceptor.
type Config struct {
	Driver  Driver
	Limit   int
	Window  time.Duration
	Rules   []Rule
	// KeyFunc derives the bucket key. Default: auth.principal, else
	// x-forwarded-for metadata, else ctx.RequestID (spec §4.6 default key
	// derivation).
	KeyFunc func(env *envelope.Envelope, ctx *envelope.Context) string
	Matcher func(procedure, pattern string) bool
}

// Interceptor returns the rate-limit Interceptor.
func Interceptor(cfg Config) interceptor.Interceptor {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = DefaultKey
	}

	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		limit, window := cfg.Limit, cfg.Window
		for _, rule := range cfg.Rules {
			if cfg.Matcher != nil && cfg.Matcher(env.Procedure, rule.Pattern) {
				limit, window = rule.Limit, rule.Window
				break
			}
		}
		if limit <= 0 || window <= 0 {
			return next(env, ctx)
		}

		key := env.Procedure + ":" + keyFunc(env, ctx)
		count, resetIn, err := cfg.Driver.Increment(ctx.GoContext(), key, window)
		if err != nil {
			// Fail open: a broken rate-limit backend must not take down
			// the whole service.
			return next(env, ctx)
		}

		if count > limit {
			retryAfterSecs := strconv.Itoa(int(resetIn.Seconds()) + 1)
			return nil, &rerrors.Error{
				Code:       rerrors.RateLimited,
				Message:    "rate limit exceeded",
				RetryAfter: retryAfterSecs,
			}
		}

		return next(env, ctx)
	}
}

// DefaultKey derives the bucket key from auth principal, else the
// x-forwarded-for header, else the request id (spec §4.6).
func DefaultKey(env *envelope.Envelope, ctx *envelope.Context) string {
	if auth := ctx.Auth(); auth != nil && auth.Principal != "" {
		return auth.Principal
	}
	if fwd, ok := env.Get("x-forwarded-for"); ok && fwd != "" {
		return fwd
	}
	return ctx.RequestID
}
