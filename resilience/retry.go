package resilience

import (
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/rerrors"
)

// Strategy picks the delay curve between attempts. Grounded on the
// teacher's resilience.RetryConfig exponential-backoff loop, extended
// here with linear and decorrelated-jitter curves per spec §4.6 Retry.
type Strategy string

const (
	StrategyLinear        Strategy = "linear"
	StrategyExponential   Strategy = "exponential"
	StrategyDecorrelated  Strategy = "decorrelated"
)

// RetryConfig configures the retry interceptor.
type RetryConfig struct {
	MaxAttempts      int
	Strategy         Strategy
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	BackoffFactor    float64 // used by StrategyExponential, default 2.0
	Jitter           bool    // applies +/-25% jitter, except decorrelated (which is jitter by construction)
	RespectRetryAfter bool
	// ShouldRetry overrides the default rerrors.IsRetryable check when set.
	ShouldRetry func(err error) bool
	OnRetry     func(attempt int, delay time.Duration, err error)
}

// Retry returns an Interceptor implementing spec §4.6's retry contract:
// it re-invokes next up to cfg.MaxAttempts times while the returned error
// is retryable, sleeping between attempts according to cfg.Strategy, and
// writes x-retry-attempt (the retry number: "1" on the first retry) and
// x-retry-delay-ms onto the envelope's metadata before every retried call
// so downstream interceptors (and logs) can see which retry is in flight.
func Retry(cfg RetryConfig) interceptor.Interceptor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = rerrors.IsRetryable
	}

	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		var lastErr error
		delay := cfg.InitialDelay

		for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
			if attempt > 1 {
				env.Set("x-retry-attempt", strconv.Itoa(attempt-1))
			}

			result, err := next(env, ctx)
			if err == nil {
				return result, nil
			}
			lastErr = err

			if attempt == cfg.MaxAttempts || !shouldRetry(err) {
				break
			}

			wait := nextDelay(cfg, attempt, delay)
			if cfg.RespectRetryAfter {
				if ra := retryAfterOf(err); ra > 0 {
					wait = ra
				}
			}
			if wait > cfg.MaxDelay {
				wait = cfg.MaxDelay
			}
			delay = wait

			env.Set("x-retry-delay-ms", strconv.FormatInt(wait.Milliseconds(), 10))
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, wait, err)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, rerrors.New(rerrors.Cancelled, "retry aborted: context cancelled")
			case <-timer.C:
			}
		}

		return nil, lastErr
	}
}

func nextDelay(cfg RetryConfig, attempt int, previous time.Duration) time.Duration {
	var base time.Duration
	switch cfg.Strategy {
	case StrategyDecorrelated:
		// AWS-style decorrelated jitter: next = random(initial, previous*3).
		lo := float64(cfg.InitialDelay)
		hi := float64(previous) * 3
		if hi < lo {
			hi = lo
		}
		base = time.Duration(lo + rand.Float64()*(hi-lo))
		return base
	case StrategyLinear:
		base = cfg.InitialDelay * time.Duration(attempt)
	default: // exponential
		base = time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1)))
	}

	if cfg.Jitter {
		// +/-25% jitter around base, matching spec's jitter range.
		spread := float64(base) * 0.25
		base = base + time.Duration((rand.Float64()*2-1)*spread)
		if base < 0 {
			base = 0
		}
	}
	return base
}

// retryAfterOf extracts a Retry-After hint from err, accepting either a
// plain integer number of seconds or an HTTP-date, per spec §4.6's
// "respectRetryAfter" option. Returns 0 if absent or unparseable.
func retryAfterOf(err error) time.Duration {
	var rerr *rerrors.Error
	if !errors.As(err, &rerr) || rerr.RetryAfter == "" {
		return 0
	}
	if secs, convErr := strconv.Atoi(rerr.RetryAfter); convErr == nil {
		return time.Duration(secs) * time.Second
	}
	if t, convErr := http.ParseTime(rerr.RetryAfter); convErr == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
