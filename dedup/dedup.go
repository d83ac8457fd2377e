// Package dedup implements pure in-flight request coalescing (spec §4.6
// Dedup / C9): callers sharing the same fingerprint within a short TTL
// window collapse onto one execution and share its result, with no
// durable storage involved (contrast cache.Interceptor, which persists
// results). Grounded on the teacher's half-open execution-token tracking
// in resilience.CircuitBreaker (a sync.Map of in-flight tokens guarding
// concurrent probes), generalized here to arbitrary procedures keyed by
// payload fingerprint instead of one token per circuit.
package dedup

import (
	"sync"
	"time"

	"github.com/forattini-dev/raffel/cache"
	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
)

// DefaultTTL is how long a fingerprint is remembered after its owning
// call completes, bounding how long a delayed duplicate can still
// coalesce onto an already-finished call's result.
const DefaultTTL = 30 * time.Second

// Config configures the dedup interceptor.
type Config struct {
	TTL          time.Duration
	KeyGenerator cache.KeyGenerator
	HeaderKeys   []string
}

// token is one in-flight (or recently completed) coalescing point.
// done distinguishes "still running, wait on wg" (done == false, expires
// is meaningless) from "completed, share the result until expires"
// (done == true) — relying on the zero value of expires to mean
// "in-flight" doesn't work here, since a zero time.Time is never After
// any real time, and without done a concurrent caller arriving while
// the original call is still running would wrongly treat the token as
// already expired and start a duplicate call.
type token struct {
	wg      sync.WaitGroup
	result  interface{}
	err     error
	done    bool
	expires time.Time
}

// Interceptor returns the dedup Interceptor. Unlike cache.Interceptor,
// there is no store: every token is forgotten TTL after completion, and
// a fresh call after that always re-executes next.
func Interceptor(cfg Config) interceptor.Interceptor {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	keyGen := cfg.KeyGenerator
	if keyGen == nil {
		keyGen = cache.DefaultFingerprint(cfg.HeaderKeys)
	}

	var mu sync.Mutex
	tokens := make(map[string]*token)

	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		key, err := keyGen(env)
		if err != nil {
			return next(env, ctx)
		}

		now := time.Now()
		mu.Lock()
		if tk, ok := tokens[key]; ok && (!tk.done || tk.expires.After(now)) {
			mu.Unlock()
			tk.wg.Wait()
			return tk.result, tk.err
		}

		tk := &token{}
		tk.wg.Add(1)
		tokens[key] = tk
		mu.Unlock()

		result, callErr := next(env, ctx)
		tk.result, tk.err = result, callErr
		tk.expires = time.Now().Add(cfg.TTL)
		tk.done = true
		tk.wg.Done()

		time.AfterFunc(cfg.TTL, func() {
			mu.Lock()
			if tokens[key] == tk {
				delete(tokens, key)
			}
			mu.Unlock()
		})

		return result, callErr
	}
}
