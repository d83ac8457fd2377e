package cache

import (
	"context"
	"sync"
	"time"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/metrics"
)

// Config configures the cache interceptor.
type Config struct {
	Store Store
	TTL   time.Duration
	// StaleWindow, if non-zero, enables stale-while-revalidate: a stale
	// (expired but within StaleWindow) entry is returned immediately while
	// a revalidation call runs in the background.
	StaleWindow time.Duration
	// RevalidateTimeout bounds the background revalidation call; it does
	// NOT extend the original request's cancellation scope (spec §4.6).
	RevalidateTimeout time.Duration
	KeyGenerator      KeyGenerator
	// HeaderKeys feeds the default fingerprint when KeyGenerator is unset.
	HeaderKeys []string
	OnHit      func(procedure, key string)
	OnMiss     func(procedure, key string)
	OnStale    func(procedure, key string)
}

// inflight tracks one in-progress origin call so concurrent callers
// sharing a fingerprint coalesce onto a single execution, including
// across the stale-while-revalidate boundary (spec's single-flight
// invariant is absolute: it is never bypassed, not even during SWR).
type inflight struct {
	wg     sync.WaitGroup
	result interface{}
	err    error
}

// Interceptor returns the cache Interceptor. Lookup rules (spec §4.6):
//   - fresh hit: return cached value immediately, never call next.
//   - stale hit (within StaleWindow): return cached value immediately,
//     kick off a bounded background revalidation that refreshes the store.
//   - miss (including stale-beyond-window): coalesce concurrent callers
//     onto one call to next, then populate the store.
func Interceptor(cfg Config) interceptor.Interceptor {
	keyGen := cfg.KeyGenerator
	if keyGen == nil {
		keyGen = DefaultFingerprint(cfg.HeaderKeys)
	}

	var mu sync.Mutex
	inFlight := make(map[string]*inflight)

	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		key, err := keyGen(env)
		if err != nil {
			return next(env, ctx)
		}

		now := time.Now()
		entry, found, _ := cfg.Store.Get(ctx.GoContext(), key)

		if found && entry.Fresh(now) {
			metrics.Global().Counter("raffel.cache.hit", "procedure", env.Procedure)
			if cfg.OnHit != nil {
				cfg.OnHit(env.Procedure, key)
			}
			cloned, cloneErr := deepClone(entry.Value)
			if cloneErr == nil {
				return cloned, nil
			}
			return entry.Value, nil
		}

		if found && entry.Stale(now) {
			metrics.Global().Counter("raffel.cache.stale", "procedure", env.Procedure)
			if cfg.OnStale != nil {
				cfg.OnStale(env.Procedure, key)
			}
			triggerRevalidate(&mu, inFlight, key, env, next, cfg)
			cloned, cloneErr := deepClone(entry.Value)
			if cloneErr == nil {
				return cloned, nil
			}
			return entry.Value, nil
		}

		metrics.Global().Counter("raffel.cache.miss", "procedure", env.Procedure)
		if cfg.OnMiss != nil {
			cfg.OnMiss(env.Procedure, key)
		}
		return coalesce(&mu, inFlight, key, env, ctx, next, cfg)
	}
}

// coalesce ensures only one caller per key actually invokes next; other
// callers sharing the same fingerprint wait for and receive that call's
// result (spec's single-flight invariant).
func coalesce(mu *sync.Mutex, inFlight map[string]*inflight, key string, env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next, cfg Config) (interface{}, error) {
	mu.Lock()
	if fl, ok := inFlight[key]; ok {
		mu.Unlock()
		fl.wg.Wait()
		return fl.result, fl.err
	}

	fl := &inflight{}
	fl.wg.Add(1)
	inFlight[key] = fl
	mu.Unlock()

	result, err := next(env, ctx)
	fl.result, fl.err = result, err
	fl.wg.Done()

	mu.Lock()
	delete(inFlight, key)
	mu.Unlock()

	if err == nil {
		_ = cfg.Store.Set(ctx.GoContext(), key, Entry{
			Value:      result,
			StoredAt:   time.Now(),
			ExpiresAt:  time.Now().Add(cfg.TTL),
			StaleUntil: staleUntil(cfg),
		})
	}
	return result, err
}

// triggerRevalidate starts at most one background revalidation per key,
// sharing the same inFlight map coalesce uses for the miss path: the
// single-flight invariant holds across the SWR boundary, so N concurrent
// callers observing the same stale entry still produce exactly one call
// to next(), not N. A caller that finds a revalidation already in flight
// returns without waiting on it — it already has the stale value to
// return immediately.
func triggerRevalidate(mu *sync.Mutex, inFlight map[string]*inflight, key string, env *envelope.Envelope, next interceptor.Next, cfg Config) {
	mu.Lock()
	if _, ok := inFlight[key]; ok {
		mu.Unlock()
		return
	}
	fl := &inflight{}
	fl.wg.Add(1)
	inFlight[key] = fl
	mu.Unlock()

	go revalidate(mu, inFlight, fl, key, env, next, cfg)
}

// revalidate refreshes the cached entry in the background, bounded by
// cfg.RevalidateTimeout instead of the original request's deadline, so a
// slow revalidation never blocks or extends the caller that triggered it.
func revalidate(mu *sync.Mutex, inFlight map[string]*inflight, fl *inflight, key string, env *envelope.Envelope, next interceptor.Next, cfg Config) {
	timeout := cfg.RevalidateTimeout
	if timeout <= 0 {
		timeout = cfg.TTL
	}
	bgCtx := envelope.NewContext(context.Background(), env.ID)
	cancel := bgCtx.WithTimeout(timeout)
	defer cancel()

	result, err := next(env.Clone(), bgCtx)
	fl.result, fl.err = result, err
	fl.wg.Done()

	mu.Lock()
	delete(inFlight, key)
	mu.Unlock()

	if err != nil {
		return
	}
	_ = cfg.Store.Set(bgCtx.GoContext(), key, Entry{
		Value:      result,
		StoredAt:   time.Now(),
		ExpiresAt:  time.Now().Add(cfg.TTL),
		StaleUntil: staleUntil(cfg),
	})
}

func staleUntil(cfg Config) time.Time {
	if cfg.StaleWindow <= 0 {
		return time.Time{}
	}
	return time.Now().Add(cfg.TTL).Add(cfg.StaleWindow)
}
