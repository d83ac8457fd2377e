// Package engine is Raffel's top-level façade: it turns a config.Config
// into a live Registry + Router with every interceptor from spec §4.6-
// §4.10 wired in, owns the process-wide background timers those
// interceptors need (cache sweep, delivery-tracker sweep), and exposes a
// single graceful Shutdown. Grounded on the teacher's core.Framework /
// core.BaseAgent.Start+Shutdown lifecycle, generalized from one HTTP
// server per process to an Engine any number of transport adapters can
// be built against.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/forattini-dev/raffel/cache"
	"github.com/forattini-dev/raffel/config"
	"github.com/forattini-dev/raffel/dedup"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/logging"
	"github.com/forattini-dev/raffel/observability"
	"github.com/forattini-dev/raffel/ratelimit"
	"github.com/forattini-dev/raffel/registry"
	"github.com/forattini-dev/raffel/rerrors"
	"github.com/forattini-dev/raffel/resilience"
	"github.com/forattini-dev/raffel/router"
)

// Engine bundles a Registry, the Router built on top of it, and every
// background resource (circuit-breaker state, cache store, delivery
// tracker) that needs an explicit Shutdown. Register handlers against
// Registry(), then call Start before serving traffic.
type Engine struct {
	cfg *config.Config

	reg *registry.Registry
	rtr *router.Router

	logger logging.Logger

	cbManager  *resilience.Manager
	cacheStore cache.Store
	rlDriver   ratelimit.Driver
	tracker    *router.DeliveryTracker

	tracingShutdown func(context.Context) error

	mu        sync.Mutex
	stopSweep chan struct{}
	started   bool
}

// New builds an Engine from cfg: a fresh Registry, a Router with the
// resilience/cache/rate-limit/dedup/observability interceptors from
// SPEC_FULL.md's ambient and domain stacks applied as global
// interceptors (spec §4.4 chain assembly step 2), in the order chosen in
// DESIGN.md's "interceptor chain order" decision: request-id, logging,
// tracing, rate-limit, circuit-breaker, dedup, cache, retry, timeout,
// bulkhead.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		return nil, rerrors.New(rerrors.InvalidArgument, "engine: config is required")
	}

	logger := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      logging.Format(cfg.Logging.Format),
		ServiceName: cfg.ServiceName,
	})

	reg := registry.New()
	rtr := router.New(reg, observability.RequestID(observability.RequestIDConfig{}))

	e := &Engine{
		cfg:     cfg,
		reg:     reg,
		rtr:     rtr,
		logger:  logger,
		tracker: router.NewDeliveryTracker(),
	}

	rtr.Use(observability.Logging(observability.LoggingConfig{Logger: logger}))

	if cfg.Tracing.Enabled {
		rtr.Use(observability.Tracing(observability.TracingConfig{TracerName: cfg.ServiceName}))
	}

	if cfg.RateLimit.Enabled {
		driver, err := buildRateLimitDriver(cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		e.rlDriver = driver
		rtr.Use(ratelimit.Interceptor(ratelimit.Config{
			Driver: driver,
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
		}))
	}

	if cfg.Resilience.CircuitBreaker.Enabled {
		e.cbManager = resilience.NewManager(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Resilience.CircuitBreaker.FailureThreshold,
			WindowMs:         cfg.Resilience.CircuitBreaker.WindowMs,
			ResetTimeoutMs:   cfg.Resilience.CircuitBreaker.ResetTimeoutMs,
			SuccessThreshold: cfg.Resilience.CircuitBreaker.SuccessThreshold,
			Logger:           logger,
		})
		rtr.Use(e.cbManager.Interceptor())
	}

	if cfg.Dedup.Enabled {
		rtr.Use(dedup.Interceptor(dedup.Config{TTL: cfg.Dedup.TTL}))
	}

	if cfg.Cache.Enabled {
		store, err := buildCacheStore(cfg.Cache, logger)
		if err != nil {
			return nil, err
		}
		e.cacheStore = store
		rtr.Use(cache.Interceptor(cache.Config{
			Store:             store,
			TTL:               cfg.Cache.TTL,
			StaleWindow:       cfg.Cache.StaleWindow,
			RevalidateTimeout: cfg.Cache.RevalidateTimeout,
		}))
	}

	if cfg.Resilience.Retry.Enabled {
		rtr.Use(resilience.Retry(resilience.RetryConfig{
			MaxAttempts:       cfg.Resilience.Retry.MaxAttempts,
			Strategy:          resilience.Strategy(cfg.Resilience.Retry.Strategy),
			InitialDelay:      cfg.Resilience.Retry.InitialDelay,
			MaxDelay:          cfg.Resilience.Retry.MaxDelay,
			BackoffFactor:     cfg.Resilience.Retry.BackoffFactor,
			Jitter:            cfg.Resilience.Retry.Jitter,
			RespectRetryAfter: cfg.Resilience.Retry.RespectRetryAfter,
		}))
	}

	if cfg.Resilience.Timeout.Enabled {
		rtr.Use(resilience.Timeout(resilience.TimeoutConfig{Duration: cfg.Resilience.Timeout.Duration}))
	}

	if cfg.Resilience.Bulkhead.Enabled {
		rtr.Use(resilience.Bulkhead(resilience.BulkheadConfig{
			MaxConcurrent: cfg.Resilience.Bulkhead.MaxConcurrent,
			MaxQueueSize:  cfg.Resilience.Bulkhead.MaxQueueSize,
			QueueTimeout:  cfg.Resilience.Bulkhead.QueueTimeout,
		}))
	}

	return e, nil
}

func buildCacheStore(cfg config.CacheConfig, logger logging.Logger) (cache.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return cache.NewMemory(cache.MemoryOptions{
			MaxEntries:    cfg.MaxEntries,
			MaxBytes:      cfg.MaxBytes,
			SweepInterval: cfg.TTL,
			Logger:        logger,
		}), nil
	case "redis":
		client, err := redisClientFor(cfg.RedisURL)
		if err != nil {
			return nil, rerrors.Wrap(rerrors.InvalidArgument, err, "engine: failed to build cache redis client")
		}
		return cache.NewRedis(cache.RedisOptions{Client: client, Prefix: cfg.RedisKeyPrefix}), nil
	default:
		return nil, rerrors.Newf(rerrors.InvalidArgument, "engine: unknown cache driver %q", cfg.Driver)
	}
}

func buildRateLimitDriver(cfg config.RateLimitConfig) (ratelimit.Driver, error) {
	switch cfg.Driver {
	case "", "memory":
		return ratelimit.NewMemory(), nil
	case "redis":
		client, err := redisClientFor(cfg.RedisURL)
		if err != nil {
			return nil, rerrors.Wrap(rerrors.InvalidArgument, err, "engine: failed to build rate-limit redis client")
		}
		return ratelimit.NewRedis(ratelimit.RedisOptions{Client: client}), nil
	default:
		return nil, rerrors.Newf(rerrors.InvalidArgument, "engine: unknown rate-limit driver %q", cfg.Driver)
	}
}

func redisClientFor(url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// Registry exposes the Registry handlers are registered against. Every
// Register call must happen before Start (spec §5's write-once/read-many
// registry discipline).
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Router exposes the Router transport adapters dispatch through.
func (e *Engine) Router() *router.Router { return e.rtr }

// Logger returns the structured logger this Engine and its interceptors
// share, so adapters and application code log through the same sink.
func (e *Engine) Logger() logging.Logger { return e.logger }

// Tracker returns the DeliveryTracker transport adapters should share so
// ExactlyOnce event dedup observes every delivery this process makes,
// not just one adapter's.
func (e *Engine) Tracker() *router.DeliveryTracker { return e.tracker }

// Use registers an additional global interceptor, e.g. application-level
// authentication, ahead of calling Start.
func (e *Engine) Use(ic interceptor.Interceptor) { e.rtr.Use(ic) }

// Start freezes the Registry against further registration, installs the
// tracing provider if enabled, and starts the periodic DeliveryTracker
// sweep (spec §5's "timers MUST be stoppable on shutdown()").
func (e *Engine) Start(ctx context.Context) error {
	e.reg.Start()

	if e.cfg.Tracing.Enabled {
		shutdown, err := observability.InstallProvider(ctx, observability.ProviderConfig{
			ServiceName:  e.cfg.ServiceName,
			OTLPEndpoint: e.cfg.Tracing.OTLPEndpoint,
		})
		if err != nil {
			return rerrors.Wrap(rerrors.Internal, err, "engine: failed to install tracing provider")
		}
		e.tracingShutdown = shutdown
	}

	retention := e.cfg.Dedup.TTL
	if retention <= 0 {
		retention = 30 * time.Second
	}

	e.mu.Lock()
	e.stopSweep = make(chan struct{})
	e.started = true
	stop := e.stopSweep
	e.mu.Unlock()

	go e.sweepLoop(stop, retention)

	e.logger.Info("engine started", map[string]interface{}{"service": e.cfg.ServiceName})
	return nil
}

func (e *Engine) sweepLoop(stop chan struct{}, retention time.Duration) {
	interval := retention
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.tracker.Sweep(retention)
		case <-stop:
			return
		}
	}
}

// Shutdown stops every background timer the Engine owns (delivery
// tracker sweep, in-memory cache sweep) and flushes the tracing provider,
// all bounded by ctx (spec §5's graceful-shutdown discipline).
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	stop := e.stopSweep
	started := e.started
	e.started = false
	e.mu.Unlock()

	if started && stop != nil {
		close(stop)
	}

	if mem, ok := e.cacheStore.(*cache.Memory); ok {
		mem.Close()
	}

	if e.tracingShutdown != nil {
		if err := e.tracingShutdown(ctx); err != nil {
			return rerrors.Wrap(rerrors.Internal, err, "engine: failed to shut down tracing provider")
		}
	}

	e.logger.Info("engine stopped", nil)
	return nil
}
