// Package config assembles a Raffel engine's process-level configuration.
// It follows the teacher's three-layer precedence model (defaults, then
// environment variables, then functional options, each overriding the
// last) and keeps every sub-config a plain data struct so it can also be
// loaded from a YAML/JSON file via LoadFile. Wiring these values into the
// actual interceptors (attaching loggers, callbacks, drivers) is the
// engine package's job, not this one's.
package config

import (
	"time"

	"github.com/forattini-dev/raffel/rerrors"
)

// Config is the root of Raffel's process-level configuration (spec §6
// "Configuration (process-level)"), extended with the resilience, cache,
// rate-limit, and observability sections an HTTP adapter needs to boot.
type Config struct {
	ServiceName string `json:"service_name" yaml:"service_name" env:"RAFFEL_SERVICE_NAME"`
	Environment string `json:"environment" yaml:"environment" env:"RAFFEL_ENV"`

	HTTP        HTTPConfig        `json:"http" yaml:"http"`
	Resilience  ResilienceConfig  `json:"resilience" yaml:"resilience"`
	Cache       CacheConfig       `json:"cache" yaml:"cache"`
	RateLimit   RateLimitConfig   `json:"rate_limit" yaml:"rate_limit"`
	Dedup       DedupConfig       `json:"dedup" yaml:"dedup"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	Tracing     TracingConfig     `json:"tracing" yaml:"tracing"`
	Development DevelopmentConfig `json:"development" yaml:"development"`
}

// HTTPConfig covers spec §6's startup options (port, cors, bodyLimit,
// trustProxy, streaming, heartbeatIntervalMs, maxConnections, tls).
type HTTPConfig struct {
	Port                int           `json:"port" yaml:"port" env:"RAFFEL_PORT"`
	Address             string        `json:"address" yaml:"address" env:"RAFFEL_ADDRESS"`
	BodyLimit           int64         `json:"body_limit" yaml:"body_limit" env:"RAFFEL_BODY_LIMIT"`
	TrustProxy          bool          `json:"trust_proxy" yaml:"trust_proxy" env:"RAFFEL_TRUST_PROXY"`
	Streaming           bool          `json:"streaming" yaml:"streaming" env:"RAFFEL_STREAMING_ENABLED"`
	HeartbeatIntervalMs int64         `json:"heartbeat_interval_ms" yaml:"heartbeat_interval_ms" env:"RAFFEL_HEARTBEAT_INTERVAL_MS"`
	MaxConnections      int           `json:"max_connections" yaml:"max_connections" env:"RAFFEL_MAX_CONNECTIONS"`
	ReadTimeout         time.Duration `json:"read_timeout" yaml:"read_timeout" env:"RAFFEL_HTTP_READ_TIMEOUT"`
	WriteTimeout        time.Duration `json:"write_timeout" yaml:"write_timeout" env:"RAFFEL_HTTP_WRITE_TIMEOUT"`
	IdleTimeout         time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"RAFFEL_HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout     time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"RAFFEL_HTTP_SHUTDOWN_TIMEOUT"`
	CORS                CORSConfig    `json:"cors" yaml:"cors"`
	TLS                 TLSConfig     `json:"tls" yaml:"tls"`
}

// CORSConfig mirrors the teacher's CORSConfig, trimmed to what an HTTP
// adapter actually consults.
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled" env:"RAFFEL_CORS_ENABLED"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins" env:"RAFFEL_CORS_ORIGINS"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods" env:"RAFFEL_CORS_METHODS"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers" env:"RAFFEL_CORS_HEADERS"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials" env:"RAFFEL_CORS_CREDENTIALS"`
	MaxAge           int      `json:"max_age" yaml:"max_age" env:"RAFFEL_CORS_MAX_AGE"`
}

// TLSConfig enables the optional `tls?` startup option from spec §6.
type TLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"RAFFEL_TLS_ENABLED"`
	CertFile string `json:"cert_file" yaml:"cert_file" env:"RAFFEL_TLS_CERT_FILE"`
	KeyFile  string `json:"key_file" yaml:"key_file" env:"RAFFEL_TLS_KEY_FILE"`
}

// ResilienceConfig holds the data form of the interceptors built in
// package resilience (spec §4.6); the engine turns these into the
// actual resilience.*Config values, wiring in loggers and callbacks.
type ResilienceConfig struct {
	Timeout        TimeoutConfig        `json:"timeout" yaml:"timeout"`
	Retry          RetryConfig          `json:"retry" yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	Bulkhead       BulkheadConfig       `json:"bulkhead" yaml:"bulkhead"`
}

// TimeoutConfig is the data form of resilience.TimeoutConfig.
type TimeoutConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled" env:"RAFFEL_TIMEOUT_ENABLED"`
	Duration time.Duration `json:"duration" yaml:"duration" env:"RAFFEL_TIMEOUT_DURATION"`
}

// RetryConfig is the data form of resilience.RetryConfig. Strategy is one
// of "linear", "exponential", "decorrelated" and is resolved to a
// resilience.Strategy by the engine.
type RetryConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled" env:"RAFFEL_RETRY_ENABLED"`
	MaxAttempts       int           `json:"max_attempts" yaml:"max_attempts" env:"RAFFEL_RETRY_MAX_ATTEMPTS"`
	Strategy          string        `json:"strategy" yaml:"strategy" env:"RAFFEL_RETRY_STRATEGY"`
	InitialDelay      time.Duration `json:"initial_delay" yaml:"initial_delay" env:"RAFFEL_RETRY_INITIAL_DELAY"`
	MaxDelay          time.Duration `json:"max_delay" yaml:"max_delay" env:"RAFFEL_RETRY_MAX_DELAY"`
	BackoffFactor     float64       `json:"backoff_factor" yaml:"backoff_factor" env:"RAFFEL_RETRY_BACKOFF_FACTOR"`
	Jitter            bool          `json:"jitter" yaml:"jitter" env:"RAFFEL_RETRY_JITTER"`
	RespectRetryAfter bool          `json:"respect_retry_after" yaml:"respect_retry_after" env:"RAFFEL_RETRY_RESPECT_RETRY_AFTER"`
}

// CircuitBreakerConfig is the data form of resilience.CircuitBreakerConfig.
type CircuitBreakerConfig struct {
	Enabled          bool  `json:"enabled" yaml:"enabled" env:"RAFFEL_CB_ENABLED"`
	FailureThreshold int   `json:"failure_threshold" yaml:"failure_threshold" env:"RAFFEL_CB_FAILURE_THRESHOLD"`
	WindowMs         int64 `json:"window_ms" yaml:"window_ms" env:"RAFFEL_CB_WINDOW_MS"`
	ResetTimeoutMs   int64 `json:"reset_timeout_ms" yaml:"reset_timeout_ms" env:"RAFFEL_CB_RESET_TIMEOUT_MS"`
	SuccessThreshold int   `json:"success_threshold" yaml:"success_threshold" env:"RAFFEL_CB_SUCCESS_THRESHOLD"`
}

// BulkheadConfig is the data form of resilience.BulkheadConfig.
type BulkheadConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled" env:"RAFFEL_BULKHEAD_ENABLED"`
	MaxConcurrent int           `json:"max_concurrent" yaml:"max_concurrent" env:"RAFFEL_BULKHEAD_MAX_CONCURRENT"`
	MaxQueueSize  int           `json:"max_queue_size" yaml:"max_queue_size" env:"RAFFEL_BULKHEAD_MAX_QUEUE_SIZE"`
	QueueTimeout  time.Duration `json:"queue_timeout" yaml:"queue_timeout" env:"RAFFEL_BULKHEAD_QUEUE_TIMEOUT"`
}

// CacheConfig is the data form of cache.Config plus the driver selection
// (spec §4.7, §4.11). Driver is "memory" or "redis".
type CacheConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled" env:"RAFFEL_CACHE_ENABLED"`
	Driver            string        `json:"driver" yaml:"driver" env:"RAFFEL_CACHE_DRIVER"`
	TTL               time.Duration `json:"ttl" yaml:"ttl" env:"RAFFEL_CACHE_TTL"`
	StaleWindow       time.Duration `json:"stale_window" yaml:"stale_window" env:"RAFFEL_CACHE_STALE_WINDOW"`
	RevalidateTimeout time.Duration `json:"revalidate_timeout" yaml:"revalidate_timeout" env:"RAFFEL_CACHE_REVALIDATE_TIMEOUT"`
	MaxEntries        int           `json:"max_entries" yaml:"max_entries" env:"RAFFEL_CACHE_MAX_ENTRIES"`
	MaxBytes          int64         `json:"max_bytes" yaml:"max_bytes" env:"RAFFEL_CACHE_MAX_BYTES"`
	RedisURL          string        `json:"redis_url" yaml:"redis_url" env:"RAFFEL_CACHE_REDIS_URL,REDIS_URL"`
	RedisKeyPrefix    string        `json:"redis_key_prefix" yaml:"redis_key_prefix" env:"RAFFEL_CACHE_REDIS_PREFIX"`
}

// RateLimitConfig is the data form of ratelimit.Config (spec §4.8).
type RateLimitConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled" env:"RAFFEL_RATELIMIT_ENABLED"`
	Driver   string        `json:"driver" yaml:"driver" env:"RAFFEL_RATELIMIT_DRIVER"`
	Limit    int           `json:"limit" yaml:"limit" env:"RAFFEL_RATELIMIT_LIMIT"`
	Window   time.Duration `json:"window" yaml:"window" env:"RAFFEL_RATELIMIT_WINDOW"`
	RedisURL string        `json:"redis_url" yaml:"redis_url" env:"RAFFEL_RATELIMIT_REDIS_URL,REDIS_URL"`
}

// DedupConfig is the data form of dedup.Config (spec §4.9).
type DedupConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled" env:"RAFFEL_DEDUP_ENABLED"`
	TTL     time.Duration `json:"ttl" yaml:"ttl" env:"RAFFEL_DEDUP_TTL"`
}

// LoggingConfig controls the observability.Logging interceptor and the
// ProductionLogger it logs through. Format is "json" or "text"; empty
// defers to Environment the way logging.New already auto-detects.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"RAFFEL_LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"RAFFEL_LOG_FORMAT"`
	Output string `json:"output" yaml:"output" env:"RAFFEL_LOG_OUTPUT"`
}

// TracingConfig controls observability.InstallProvider.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" env:"RAFFEL_TRACING_ENABLED"`
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint" env:"RAFFEL_TRACING_OTLP_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// DevelopmentConfig carries developer-convenience toggles, analogous to
// the teacher's DevelopmentConfig but trimmed of AI/discovery mocks that
// have no equivalent in Raffel's domain.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled" env:"RAFFEL_DEV_MODE"`
	PrettyLogs   bool `json:"pretty_logs" yaml:"pretty_logs" env:"RAFFEL_PRETTY_LOGS"`
	DebugLogging bool `json:"debug_logging" yaml:"debug_logging" env:"RAFFEL_DEBUG"`
}

// Option is a functional option applied after defaults and environment
// variables, taking highest precedence (spec §6, teacher's NewConfig).
type Option func(*Config) error

// DefaultConfig returns sensible defaults, then adjusts them for the
// detected environment the way the teacher's DetectEnvironment does for
// Kubernetes vs local.
func DefaultConfig() *Config {
	cfg := &Config{
		ServiceName: "raffel",
		Environment: "production",
		HTTP: HTTPConfig{
			Port:                8080,
			Address:             "0.0.0.0",
			BodyLimit:           1 << 20,
			TrustProxy:          false,
			Streaming:           true,
			HeartbeatIntervalMs: 30_000,
			MaxConnections:      0,
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        30 * time.Second,
			IdleTimeout:         120 * time.Second,
			ShutdownTimeout:     10 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-Id"},
				MaxAge:         86400,
			},
		},
		Resilience: ResilienceConfig{
			Timeout: TimeoutConfig{Duration: 30 * time.Second},
			Retry: RetryConfig{
				MaxAttempts:   3,
				Strategy:      "exponential",
				InitialDelay:  100 * time.Millisecond,
				MaxDelay:      5 * time.Second,
				BackoffFactor: 2.0,
				Jitter:        true,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				WindowMs:         60_000,
				ResetTimeoutMs:   30_000,
				SuccessThreshold: 2,
			},
			Bulkhead: BulkheadConfig{
				MaxConcurrent: 64,
				MaxQueueSize:  128,
				QueueTimeout:  5 * time.Second,
			},
		},
		Cache: CacheConfig{
			Driver:         "memory",
			TTL:            1 * time.Minute,
			MaxEntries:     10_000,
			MaxBytes:       64 << 20,
			RedisKeyPrefix: "raffel:cache:",
		},
		RateLimit: RateLimitConfig{
			Driver: "memory",
			Limit:  100,
			Window: 1 * time.Minute,
		},
		Dedup: DedupConfig{
			TTL: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
		Tracing: TracingConfig{},
		Development: DevelopmentConfig{
			Enabled: false,
		},
	}

	cfg.detectEnvironment()
	return cfg
}

// detectEnvironment mirrors the teacher's DetectEnvironment but keys off
// RAFFEL_ENV instead of assuming a Kubernetes deployment target, per
// SPEC_FULL.md's ambient-stack logging section.
func (c *Config) detectEnvironment() {
	if c.Environment == "development" {
		c.Development.Enabled = true
		c.Development.PrettyLogs = true
		c.Logging.Format = "text"
	}
}

// Validate enforces the invariants the teacher's Config.Validate checks,
// narrowed to Raffel's sections, surfacing rerrors.InvalidArgument so
// callers can treat config errors uniformly with request-time errors.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return rerrors.Newf(rerrors.InvalidArgument, "invalid port: %d", c.HTTP.Port)
	}
	if c.ServiceName == "" {
		return rerrors.New(rerrors.InvalidArgument, "service name is required")
	}
	if c.HTTP.TLS.Enabled && (c.HTTP.TLS.CertFile == "" || c.HTTP.TLS.KeyFile == "") {
		return rerrors.New(rerrors.InvalidArgument, "tls cert and key files are required when tls is enabled")
	}
	if c.Cache.Enabled && c.Cache.Driver == "redis" && c.Cache.RedisURL == "" {
		return rerrors.New(rerrors.InvalidArgument, "redis url is required for the redis cache driver")
	}
	if c.RateLimit.Enabled && c.RateLimit.Driver == "redis" && c.RateLimit.RedisURL == "" {
		return rerrors.New(rerrors.InvalidArgument, "redis url is required for the redis rate-limit driver")
	}
	if c.Resilience.Retry.Enabled {
		switch c.Resilience.Retry.Strategy {
		case "linear", "exponential", "decorrelated":
		default:
			return rerrors.Newf(rerrors.InvalidArgument, "unknown retry strategy: %q", c.Resilience.Retry.Strategy)
		}
	}
	return nil
}

// New builds a Config from defaults, environment variables, then the
// supplied options, validating the result (teacher's NewConfig order).
func New(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, rerrors.Wrap(rerrors.InvalidArgument, err, "failed to load configuration from environment")
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, rerrors.Wrap(rerrors.InvalidArgument, err, "failed to apply configuration option")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
