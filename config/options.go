package config

import "time"

// WithServiceName sets the service's identity for logging and tracing.
func WithServiceName(name string) Option {
	return func(c *Config) error {
		c.ServiceName = name
		return nil
	}
}

// WithPort sets the HTTP listen port. Validation happens in Validate,
// not here, so options can be applied in any order.
func WithPort(port int) Option {
	return func(c *Config) error {
		c.HTTP.Port = port
		return nil
	}
}

// WithAddress sets the HTTP bind address.
func WithAddress(address string) Option {
	return func(c *Config) error {
		c.HTTP.Address = address
		return nil
	}
}

// WithTLS enables TLS termination with the given certificate pair.
func WithTLS(certFile, keyFile string) Option {
	return func(c *Config) error {
		c.HTTP.TLS = TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile}
		return nil
	}
}

// WithCORS enables CORS with the given allowed origins.
func WithCORS(origins []string, allowCredentials bool) Option {
	return func(c *Config) error {
		c.HTTP.CORS.Enabled = true
		c.HTTP.CORS.AllowedOrigins = origins
		c.HTTP.CORS.AllowCredentials = allowCredentials
		return nil
	}
}

// WithStreaming toggles whether the HTTP adapter exposes the SSE stream
// mapping from spec §6.
func WithStreaming(enabled bool) Option {
	return func(c *Config) error {
		c.HTTP.Streaming = enabled
		return nil
	}
}

// WithHeartbeatInterval sets the WebSocket heartbeat interval (spec §6).
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *Config) error {
		c.HTTP.HeartbeatIntervalMs = interval.Milliseconds()
		return nil
	}
}

// WithMaxConnections caps concurrent connections; zero means unlimited.
func WithMaxConnections(max int) Option {
	return func(c *Config) error {
		c.HTTP.MaxConnections = max
		return nil
	}
}

// WithTimeout enables the per-call Timeout interceptor.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Timeout = TimeoutConfig{Enabled: true, Duration: d}
		return nil
	}
}

// WithRetry enables the Retry interceptor with the given attempt count
// and backoff strategy ("linear", "exponential", or "decorrelated").
func WithRetry(maxAttempts int, strategy string, initialDelay time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Retry.Enabled = true
		c.Resilience.Retry.MaxAttempts = maxAttempts
		c.Resilience.Retry.Strategy = strategy
		c.Resilience.Retry.InitialDelay = initialDelay
		return nil
	}
}

// WithCircuitBreaker enables the CircuitBreaker interceptor.
func WithCircuitBreaker(failureThreshold int, resetTimeout time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.CircuitBreaker.Enabled = true
		c.Resilience.CircuitBreaker.FailureThreshold = failureThreshold
		c.Resilience.CircuitBreaker.ResetTimeoutMs = resetTimeout.Milliseconds()
		return nil
	}
}

// WithBulkhead enables the Bulkhead interceptor.
func WithBulkhead(maxConcurrent, maxQueueSize int, queueTimeout time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Bulkhead.Enabled = true
		c.Resilience.Bulkhead.MaxConcurrent = maxConcurrent
		c.Resilience.Bulkhead.MaxQueueSize = maxQueueSize
		c.Resilience.Bulkhead.QueueTimeout = queueTimeout
		return nil
	}
}

// WithCache enables the cache interceptor with the given driver
// ("memory" or "redis") and TTL.
func WithCache(driver string, ttl time.Duration) Option {
	return func(c *Config) error {
		c.Cache.Enabled = true
		c.Cache.Driver = driver
		c.Cache.TTL = ttl
		return nil
	}
}

// WithRedisURL points the cache and rate-limit drivers at the same Redis
// instance, mirroring the teacher's WithRedisURL convenience that fans
// one URL out to every Redis-backed module. Dedup has no Redis driver.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Cache.RedisURL = url
		c.RateLimit.RedisURL = url
		return nil
	}
}

// WithRateLimit enables the rate-limit interceptor with a default rule.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(c *Config) error {
		c.RateLimit.Enabled = true
		c.RateLimit.Limit = limit
		c.RateLimit.Window = window
		return nil
	}
}

// WithDedup enables the dedup interceptor with the given coalescing TTL.
func WithDedup(ttl time.Duration) Option {
	return func(c *Config) error {
		c.Dedup.Enabled = true
		c.Dedup.TTL = ttl
		return nil
	}
}

// WithLogLevel sets the minimum log level ("debug", "info", "warn", "error").
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat forces "json" or "text" logging, overriding the
// environment-based auto-detection.
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithTracing enables OpenTelemetry tracing, exporting via OTLP/gRPC to
// endpoint when non-empty, or to stdout whenever endpoint is empty.
func WithTracing(endpoint string) Option {
	return func(c *Config) error {
		c.Tracing.Enabled = true
		c.Tracing.OTLPEndpoint = endpoint
		return nil
	}
}

// WithDevelopmentMode enables developer-friendly defaults: text logging,
// debug level, pretty output. Mirrors the teacher's WithDevelopmentMode.
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Development.PrettyLogs = true
			c.Logging.Format = "text"
			c.Logging.Level = "debug"
		}
		return nil
	}
}
