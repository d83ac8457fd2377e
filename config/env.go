package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnv overlays environment variables onto an already-defaulted
// Config, following the teacher's LoadFromEnv: only variables that are
// actually set override the current value, so defaults survive for
// everything else. Not every env struct tag is read here:
// RAFFEL_HTTP_IDLE_TIMEOUT, RAFFEL_CORS_METHODS, RAFFEL_CORS_HEADERS,
// RAFFEL_CORS_MAX_AGE, RAFFEL_RETRY_BACKOFF_FACTOR,
// RAFFEL_CB_SUCCESS_THRESHOLD, RAFFEL_CACHE_REVALIDATE_TIMEOUT,
// RAFFEL_CACHE_MAX_BYTES and RAFFEL_CACHE_REDIS_PREFIX have no effect.
func (c *Config) LoadFromEnv() error {
	if v := firstEnv("RAFFEL_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := firstEnv("RAFFEL_ENV"); v != "" {
		c.Environment = v
		c.detectEnvironment()
	}

	if v := firstEnv("RAFFEL_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = n
		}
	}
	if v := firstEnv("RAFFEL_ADDRESS"); v != "" {
		c.HTTP.Address = v
	}
	if v := firstEnv("RAFFEL_BODY_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.HTTP.BodyLimit = n
		}
	}
	if v := firstEnv("RAFFEL_TRUST_PROXY"); v != "" {
		c.HTTP.TrustProxy = parseBool(v)
	}
	if v := firstEnv("RAFFEL_STREAMING_ENABLED"); v != "" {
		c.HTTP.Streaming = parseBool(v)
	}
	if v := firstEnv("RAFFEL_HEARTBEAT_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.HTTP.HeartbeatIntervalMs = n
		}
	}
	if v := firstEnv("RAFFEL_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTP.MaxConnections = n
		}
	}
	if v := firstEnv("RAFFEL_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ReadTimeout = d
		}
	}
	if v := firstEnv("RAFFEL_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.WriteTimeout = d
		}
	}
	if v := firstEnv("RAFFEL_HTTP_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ShutdownTimeout = d
		}
	}

	if v := firstEnv("RAFFEL_CORS_ENABLED"); v != "" {
		c.HTTP.CORS.Enabled = parseBool(v)
	}
	if v := firstEnv("RAFFEL_CORS_ORIGINS"); v != "" {
		c.HTTP.CORS.AllowedOrigins = parseStringList(v)
	}
	if v := firstEnv("RAFFEL_CORS_CREDENTIALS"); v != "" {
		c.HTTP.CORS.AllowCredentials = parseBool(v)
	}

	if v := firstEnv("RAFFEL_TLS_ENABLED"); v != "" {
		c.HTTP.TLS.Enabled = parseBool(v)
	}
	if v := firstEnv("RAFFEL_TLS_CERT_FILE"); v != "" {
		c.HTTP.TLS.CertFile = v
	}
	if v := firstEnv("RAFFEL_TLS_KEY_FILE"); v != "" {
		c.HTTP.TLS.KeyFile = v
	}

	if v := firstEnv("RAFFEL_TIMEOUT_ENABLED"); v != "" {
		c.Resilience.Timeout.Enabled = parseBool(v)
	}
	if v := firstEnv("RAFFEL_TIMEOUT_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Resilience.Timeout.Duration = d
		}
	}

	if v := firstEnv("RAFFEL_RETRY_ENABLED"); v != "" {
		c.Resilience.Retry.Enabled = parseBool(v)
	}
	if v := firstEnv("RAFFEL_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Resilience.Retry.MaxAttempts = n
		}
	}
	if v := firstEnv("RAFFEL_RETRY_STRATEGY"); v != "" {
		c.Resilience.Retry.Strategy = strings.ToLower(v)
	}
	if v := firstEnv("RAFFEL_RETRY_INITIAL_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Resilience.Retry.InitialDelay = d
		}
	}
	if v := firstEnv("RAFFEL_RETRY_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Resilience.Retry.MaxDelay = d
		}
	}
	if v := firstEnv("RAFFEL_RETRY_JITTER"); v != "" {
		c.Resilience.Retry.Jitter = parseBool(v)
	}
	if v := firstEnv("RAFFEL_RETRY_RESPECT_RETRY_AFTER"); v != "" {
		c.Resilience.Retry.RespectRetryAfter = parseBool(v)
	}

	if v := firstEnv("RAFFEL_CB_ENABLED"); v != "" {
		c.Resilience.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := firstEnv("RAFFEL_CB_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Resilience.CircuitBreaker.FailureThreshold = n
		}
	}
	if v := firstEnv("RAFFEL_CB_WINDOW_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Resilience.CircuitBreaker.WindowMs = n
		}
	}
	if v := firstEnv("RAFFEL_CB_RESET_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Resilience.CircuitBreaker.ResetTimeoutMs = n
		}
	}

	if v := firstEnv("RAFFEL_BULKHEAD_ENABLED"); v != "" {
		c.Resilience.Bulkhead.Enabled = parseBool(v)
	}
	if v := firstEnv("RAFFEL_BULKHEAD_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Resilience.Bulkhead.MaxConcurrent = n
		}
	}
	if v := firstEnv("RAFFEL_BULKHEAD_MAX_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Resilience.Bulkhead.MaxQueueSize = n
		}
	}
	if v := firstEnv("RAFFEL_BULKHEAD_QUEUE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Resilience.Bulkhead.QueueTimeout = d
		}
	}

	if v := firstEnv("RAFFEL_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = parseBool(v)
	}
	if v := firstEnv("RAFFEL_CACHE_DRIVER"); v != "" {
		c.Cache.Driver = strings.ToLower(v)
	}
	if v := firstEnv("RAFFEL_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.TTL = d
		}
	}
	if v := firstEnv("RAFFEL_CACHE_STALE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.StaleWindow = d
		}
	}
	if v := firstEnv("RAFFEL_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.MaxEntries = n
		}
	}
	if v := firstEnv("RAFFEL_CACHE_REDIS_URL", "REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}

	if v := firstEnv("RAFFEL_RATELIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = parseBool(v)
	}
	if v := firstEnv("RAFFEL_RATELIMIT_DRIVER"); v != "" {
		c.RateLimit.Driver = strings.ToLower(v)
	}
	if v := firstEnv("RAFFEL_RATELIMIT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.Limit = n
		}
	}
	if v := firstEnv("RAFFEL_RATELIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RateLimit.Window = d
		}
	}
	if v := firstEnv("RAFFEL_RATELIMIT_REDIS_URL", "REDIS_URL"); v != "" {
		c.RateLimit.RedisURL = v
	}

	if v := firstEnv("RAFFEL_DEDUP_ENABLED"); v != "" {
		c.Dedup.Enabled = parseBool(v)
	}
	if v := firstEnv("RAFFEL_DEDUP_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Dedup.TTL = d
		}
	}

	if v := firstEnv("RAFFEL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := firstEnv("RAFFEL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := firstEnv("RAFFEL_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}

	if v := firstEnv("RAFFEL_TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = parseBool(v)
	}
	if v := firstEnv("RAFFEL_TRACING_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.OTLPEndpoint = v
		c.Tracing.Enabled = true
	}

	if v := firstEnv("RAFFEL_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Development.PrettyLogs = true
			c.Logging.Format = "text"
		}
	}
	if v := firstEnv("RAFFEL_PRETTY_LOGS"); v != "" {
		c.Development.PrettyLogs = parseBool(v)
	}
	if v := firstEnv("RAFFEL_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
		if c.Development.DebugLogging {
			c.Logging.Level = "debug"
		}
	}

	return nil
}

// firstEnv returns the value of the first set variable among names,
// matching the teacher's GOMIND_X-or-standard-name fallback convention
// (e.g. RAFFEL_CACHE_REDIS_URL falling back to REDIS_URL).
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// parseStringList splits a comma-separated string, trimming whitespace
// and dropping empty elements.
func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseBool accepts "true"/"1"/"yes"/"on" (case-insensitive) as true.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
