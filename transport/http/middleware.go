package http

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/forattini-dev/raffel/config"
	"github.com/forattini-dev/raffel/logging"
)

// responseWriter wraps http.ResponseWriter to capture the status code
// written, matching the teacher's core.responseWriter, including the
// Flush passthrough SSE streaming depends on.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// RecoveryMiddleware recovers from a panic escaping the handler chain,
// logs it with a stack trace, and returns 500 rather than crashing the
// server (teacher's core.RecoveryMiddleware).
func RecoveryMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("http handler panic recovered", map[string]interface{}{
						"panic":      err,
						"path":       r.URL.Path,
						"method":     r.Method,
						"stack":      string(debug.Stack()),
						"user_agent": r.UserAgent(),
						"remote_ip":  r.RemoteAddr,
					})
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs one line per request. In devMode every request
// is logged; otherwise only non-2xx responses and requests slower than a
// second are, matching the teacher's core.LoggingMiddleware.
func LoggingMiddleware(logger logging.Logger, devMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			shouldLog := devMode || wrapped.statusCode >= 400 || duration > time.Second
			if !shouldLog {
				return
			}

			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
				"remote_addr": r.RemoteAddr,
			}
			switch {
			case wrapped.statusCode >= 500:
				logger.ErrorWithContext(r.Context(), "http request error", fields)
			case wrapped.statusCode >= 400:
				logger.WarnWithContext(r.Context(), "http request client error", fields)
			case duration > time.Second:
				logger.WarnWithContext(r.Context(), "http request slow", fields)
			default:
				logger.InfoWithContext(r.Context(), "http request", fields)
			}
		})
	}
}

// CORSMiddleware handles preflight requests and adds CORS response
// headers, following the teacher's core.CORSMiddleware / isOriginAllowed
// wildcard rules (exact match, "*", "*.example.com" subdomains, and
// "http://localhost:*" port wildcards).
func CORSMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if isOriginAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if len(cfg.AllowedMethods) > 0 {
					w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
				}
				if len(cfg.AllowedHeaders) > 0 {
					w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
				}
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", cfg.MaxAge))
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isOriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, candidate := range allowed {
		switch {
		case candidate == "*":
			return true
		case candidate == origin:
			return true
		case strings.Contains(candidate, "*."):
			if matchesSubdomainWildcard(origin, candidate) {
				return true
			}
		case strings.Contains(candidate, ":*"):
			base := strings.Split(candidate, ":*")[0]
			if strings.HasPrefix(origin, base+":") {
				return true
			}
		}
	}
	return false
}

func matchesSubdomainWildcard(origin, pattern string) bool {
	idx := strings.Index(pattern, "*.")
	before := pattern[:idx]
	after := pattern[idx+2:]
	if !strings.HasPrefix(origin, before) || !strings.HasSuffix(origin, after) {
		return false
	}
	remaining := strings.TrimSuffix(origin[len(before):], after)
	return len(remaining) > 0
}
