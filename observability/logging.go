package observability

import (
	"strings"
	"time"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/logging"
	"github.com/forattini-dev/raffel/rerrors"
)

// sensitiveHeaders are redacted from any structured log line, regardless
// of LoggingConfig.RedactHeaders, matching the teacher's treatment of
// authorization material in its production logger.
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
	"x-api-key":     true,
}

// LoggingConfig configures the request-logging interceptor.
type LoggingConfig struct {
	Logger logging.Logger
	// ExcludePatterns lists procedures to skip logging for (e.g. noisy
	// health checks); exact-match against env.Procedure.
	ExcludePatterns []string
	// RedactHeaders adds additional metadata keys to always redact,
	// beyond the built-in sensitive set.
	RedactHeaders []string
}

// Logging returns an Interceptor that logs one line per call once next
// returns — requestId, procedure, type, durationMs, redacted headers,
// and, when present, principal/traceId/spanId/error — on success and on
// error alike. Procedures listed in ExcludePatterns are not logged, and
// a panic raised inside next propagates without a log line.
func Logging(cfg LoggingConfig) interceptor.Interceptor {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOp{}
	}
	excluded := make(map[string]bool, len(cfg.ExcludePatterns))
	for _, p := range cfg.ExcludePatterns {
		excluded[p] = true
	}

	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		if excluded[env.Procedure] {
			return next(env, ctx)
		}

		start := time.Now()
		result, err := next(env, ctx)
		duration := time.Since(start)

		fields := map[string]interface{}{
			"requestId":  ctx.RequestID,
			"procedure":  env.Procedure,
			"type":       string(env.Type),
			"durationMs": duration.Milliseconds(),
		}
		if auth := ctx.Auth(); auth != nil && auth.Principal != "" {
			fields["principal"] = auth.Principal
		}
		if tracing := ctx.Tracing(); tracing != nil {
			if tracing.TraceID != "" {
				fields["traceId"] = tracing.TraceID
			}
			if tracing.SpanID != "" {
				fields["spanId"] = tracing.SpanID
			}
		}
		if headers := redactedHeaders(env.Metadata, cfg.RedactHeaders); len(headers) > 0 {
			fields["headers"] = headers
		}

		if err != nil {
			fields["error"] = err.Error()
			fields["code"] = string(rerrors.CodeOf(err))
			logger.ErrorWithContext(ctx.GoContext(), "request failed", fields)
		} else {
			logger.InfoWithContext(ctx.GoContext(), "request completed", fields)
		}

		return result, err
	}
}

// redactedHeaders copies metadata, replacing any built-in sensitive key
// or caller-configured RedactHeaders entry with a fixed placeholder
// instead of omitting it outright, so the shape of what was sent is
// still visible in logs without leaking its value.
func redactedHeaders(metadata map[string]string, redact []string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if sensitiveHeaders[k] || containsFold(redact, k) {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
