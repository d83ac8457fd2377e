package observability

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/rerrors"
)

// TracingConfig configures the tracing interceptor.
type TracingConfig struct {
	// TracerName identifies this module's tracer with the global otel
	// TracerProvider. Defaults to "raffel".
	TracerName string
}

// envelopeCarrier adapts an Envelope's metadata map to
// propagation.TextMapCarrier so traceparent/tracestate can be injected
// into outbound metadata and extracted from inbound metadata using the
// standard W3C trace-context propagator.
type envelopeCarrier struct{ env *envelope.Envelope }

func (c envelopeCarrier) Get(key string) string {
	v, _ := c.env.Get(key)
	return v
}
func (c envelopeCarrier) Set(key, value string) { c.env.Set(key, value) }
func (c envelopeCarrier) Keys() []string {
	keys := make([]string, 0, len(c.env.Metadata))
	for k := range c.env.Metadata {
		keys = append(keys, k)
	}
	return keys
}

// Tracing returns an Interceptor that starts one span per procedure
// call, extracting any inbound traceparent/tracestate and injecting the
// new span's context back onto the envelope so a downstream adapter call
// continues the same trace (spec §4.6 tracing).
func Tracing(cfg TracingConfig) interceptor.Interceptor {
	name := cfg.TracerName
	if name == "" {
		name = "raffel"
	}
	tracer := otel.Tracer(name)
	propagator := otel.GetTextMapPropagator()

	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		goCtx := propagator.Extract(ctx.GoContext(), envelopeCarrier{env})

		goCtx, span := tracer.Start(goCtx, env.Procedure, trace.WithAttributes(
			attribute.String("raffel.procedure", env.Procedure),
			attribute.String("raffel.request_id", ctx.RequestID),
		))
		defer span.End()

		ctx.SetGoContext(goCtx)
		propagator.Inject(goCtx, envelopeCarrier{env})

		spanCtx := span.SpanContext()
		tracing := ctx.Tracing()
		if tracing == nil {
			tracing = &envelope.TraceInfo{}
		}
		tracing.TraceID = spanCtx.TraceID().String()
		tracing.SpanID = spanCtx.SpanID().String()
		ctx.SetTracing(tracing)

		result, err := next(env, ctx)

		if err != nil {
			code := rerrors.CodeOf(err)
			span.SetStatus(codes.Error, fmt.Sprintf("%s: %v", code, err))
			span.SetAttributes(attribute.String("raffel.error_code", string(code)))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return result, err
	}
}
