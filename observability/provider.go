package observability

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ProviderConfig configures the process-wide TracerProvider.
type ProviderConfig struct {
	ServiceName string
	// OTLPEndpoint, when set, exports spans via OTLP/gRPC to a collector
	// (production). When empty, spans are written to stdout, matching
	// RAFFEL_ENV=development's human-friendly defaults elsewhere in this
	// module.
	OTLPEndpoint string
}

// InstallProvider builds and registers a global TracerProvider plus the
// W3C trace-context propagator, returning a shutdown func the caller
// must invoke during graceful shutdown to flush pending spans.
func InstallProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func buildExporter(ctx context.Context, cfg ProviderConfig) (sdktrace.SpanExporter, error) {
	if cfg.OTLPEndpoint != "" {
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	}
	return stdouttrace.New(stdouttrace.WithWriter(os.Stdout), stdouttrace.WithPrettyPrint())
}
