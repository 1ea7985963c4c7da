package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-verification/internal/config"
)

// TracerName is the instrumentation scope used by the workflow services.
const TracerName = "visit-verification/service"

// InitTracing installs a global tracer provider exporting over OTLP/HTTP.
// Without an endpoint the global no-op provider stays in place. The returned
// function flushes and stops the exporter.
func InitTracing(ctx context.Context, cfg config.TracingConfig, version string, logger *zap.Logger) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		logger.Info("tracing disabled; OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(serviceResource(cfg.ServiceName, version)),
	)
	otel.SetTracerProvider(provider)
	logger.Info("tracing enabled", zap.String("endpoint", cfg.Endpoint))
	return provider.Shutdown, nil
}

func serviceResource(name, version string) *resource.Resource {
	return resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", version),
	)
}
