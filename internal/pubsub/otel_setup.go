package pubsub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "lernsino-pubsub"

// TracingConfig holds configuration for OpenTelemetry tracing of the local bus.
type TracingConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"lernsino-client"`
	ZipkinURL   string `env:"ZIPKIN_URL" envDefault:"http://localhost:9411/api/v2/spans"`
}

// DefaultTracingConfig returns a default tracing configuration
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:     false,
		ServiceName: "lernsino-client",
		ZipkinURL:   "http://localhost:9411/api/v2/spans",
	}
}

// LoadTracingConfigFromEnv reads PUBSUB_TRACING_ENABLED, PUBSUB_TRACING_SERVICE_NAME and
// PUBSUB_TRACING_ZIPKIN_URL. Unparsable values fall back to the defaults.
func LoadTracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PUBSUB_TRACING_"}); err != nil {
		slog.Warn("Invalid tracing configuration, tracing disabled", "error", err)
		return DefaultTracingConfig()
	}
	return cfg
}

// SetupOTel initializes OpenTelemetry with a Zipkin exporter for pubsub observability.
// If config.Enabled is false, it returns a no-op tracer.
func SetupOTel(ctx context.Context, config TracingConfig) (trace.Tracer, func(), error) {
	if !config.Enabled {
		tracer := noop.NewTracerProvider().Tracer(tracerName)
		return tracer, func() {}, nil
	}

	exporter, err := zipkin.New(config.ZipkinURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create zipkin exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Error("Failed to flush traces", "error", err)
		}
	}

	return tp.Tracer(tracerName), cleanup, nil
}
