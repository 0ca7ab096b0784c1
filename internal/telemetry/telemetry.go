// Package telemetry wires OpenTelemetry tracing for the audit service.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Service information
	ServiceName    = "declinewatch"
	ServiceVersion = "1.0.0"
)

// TelemetryConfig holds configuration for tracing.
type TelemetryConfig struct {
	Enabled      bool
	Environment  string
	OTLPEndpoint string
	SampleRate   float64
}

// DefaultConfig returns default telemetry configuration.
func DefaultConfig() *TelemetryConfig {
	return &TelemetryConfig{
		Enabled:      true,
		Environment:  "development",
		OTLPEndpoint: "", // stdout exporter when unset
		SampleRate:   0.2,
	}
}

var tracerProvider *sdktrace.TracerProvider

// InitTelemetry installs the global tracer provider. Without an OTLP
// endpoint spans go to a pretty-printed stdout exporter, which keeps local
// development free of collector infrastructure.
func InitTelemetry(config TelemetryConfig) error {
	if !config.Enabled {
		return nil
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	if config.OTLPEndpoint != "" {
		exporter, err = otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(config.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return fmt.Errorf("trace exporter init: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	)

	var sampler sdktrace.Sampler
	switch {
	case config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SampleRate)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return nil
}

// Shutdown flushes buffered spans and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	return tracerProvider.Shutdown(ctx)
}

// GetTracer returns a named tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// GetHTTPTracer returns the tracer used by the HTTP middleware.
func GetHTTPTracer() trace.Tracer {
	return otel.Tracer(ServiceName + ".http")
}
