// Package telemetry wires OpenTelemetry tracing for the kds binaries.
package telemetry

import (
	"context"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Setup installs W3C trace context propagation, so a status change traced in
// kds-display continues in orders-service, and an OTLP tracer provider when
// OTEL_EXPORTER_OTLP_ENDPOINT is set. The returned func flushes the provider.
func Setup(serviceName string, log logrus.FieldLogger) func(context.Context) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return func(context.Context) error { return nil }
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		log.WithError(err).Warn("otel exporter error")
		return func(context.Context) error { return nil }
	}

	res, err := resource.New(context.Background(),
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		log.WithError(err).Warn("otel resource error")
	}

	ratio := sampleRatio(os.Getenv("KDS_TRACE_SAMPLE_RATIO"), log)
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(provider)
	log.WithFields(logrus.Fields{"endpoint": endpoint, "sample_ratio": ratio}).Info("tracing enabled")

	return provider.Shutdown
}

// sampleRatio parses a ratio in [0,1]. Anything else samples every trace;
// the display issues few requests, so full sampling is the default.
func sampleRatio(raw string, log logrus.FieldLogger) float64 {
	if raw == "" {
		return 1
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		log.WithField("value", raw).Warn("invalid KDS_TRACE_SAMPLE_RATIO, sampling every trace")
		return 1
	}
	return ratio
}
