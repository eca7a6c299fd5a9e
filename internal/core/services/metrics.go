package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/manthysbr/ocrflow/internal/core/services"

// conversionMetrics records conversion outcomes on the global MeterProvider.
// Without a configured provider every instrument is a no-op.
type conversionMetrics struct {
	conversions metric.Int64Counter
	duration    metric.Float64Histogram
	active      metric.Int64UpDownCounter
}

func newConversionMetrics() *conversionMetrics {
	meter := otel.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	conversions, err := meter.Int64Counter("ocrflow.conversions",
		metric.WithDescription("Number of finished document conversions"),
		metric.WithUnit("{conversion}"))
	if err != nil {
		conversions, _ = fallback.Int64Counter("ocrflow.conversions")
	}
	duration, err := meter.Float64Histogram("ocrflow.conversion.duration",
		metric.WithDescription("Wall time of a document conversion"),
		metric.WithUnit("s"))
	if err != nil {
		duration, _ = fallback.Float64Histogram("ocrflow.conversion.duration")
	}
	active, err := meter.Int64UpDownCounter("ocrflow.conversions.active",
		metric.WithDescription("Conversions currently executing"),
		metric.WithUnit("{conversion}"))
	if err != nil {
		active, _ = fallback.Int64UpDownCounter("ocrflow.conversions.active")
	}

	return &conversionMetrics{
		conversions: conversions,
		duration:    duration,
		active:      active,
	}
}

func (m *conversionMetrics) started(ctx context.Context) {
	m.active.Add(ctx, 1)
}

func (m *conversionMetrics) finished(ctx context.Context, status, errorKind string, elapsed time.Duration) {
	m.active.Add(ctx, -1)
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("error_kind", errorKind),
	)
	m.conversions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
