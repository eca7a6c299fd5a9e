package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// setupMetrics installs the global MeterProvider for the named exporter and
// returns its shutdown func. An empty name leaves the no-op provider in place.
func setupMetrics(exporter string) (func(context.Context) error, error) {
	switch exporter {
	case "":
		return func(context.Context) error { return nil }, nil
	case "stdout":
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		provider := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second))),
		)
		otel.SetMeterProvider(provider)
		return provider.Shutdown, nil
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", exporter)
	}
}
