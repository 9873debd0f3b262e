// Package telemetry builds the OpenTelemetry meter provider used by the CLI.
//
// Metrics are off unless stdout export is requested; the reconciler then
// falls back to the global no-op meter.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const instrumentationScope = "vaultctl"

// Provider owns an SDK meter provider and flushes it on Shutdown.
type Provider struct {
	mp *sdkmetric.MeterProvider
}

// NewStdout exports metrics as JSON to w every interval and once more on
// Shutdown.
func NewStdout(w io.Writer, interval time.Duration) (*Provider, error) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)),
	))
	return &Provider{mp: mp}, nil
}

// NewWithReader wraps a caller supplied reader, for example a manual reader.
func NewWithReader(reader sdkmetric.Reader) *Provider {
	return &Provider{mp: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))}
}

// Meter returns a meter with the given instrumentation name. A nil provider
// hands out the global meter.
func (p *Provider) Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	if p == nil || p.mp == nil {
		return otel.Meter(name)
	}
	return p.mp.Meter(name)
}

// Shutdown flushes pending metrics and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.mp == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}
