package reconcile

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the reconciler instruments.
const MeterName = "vaultctl/reconcile"

type instruments struct {
	units     metric.Int64Counter
	mutations metric.Int64Counter
	wait      metric.Float64Histogram
}

func newInstruments(m metric.Meter) *instruments {
	if m == nil {
		m = otel.Meter(MeterName)
	}
	units, _ := m.Int64Counter("vaultctl.reconcile.units",
		metric.WithDescription("Reconciled units by kind and outcome"),
	)
	mutations, _ := m.Int64Counter("vaultctl.reconcile.mutations",
		metric.WithDescription("Mutating calls submitted by method and status"),
	)
	wait, _ := m.Float64Histogram("vaultctl.reconcile.confirmation.duration",
		metric.WithDescription("Time from submission to confirmation in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &instruments{units: units, mutations: mutations, wait: wait}
}

func (i *instruments) unit(ctx context.Context, kind, status string) {
	if i == nil || i.units == nil {
		return
	}
	i.units.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

func (i *instruments) mutation(ctx context.Context, method, status string, waited time.Duration) {
	if i == nil || i.mutations == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("method", method), attribute.String("status", status))
	i.mutations.Add(ctx, 1, attrs)
	if i.wait != nil {
		i.wait.Record(ctx, float64(waited.Microseconds())/1000.0, attrs)
	}
}
