package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"vaultctl/internal/chain/chaintest"
	"vaultctl/internal/telemetry"
)

// counterValue sums the data points of an int64 counter whose attributes
// include every key/value in attrs.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs map[string]string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				match := true
				for k, want := range attrs {
					got, found := dp.Attributes.Value(attribute.Key(k))
					if !found || got.AsString() != want {
						match = false
						break
					}
				}
				if match {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestMetricsCountUnitsAndMutations(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddRegistry(registryAddr)
	backend.RevertNext("approveToken")

	reader := sdkmetric.NewManualReader()
	provider := telemetry.NewWithReader(reader)
	defer provider.Shutdown(ctx)

	unit, err := NewTokenApproval("approve", ref(registryAddr), usdc, true)
	require.NoError(t, err)
	r := New(backend, newResolver(t, testKeys), Config{}, WithMeter(provider.Meter("test")))

	_, err = r.Reconcile(ctx, unit)
	require.Error(t, err)
	_, err = r.Reconcile(ctx, unit)
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, unit)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	units := "vaultctl.reconcile.units"
	assert.Equal(t, int64(1), counterValue(t, rm, units, map[string]string{"kind": KindTokenApproval, "status": "failed"}))
	assert.Equal(t, int64(1), counterValue(t, rm, units, map[string]string{"kind": KindTokenApproval, "status": string(StatusApplied)}))
	assert.Equal(t, int64(1), counterValue(t, rm, units, map[string]string{"kind": KindTokenApproval, "status": string(StatusConverged)}))

	mutations := "vaultctl.reconcile.mutations"
	assert.Equal(t, int64(1), counterValue(t, rm, mutations, map[string]string{"method": "approveToken", "status": "reverted"}))
	assert.Equal(t, int64(1), counterValue(t, rm, mutations, map[string]string{"method": "approveToken", "status": "confirmed"}))
	assert.Equal(t, int64(2), counterValue(t, rm, mutations, nil))
}
