package manifest

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultctl/internal/chain/chaintest"
	"vaultctl/internal/reconcile"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
	"vaultctl/internal/schedule"
)

var (
	upstreamProxy   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	dependentProxy  = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	oldImpl         = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	newImpl         = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	chainedManifest = `
chain_id = "1"

[[unit]]
id = "core-upgrade"
kind = "implementation"
proxy = "0x00000000000000000000000000000000000000d1"
implementation = "0x00000000000000000000000000000000000000b0"
auto_accept = true
record_as = "CoreImpl"

[[unit]]
id = "mirror-upgrade"
kind = "implementation"
depends_on = ["core-upgrade"]
proxy = "0x00000000000000000000000000000000000000d2"
implementation = "@CoreImpl"
auto_accept = true
`
)

var pipelineKeys = map[string]string{
	"governance": "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d",
	"operator":   "6cbed15c793ce57650b9877cf6fa156fbef513c4e6134f022a85b1ffdd59b2a1",
}

func runPlan(t *testing.T, backend *chaintest.Backend, names registry.Registry) schedule.Report {
	t.Helper()
	file, err := Parse(chainedManifest)
	require.NoError(t, err)
	plan, err := file.Build("1")
	require.NoError(t, err)

	resolver, err := roles.NewResolver(pipelineKeys)
	require.NoError(t, err)
	r := reconcile.New(backend, resolver, reconcile.Config{}, reconcile.WithRegistry(names))

	scheduler := &schedule.Scheduler{Concurrency: 2}
	report, err := scheduler.Run(context.Background(), plan.Nodes, func(ctx context.Context, id string) error {
		unit, ok := plan.Unit(id)
		if !ok {
			return fmt.Errorf("unknown unit %s", id)
		}
		_, err := r.Reconcile(ctx, unit)
		return err
	})
	require.NoError(t, err)
	return report
}

func TestPlanResolvesRecordedImplementation(t *testing.T) {
	backend := chaintest.New()
	backend.AddProxy(upstreamProxy, oldImpl)
	backend.AddProxy(dependentProxy, oldImpl)
	names := registry.NewMemory(nil)

	report := runPlan(t, backend, names)
	assert.False(t, report.Failed())

	recorded, found, err := names.Get(context.Background(), "CoreImpl")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, newImpl, recorded)
	assert.Equal(t, newImpl, backend.ProxyState(upstreamProxy).Implementation)
	assert.Equal(t, newImpl, backend.ProxyState(dependentProxy).Implementation)
	assert.Equal(t, 4, backend.SendCount())
}

func TestPlanSkipsDependentOfFailedUpgrade(t *testing.T) {
	backend := chaintest.New()
	backend.AddProxy(upstreamProxy, oldImpl)
	backend.AddProxy(dependentProxy, oldImpl)
	backend.RevertNext("setPendingImplementation")
	names := registry.NewMemory(nil)

	report := runPlan(t, backend, names)
	assert.True(t, report.Failed())

	upstream, ok := report.Result("core-upgrade")
	require.True(t, ok)
	assert.Equal(t, schedule.Failed, upstream.Status)
	assert.Error(t, upstream.Err)

	dependent, ok := report.Result("mirror-upgrade")
	require.True(t, ok)
	assert.Equal(t, schedule.Skipped, dependent.Status)
	assert.Equal(t, "core-upgrade", dependent.BlockedBy)

	assert.Equal(t, 1, backend.SendCount())
	for _, sent := range backend.Sent() {
		assert.NotEqual(t, dependentProxy, sent.Contract)
	}
	assert.Equal(t, oldImpl, backend.ProxyState(dependentProxy).Implementation)
	_, found, err := names.Get(context.Background(), "CoreImpl")
	require.NoError(t, err)
	assert.False(t, found)
}
