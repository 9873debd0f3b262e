package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vaultctl/internal/chain/chaintest"
	"vaultctl/internal/model"
	"vaultctl/internal/reconcile"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
	"vaultctl/internal/storage"
)

func TestUpgradeStepWritesActionLedger(t *testing.T) {
	ctx := context.Background()
	proxy := common.HexToAddress("0x00000000000000000000000000000000000000f4")
	current := common.HexToAddress("0x00000000000000000000000000000000000000a0")
	next := common.HexToAddress("0x00000000000000000000000000000000000000b0")

	backend := chaintest.New()
	backend.AddProxy(proxy, current)
	resolver, err := roles.NewResolver(map[string]string{
		"governance": "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d",
		"operator":   "6cbed15c793ce57650b9877cf6fa156fbef513c4e6134f022a85b1ffdd59b2a1",
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "actions.jsonl")
	s := &upgradeSession{
		logger: zap.NewNop(),
		reg:    registry.NewMemory(nil),
		ledger: newLedger(path, nil),
	}

	unit := reconcile.NewImplementation("upgrade", registry.Ref(proxy.Hex()), registry.Ref(next.Hex()), false, "")
	out, err := s.reconciler(backend, resolver).Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusWaiting, out.Status)

	records, err := storage.ReadActions(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "setPendingImplementation", records[0].Method)
	assert.Equal(t, model.ActionConfirmed, records[0].Status)
	assert.Equal(t, string(roles.Operator), records[0].Role)
}
