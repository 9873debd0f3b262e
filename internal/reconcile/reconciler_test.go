package reconcile

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultctl/internal/chain"
	"vaultctl/internal/chain/chaintest"
	"vaultctl/internal/contracts"
	"vaultctl/internal/merkle"
	"vaultctl/internal/model"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
	"vaultctl/internal/strategy"
	"vaultctl/internal/vaultconfig"
)

var (
	vaultAddr    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	providerAddr = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	proxyAddr    = common.HexToAddress("0x00000000000000000000000000000000000000f4")
	implA        = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	implB        = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	usdc         = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	dai          = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

var testKeys = map[string]string{
	"governance":       "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d",
	"operator":         "6cbed15c793ce57650b9877cf6fa156fbef513c4e6134f022a85b1ffdd59b2a1",
	"financeOperator":  "6370fd033278c143179d81c5526140625662b8daa446c22ee2d73db3707e620c",
	"strategyOperator": "646f1ce2fdad0e6deeeb5c7e8e5543bdde65e86029e2fd9fc169899c440a7913",
}

type memoryLedger struct {
	mu      sync.Mutex
	records []model.ActionRecord
}

func (l *memoryLedger) PutActionBatch(ctx context.Context, actions []model.ActionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, actions...)
	return nil
}

type recordingVerifier struct {
	mu      sync.Mutex
	outputs []Output
	err     error
}

func (v *recordingVerifier) Verify(ctx context.Context, unitID string, out Output) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.outputs = append(v.outputs, out)
	return v.err
}

func newResolver(t *testing.T, keys map[string]string) *roles.Resolver {
	t.Helper()
	resolver, err := roles.NewResolver(keys)
	require.NoError(t, err)
	return resolver
}

func ref(addr common.Address) registry.Ref { return registry.Ref(addr.Hex()) }

func unpausedWord(t *testing.T) *big.Int {
	t.Helper()
	word, err := vaultconfig.Encode(vaultconfig.Fields{Unpaused: true, DepositFeePct: 25})
	require.NoError(t, err)
	return word.ToBig()
}

func TestConfigFieldRiskProfileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddVault(vaultAddr, unpausedWord(t))
	ledger := &memoryLedger{}

	unit, err := NewConfigField("risk", ref(vaultAddr), vaultconfig.RiskProfileCode, uint256.NewInt(1))
	require.NoError(t, err)

	r := New(backend, newResolver(t, testKeys), Config{}, WithLedger(ledger))
	out, err := r.Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	require.Len(t, out.Actions, 1)
	assert.Equal(t, "setRiskProfileCode", out.Actions[0].Method)
	assert.Equal(t, model.ActionConfirmed, out.Actions[0].Status)
	assert.Equal(t, string(roles.Governance), out.Actions[0].Role)

	fields := vaultconfig.Decode(uint256.MustFromBig(backend.VaultConfig(vaultAddr)))
	assert.Equal(t, uint64(1), fields.RiskProfileCode)
	assert.True(t, fields.Unpaused)
	assert.Equal(t, uint64(25), fields.DepositFeePct)

	out, err = r.Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, out.Status)
	assert.Empty(t, out.Actions)
	assert.Equal(t, 1, backend.SendCount())
	assert.Len(t, ledger.records, 1)
}

func TestConfigFieldWritesWholeWord(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddVault(vaultAddr, unpausedWord(t))

	recipient := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	unit, err := NewConfigField("recipient", ref(vaultAddr), vaultconfig.FeeRecipient, vaultconfig.AddressValue(recipient))
	require.NoError(t, err)

	out, err := New(backend, newResolver(t, testKeys), Config{}).Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)

	sent := backend.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "setVaultConfiguration", sent[0].Method)

	fields := vaultconfig.Decode(uint256.MustFromBig(backend.VaultConfig(vaultAddr)))
	assert.Equal(t, recipient, fields.FeeRecipient)
	assert.True(t, fields.Unpaused)
	assert.Equal(t, uint64(25), fields.DepositFeePct)
}

func TestConcurrentConfigFieldsSerializePerSigner(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.SendDelay = 2 * time.Millisecond
	backend.AddVault(vaultAddr, new(big.Int))

	values := map[vaultconfig.Field]uint64{
		vaultconfig.DepositFeeFlat:    1,
		vaultconfig.DepositFeePct:     2,
		vaultconfig.WithdrawalFeeFlat: 3,
		vaultconfig.WithdrawalFeePct:  4,
		vaultconfig.MaxValueJumpPct:   5,
		vaultconfig.RiskProfileCode:   6,
		vaultconfig.Unpaused:          1,
	}
	r := New(backend, newResolver(t, testKeys), Config{})

	var wg sync.WaitGroup
	errs := make(chan error, len(values))
	for field, value := range values {
		unit, err := NewConfigField(field.String(), ref(vaultAddr), field, uint256.NewInt(value))
		require.NoError(t, err)
		wg.Add(1)
		go func(u Unit) {
			defer wg.Done()
			_, err := r.Reconcile(ctx, u)
			errs <- err
		}(unit)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Zero(t, backend.Overlaps())
	assert.Equal(t, len(values), backend.SendCount())
	word := uint256.MustFromBig(backend.VaultConfig(vaultAddr))
	for field, value := range values {
		assert.Equal(t, value, vaultconfig.Get(word, field).Uint64(), field.String())
	}
}

func TestMissingRoleIsAuthorizationError(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddStrategyProvider(providerAddr)

	unit, err := NewStrategyAssignment("best", ref(providerAddr), 1, []common.Address{usdc}, "1",
		[]strategy.Step{{Pool: common.HexToAddress("0x01"), OutputToken: usdc}})
	require.NoError(t, err)

	keys := map[string]string{"governance": testKeys["governance"]}
	_, err = New(backend, newResolver(t, keys), Config{}).Reconcile(ctx, unit)
	assert.ErrorIs(t, err, model.ErrAuthorization)
	assert.Zero(t, backend.SendCount())
}

func TestDryRunPlansWithoutSending(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddRegistry(registryAddr)

	unit, err := NewTokenApproval("approve", ref(registryAddr), usdc, true)
	require.NoError(t, err)

	out, err := New(backend, nil, Config{DryRun: true}).Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusPlanned, out.Status)
	require.NotNil(t, out.Diff.Mutation)
	assert.Equal(t, "approveToken", out.Diff.Mutation.Method)
	assert.Zero(t, backend.SendCount())
}

func TestTokenApprovalApproveAndRevoke(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	reg := backend.AddRegistry(registryAddr)
	r := New(backend, newResolver(t, testKeys), Config{})

	approve, err := NewTokenApproval("approve", ref(registryAddr), usdc, true)
	require.NoError(t, err)
	out, err := r.Reconcile(ctx, approve)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.True(t, reg.Approved[usdc])

	revoke, err := NewTokenApproval("revoke", ref(registryAddr), usdc, false)
	require.NoError(t, err)
	out, err = r.Reconcile(ctx, revoke)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, "revokeToken", out.Actions[0].Method)
	assert.False(t, reg.Approved[usdc])
}

func TestValueControl(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	vault := backend.AddVault(vaultAddr, nil)

	unit, err := NewValueControl("limits", ref(vaultAddr), big.NewInt(1000), big.NewInt(10), big.NewInt(1_000_000))
	require.NoError(t, err)

	r := New(backend, newResolver(t, testKeys), Config{})
	out, err := r.Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, string(roles.FinanceOperator), out.Actions[0].Role)
	assert.Equal(t, int64(1000), vault.UserDepositCap.Int64())
	assert.Equal(t, int64(10), vault.MinimumDeposit.Int64())
	assert.Equal(t, int64(1_000_000), vault.TVLLimit.Int64())

	out, err = r.Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, out.Status)
}

func TestScenarioBStrategySupersedes(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	reg := backend.AddRegistry(registryAddr)
	backend.AddStrategyProvider(providerAddr)

	tokens := []common.Address{usdc, dai}
	oldSteps := []strategy.Step{{Pool: common.HexToAddress("0x0a"), OutputToken: usdc}}
	newSteps := []strategy.Step{
		{Pool: common.HexToAddress("0x0b"), OutputToken: dai},
		{Pool: common.HexToAddress("0x0c"), OutputToken: usdc, IsBorrow: true},
	}

	tokenKey, err := strategy.TokenKey(tokens, "1")
	require.NoError(t, err)
	backend.SetBestStrategy(providerAddr, 2, tokenKey, oldSteps)

	hashUnit, err := NewTokensHash("tokens", ref(registryAddr), tokens, "1")
	require.NoError(t, err)
	assert.Equal(t, tokenKey, hashUnit.Key())

	strategyUnit, err := NewStrategyAssignment("best", ref(providerAddr), 2, tokens, "1", newSteps)
	require.NoError(t, err)

	r := New(backend, newResolver(t, testKeys), Config{})
	out, err := r.Reconcile(ctx, hashUnit)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, tokens, reg.TokenLists[tokenKey])

	out, err = r.Reconcile(ctx, strategyUnit)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	oldKey, _ := strategy.StrategyKey(tokenKey, oldSteps)
	assert.NotEqual(t, oldKey, strategyUnit.Key())

	out, err = r.Reconcile(ctx, strategyUnit)
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, out.Status)
	assert.Equal(t, strategyUnit.Key().Hex(), out.Diff.Current)
	assert.Equal(t, 2, backend.SendCount())
}

func TestWhitelistWritesArtifact(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddVault(vaultAddr, nil)

	accounts := []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000003"),
		common.HexToAddress("0x0000000000000000000000000000000000000001"),
		common.HexToAddress("0x0000000000000000000000000000000000000002"),
	}
	path := filepath.Join(t.TempDir(), "whitelist.json")
	unit, err := NewWhitelist("wl", ref(vaultAddr), accounts, path)
	require.NoError(t, err)

	out, err := New(backend, newResolver(t, testKeys), Config{}).Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)

	artifact, err := merkle.ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, unit.Root().Hex(), artifact.Root)
	for _, account := range accounts {
		ok, err := merkle.VerifyArtifact(artifact, account)
		require.NoError(t, err)
		assert.True(t, ok, account.Hex())
	}
}

func TestImplementationAutoAcceptRecordsAndVerifies(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddProxy(proxyAddr, implA)
	names := registry.NewMemory(map[string]common.Address{"VaultImplV2": implB})
	verifier := &recordingVerifier{err: errors.New("explorer unavailable")}

	unit := NewImplementation("upgrade", ref(proxyAddr), registry.Ref("@VaultImplV2"), true, "VaultImpl")
	r := New(backend, newResolver(t, testKeys), Config{}, WithRegistry(names), WithVerifier(verifier))

	out, err := r.Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	require.Len(t, out.Actions, 2)
	assert.Equal(t, "setPendingImplementation", out.Actions[0].Method)
	assert.Equal(t, string(roles.Operator), out.Actions[0].Role)
	assert.Equal(t, "become", out.Actions[1].Method)
	assert.Equal(t, string(roles.Governance), out.Actions[1].Role)
	assert.Equal(t, implB, backend.ProxyState(proxyAddr).Implementation)

	recorded, found, err := names.Get(ctx, "VaultImpl")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, implB, recorded)
	require.Len(t, verifier.outputs, 1)
	assert.Equal(t, implB, verifier.outputs[0].Address)

	out, err = r.Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, out.Status)
	assert.Len(t, verifier.outputs, 1)
	assert.Equal(t, 2, backend.SendCount())
}

func TestImplementationWaitsForAcceptance(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddProxy(proxyAddr, implA)

	unit := NewImplementation("upgrade", ref(proxyAddr), ref(implB), false, "")
	r := New(backend, newResolver(t, testKeys), Config{})

	out, err := r.Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, out.Status)
	assert.Len(t, out.Actions, 1)
	assert.Equal(t, implB, backend.ProxyState(proxyAddr).Pending)

	out, err = r.Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, out.Status)
	assert.Equal(t, 1, backend.SendCount())

	require.NoError(t, backend.ExternalBecome(proxyAddr))
	out, err = r.Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, out.Status)
	assert.Equal(t, 1, backend.SendCount())
}

func TestImplementationAcceptFailureResumesWithoutReproposing(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddProxy(proxyAddr, implA)
	backend.RevertNext("become")
	ledger := &memoryLedger{}

	unit := NewImplementation("upgrade", ref(proxyAddr), ref(implB), true, "")
	r := New(backend, newResolver(t, testKeys), Config{}, WithLedger(ledger))

	_, err := r.Reconcile(ctx, unit)
	assert.ErrorIs(t, err, chain.ErrReverted)
	state := backend.ProxyState(proxyAddr)
	assert.Equal(t, implA, state.Implementation)
	assert.Equal(t, implB, state.Pending)
	assert.Equal(t, 2, backend.SendCount())

	out, err := r.Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	require.Len(t, out.Actions, 1)
	assert.Equal(t, "become", out.Actions[0].Method)
	assert.Equal(t, string(roles.Governance), out.Actions[0].Role)
	assert.Equal(t, implB, backend.ProxyState(proxyAddr).Implementation)

	assert.Equal(t, 3, backend.SendCount())
	proposals := 0
	for _, sent := range backend.Sent() {
		if sent.Method == "setPendingImplementation" {
			proposals++
		}
	}
	assert.Equal(t, 1, proposals)
	require.Len(t, ledger.records, 3)
	assert.Equal(t, model.ActionReverted, ledger.records[1].Status)
}

func TestRevertedMutationIsRecorded(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddRegistry(registryAddr)
	backend.RevertNext("approveToken")
	ledger := &memoryLedger{}

	unit, err := NewTokenApproval("approve", ref(registryAddr), usdc, true)
	require.NoError(t, err)

	r := New(backend, newResolver(t, testKeys), Config{}, WithLedger(ledger))
	_, err = r.Reconcile(ctx, unit)
	assert.ErrorIs(t, err, model.ErrRemoteCall)
	assert.ErrorIs(t, err, chain.ErrReverted)
	require.Len(t, ledger.records, 1)
	assert.Equal(t, model.ActionReverted, ledger.records[0].Status)
	assert.NotEmpty(t, ledger.records[0].TxHash)

	out, err := r.Reconcile(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, 2, backend.SendCount())
}

func TestTimeoutIsNotResubmitted(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddVault(vaultAddr, nil)
	backend.TimeoutNext("setUnpaused")
	ledger := &memoryLedger{}

	unit, err := NewConfigField("unpause", ref(vaultAddr), vaultconfig.Unpaused, uint256.NewInt(1))
	require.NoError(t, err)

	_, err = New(backend, newResolver(t, testKeys), Config{}, WithLedger(ledger)).Reconcile(ctx, unit)
	assert.ErrorIs(t, err, model.ErrDivergenceTimeout)
	assert.Equal(t, 1, backend.SendCount())
	require.Len(t, ledger.records, 1)
	assert.Equal(t, model.ActionTimeout, ledger.records[0].Status)
}

func TestSendFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddRegistry(registryAddr)
	backend.FailNextSend("approveToken", errors.New("nonce too low"))
	ledger := &memoryLedger{}

	unit, err := NewTokenApproval("approve", ref(registryAddr), usdc, true)
	require.NoError(t, err)

	_, err = New(backend, newResolver(t, testKeys), Config{}, WithLedger(ledger)).Reconcile(ctx, unit)
	assert.ErrorIs(t, err, model.ErrRemoteCall)
	assert.Zero(t, backend.SendCount())
	require.Len(t, ledger.records, 1)
	assert.Equal(t, model.ActionFailed, ledger.records[0].Status)
}

// stuckUnit always asks for the same call, as if the contract ignored it.
type stuckUnit struct{}

func (stuckUnit) ID() string   { return "stuck" }
func (stuckUnit) Kind() string { return "test" }

func (stuckUnit) Diff(ctx context.Context, env Env) (Diff, error) {
	parsed, err := contracts.VaultABI()
	if err != nil {
		return Diff{}, err
	}
	return Diff{Current: "false", Desired: "true", Mutation: &Mutation{
		Role:     roles.Governance,
		Contract: vaultAddr,
		ABI:      parsed,
		Method:   "setWhitelistedAccountsRoot",
		Args:     []interface{}{[32]byte{1}},
	}}, nil
}

func TestRepeatedMutationIsNotResent(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	backend.AddVault(vaultAddr, nil)

	_, err := New(backend, newResolver(t, testKeys), Config{MaxSteps: 5}).Reconcile(ctx, stuckUnit{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote state did not change")
	assert.Equal(t, 1, backend.SendCount())
}

func TestUnresolvedReferenceFails(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()

	unit, err := NewTokenApproval("approve", registry.Ref("@Registry"), usdc, true)
	require.NoError(t, err)
	_, err = New(backend, newResolver(t, testKeys), Config{}, WithRegistry(registry.NewMemory(nil))).Reconcile(ctx, unit)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConstructorsValidate(t *testing.T) {
	_, err := NewConfigField("x", ref(vaultAddr), vaultconfig.Reserved, uint256.NewInt(1))
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = NewConfigField("x", ref(vaultAddr), vaultconfig.RiskProfileCode, uint256.NewInt(256))
	assert.ErrorIs(t, err, model.ErrValidation)

	for _, unknown := range []vaultconfig.Field{-1, 99} {
		_, err = NewConfigField("x", ref(vaultAddr), unknown, uint256.NewInt(0))
		assert.ErrorIs(t, err, model.ErrValidation)
	}

	_, err = NewTokensHash("x", ref(registryAddr), nil, "1")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = NewStrategyAssignment("x", ref(providerAddr), 1, []common.Address{usdc}, "1", nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = NewWhitelist("x", ref(vaultAddr), nil, "")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = NewValueControl("x", ref(vaultAddr), big.NewInt(-1), big.NewInt(0), big.NewInt(0))
	assert.ErrorIs(t, err, model.ErrValidation)
}
