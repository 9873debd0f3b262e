// Package chaintest provides an in-memory chain.Backend that models the vault
// protocol contracts closely enough to exercise reconciliation end to end.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"vaultctl/internal/chain"
	"vaultctl/internal/model"
	"vaultctl/internal/strategy"
	"vaultctl/internal/vaultconfig"
)

// Vault is the mutable state of one vault contract.
type Vault struct {
	Config         *big.Int
	WhitelistRoot  common.Hash
	UserDepositCap *big.Int
	MinimumDeposit *big.Int
	TVLLimit       *big.Int
}

// Registry is the mutable state of the protocol registry.
type Registry struct {
	Approved   map[common.Address]bool
	TokenLists map[common.Hash][]common.Address
	Holders    map[string]common.Address
}

type bestKey struct {
	riskProfile uint64
	tokensHash  common.Hash
}

// StrategyProvider is the mutable state of the strategy provider.
type StrategyProvider struct {
	best map[bestKey][]strategy.Step
}

// Proxy is an upgradeable proxy with its pending implementation slot.
type Proxy struct {
	Implementation common.Address
	Pending        common.Address
}

// Sent is one accepted transaction.
type Sent struct {
	Hash     common.Hash
	From     common.Address
	Contract common.Address
	Method   string
	Args     []interface{}
}

type fault int

const (
	faultNone fault = iota
	faultRevert
	faultTimeout
)

// Backend implements chain.Backend in memory.
type Backend struct {
	ChainID   string
	SendDelay time.Duration

	mu         sync.Mutex
	vaults     map[common.Address]*Vault
	registries map[common.Address]*Registry
	providers  map[common.Address]*StrategyProvider
	proxies    map[common.Address]*Proxy
	authorized map[string]common.Address
	sendErrs   map[string]error
	faults     map[string]fault
	receipts   map[common.Hash]*types.Receipt
	timeouts   map[common.Hash]bool
	inflight   map[common.Address]int
	sent       []Sent
	calls      int
	overlaps   int
	block      uint64
}

var _ chain.Backend = (*Backend)(nil)

// New returns an empty backend for chain id "1".
func New() *Backend {
	return &Backend{
		ChainID:    "1",
		vaults:     make(map[common.Address]*Vault),
		registries: make(map[common.Address]*Registry),
		providers:  make(map[common.Address]*StrategyProvider),
		proxies:    make(map[common.Address]*Proxy),
		authorized: make(map[string]common.Address),
		sendErrs:   make(map[string]error),
		faults:     make(map[string]fault),
		receipts:   make(map[common.Hash]*types.Receipt),
		timeouts:   make(map[common.Hash]bool),
		inflight:   make(map[common.Address]int),
		block:      100,
	}
}

// AddVault deploys a vault with the given configuration word.
func (b *Backend) AddVault(addr common.Address, config *big.Int) *Vault {
	b.mu.Lock()
	defer b.mu.Unlock()
	if config == nil {
		config = new(big.Int)
	}
	v := &Vault{
		Config:         new(big.Int).Set(config),
		UserDepositCap: new(big.Int),
		MinimumDeposit: new(big.Int),
		TVLLimit:       new(big.Int),
	}
	b.vaults[addr] = v
	return v
}

// AddRegistry deploys an empty registry.
func (b *Backend) AddRegistry(addr common.Address) *Registry {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &Registry{
		Approved:   make(map[common.Address]bool),
		TokenLists: make(map[common.Hash][]common.Address),
		Holders:    make(map[string]common.Address),
	}
	b.registries[addr] = r
	return r
}

// AddStrategyProvider deploys an empty strategy provider.
func (b *Backend) AddStrategyProvider(addr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers[addr] = &StrategyProvider{best: make(map[bestKey][]strategy.Step)}
}

// AddProxy deploys a proxy pointing at implementation.
func (b *Backend) AddProxy(addr, implementation common.Address) *Proxy {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &Proxy{Implementation: implementation}
	b.proxies[addr] = p
	return p
}

// Authorize restricts method to a single sender; other senders revert.
func (b *Backend) Authorize(method string, from common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authorized[method] = from
}

// FailNextSend makes the next Send of method fail before submission.
func (b *Backend) FailNextSend(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErrs[method] = err
}

// RevertNext makes the next transaction calling method revert.
func (b *Backend) RevertNext(method string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[method] = faultRevert
}

// TimeoutNext makes the next transaction calling method never confirm.
func (b *Backend) TimeoutNext(method string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[method] = faultTimeout
}

// ExternalBecome accepts the pending implementation of proxy out of band.
func (b *Backend) ExternalBecome(proxy common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.proxies[proxy]
	if !ok {
		return fmt.Errorf("unknown proxy %s", proxy.Hex())
	}
	if p.Pending == (common.Address{}) {
		return errors.New("no pending implementation")
	}
	p.Implementation, p.Pending = p.Pending, common.Address{}
	return nil
}

// SetBestStrategy seeds the provider state directly.
func (b *Backend) SetBestStrategy(provider common.Address, riskProfile uint64, tokensHash common.Hash, steps []strategy.Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers[provider].best[bestKey{riskProfile, tokensHash}] = append([]strategy.Step(nil), steps...)
}

// VaultConfig returns the current configuration word of vault.
func (b *Backend) VaultConfig(vault common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.vaults[vault].Config)
}

// ProxyState returns the current and pending implementation of proxy.
func (b *Backend) ProxyState(proxy common.Address) Proxy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.proxies[proxy]
}

// Sent returns a copy of every accepted transaction in submission order.
func (b *Backend) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Sent, len(b.sent))
	copy(out, b.sent)
	return out
}

// SendCount is the number of accepted transactions.
func (b *Backend) SendCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

// CallCount is the number of read calls served.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Overlaps counts sends issued while the same signer had an unconfirmed one.
func (b *Backend) Overlaps() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overlaps
}

// Call serves a view method. Outputs are packed and unpacked through the ABI
// so callers see the same Go types a real node would produce.
func (b *Backend) Call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := parsed.Pack(method, args...); err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	b.mu.Lock()
	b.calls++
	values, err := b.read(contract, method, args)
	b.mu.Unlock()
	if err != nil {
		return nil, &model.RemoteCallError{Contract: contract.Hex(), Method: method, Err: err}
	}

	data, err := parsed.Methods[method].Outputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("pack outputs %s: %w", method, err)
	}
	return parsed.Unpack(method, data)
}

// Send applies the mutation immediately and records a receipt for Wait.
func (b *Backend) Send(ctx context.Context, req chain.SendRequest) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	if req.Signer == nil {
		return common.Hash{}, errors.New("signer is nil")
	}
	if req.Fees.MaxFee == nil || req.Fees.TipCap == nil {
		return common.Hash{}, errors.New("fee params are required")
	}
	if _, err := req.ABI.Pack(req.Method, req.Args...); err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", req.Method, err)
	}

	from := req.Signer.Address
	b.mu.Lock()
	if err, ok := b.sendErrs[req.Method]; ok {
		delete(b.sendErrs, req.Method)
		b.mu.Unlock()
		return common.Hash{}, &model.RemoteCallError{Contract: req.Contract.Hex(), Method: req.Method, Err: err}
	}
	if b.inflight[from] > 0 {
		b.overlaps++
	}
	b.inflight[from]++
	b.mu.Unlock()

	if b.SendDelay > 0 {
		time.Sleep(b.SendDelay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.block++
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d", len(b.sent))))
	b.sent = append(b.sent, Sent{
		Hash:     hash,
		From:     from,
		Contract: req.Contract,
		Method:   req.Method,
		Args:     req.Args,
	})

	status := types.ReceiptStatusSuccessful
	switch b.faults[req.Method] {
	case faultRevert:
		delete(b.faults, req.Method)
		status = types.ReceiptStatusFailed
	case faultTimeout:
		delete(b.faults, req.Method)
		b.timeouts[hash] = true
		return hash, nil
	default:
		if allowed, ok := b.authorized[req.Method]; ok && allowed != from {
			status = types.ReceiptStatusFailed
		} else if err := b.write(req.Contract, req.Method, req.Args); err != nil {
			status = types.ReceiptStatusFailed
		}
	}

	b.receipts[hash] = &types.Receipt{
		Type:        types.DynamicFeeTxType,
		Status:      status,
		TxHash:      hash,
		GasUsed:     50_000,
		BlockNumber: new(big.Int).SetUint64(b.block),
	}
	return hash, nil
}

// Wait returns the receipt recorded by Send.
func (b *Backend) Wait(ctx context.Context, txHash common.Hash, confirmations uint64) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var from common.Address
	for _, s := range b.sent {
		if s.Hash == txHash {
			from = s.From
			break
		}
	}
	if b.inflight[from] > 0 {
		b.inflight[from]--
	}

	if b.timeouts[txHash] {
		return nil, &model.DivergenceTimeoutError{TxHash: txHash.Hex(), Err: errors.New("receipt not found")}
	}
	receipt, ok := b.receipts[txHash]
	if !ok {
		return nil, &model.DivergenceTimeoutError{TxHash: txHash.Hex(), Err: errors.New("unknown transaction")}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, chain.ErrReverted
	}
	return receipt, nil
}

// SuggestFees returns fixed fee parameters.
func (b *Backend) SuggestFees(ctx context.Context) (chain.FeeParams, error) {
	return chain.FeeParams{TipCap: chain.GweiToWei(1), MaxFee: chain.GweiToWei(30)}, nil
}

func (b *Backend) read(contract common.Address, method string, args []interface{}) ([]interface{}, error) {
	if v, ok := b.vaults[contract]; ok {
		switch method {
		case "vaultConfiguration":
			return []interface{}{new(big.Int).Set(v.Config)}, nil
		case "whitelistedAccountsRoot":
			return []interface{}{[32]byte(v.WhitelistRoot)}, nil
		case "userDepositCapUT":
			return []interface{}{new(big.Int).Set(v.UserDepositCap)}, nil
		case "minimumDepositValueUT":
			return []interface{}{new(big.Int).Set(v.MinimumDeposit)}, nil
		case "totalValueLockedLimitUT":
			return []interface{}{new(big.Int).Set(v.TVLLimit)}, nil
		}
	}
	if r, ok := b.registries[contract]; ok {
		switch method {
		case "isApprovedToken":
			return []interface{}{r.Approved[args[0].(common.Address)]}, nil
		case "getTokensHashToTokenList":
			key := toHash(args[0])
			return []interface{}{append([]common.Address{}, r.TokenLists[key]...)}, nil
		case "getGovernance":
			return []interface{}{r.Holders["governance"]}, nil
		case "getOperator":
			return []interface{}{r.Holders["operator"]}, nil
		case "getFinanceOperator":
			return []interface{}{r.Holders["financeOperator"]}, nil
		case "getRiskOperator":
			return []interface{}{r.Holders["riskOperator"]}, nil
		case "getStrategyOperator":
			return []interface{}{r.Holders["strategyOperator"]}, nil
		}
	}
	if p, ok := b.providers[contract]; ok && method == "getRpToTokenToBestStrategy" {
		key := bestKey{riskProfile: args[0].(*big.Int).Uint64(), tokensHash: toHash(args[1])}
		return []interface{}{append([]strategy.Step{}, p.best[key]...)}, nil
	}
	if p, ok := b.proxies[contract]; ok {
		switch method {
		case "implementation":
			return []interface{}{p.Implementation}, nil
		case "pendingImplementation":
			return []interface{}{p.Pending}, nil
		}
	}
	return nil, fmt.Errorf("execution reverted: no view %s on %s", method, contract.Hex())
}

func (b *Backend) write(contract common.Address, method string, args []interface{}) error {
	if v, ok := b.vaults[contract]; ok {
		switch method {
		case "setVaultConfiguration":
			v.Config = new(big.Int).Set(args[0].(*big.Int))
			return nil
		case "setRiskProfileCode":
			return setConfigField(v, vaultconfig.RiskProfileCode, uint256.MustFromBig(args[0].(*big.Int)))
		case "setUnpaused":
			return setConfigField(v, vaultconfig.Unpaused, vaultconfig.BoolValue(args[0].(bool)))
		case "setEmergencyShutdown":
			return setConfigField(v, vaultconfig.EmergencyShutdown, vaultconfig.BoolValue(args[0].(bool)))
		case "setWhitelistedAccountsRoot":
			v.WhitelistRoot = toHash(args[0])
			return nil
		case "setValueControlParams":
			v.UserDepositCap = new(big.Int).Set(args[0].(*big.Int))
			v.MinimumDeposit = new(big.Int).Set(args[1].(*big.Int))
			v.TVLLimit = new(big.Int).Set(args[2].(*big.Int))
			return nil
		}
	}
	if r, ok := b.registries[contract]; ok {
		switch method {
		case "approveToken":
			r.Approved[args[0].(common.Address)] = true
			return nil
		case "revokeToken":
			delete(r.Approved, args[0].(common.Address))
			return nil
		case "setTokensHashToTokens":
			tokens := append([]common.Address{}, args[0].([]common.Address)...)
			key, err := strategy.TokenKey(tokens, b.ChainID)
			if err != nil {
				return err
			}
			r.TokenLists[key] = tokens
			return nil
		}
	}
	if p, ok := b.providers[contract]; ok && method == "setBestStrategy" {
		steps, ok := args[2].([]strategy.Step)
		if !ok || len(steps) == 0 {
			return errors.New("invalid strategy steps")
		}
		key := bestKey{riskProfile: args[0].(*big.Int).Uint64(), tokensHash: toHash(args[1])}
		p.best[key] = append([]strategy.Step(nil), steps...)
		return nil
	}
	if p, ok := b.proxies[contract]; ok && method == "setPendingImplementation" {
		p.Pending = args[0].(common.Address)
		return nil
	}
	if method == "become" {
		proxyAddr := args[0].(common.Address)
		p, ok := b.proxies[proxyAddr]
		if !ok || p.Pending != contract {
			return errors.New("not the pending implementation")
		}
		p.Implementation, p.Pending = contract, common.Address{}
		return nil
	}
	return fmt.Errorf("no method %s on %s", method, contract.Hex())
}

func setConfigField(v *Vault, f vaultconfig.Field, value *uint256.Int) error {
	next, err := vaultconfig.WithField(uint256.MustFromBig(v.Config), f, value)
	if err != nil {
		return err
	}
	v.Config = next.ToBig()
	return nil
}

func toHash(value interface{}) common.Hash {
	switch v := value.(type) {
	case common.Hash:
		return v
	case [32]byte:
		return common.Hash(v)
	default:
		return common.Hash{}
	}
}
