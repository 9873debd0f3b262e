package reconcile

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/contracts"
	"vaultctl/internal/model"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
	"vaultctl/internal/strategy"
)

// StrategyAssignment sets the best strategy for a (risk profile, token key)
// pair. Current and desired are compared by strategy key, so a different
// step sequence always supersedes the current one.
type StrategyAssignment struct {
	id          string
	provider    registry.Ref
	riskProfile uint8
	steps       []strategy.Step
	tokenKey    common.Hash
	strategyKey common.Hash
}

func NewStrategyAssignment(id string, provider registry.Ref, riskProfile uint8, tokens []common.Address, chainID string, steps []strategy.Step) (*StrategyAssignment, error) {
	tokenKey, err := strategy.TokenKey(tokens, chainID)
	if err != nil {
		return nil, err
	}
	key, err := strategy.StrategyKey(tokenKey, steps)
	if err != nil {
		return nil, err
	}
	for i, s := range steps {
		if s.Pool == (common.Address{}) {
			return nil, model.NewValidationError(fmt.Sprintf("steps[%d].pool", i), "pool is the zero address")
		}
	}
	return &StrategyAssignment{
		id:          id,
		provider:    provider,
		riskProfile: riskProfile,
		steps:       append([]strategy.Step(nil), steps...),
		tokenKey:    tokenKey,
		strategyKey: key,
	}, nil
}

func (u *StrategyAssignment) ID() string   { return u.id }
func (u *StrategyAssignment) Kind() string { return KindStrategy }

// Key is the desired strategy key.
func (u *StrategyAssignment) Key() common.Hash { return u.strategyKey }

func (u *StrategyAssignment) Diff(ctx context.Context, env Env) (Diff, error) {
	provider, err := u.provider.Resolve(ctx, env.Registry)
	if err != nil {
		return Diff{}, err
	}
	parsed, err := contracts.StrategyProviderABI()
	if err != nil {
		return Diff{}, err
	}

	rp := new(big.Int).SetUint64(uint64(u.riskProfile))
	raw, err := callOne(ctx, env.Reader, provider, parsed, "getRpToTokenToBestStrategy", rp, u.tokenKey)
	if err != nil {
		return Diff{}, err
	}
	steps, err := contracts.AsSteps(raw)
	if err != nil {
		return Diff{}, fmt.Errorf("getRpToTokenToBestStrategy: %w", err)
	}

	diff := Diff{Current: "none", Desired: u.strategyKey.Hex()}
	if len(steps) > 0 {
		current, err := strategy.StrategyKey(u.tokenKey, steps)
		if err != nil {
			return Diff{}, err
		}
		diff.Current = current.Hex()
		if current == u.strategyKey {
			diff.Converged = true
			return diff, nil
		}
	}
	diff.Mutation = &Mutation{
		Role:     roles.StrategyOperator,
		Contract: provider,
		ABI:      parsed,
		Method:   "setBestStrategy",
		Args:     []interface{}{rp, u.tokenKey, append([]strategy.Step(nil), u.steps...)},
	}
	return diff, nil
}
