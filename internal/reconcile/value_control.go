package reconcile

import (
	"context"
	"fmt"
	"math/big"

	"vaultctl/internal/contracts"
	"vaultctl/internal/model"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
)

// ValueControl sets the deposit cap, minimum deposit and TVL limit of a vault
// in one call.
type ValueControl struct {
	id             string
	vault          registry.Ref
	userDepositCap *big.Int
	minimumDeposit *big.Int
	tvlLimit       *big.Int
}

func NewValueControl(id string, vault registry.Ref, userDepositCap, minimumDeposit, tvlLimit *big.Int) (*ValueControl, error) {
	for name, v := range map[string]*big.Int{
		"user_deposit_cap": userDepositCap,
		"minimum_deposit":  minimumDeposit,
		"tvl_limit":        tvlLimit,
	} {
		if v == nil {
			return nil, model.NewValidationError(name, "value is required")
		}
		if v.Sign() < 0 || v.BitLen() > 256 {
			return nil, &model.RangeError{Field: name, Value: v.String(), Width: 256}
		}
	}
	return &ValueControl{
		id:             id,
		vault:          vault,
		userDepositCap: new(big.Int).Set(userDepositCap),
		minimumDeposit: new(big.Int).Set(minimumDeposit),
		tvlLimit:       new(big.Int).Set(tvlLimit),
	}, nil
}

func (u *ValueControl) ID() string   { return u.id }
func (u *ValueControl) Kind() string { return KindValueControl }

func (u *ValueControl) Diff(ctx context.Context, env Env) (Diff, error) {
	vault, err := u.vault.Resolve(ctx, env.Registry)
	if err != nil {
		return Diff{}, err
	}
	parsed, err := contracts.VaultABI()
	if err != nil {
		return Diff{}, err
	}

	current := make([]*big.Int, 0, 3)
	for _, method := range []string{"userDepositCapUT", "minimumDepositValueUT", "totalValueLockedLimitUT"} {
		raw, err := callOne(ctx, env.Reader, vault, parsed, method)
		if err != nil {
			return Diff{}, err
		}
		v, err := contracts.AsBigInt(raw)
		if err != nil {
			return Diff{}, fmt.Errorf("%s: %w", method, err)
		}
		current = append(current, v)
	}

	desired := []*big.Int{u.userDepositCap, u.minimumDeposit, u.tvlLimit}
	diff := Diff{Current: formatInts(current), Desired: formatInts(desired)}
	if current[0].Cmp(desired[0]) == 0 && current[1].Cmp(desired[1]) == 0 && current[2].Cmp(desired[2]) == 0 {
		diff.Converged = true
		return diff, nil
	}
	diff.Mutation = &Mutation{
		Role:     roles.FinanceOperator,
		Contract: vault,
		ABI:      parsed,
		Method:   "setValueControlParams",
		Args:     []interface{}{new(big.Int).Set(u.userDepositCap), new(big.Int).Set(u.minimumDeposit), new(big.Int).Set(u.tvlLimit)},
	}
	return diff, nil
}

func formatInts(values []*big.Int) string {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return contracts.FormatArgs(args)
}
