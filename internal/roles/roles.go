package roles

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/chain"
	"vaultctl/internal/contracts"
	"vaultctl/internal/model"
)

// Role is a protocol permission held by one account.
type Role string

const (
	Governance       Role = "governance"
	Operator         Role = "operator"
	FinanceOperator  Role = "financeOperator"
	RiskOperator     Role = "riskOperator"
	StrategyOperator Role = "strategyOperator"
)

// All lists the known roles.
var All = []Role{Governance, Operator, FinanceOperator, RiskOperator, StrategyOperator}

var registryGetters = map[Role]string{
	Governance:       "getGovernance",
	Operator:         "getOperator",
	FinanceOperator:  "getFinanceOperator",
	RiskOperator:     "getRiskOperator",
	StrategyOperator: "getStrategyOperator",
}

// Parse matches a role name case-insensitively.
func Parse(name string) (Role, error) {
	name = strings.TrimSpace(name)
	for _, r := range All {
		if strings.EqualFold(string(r), name) {
			return r, nil
		}
	}
	return "", model.NewValidationError("role", "unknown role %q", name)
}

// Resolver maps roles to signers.
type Resolver struct {
	signers map[Role]*chain.Signer
}

// NewResolver loads one signer per configured role from hex private keys.
func NewResolver(keys map[string]string) (*Resolver, error) {
	signers := make(map[Role]*chain.Signer, len(keys))
	for name, key := range keys {
		role, err := Parse(name)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(key) == "" {
			continue
		}
		signer, err := chain.NewSigner(key)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
		signers[role] = signer
	}
	return &Resolver{signers: signers}, nil
}

// SignerFor returns the signer holding role.
func (r *Resolver) SignerFor(role Role) (*chain.Signer, error) {
	if r == nil {
		return nil, &model.AuthorizationError{Role: string(role), Reason: "no signers configured"}
	}
	signer, ok := r.signers[role]
	if !ok || signer == nil {
		return nil, &model.AuthorizationError{Role: string(role), Reason: "no signer configured"}
	}
	return signer, nil
}

// Roles returns the configured roles, sorted.
func (r *Resolver) Roles() []Role {
	if r == nil {
		return nil
	}
	out := make([]Role, 0, len(r.signers))
	for role := range r.signers {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckOnChain compares each configured signer with the holder recorded in
// the protocol registry. Every mismatch is reported in one error.
func (r *Resolver) CheckOnChain(ctx context.Context, reader chain.Reader, registry common.Address) error {
	parsed, err := contracts.RegistryABI()
	if err != nil {
		return fmt.Errorf("load registry abi: %w", err)
	}

	var mismatches []string
	for _, role := range r.Roles() {
		values, err := reader.Call(ctx, registry, parsed, registryGetters[role])
		if err != nil {
			return err
		}
		if len(values) != 1 {
			return fmt.Errorf("%s: expected 1 output, got %d", registryGetters[role], len(values))
		}
		holder, err := contracts.AsAddress(values[0])
		if err != nil {
			return fmt.Errorf("%s: %w", registryGetters[role], err)
		}
		if signer := r.signers[role]; holder != signer.Address {
			mismatches = append(mismatches, fmt.Sprintf("%s held by %s, signer is %s", role, holder.Hex(), signer.Address.Hex()))
		}
	}
	if len(mismatches) > 0 {
		return &model.AuthorizationError{Role: "registry", Reason: strings.Join(mismatches, "; ")}
	}
	return nil
}
