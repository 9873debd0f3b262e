package reconcile

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/chain"
	"vaultctl/internal/contracts"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
)

// Unit kinds, as written in manifests.
const (
	KindConfigField    = "config_field"
	KindValueControl   = "value_control"
	KindTokenApproval  = "token_approval"
	KindTokensHash     = "tokens_hash"
	KindStrategy       = "strategy"
	KindWhitelist      = "whitelist"
	KindImplementation = "implementation"
)

// Env is what a unit may consult while computing its diff.
type Env struct {
	Reader   chain.Reader
	Registry registry.Registry
}

// Mutation is the single call that moves a unit towards its desired state.
type Mutation struct {
	Role     roles.Role
	Contract common.Address
	ABI      abi.ABI
	Method   string
	Args     []interface{}
}

func (m *Mutation) String() string {
	return fmt.Sprintf("%s.%s(%s)", m.Contract.Hex(), m.Method, contracts.FormatArgs(m.Args))
}

func (m *Mutation) same(other *Mutation) bool {
	if m == nil || other == nil {
		return false
	}
	return m.Contract == other.Contract &&
		m.Method == other.Method &&
		contracts.FormatArgs(m.Args) == contracts.FormatArgs(other.Args)
}

// Diff is the gap between current and desired state for one unit.
// Waiting means no call can make progress until an external actor acts.
type Diff struct {
	Current   string
	Desired   string
	Converged bool
	Waiting   bool
	Mutation  *Mutation
}

// Unit is one reconcilable piece of desired state.
type Unit interface {
	ID() string
	Kind() string
	Diff(ctx context.Context, env Env) (Diff, error)
}

// Output is a named address produced by a converged unit.
type Output struct {
	Name    string
	Address common.Address
}

// Finalizer is implemented by units that persist outputs once converged.
type Finalizer interface {
	Finalize(ctx context.Context, env Env) ([]Output, error)
}

// Verifier checks an output after the unit changed remote state, for example
// by submitting source verification to an explorer.
type Verifier interface {
	Verify(ctx context.Context, unitID string, out Output) error
}

func converged(current, desired string) Diff {
	return Diff{Current: current, Desired: desired, Converged: true}
}

func callOne(ctx context.Context, reader chain.Reader, contract common.Address, parsed abi.ABI, method string, args ...interface{}) (interface{}, error) {
	values, err := reader.Call(ctx, contract, parsed, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: expected 1 output, got %d", method, len(values))
	}
	return values[0], nil
}
