package upgrade

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/chain"
	"vaultctl/internal/contracts"
	"vaultctl/internal/model"
	"vaultctl/internal/roles"
)

// Roles authorizing the two upgrade steps.
const (
	ProposerRole = roles.Operator
	AccepterRole = roles.Governance
)

// Record is the observed upgrade state of one proxy.
type Record struct {
	Proxy   common.Address
	Current common.Address
	Pending common.Address
}

// State of a proxy relative to a desired implementation.
type State int

const (
	Stable State = iota
	PendingProposed
	Upgraded
)

func (s State) String() string {
	switch s {
	case Stable:
		return "stable"
	case PendingProposed:
		return "pending_proposed"
	case Upgraded:
		return "upgraded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Action is the next transition the coordinator would take.
type Action int

const (
	None Action = iota
	Propose
	Accept
	AwaitAcceptance
)

func (a Action) String() string {
	switch a {
	case None:
		return "none"
	case Propose:
		return "propose"
	case Accept:
		return "accept"
	case AwaitAcceptance:
		return "await_acceptance"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Step is a planned transition. Contract is the call target: the proxy for a
// proposal, the pending implementation for an acceptance.
type Step struct {
	Action   Action
	Role     roles.Role
	Contract common.Address
	Method   string
	Args     []interface{}
}

// Observe reads the current and pending implementation of proxy.
func Observe(ctx context.Context, reader chain.Reader, proxy common.Address) (Record, error) {
	parsed, err := contracts.ProxyABI()
	if err != nil {
		return Record{}, fmt.Errorf("load proxy abi: %w", err)
	}

	current, err := readAddress(ctx, reader, proxy, parsed, "implementation")
	if err != nil {
		return Record{}, err
	}
	pending, err := readAddress(ctx, reader, proxy, parsed, "pendingImplementation")
	if err != nil {
		return Record{}, err
	}
	return Record{Proxy: proxy, Current: current, Pending: pending}, nil
}

// StateOf classifies rec against the desired implementation.
func StateOf(rec Record, desired common.Address) State {
	switch {
	case rec.Current == desired:
		return Upgraded
	case rec.Pending == desired:
		return PendingProposed
	default:
		return Stable
	}
}

// Plan returns the next step towards desired. Proposal is skipped when the
// pending slot already holds desired; with autoAccept disabled the coordinator
// stops at AwaitAcceptance instead of calling become.
func Plan(rec Record, desired common.Address, autoAccept bool) (Step, error) {
	if desired == (common.Address{}) {
		return Step{}, model.NewValidationError("implementation", "desired implementation is the zero address")
	}

	switch StateOf(rec, desired) {
	case Upgraded:
		return Step{Action: None}, nil
	case PendingProposed:
		if !autoAccept {
			return Step{Action: AwaitAcceptance, Role: AccepterRole}, nil
		}
		return Step{
			Action:   Accept,
			Role:     AccepterRole,
			Contract: desired,
			Method:   "become",
			Args:     []interface{}{rec.Proxy},
		}, nil
	default:
		return Step{
			Action:   Propose,
			Role:     ProposerRole,
			Contract: rec.Proxy,
			Method:   "setPendingImplementation",
			Args:     []interface{}{desired},
		}, nil
	}
}

func readAddress(ctx context.Context, reader chain.Reader, contract common.Address, parsed abi.ABI, method string) (common.Address, error) {
	values, err := reader.Call(ctx, contract, parsed, method)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("%s: expected 1 output, got %d", method, len(values))
	}
	return contracts.AsAddress(values[0])
}
