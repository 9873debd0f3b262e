package reconcile

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"vaultctl/internal/contracts"
	"vaultctl/internal/registry"
	"vaultctl/internal/upgrade"
)

// Implementation upgrades a proxy through the two-step propose/accept flow.
type Implementation struct {
	id             string
	proxy          registry.Ref
	implementation registry.Ref
	autoAccept     bool
	recordAs       string
}

func NewImplementation(id string, proxy, implementation registry.Ref, autoAccept bool, recordAs string) *Implementation {
	return &Implementation{
		id:             id,
		proxy:          proxy,
		implementation: implementation,
		autoAccept:     autoAccept,
		recordAs:       recordAs,
	}
}

func (u *Implementation) ID() string   { return u.id }
func (u *Implementation) Kind() string { return KindImplementation }

func (u *Implementation) Diff(ctx context.Context, env Env) (Diff, error) {
	proxy, err := u.proxy.Resolve(ctx, env.Registry)
	if err != nil {
		return Diff{}, err
	}
	desired, err := u.implementation.Resolve(ctx, env.Registry)
	if err != nil {
		return Diff{}, err
	}

	rec, err := upgrade.Observe(ctx, env.Reader, proxy)
	if err != nil {
		return Diff{}, err
	}
	step, err := upgrade.Plan(rec, desired, u.autoAccept)
	if err != nil {
		return Diff{}, err
	}

	diff := Diff{
		Current: fmt.Sprintf("%s (pending %s, %s)", rec.Current.Hex(), rec.Pending.Hex(), upgrade.StateOf(rec, desired)),
		Desired: desired.Hex(),
	}
	switch step.Action {
	case upgrade.None:
		diff.Converged = true
		return diff, nil
	case upgrade.AwaitAcceptance:
		diff.Waiting = true
		return diff, nil
	}

	var parsed abi.ABI
	if step.Action == upgrade.Accept {
		parsed, err = contracts.ImplementationABI()
	} else {
		parsed, err = contracts.ProxyABI()
	}
	if err != nil {
		return Diff{}, err
	}
	diff.Mutation = &Mutation{
		Role:     step.Role,
		Contract: step.Contract,
		ABI:      parsed,
		Method:   step.Method,
		Args:     step.Args,
	}
	return diff, nil
}

// Finalize records the live implementation under recordAs.
func (u *Implementation) Finalize(ctx context.Context, env Env) ([]Output, error) {
	if u.recordAs == "" {
		return nil, nil
	}
	desired, err := u.implementation.Resolve(ctx, env.Registry)
	if err != nil {
		return nil, err
	}
	return []Output{{Name: u.recordAs, Address: desired}}, nil
}
