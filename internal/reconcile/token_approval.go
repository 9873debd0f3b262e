package reconcile

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/contracts"
	"vaultctl/internal/model"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
)

// TokenApproval approves or revokes a token in the protocol registry.
type TokenApproval struct {
	id       string
	registry registry.Ref
	token    common.Address
	approved bool
}

func NewTokenApproval(id string, reg registry.Ref, token common.Address, approved bool) (*TokenApproval, error) {
	if token == (common.Address{}) {
		return nil, model.NewValidationError("token", "token is the zero address")
	}
	return &TokenApproval{id: id, registry: reg, token: token, approved: approved}, nil
}

func (u *TokenApproval) ID() string   { return u.id }
func (u *TokenApproval) Kind() string { return KindTokenApproval }

func (u *TokenApproval) Diff(ctx context.Context, env Env) (Diff, error) {
	reg, err := u.registry.Resolve(ctx, env.Registry)
	if err != nil {
		return Diff{}, err
	}
	parsed, err := contracts.RegistryABI()
	if err != nil {
		return Diff{}, err
	}

	raw, err := callOne(ctx, env.Reader, reg, parsed, "isApprovedToken", u.token)
	if err != nil {
		return Diff{}, err
	}
	approved, err := contracts.AsBool(raw)
	if err != nil {
		return Diff{}, fmt.Errorf("isApprovedToken: %w", err)
	}

	diff := Diff{Current: strconv.FormatBool(approved), Desired: strconv.FormatBool(u.approved)}
	if approved == u.approved {
		diff.Converged = true
		return diff, nil
	}
	method := "approveToken"
	if !u.approved {
		method = "revokeToken"
	}
	diff.Mutation = &Mutation{
		Role:     roles.Operator,
		Contract: reg,
		ABI:      parsed,
		Method:   method,
		Args:     []interface{}{u.token},
	}
	return diff, nil
}
