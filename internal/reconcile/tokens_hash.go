package reconcile

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/contracts"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
	"vaultctl/internal/strategy"
)

// TokensHash registers an ordered token list under its token key.
type TokensHash struct {
	id       string
	registry registry.Ref
	tokens   []common.Address
	key      common.Hash
}

func NewTokensHash(id string, reg registry.Ref, tokens []common.Address, chainID string) (*TokensHash, error) {
	key, err := strategy.TokenKey(tokens, chainID)
	if err != nil {
		return nil, err
	}
	return &TokensHash{
		id:       id,
		registry: reg,
		tokens:   append([]common.Address(nil), tokens...),
		key:      key,
	}, nil
}

func (u *TokensHash) ID() string   { return u.id }
func (u *TokensHash) Kind() string { return KindTokensHash }

// Key is the token key the list is registered under.
func (u *TokensHash) Key() common.Hash { return u.key }

func (u *TokensHash) Diff(ctx context.Context, env Env) (Diff, error) {
	reg, err := u.registry.Resolve(ctx, env.Registry)
	if err != nil {
		return Diff{}, err
	}
	parsed, err := contracts.RegistryABI()
	if err != nil {
		return Diff{}, err
	}

	raw, err := callOne(ctx, env.Reader, reg, parsed, "getTokensHashToTokenList", u.key)
	if err != nil {
		return Diff{}, err
	}
	current, err := contracts.AsAddresses(raw)
	if err != nil {
		return Diff{}, fmt.Errorf("getTokensHashToTokenList: %w", err)
	}

	diff := Diff{
		Current: contracts.FormatArgs([]interface{}{current}),
		Desired: contracts.FormatArgs([]interface{}{u.tokens}),
	}
	if strategy.SameTokens(current, u.tokens) {
		diff.Converged = true
		return diff, nil
	}
	diff.Mutation = &Mutation{
		Role:     roles.Operator,
		Contract: reg,
		ABI:      parsed,
		Method:   "setTokensHashToTokens",
		Args:     []interface{}{append([]common.Address(nil), u.tokens...)},
	}
	return diff, nil
}
