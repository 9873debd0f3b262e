package reconcile

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/contracts"
	"vaultctl/internal/merkle"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
)

// Whitelist publishes the merkle root of an account set on a vault and
// writes the proof artifact once the root is on chain.
type Whitelist struct {
	id           string
	vault        registry.Ref
	tree         *merkle.Tree
	artifactPath string
}

func NewWhitelist(id string, vault registry.Ref, accounts []common.Address, artifactPath string) (*Whitelist, error) {
	tree, err := merkle.Build(accounts)
	if err != nil {
		return nil, err
	}
	return &Whitelist{id: id, vault: vault, tree: tree, artifactPath: artifactPath}, nil
}

func (u *Whitelist) ID() string   { return u.id }
func (u *Whitelist) Kind() string { return KindWhitelist }

// Root is the desired whitelist root.
func (u *Whitelist) Root() common.Hash { return u.tree.Root() }

func (u *Whitelist) Diff(ctx context.Context, env Env) (Diff, error) {
	vault, err := u.vault.Resolve(ctx, env.Registry)
	if err != nil {
		return Diff{}, err
	}
	parsed, err := contracts.VaultABI()
	if err != nil {
		return Diff{}, err
	}

	raw, err := callOne(ctx, env.Reader, vault, parsed, "whitelistedAccountsRoot")
	if err != nil {
		return Diff{}, err
	}
	current, err := contracts.AsHash(raw)
	if err != nil {
		return Diff{}, fmt.Errorf("whitelistedAccountsRoot: %w", err)
	}

	root := u.tree.Root()
	diff := Diff{Current: current.Hex(), Desired: root.Hex()}
	if current == root {
		diff.Converged = true
		return diff, nil
	}
	diff.Mutation = &Mutation{
		Role:     roles.Governance,
		Contract: vault,
		ABI:      parsed,
		Method:   "setWhitelistedAccountsRoot",
		Args:     []interface{}{[32]byte(root)},
	}
	return diff, nil
}

// Finalize writes the proof artifact. The whitelist has no named outputs.
func (u *Whitelist) Finalize(ctx context.Context, env Env) ([]Output, error) {
	if u.artifactPath == "" {
		return nil, nil
	}
	artifact, err := u.tree.Artifact()
	if err != nil {
		return nil, err
	}
	if err := merkle.WriteArtifact(u.artifactPath, artifact); err != nil {
		return nil, err
	}
	return nil, nil
}
