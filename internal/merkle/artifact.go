package merkle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sugawarayuuta/sonnet"

	"vaultctl/internal/model"
)

// Artifact renders the root and every account proof.
func (t *Tree) Artifact() (model.WhitelistArtifact, error) {
	artifact := model.WhitelistArtifact{
		Root:   t.Root().Hex(),
		Proofs: make([]model.WhitelistProof, 0, len(t.levels[0])),
	}
	for _, leaf := range t.Leaves() {
		account := t.accounts[leaf]
		proof, err := t.Proof(account)
		if err != nil {
			return model.WhitelistArtifact{}, err
		}
		hexProof := make([]string, 0, len(proof))
		for _, h := range proof {
			hexProof = append(hexProof, h.Hex())
		}
		artifact.Proofs = append(artifact.Proofs, model.WhitelistProof{
			Account: account.Hex(),
			Leaf:    leaf.Hex(),
			Proof:   hexProof,
		})
	}
	return artifact, nil
}

// WriteArtifact writes the artifact atomically.
func WriteArtifact(path string, artifact model.WhitelistArtifact) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}

	data, err := sonnet.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write artifact tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// ReadArtifact loads an artifact written by WriteArtifact.
func ReadArtifact(path string) (model.WhitelistArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WhitelistArtifact{}, fmt.Errorf("read artifact: %w", err)
	}
	var artifact model.WhitelistArtifact
	if err := sonnet.Unmarshal(data, &artifact); err != nil {
		return model.WhitelistArtifact{}, fmt.Errorf("parse artifact: %w", err)
	}
	return artifact, nil
}

// VerifyArtifact checks the proof stored for account against the artifact root.
// A stored leaf that does not hash from account fails verification.
func VerifyArtifact(artifact model.WhitelistArtifact, account common.Address) (bool, error) {
	for _, entry := range artifact.Proofs {
		if !strings.EqualFold(entry.Account, account.Hex()) {
			continue
		}
		leaf := Leaf(account)
		if entry.Leaf != "" && common.HexToHash(entry.Leaf) != leaf {
			return false, nil
		}
		proof := make([]common.Hash, 0, len(entry.Proof))
		for _, item := range entry.Proof {
			proof = append(proof, common.HexToHash(item))
		}
		return Verify(common.HexToHash(artifact.Root), leaf, proof), nil
	}
	return false, &model.NotFoundError{What: "whitelist account " + account.Hex()}
}
