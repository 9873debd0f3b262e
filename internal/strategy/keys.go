package strategy

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"vaultctl/internal/model"
)

// Step is one hop of a strategy: deposit into Pool and receive OutputToken.
// Field names match the on-chain StrategyStep tuple so the type packs directly.
type Step struct {
	Pool        common.Address
	OutputToken common.Address
	IsBorrow    bool
}

// TokenKey hashes an ordered token list with a chain id, matching
// keccak256(abi.encodePacked(address[] tokens, string chainId)).
// The order of tokens is significant.
func TokenKey(tokens []common.Address, chainID string) (common.Hash, error) {
	if len(tokens) == 0 {
		return common.Hash{}, model.NewValidationError("tokens", "token list is empty")
	}
	chainID = strings.TrimSpace(chainID)
	if chainID == "" {
		return common.Hash{}, model.NewValidationError("chain_id", "chain id is empty")
	}

	buf := make([]byte, 0, len(tokens)*common.HashLength+len(chainID))
	for _, token := range tokens {
		buf = append(buf, common.LeftPadBytes(token.Bytes(), common.HashLength)...)
	}
	buf = append(buf, chainID...)
	return crypto.Keccak256Hash(buf), nil
}

// StepHash hashes pool, output token and borrow flag packed as 20+20+1 bytes.
func StepHash(step Step) common.Hash {
	flag := byte(0)
	if step.IsBorrow {
		flag = 1
	}
	return crypto.Keccak256Hash(step.Pool.Bytes(), step.OutputToken.Bytes(), []byte{flag})
}

// StepsHash hashes the sequence of step hashes in order.
func StepsHash(steps []Step) common.Hash {
	buf := make([]byte, 0, len(steps)*common.HashLength)
	for _, step := range steps {
		h := StepHash(step)
		buf = append(buf, h.Bytes()...)
	}
	return crypto.Keccak256Hash(buf)
}

// StrategyKey combines a token key with the ordered steps hash. It is the
// join key between a declared assignment and the one currently on chain.
func StrategyKey(tokenKey common.Hash, steps []Step) (common.Hash, error) {
	if len(steps) == 0 {
		return common.Hash{}, model.NewValidationError("steps", "strategy has no steps")
	}
	stepsHash := StepsHash(steps)
	return crypto.Keccak256Hash(tokenKey.Bytes(), stepsHash.Bytes()), nil
}

// SameTokens reports whether two token lists are equal element by element.
func SameTokens(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
