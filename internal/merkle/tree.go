package merkle

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"vaultctl/internal/model"
)

// Tree is a keccak256 Merkle tree over a set of accounts.
//
// Leaves are keccak256(address), de-duplicated and sorted ascending, so the
// root depends only on the set. Pairs are hashed in sorted order. A level with
// an odd number of nodes promotes its last node unchanged to the next level.
type Tree struct {
	levels   [][]common.Hash
	accounts map[common.Hash]common.Address
}

// Leaf returns the leaf hash of an account.
func Leaf(account common.Address) common.Hash {
	return crypto.Keccak256Hash(account.Bytes())
}

// Build constructs the tree. An empty set is a ValidationError.
func Build(accounts []common.Address) (*Tree, error) {
	if len(accounts) == 0 {
		return nil, model.NewValidationError("accounts", "whitelist is empty")
	}

	byLeaf := make(map[common.Hash]common.Address, len(accounts))
	for _, account := range accounts {
		byLeaf[Leaf(account)] = account
	}

	leaves := make([]common.Hash, 0, len(byLeaf))
	for leaf := range byLeaf {
		leaves = append(leaves, leaf)
	}
	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i][:], leaves[j][:]) < 0
	})

	levels := [][]common.Hash{leaves}
	current := leaves
	for len(current) > 1 {
		next := make([]common.Hash, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
			} else {
				next = append(next, current[i])
			}
		}
		levels = append(levels, next)
		current = next
	}

	return &Tree{levels: levels, accounts: byLeaf}, nil
}

// Root returns the tree root.
func (t *Tree) Root() common.Hash {
	return t.levels[len(t.levels)-1][0]
}

// Leaves returns the sorted leaf hashes.
func (t *Tree) Leaves() []common.Hash {
	out := make([]common.Hash, len(t.levels[0]))
	copy(out, t.levels[0])
	return out
}

// Proof returns the sibling path for account, bottom-up. Accounts outside the
// set fail with a NotFoundError.
func (t *Tree) Proof(account common.Address) ([]common.Hash, error) {
	leaf := Leaf(account)
	leaves := t.levels[0]
	idx := sort.Search(len(leaves), func(i int) bool {
		return bytes.Compare(leaves[i][:], leaf[:]) >= 0
	})
	if idx >= len(leaves) || leaves[idx] != leaf {
		return nil, &model.NotFoundError{What: "whitelist account " + account.Hex()}
	}

	proof := make([]common.Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

// BuildRoot computes the root of a set of accounts.
func BuildRoot(accounts []common.Address) (common.Hash, error) {
	tree, err := Build(accounts)
	if err != nil {
		return common.Hash{}, err
	}
	return tree.Root(), nil
}

// Proof builds the tree for accounts and returns the proof for target.
func Proof(accounts []common.Address, target common.Address) ([]common.Hash, error) {
	tree, err := Build(accounts)
	if err != nil {
		return nil, err
	}
	return tree.Proof(target)
}

// Verify recomputes the path from leaf and compares it to root.
func Verify(root common.Hash, leaf common.Hash, proof []common.Hash) bool {
	current := leaf
	for _, sibling := range proof {
		current = hashPair(current, sibling)
	}
	return current == root
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}
