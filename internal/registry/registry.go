package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/model"
)

// Registry maps logical contract names to deployed addresses.
type Registry interface {
	Get(ctx context.Context, name string) (common.Address, bool, error)
	Record(ctx context.Context, name string, addr common.Address) error
}

// Ref is an address as written in a manifest: literal hex or "@Name".
type Ref string

// ParseRef validates the textual form of a reference.
func ParseRef(field, input string) (Ref, error) {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return "", model.NewValidationError(field, "address is empty")
	case strings.HasPrefix(input, "@"):
		if len(input) == 1 {
			return "", model.NewValidationError(field, "reference name is empty")
		}
		return Ref(input), nil
	case common.IsHexAddress(input):
		return Ref(common.HexToAddress(input).Hex()), nil
	default:
		return "", model.NewValidationError(field, "invalid address %q", input)
	}
}

// Name returns the registry name for "@Name" references.
func (r Ref) Name() (string, bool) {
	if strings.HasPrefix(string(r), "@") {
		return string(r[1:]), true
	}
	return "", false
}

// Resolve returns the literal address or looks the name up in reg.
func (r Ref) Resolve(ctx context.Context, reg Registry) (common.Address, error) {
	name, ok := r.Name()
	if !ok {
		if !common.IsHexAddress(string(r)) {
			return common.Address{}, model.NewValidationError("address", "invalid address %q", string(r))
		}
		return common.HexToAddress(string(r)), nil
	}
	if reg == nil {
		return common.Address{}, &model.NotFoundError{What: fmt.Sprintf("registry name %q (no registry configured)", name)}
	}
	addr, found, err := reg.Get(ctx, name)
	if err != nil {
		return common.Address{}, fmt.Errorf("lookup %s: %w", name, err)
	}
	if !found {
		return common.Address{}, &model.NotFoundError{What: fmt.Sprintf("registry name %q", name)}
	}
	return addr, nil
}

func (r Ref) String() string { return string(r) }

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return model.NewValidationError("name", "registry name is empty")
	}
	return nil
}
