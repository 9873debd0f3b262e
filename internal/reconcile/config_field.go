package reconcile

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"vaultctl/internal/contracts"
	"vaultctl/internal/model"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
	"vaultctl/internal/vaultconfig"
)

// ConfigField sets one field of a vault's packed configuration word.
// Flags and the risk profile have dedicated setters; every other field is
// written back through setVaultConfiguration with the rest of the word intact.
type ConfigField struct {
	id    string
	vault registry.Ref
	field vaultconfig.Field
	value *uint256.Int
}

func NewConfigField(id string, vault registry.Ref, field vaultconfig.Field, value *uint256.Int) (*ConfigField, error) {
	if !field.Valid() {
		return nil, model.NewValidationError("field", "unknown config field %d", int(field))
	}
	if field == vaultconfig.Reserved {
		return nil, model.NewValidationError(field.String(), "reserved bits cannot be set")
	}
	if value == nil {
		return nil, model.NewValidationError(field.String(), "value is required")
	}
	if uint(value.BitLen()) > field.Width() {
		return nil, &model.RangeError{Field: field.String(), Value: value.ToBig().String(), Width: field.Width()}
	}
	return &ConfigField{id: id, vault: vault, field: field, value: new(uint256.Int).Set(value)}, nil
}

func (u *ConfigField) ID() string   { return u.id }
func (u *ConfigField) Kind() string { return KindConfigField }

func (u *ConfigField) Diff(ctx context.Context, env Env) (Diff, error) {
	vault, err := u.vault.Resolve(ctx, env.Registry)
	if err != nil {
		return Diff{}, err
	}
	parsed, err := contracts.VaultABI()
	if err != nil {
		return Diff{}, err
	}

	raw, err := callOne(ctx, env.Reader, vault, parsed, "vaultConfiguration")
	if err != nil {
		return Diff{}, err
	}
	n, err := contracts.AsBigInt(raw)
	if err != nil {
		return Diff{}, fmt.Errorf("vaultConfiguration: %w", err)
	}
	word, overflow := uint256.FromBig(n)
	if overflow {
		return Diff{}, fmt.Errorf("vaultConfiguration: value overflows 256 bits")
	}

	current := vaultconfig.Get(word, u.field)
	desired := vaultconfig.FormatValue(u.field, u.value)
	if current.Eq(u.value) {
		return converged(desired, desired), nil
	}

	diff := Diff{Current: vaultconfig.FormatValue(u.field, current), Desired: desired}
	m := &Mutation{Role: roles.Governance, Contract: vault, ABI: parsed}
	switch u.field {
	case vaultconfig.Unpaused:
		m.Method, m.Args = "setUnpaused", []interface{}{!u.value.IsZero()}
	case vaultconfig.EmergencyShutdown:
		m.Method, m.Args = "setEmergencyShutdown", []interface{}{!u.value.IsZero()}
	case vaultconfig.RiskProfileCode:
		m.Method, m.Args = "setRiskProfileCode", []interface{}{u.value.ToBig()}
	default:
		next, err := vaultconfig.WithField(word, u.field, u.value)
		if err != nil {
			return Diff{}, err
		}
		m.Method, m.Args = "setVaultConfiguration", []interface{}{next.ToBig()}
	}
	diff.Mutation = m
	return diff, nil
}
