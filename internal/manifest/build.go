package manifest

import (
	"fmt"
	"strings"

	"vaultctl/internal/model"
	"vaultctl/internal/reconcile"
	"vaultctl/internal/registry"
	"vaultctl/internal/schedule"
	"vaultctl/internal/strategy"
	"vaultctl/internal/vaultconfig"
)

// Plan is a validated manifest: typed units plus their dependency graph.
type Plan struct {
	ChainID       string
	RolesRegistry registry.Ref
	Units         []reconcile.Unit
	Nodes         []schedule.Node

	byID map[string]reconcile.Unit
}

// Unit returns the unit with id.
func (p *Plan) Unit(id string) (reconcile.Unit, bool) {
	u, ok := p.byID[id]
	return u, ok
}

// Build validates every unit and the dependency graph. chainID is used when
// the manifest does not pin one.
func (f *File) Build(chainID string) (*Plan, error) {
	if f.ChainID != "" {
		chainID = strings.TrimSpace(f.ChainID)
	}
	plan := &Plan{ChainID: chainID, byID: make(map[string]reconcile.Unit, len(f.Units))}

	if f.RolesRegistry != "" {
		ref, err := registry.ParseRef("roles_registry", f.RolesRegistry)
		if err != nil {
			return nil, err
		}
		plan.RolesRegistry = ref
	}

	for i, spec := range f.Units {
		if spec.ID == "" {
			return nil, model.NewValidationError(fmt.Sprintf("unit[%d].id", i), "unit id is empty")
		}
		unit, err := f.buildUnit(spec, chainID)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", spec.ID, err)
		}
		if _, dup := plan.byID[spec.ID]; dup {
			return nil, model.NewValidationError("id", "duplicate unit id %q", spec.ID)
		}
		plan.byID[spec.ID] = unit
		plan.Units = append(plan.Units, unit)
		plan.Nodes = append(plan.Nodes, schedule.Node{ID: spec.ID, DependsOn: spec.DependsOn})
	}

	if _, err := schedule.Order(plan.Nodes); err != nil {
		return nil, err
	}
	return plan, nil
}

func (f *File) buildUnit(spec UnitSpec, chainID string) (reconcile.Unit, error) {
	switch spec.Kind {
	case reconcile.KindConfigField:
		vault, err := registry.ParseRef("vault", spec.Vault)
		if err != nil {
			return nil, err
		}
		field, ok := vaultconfig.ParseField(spec.Field)
		if !ok || field == vaultconfig.Reserved {
			return nil, model.NewValidationError("field", "unknown config field %q", spec.Field)
		}
		raw, err := scalarString("value", spec.Value)
		if err != nil {
			return nil, err
		}
		value, err := vaultconfig.ParseValue(field, raw)
		if err != nil {
			return nil, err
		}
		return reconcile.NewConfigField(spec.ID, vault, field, value)

	case reconcile.KindValueControl:
		vault, err := registry.ParseRef("vault", spec.Vault)
		if err != nil {
			return nil, err
		}
		userCap, err := parseUint("user_deposit_cap", spec.UserDepositCap)
		if err != nil {
			return nil, err
		}
		minimum, err := parseUint("minimum_deposit", spec.MinimumDeposit)
		if err != nil {
			return nil, err
		}
		tvl, err := parseUint("tvl_limit", spec.TVLLimit)
		if err != nil {
			return nil, err
		}
		return reconcile.NewValueControl(spec.ID, vault, userCap, minimum, tvl)

	case reconcile.KindTokenApproval:
		reg, err := registry.ParseRef("registry", spec.Registry)
		if err != nil {
			return nil, err
		}
		token, err := parseAddress("token", spec.Token)
		if err != nil {
			return nil, err
		}
		approved := true
		if spec.Approved != nil {
			approved = *spec.Approved
		}
		return reconcile.NewTokenApproval(spec.ID, reg, token, approved)

	case reconcile.KindTokensHash:
		reg, err := registry.ParseRef("registry", spec.Registry)
		if err != nil {
			return nil, err
		}
		tokens, err := parseAddresses("tokens", spec.Tokens)
		if err != nil {
			return nil, err
		}
		return reconcile.NewTokensHash(spec.ID, reg, tokens, chainID)

	case reconcile.KindStrategy:
		provider, err := registry.ParseRef("strategy_provider", spec.StrategyProvider)
		if err != nil {
			return nil, err
		}
		if spec.RiskProfileCode == nil {
			return nil, model.NewValidationError("risk_profile_code", "value is required")
		}
		rp := *spec.RiskProfileCode
		if rp < 0 || rp > 255 {
			return nil, &model.RangeError{Field: "risk_profile_code", Value: fmt.Sprint(rp), Width: 8}
		}
		tokens, err := parseAddresses("tokens", spec.Tokens)
		if err != nil {
			return nil, err
		}
		steps := make([]strategy.Step, 0, len(spec.Steps))
		for i, s := range spec.Steps {
			pool, err := parseAddress(fmt.Sprintf("steps[%d].pool", i), s.Pool)
			if err != nil {
				return nil, err
			}
			out, err := parseAddress(fmt.Sprintf("steps[%d].output_token", i), s.OutputToken)
			if err != nil {
				return nil, err
			}
			steps = append(steps, strategy.Step{Pool: pool, OutputToken: out, IsBorrow: s.IsBorrow})
		}
		return reconcile.NewStrategyAssignment(spec.ID, provider, uint8(rp), tokens, chainID, steps)

	case reconcile.KindWhitelist:
		vault, err := registry.ParseRef("vault", spec.Vault)
		if err != nil {
			return nil, err
		}
		accounts, err := parseAddresses("accounts", spec.Accounts)
		if err != nil {
			return nil, err
		}
		if spec.AccountsFile != "" {
			fromFile, err := ReadAccounts(f.resolvePath(spec.AccountsFile))
			if err != nil {
				return nil, err
			}
			accounts = append(accounts, fromFile...)
		}
		return reconcile.NewWhitelist(spec.ID, vault, accounts, f.resolvePath(spec.Artifact))

	case reconcile.KindImplementation:
		proxy, err := registry.ParseRef("proxy", spec.Proxy)
		if err != nil {
			return nil, err
		}
		impl, err := registry.ParseRef("implementation", spec.Implementation)
		if err != nil {
			return nil, err
		}
		return reconcile.NewImplementation(spec.ID, proxy, impl, spec.AutoAccept, strings.TrimSpace(spec.RecordAs)), nil

	case "":
		return nil, model.NewValidationError("kind", "unit kind is empty")
	default:
		return nil, model.NewValidationError("kind", "unknown unit kind %q", spec.Kind)
	}
}
