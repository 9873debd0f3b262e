package roles

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/chain/chaintest"
	"vaultctl/internal/model"
)

const (
	governanceKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	operatorKey   = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
)

var registryAddr = common.HexToAddress("0x00000000000000000000000000000000000000e1")

func TestParse(t *testing.T) {
	role, err := Parse("FinanceOperator")
	if err != nil || role != FinanceOperator {
		t.Fatalf("unexpected parse: %q %v", role, err)
	}
	if _, err := Parse("admin"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolverSignerFor(t *testing.T) {
	resolver, err := NewResolver(map[string]string{
		"governance":   governanceKey,
		"operator":     "0x" + operatorKey,
		"riskOperator": "",
	})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	gov, err := resolver.SignerFor(Governance)
	if err != nil {
		t.Fatalf("signer for governance: %v", err)
	}
	op, err := resolver.SignerFor(Operator)
	if err != nil {
		t.Fatalf("signer for operator: %v", err)
	}
	if gov.Address == op.Address {
		t.Fatalf("expected distinct signers")
	}

	_, err = resolver.SignerFor(StrategyOperator)
	var authErr *model.AuthorizationError
	if !errors.As(err, &authErr) || authErr.Role != string(StrategyOperator) {
		t.Fatalf("expected authorization error for strategyOperator, got %v", err)
	}
	if _, err := resolver.SignerFor(RiskOperator); !errors.Is(err, model.ErrAuthorization) {
		t.Fatalf("empty key must not yield a signer, got %v", err)
	}

	if got, want := resolver.Roles(), []Role{Governance, Operator}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected roles %v", got)
	}
}

func TestNewResolverRejects(t *testing.T) {
	if _, err := NewResolver(map[string]string{"admin": governanceKey}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for unknown role, got %v", err)
	}
	if _, err := NewResolver(map[string]string{"governance": "zz"}); err == nil {
		t.Fatalf("expected error for bad key")
	}
}

func TestNilResolver(t *testing.T) {
	var resolver *Resolver
	if _, err := resolver.SignerFor(Governance); !errors.Is(err, model.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestCheckOnChain(t *testing.T) {
	ctx := context.Background()
	backend := chaintest.New()
	reg := backend.AddRegistry(registryAddr)

	resolver, err := NewResolver(map[string]string{"governance": governanceKey, "operator": operatorKey})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	gov, _ := resolver.SignerFor(Governance)
	op, _ := resolver.SignerFor(Operator)

	reg.Holders["governance"] = gov.Address
	reg.Holders["operator"] = op.Address
	if err := resolver.CheckOnChain(ctx, backend, registryAddr); err != nil {
		t.Fatalf("expected holders to match: %v", err)
	}

	reg.Holders["operator"] = gov.Address
	if err := resolver.CheckOnChain(ctx, backend, registryAddr); !errors.Is(err, model.ErrAuthorization) {
		t.Fatalf("expected authorization error on mismatch, got %v", err)
	}
}
