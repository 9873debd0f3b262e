package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/model"
)

var (
	vaultAddr    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	registryAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func exerciseRegistry(t *testing.T, reg Registry) {
	t.Helper()
	ctx := context.Background()

	if _, found, err := reg.Get(ctx, "Vault"); err != nil || found {
		t.Fatalf("expected miss on empty registry, found=%v err=%v", found, err)
	}
	if err := reg.Record(ctx, "Vault", vaultAddr); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := reg.Record(ctx, "Registry", registryAddr); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, found, err := reg.Get(ctx, "Vault")
	if err != nil || !found || got != vaultAddr {
		t.Fatalf("unexpected lookup: %s found=%v err=%v", got.Hex(), found, err)
	}

	if err := reg.Record(ctx, "Vault", registryAddr); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, _ = reg.Get(ctx, "Vault")
	if got != registryAddr {
		t.Fatalf("expected overwrite to win, got %s", got.Hex())
	}

	if err := reg.Record(ctx, " ", vaultAddr); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}
}

func TestMemoryRegistry(t *testing.T) {
	exerciseRegistry(t, NewMemory(nil))
}

func TestFileRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "names.json")
	exerciseRegistry(t, NewFileRegistry(path))

	reopened := NewFileRegistry(path)
	got, found, err := reopened.Get(context.Background(), "Registry")
	if err != nil || !found || got != registryAddr {
		t.Fatalf("expected persisted entry, got %s found=%v err=%v", got.Hex(), found, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file should not remain, stat err=%v", err)
	}
}

func TestFileRegistryRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := NewFileRegistry(path).Get(context.Background(), "Vault"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSQLiteRegistry(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "names.db")
	reg, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	exerciseRegistry(t, reg)
	if err := reg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer reopened.Close()
	got, found, err := reopened.Get(ctx, "Registry")
	if err != nil || !found || got != registryAddr {
		t.Fatalf("expected persisted entry, got %s found=%v err=%v", got.Hex(), found, err)
	}
}

func TestRefResolve(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory(map[string]common.Address{"Vault": vaultAddr})

	literal, err := ParseRef("vault", "0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("parse literal: %v", err)
	}
	if got, err := literal.Resolve(ctx, nil); err != nil || got != registryAddr {
		t.Fatalf("literal resolve: %s %v", got.Hex(), err)
	}

	named, err := ParseRef("vault", "@Vault")
	if err != nil {
		t.Fatalf("parse named: %v", err)
	}
	if name, ok := named.Name(); !ok || name != "Vault" {
		t.Fatalf("unexpected name %q", name)
	}
	if got, err := named.Resolve(ctx, reg); err != nil || got != vaultAddr {
		t.Fatalf("named resolve: %s %v", got.Hex(), err)
	}

	missing := Ref("@Missing")
	if _, err := missing.Resolve(ctx, reg); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := named.Resolve(ctx, nil); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found without registry, got %v", err)
	}
}

func TestParseRefRejects(t *testing.T) {
	for _, in := range []string{"", "@", "0x1234", "Vault"} {
		if _, err := ParseRef("vault", in); !errors.Is(err, model.ErrValidation) {
			t.Fatalf("%q: expected validation error, got %v", in, err)
		}
	}
}
