package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/storage/postgres"
)

// DBRegistry stores names in the contract_names table in Postgres.
type DBRegistry struct {
	Store *postgres.Store
}

func (r *DBRegistry) Get(ctx context.Context, name string) (common.Address, bool, error) {
	if r == nil || r.Store == nil {
		return common.Address{}, false, nil
	}
	return r.Store.GetName(ctx, name)
}

func (r *DBRegistry) Record(ctx context.Context, name string, addr common.Address) error {
	if err := validateName(name); err != nil {
		return err
	}
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.RecordName(ctx, name, addr)
}
