package storage

import (
	"context"

	"vaultctl/internal/model"
	"vaultctl/internal/storage/postgres"
)

// Storage defines a sink for action records.
type Storage interface {
	PutActionBatch(ctx context.Context, actions []model.ActionRecord) error
}

// DBStorage appends action records to the reconcile_actions table.
type DBStorage struct {
	Store *postgres.Store
}

func (s *DBStorage) PutActionBatch(ctx context.Context, actions []model.ActionRecord) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.InsertActions(ctx, actions)
}

// Multi fans a batch out to every sink, stopping at the first error.
type Multi []Storage

func (m Multi) PutActionBatch(ctx context.Context, actions []model.ActionRecord) error {
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.PutActionBatch(ctx, actions); err != nil {
			return err
		}
	}
	return nil
}
