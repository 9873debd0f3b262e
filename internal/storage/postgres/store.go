package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vaultctl/internal/model"
)

// Store provides Postgres persistence for the name registry and action ledger.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables used by vaultctl if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS contract_names (
			name TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS reconcile_actions (
			id BIGSERIAL PRIMARY KEY,
			unit_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			contract TEXT NOT NULL,
			method TEXT NOT NULL,
			args TEXT NOT NULL,
			role TEXT NOT NULL,
			signer TEXT NOT NULL,
			tx_hash TEXT,
			block_number BIGINT,
			gas_used BIGINT,
			status TEXT NOT NULL,
			error TEXT,
			recorded_at TEXT NOT NULL
		)
	`)
	return err
}

// InsertActions appends action records.
func (s *Store) InsertActions(ctx context.Context, actions []model.ActionRecord) error {
	if len(actions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range actions {
		batch.Queue(`
			INSERT INTO reconcile_actions (
				unit_id, kind, contract, method, args, role, signer,
				tx_hash, block_number, gas_used, status, error, recorded_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
			a.Unit,
			a.Kind,
			a.Contract,
			a.Method,
			a.Args,
			a.Role,
			a.Signer,
			a.TxHash,
			int64(a.BlockNumber),
			int64(a.GasUsed),
			a.Status,
			a.Error,
			a.RecordedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range actions {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetName returns the address recorded under name.
func (s *Store) GetName(ctx context.Context, name string) (common.Address, bool, error) {
	if name == "" {
		return common.Address{}, false, fmt.Errorf("name required")
	}
	var address string
	row := s.pool.QueryRow(ctx, `SELECT address FROM contract_names WHERE name=$1`, name)
	if err := row.Scan(&address); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Address{}, false, nil
		}
		return common.Address{}, false, err
	}
	return common.HexToAddress(address), true, nil
}

// RecordName upserts the address for name.
func (s *Store) RecordName(ctx context.Context, name string, addr common.Address) error {
	if name == "" {
		return fmt.Errorf("name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contract_names (name, address, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET address = EXCLUDED.address, updated_at = now()
	`, name, addr.Hex())
	return err
}
