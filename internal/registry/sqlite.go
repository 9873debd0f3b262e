package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRegistry keeps names in a local SQLite database.
type SQLiteRegistry struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the registry database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRegistry, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite registry path is required")
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS contract_names (
			name TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create contract_names: %w", err)
	}
	return &SQLiteRegistry{db: db}, nil
}

func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

func (r *SQLiteRegistry) Get(ctx context.Context, name string) (common.Address, bool, error) {
	var address string
	row := r.db.QueryRowContext(ctx, `SELECT address FROM contract_names WHERE name = ?`, name)
	if err := row.Scan(&address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.Address{}, false, nil
		}
		return common.Address{}, false, err
	}
	return common.HexToAddress(address), true, nil
}

func (r *SQLiteRegistry) Record(ctx context.Context, name string, addr common.Address) error {
	if err := validateName(name); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contract_names (name, address, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE
		SET address = excluded.address, updated_at = excluded.updated_at
	`, name, addr.Hex(), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}
