package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sugawarayuuta/sonnet"
)

type fileEntry struct {
	Address   string `json:"address"`
	UpdatedAt string `json:"updated_at"`
}

// FileRegistry persists names in a single JSON document.
type FileRegistry struct {
	path string
	mu   sync.Mutex
}

func NewFileRegistry(path string) *FileRegistry {
	return &FileRegistry{path: path}
}

func (r *FileRegistry) Get(ctx context.Context, name string) (common.Address, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return common.Address{}, false, err
	}
	entry, ok := entries[name]
	if !ok {
		return common.Address{}, false, nil
	}
	if !common.IsHexAddress(entry.Address) {
		return common.Address{}, false, fmt.Errorf("registry entry %s: invalid address %q", name, entry.Address)
	}
	return common.HexToAddress(entry.Address), true, nil
}

func (r *FileRegistry) Record(ctx context.Context, name string, addr common.Address) error {
	if err := validateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	entries[name] = fileEntry{
		Address:   addr.Hex(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	return r.save(entries)
}

func (r *FileRegistry) load() (map[string]fileEntry, error) {
	entries := make(map[string]fileEntry)

	stat, err := os.Stat(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("stat registry: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("registry path is a directory")
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := sonnet.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return entries, nil
}

func (r *FileRegistry) save(entries map[string]fileEntry) error {
	dir := filepath.Dir(r.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}

	data, err := sonnet.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write registry tmp: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("rename registry: %w", err)
	}
	return nil
}
