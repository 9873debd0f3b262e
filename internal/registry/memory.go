package registry

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Memory is a process-local registry used by dry runs and tests.
type Memory struct {
	mu    sync.RWMutex
	names map[string]common.Address
}

func NewMemory(seed map[string]common.Address) *Memory {
	names := make(map[string]common.Address, len(seed))
	for k, v := range seed {
		names[k] = v
	}
	return &Memory{names: names}
}

func (m *Memory) Get(ctx context.Context, name string) (common.Address, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addr, ok := m.names[name]
	return addr, ok, nil
}

func (m *Memory) Record(ctx context.Context, name string, addr common.Address) error {
	if err := validateName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[name] = addr
	return nil
}
