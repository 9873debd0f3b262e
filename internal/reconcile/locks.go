package reconcile

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// signerLocks serializes mutations per signing account. Nonces are taken
// from the pending pool, so two in-flight sends from one account would race.
type signerLocks struct {
	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
}

func newSignerLocks() *signerLocks {
	return &signerLocks{locks: make(map[common.Address]*sync.Mutex)}
}

func (l *signerLocks) lock(addr common.Address) func() {
	l.mu.Lock()
	m, ok := l.locks[addr]
	if !ok {
		m = &sync.Mutex{}
		l.locks[addr] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
