// Package keyedlock provides a per-scriptId, in-process exclusive lock
// manager: an operation holding the lock for a scriptId serializes against
// others on the same scriptId, while operations on distinct scriptIds
// proceed concurrently. A lock already held by the current call chain may be
// re-entered without blocking. Deployment reset is its only user in this
// module; infrastructure repair (infra.Verifier.Repair) takes no lock, and
// worktree add serializes on the config document's lock instead.
package keyedlock

import (
	"context"
	"sync"
)

type ctxKey string

// held carries the set of keys the current call chain already holds, so a
// nested WithLock call on the same key re-enters instead of deadlocking.
const heldKey ctxKey = "keyedlock-held"

// entry is one key's lock state. Reentrancy is tracked through the
// context, not here, so a bare mutex suffices.
type entry struct {
	mu sync.Mutex
}

// Manager owns one mutex per key, created lazily and kept for the
// process lifetime - the key space (scriptIds) is small and long-lived
// enough that this never needs eviction.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New builds an empty Manager.
func New() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

func (m *Manager) entryFor(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	return e
}

// WithLock runs fn holding the exclusive lock for key. If the current
// call chain (as tracked through ctx) already holds key - a nested call -
// fn runs immediately without re-acquiring the mutex.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	held, _ := ctx.Value(heldKey).(map[string]bool)
	if held != nil && held[key] {
		return fn(ctx)
	}

	e := m.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	newHeld := make(map[string]bool, len(held)+1)
	for k := range held {
		newHeld[k] = true
	}
	newHeld[key] = true

	return fn(context.WithValue(ctx, heldKey, newHeld))
}
