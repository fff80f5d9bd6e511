// Package keyedlock provides per-key mutual exclusion with bounded memory.
//
// Locks are allocated lazily for arbitrary string keys (user IDs, guild IDs,
// channel IDs) and reclaimed by a background sweep once they have been idle
// longer than the configured TTL. This keeps the registry bounded even with
// an unbounded key space.
package keyedlock

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = time.Minute

type entry struct {
	mu       sync.Mutex
	lastUsed time.Time // guarded by Manager.mu
}

// Manager is a registry of per-key mutexes. The zero value is not usable;
// construct with New.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	idleTTL time.Duration
}

func New(idleTTL time.Duration) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		idleTTL: idleTTL,
	}
}

func (m *Manager) get(key string) *entry {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.lastUsed = now
	return e
}

// Acquire locks the mutex for key and returns the release func. Prefer With
// unless the critical section spans function boundaries.
func (m *Manager) Acquire(key string) (release func()) {
	e := m.get(key)
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		e.lastUsed = time.Now()
		m.mu.Unlock()
	}
}

// With runs fn while holding the lock for key. At most one critical section
// runs concurrently per key.
func (m *Manager) With(key string, fn func()) {
	release := m.Acquire(key)
	defer release()
	fn()
}

// Run sweeps the registry every minute until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

// sweep evicts entries idle past the TTL whose lock is not currently held.
// A held lock is never evicted; TryLock doubles as the "unlocked" probe.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if now.Sub(e.lastUsed) < m.idleTTL {
			continue
		}
		if e.mu.TryLock() {
			e.mu.Unlock()
			delete(m.entries, key)
		}
	}
}

// Len reports the number of live lock entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
