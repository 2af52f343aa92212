package store

import (
	"context"
	"sync"
	"time"
)

// Deduper remembers inbound message ids so webhook redeliveries are handled
// once. Seen marks key and reports whether it had already been marked.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// MemoryStore is an in-process Deduper with a TTL per key and an upper bound
// on tracked keys.
type MemoryStore struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	return &MemoryStore{
		seen:       make(map[string]time.Time),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if at, ok := m.seen[key]; ok && now.Sub(at) <= m.ttl {
		return true, nil
	}
	m.seen[key] = now
	m.trimLocked(now)
	return false, nil
}

// Len reports the number of tracked keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func (m *MemoryStore) trimLocked(now time.Time) {
	if m.maxEntries <= 0 || len(m.seen) <= m.maxEntries {
		return
	}
	for k, at := range m.seen {
		if now.Sub(at) > m.ttl {
			delete(m.seen, k)
		}
	}
	// Still over the bound: drop the oldest entries.
	for len(m.seen) > m.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, at := range m.seen {
			if oldestKey == "" || at.Before(oldest) {
				oldestKey, oldest = k, at
			}
		}
		delete(m.seen, oldestKey)
	}
}
