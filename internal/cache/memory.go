package cache

import (
	"context"
	"sync"
	"time"

	"github.com/supportdesk/backend/internal/pipeline"
)

type memoryEntry struct {
	result    pipeline.Result
	expiresAt time.Time
}

// Memory is the in-process response cache. Reads and writes of one key are
// atomic under the map lock; concurrent puts for the same key are
// last-write-wins.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

// NewMemory creates a memory cache. ttl <= 0 disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
	}
}

func (m *Memory) Get(_ context.Context, clientID, normalizedQuery string, version int64) (*pipeline.Result, bool, error) {
	key := Key(clientID, normalizedQuery, version)

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.evictExpired(key, entry)
		return nil, false, nil
	}

	result := entry.result
	return &result, true, nil
}

// evictExpired removes the entry observed as expired. It re-checks under
// the write lock: a Put may have replaced the entry after the read lock
// was released, and that fresh entry must not be dropped.
func (m *Memory) evictExpired(key string, seen memoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.entries[key]; ok && current.expiresAt.Equal(seen.expiresAt) {
		delete(m.entries, key)
	}
}

func (m *Memory) Put(_ context.Context, clientID, normalizedQuery string, version int64, result pipeline.Result) error {
	key := Key(clientID, normalizedQuery, version)

	entry := memoryEntry{result: result}
	if m.ttl > 0 {
		entry.expiresAt = time.Now().Add(m.ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()

	return nil
}

// Len reports the number of live entries, for metrics.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
