package persist

import (
	"context"
	"maps"
	"sync"
	"time"
)

type memoryEntry struct {
	fields    map[string]string
	expiresAt time.Time
}

// Memory is a process-local Store, used in development and tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Save(_ context.Context, ns string, fields map[string]string, ttl time.Duration) error {
	entry := memoryEntry{fields: maps.Clone(fields)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.records[ns] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, ns string) (map[string]string, error) {
	m.mu.RLock()
	entry, ok := m.records[ns]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		delete(m.records, ns)
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	return maps.Clone(entry.fields), nil
}

func (m *Memory) Remove(_ context.Context, ns string) error {
	m.mu.Lock()
	delete(m.records, ns)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored records, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
