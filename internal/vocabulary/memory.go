package vocabulary

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Used when persistence is
// disabled and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (map[string][]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return groupEntries(m.entries), nil
}

func (m *MemoryStore) Append(_ context.Context, field, label string, code int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.Field != field {
			continue
		}
		if e.Label == label && e.Code == code {
			return nil
		}
		if e.Label == label || e.Code == code {
			return &ConflictError{Field: field, Label: label, Code: code}
		}
	}
	m.entries = append(m.entries, Entry{Field: field, Label: label, Code: code, CreatedAt: time.Now()})
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
