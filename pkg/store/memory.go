package store

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in a process-local map.
// Contents are lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Load returns a copy of the stored snapshot.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	rec, ok := m.records[sessionID]
	if !ok {
		return nil, nil
	}
	return cloneBytes(rec.State), nil
}

// Save stores a copy of rec.
func (m *MemoryStore) Save(ctx context.Context, rec Record) error {
	if rec.SessionID == "" {
		return ErrEmptySessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	rec.State = cloneBytes(rec.State)
	m.records[rec.SessionID] = rec
	return nil
}

// Record returns the full stored record for sessionID.
// Intended for tests and inspection.
func (m *MemoryStore) Record(sessionID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[sessionID]
	if ok {
		rec.State = cloneBytes(rec.State)
	}
	return rec, ok
}

// Count returns the number of stored sessions.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close rejects further loads and saves. Records stay readable through
// Record and Count.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
