package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/randalmurphal/vaultsync/pkg/vaultsync/record"
)

// MemoryStore is an in-memory record store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[string]record.Record
	checkpoint time.Time
	closed     bool
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]record.Record),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, rec record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Copy to avoid retaining the caller's payload slice
	m.records[rec.ID] = rec.Clone()
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return record.Record{}, ErrStoreClosed
	}

	rec, ok := m.records[id]
	if !ok {
		return record.Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// GetAll implements Store.
func (m *MemoryStore) GetAll(_ context.Context) ([]record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	return m.collect(func(record.Record) bool { return true }), nil
}

// GetByStatus implements Store.
func (m *MemoryStore) GetByStatus(_ context.Context, status record.SyncStatus) ([]record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	return m.collect(func(r record.Record) bool { return r.Status == status }), nil
}

// GetModifiedSince implements Store.
func (m *MemoryStore) GetModifiedSince(_ context.Context, t time.Time) ([]record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	return m.collect(func(r record.Record) bool { return r.LastModified.After(t) }), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.records, id)
	return nil
}

// Checkpoint implements Store.
func (m *MemoryStore) Checkpoint(_ context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return time.Time{}, ErrStoreClosed
	}
	return m.checkpoint, nil
}

// SetCheckpoint implements Store.
func (m *MemoryStore) SetCheckpoint(_ context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.checkpoint = t
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// collect returns clones of records matching keep, sorted by id.
// Callers must hold at least the read lock.
func (m *MemoryStore) collect(keep func(record.Record) bool) []record.Record {
	out := make([]record.Record, 0, len(m.records))
	for _, rec := range m.records {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
