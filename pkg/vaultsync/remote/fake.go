package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/randalmurphal/vaultsync/pkg/vaultsync/record"
)

// FakeGateway is an in-memory Gateway for tests and examples.
// Server-issued ids take the form "srv-<n>". Failure hooks let tests
// inject per-call errors.
type FakeGateway struct {
	mu      sync.Mutex
	records map[string]record.Record
	nextID  int
	clock   func() time.Time

	// CreateErr, when set, is consulted before each CreateRecord;
	// a non-nil return fails the call.
	CreateErr func(payload json.RawMessage) error

	// UpdateErr, when set, is consulted before each UpdateRecord.
	UpdateErr func(id string) error

	// ListErr, when set, is consulted before each ListRecords.
	ListErr func() error

	// Calls counts invocations by method name.
	Calls map[string]int
}

// NewFakeGateway creates an empty fake gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		records: make(map[string]record.Record),
		clock:   time.Now,
		Calls:   make(map[string]int),
	}
}

// Seed inserts a record directly into the fake's remote state.
func (g *FakeGateway) Seed(rec record.Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[rec.ID] = rec.Clone()
}

// CreateRecord implements Gateway.
func (g *FakeGateway) CreateRecord(_ context.Context, payload json.RawMessage) (record.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["CreateRecord"]++

	if g.CreateErr != nil {
		if err := g.CreateErr(payload); err != nil {
			return record.Record{}, err
		}
	}

	g.nextID++
	rec := record.Record{
		ID:           fmt.Sprintf("srv-%d", g.nextID),
		Payload:      append(json.RawMessage(nil), payload...),
		LastModified: g.clock(),
		Status:       record.StatusSynced,
	}
	g.records[rec.ID] = rec
	return rec.Clone(), nil
}

// UpdateRecord implements Gateway.
func (g *FakeGateway) UpdateRecord(_ context.Context, id string, payload json.RawMessage) (record.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["UpdateRecord"]++

	if g.UpdateErr != nil {
		if err := g.UpdateErr(id); err != nil {
			return record.Record{}, err
		}
	}

	rec, ok := g.records[id]
	if !ok {
		return record.Record{}, &notFoundError{id: id}
	}

	rec.Payload = append(json.RawMessage(nil), payload...)
	rec.LastModified = g.clock()
	g.records[id] = rec
	return rec.Clone(), nil
}

// ListRecords implements Gateway.
func (g *FakeGateway) ListRecords(_ context.Context) ([]record.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["ListRecords"]++

	if g.ListErr != nil {
		if err := g.ListErr(); err != nil {
			return nil, err
		}
	}

	out := make([]record.Record, 0, len(g.records))
	for _, rec := range g.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// DeleteRecord implements Gateway.
func (g *FakeGateway) DeleteRecord(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["DeleteRecord"]++

	if _, ok := g.records[id]; !ok {
		return false, nil
	}
	delete(g.records, id)
	return true, nil
}

// Record returns a copy of the fake's remote record, if present.
func (g *FakeGateway) Record(id string) (record.Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[id]
	if !ok {
		return record.Record{}, false
	}
	return rec.Clone(), true
}

// Count returns the number of remote records.
func (g *FakeGateway) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

type notFoundError struct {
	id string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("remote record %s not found", e.id)
}
