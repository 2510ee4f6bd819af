// Package store provides durable keyed persistence for records and the
// sync checkpoint.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/vaultsync/pkg/vaultsync/record"
)

// Store persists records and the singleton sync checkpoint.
// Implementations must be safe for concurrent use.
//
// Each single-record write is atomic. There is no cross-record
// transactional guarantee: callers handle each item's outcome
// individually.
type Store interface {
	// Put inserts or overwrites a record.
	Put(ctx context.Context, rec record.Record) error

	// Get retrieves a record by id.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (record.Record, error)

	// GetAll returns every stored record.
	// Returns empty slice (not error) for an empty store.
	GetAll(ctx context.Context) ([]record.Record, error)

	// GetByStatus returns records with the given sync status.
	GetByStatus(ctx context.Context, status record.SyncStatus) ([]record.Record, error)

	// GetModifiedSince returns records modified strictly after t.
	GetModifiedSince(ctx context.Context, t time.Time) ([]record.Record, error)

	// Delete removes a record.
	// Returns nil if the record doesn't exist.
	Delete(ctx context.Context, id string) error

	// Checkpoint returns the time of the last successful reconciliation
	// pass, or the zero time if no pass has ever completed.
	Checkpoint(ctx context.Context) (time.Time, error)

	// SetCheckpoint records the time of a completed reconciliation pass.
	SetCheckpoint(ctx context.Context, t time.Time) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")
)

// checkpointKey is the fixed name of the singleton checkpoint slot.
const checkpointKey = "checkpoint"
