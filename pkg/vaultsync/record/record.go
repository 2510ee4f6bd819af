// Package record defines the synchronized record data model.
package record

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks a record's relationship to the remote store.
type SyncStatus string

// Sync status constants. Every stored record has exactly one status.
const (
	// StatusSynced means the record matches the last acknowledged
	// remote state.
	StatusSynced SyncStatus = "synced"

	// StatusPending means a local mutation has not been confirmed by
	// the remote store.
	StatusPending SyncStatus = "pending"

	// StatusConflict is reserved for future use. No code path
	// currently produces it; the store round-trips it unchanged.
	StatusConflict SyncStatus = "conflict"
)

// Valid reports whether s is a known sync status.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusSynced, StatusPending, StatusConflict:
		return true
	}
	return false
}

// TempIDPrefix marks records created locally that the remote store has
// not yet acknowledged. A temporary id is replaced by the server-issued
// id on the first successful push.
const TempIDPrefix = "temp_"

// NewTempID returns a fresh temporary record id.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id was issued locally and is still awaiting
// remote acknowledgement.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Record is one synchronized entry. The payload is opaque to the sync
// engine; the domain layer owns its shape.
type Record struct {
	// ID is unique within the store. Locally created records carry a
	// temporary id until reconciled.
	ID string `json:"id"`

	// Payload is the opaque domain data.
	Payload json.RawMessage `json:"payload"`

	// LastModified is the time of the most recent local mutation.
	LastModified time.Time `json:"last_modified"`

	// Status is the record's sync status.
	Status SyncStatus `json:"status"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	clone := r
	if r.Payload != nil {
		clone.Payload = make(json.RawMessage, len(r.Payload))
		copy(clone.Payload, r.Payload)
	}
	return clone
}

// Equal reports whether two records carry the same id, payload,
// modification time, and status. Used by the pull path to avoid
// redundant writes.
func (r Record) Equal(other Record) bool {
	return r.ID == other.ID &&
		r.Status == other.Status &&
		r.LastModified.Equal(other.LastModified) &&
		string(r.Payload) == string(other.Payload)
}

// NewPending creates a locally originated record with a temporary id
// and Pending status.
func NewPending(payload json.RawMessage, now time.Time) Record {
	return Record{
		ID:           NewTempID(),
		Payload:      payload,
		LastModified: now,
		Status:       StatusPending,
	}
}
