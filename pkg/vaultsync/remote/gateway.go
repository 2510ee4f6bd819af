// Package remote provides the client for the authoritative record
// store.
package remote

import (
	"context"
	"encoding/json"

	"github.com/randalmurphal/vaultsync/pkg/vaultsync/record"
)

// Gateway is the CRUD contract of the authoritative store.
//
// All calls are request/response; authentication material is attached
// by an injected credential source and is opaque to the sync engine.
// Implementations return errors classifiable by the errors package so
// the retry layer can tell transient failures from terminal ones.
type Gateway interface {
	// CreateRecord stores a new record and returns it under its
	// server-issued id.
	CreateRecord(ctx context.Context, payload json.RawMessage) (record.Record, error)

	// UpdateRecord replaces the payload of an existing record.
	UpdateRecord(ctx context.Context, id string, payload json.RawMessage) (record.Record, error)

	// ListRecords returns the full remote record set.
	ListRecords(ctx context.Context) ([]record.Record, error)

	// DeleteRecord removes a record, reporting whether it existed.
	DeleteRecord(ctx context.Context, id string) (bool, error)
}

// CredentialSource attaches authentication material to outgoing
// requests. Owned by an external auth collaborator.
type CredentialSource interface {
	// Apply decorates the request, e.g. with an Authorization header.
	Apply(ctx context.Context, set func(key, value string)) error
}

// wireRecord is the gateway's JSON representation of a record.
// Sync status is local-only state and never crosses the wire.
type wireRecord struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt string          `json:"updated_at"`
}
