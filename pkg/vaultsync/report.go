package vaultsync

import (
	"fmt"
	"time"
)

// PushFailure records one record that could not be replayed to the
// remote store during a pass. The record stays Pending locally.
type PushFailure struct {
	RecordID string
	Err      error
}

func (f PushFailure) String() string {
	return fmt.Sprintf("%s: %v", f.RecordID, f.Err)
}

// Report summarizes the outcome of a reconciliation pass.
type Report struct {
	// Skipped is true when the call coalesced into a pass that was
	// already in flight and did no work of its own.
	Skipped bool

	// Offline is true when the pass was short-circuited because the
	// network monitor reported the link down.
	Offline bool

	// Pulled counts records written locally from the remote view.
	Pulled int

	// Pushed counts Pending records successfully replayed.
	Pushed int

	// Failed counts Pending records whose replay failed after
	// retries. Failures carries the per-record detail.
	Failed   int
	Failures []PushFailure

	// CheckpointAt is the new last-sync checkpoint, zero when the
	// pass did not complete.
	CheckpointAt time.Time

	Duration time.Duration
}
