package vaultsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	verrors "github.com/randalmurphal/vaultsync/pkg/vaultsync/errors"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/observability"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/record"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/retry"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/store"
)

// ErrOffline is returned by operations that need connectivity when the
// monitor reports the link down.
var ErrOffline = errors.New("offline")

// spanHandle carries an optional in-flight span so the no-tracing path
// stays allocation-free.
type spanHandle struct {
	span   trace.Span
	active bool
}

// runPass executes one reconciliation pass. Direction depends on local
// state: pending mutations are pushed, otherwise the remote view is
// pulled. The checkpoint advances only when the pass completes without
// a local store failure.
func (e *Engine) runPass(ctx context.Context, passID string) (Report, error) {
	logger := observability.EnrichLogger(e.logger, passID)

	pending, err := e.store.GetByStatus(ctx, record.StatusPending)
	if err != nil {
		return Report{}, verrors.Store(err, "load pending records")
	}
	observability.LogPassStart(e.logger, passID, len(pending))

	var report Report
	if len(pending) > 0 {
		report, err = e.push(ctx, logger, pending)
	} else {
		report, err = e.pull(ctx, logger)
	}
	if err != nil {
		return report, err
	}

	at := e.clock()
	if err := e.store.SetCheckpoint(ctx, at); err != nil {
		return report, verrors.Store(err, "advance checkpoint")
	}
	report.CheckpointAt = at
	observability.LogCheckpoint(logger, passID, at)
	return report, nil
}

// pull fetches the full remote record set and folds it into the local
// store. Records with unconfirmed local mutations shadow their remote
// counterparts; records already identical locally are not rewritten,
// so repeating a pull against unchanged state writes nothing.
func (e *Engine) pull(ctx context.Context, logger *slog.Logger) (Report, error) {
	res := wrapCall(ctx, e, "list", "", func(ctx context.Context) ([]record.Record, error) {
		return e.gateway.ListRecords(ctx)
	})
	if res.Err != nil {
		return Report{}, fmt.Errorf("pull remote records: %w", res.Err)
	}

	var report Report
	for _, remoteRec := range res.Value {
		local, err := e.store.Get(ctx, remoteRec.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// fall through to the write below
		case err != nil:
			return report, verrors.Store(err, "load local record")
		case local.Status != record.StatusSynced:
			// Local mutation not yet confirmed; keep it.
			continue
		case local.Equal(remoteRec):
			continue
		}

		if err := e.store.Put(ctx, remoteRec); err != nil {
			return report, verrors.Store(err, "write pulled record")
		}
		report.Pulled++
	}

	if e.cache != nil && report.Pulled > 0 {
		e.invalidateReads()
	}
	return report, nil
}

// push replays pending records one at a time. Temporary-id records are
// created remotely and rebound to their server-issued id; server-id
// records are updated in place. A failed record stays Pending and is
// reported, never aborting the rest of the batch. Only a local store
// failure aborts the pass.
func (e *Engine) push(ctx context.Context, logger *slog.Logger, pending []record.Record) (Report, error) {
	var report Report
	for _, rec := range pending {
		var err error
		if record.IsTempID(rec.ID) {
			err = e.pushCreate(ctx, logger, rec)
		} else {
			err = e.pushUpdate(ctx, logger, rec)
		}

		switch {
		case err == nil:
			report.Pushed++
		case verrors.IsFatal(err):
			report.Failed++
			report.Failures = append(report.Failures, PushFailure{RecordID: rec.ID, Err: err})
			return report, err
		default:
			report.Failed++
			report.Failures = append(report.Failures, PushFailure{RecordID: rec.ID, Err: err})
			observability.LogRecordPushError(logger, rec.ID, err)
		}
	}

	if report.Pushed > 0 {
		e.invalidateReads()
	}
	return report, nil
}

// pushCreate replays a locally created record and rebinds it from its
// temporary id to the server-issued one. The temporary row is removed
// only after the remote store has acknowledged the create, so a crash
// between the two writes leaves a duplicate rather than a lost record.
func (e *Engine) pushCreate(ctx context.Context, logger *slog.Logger, rec record.Record) error {
	res := wrapCall(ctx, e, "create", rec.ID, func(ctx context.Context) (record.Record, error) {
		return e.gateway.CreateRecord(ctx, rec.Payload)
	})
	e.metrics.RecordPush(ctx, "create", res.Duration, res.Err)
	if res.Err != nil {
		return res.Err
	}

	created := res.Value
	if err := e.store.Delete(ctx, rec.ID); err != nil {
		return verrors.Store(err, "remove temporary record")
	}
	if err := e.store.Put(ctx, created); err != nil {
		return verrors.Store(err, "write created record")
	}
	observability.LogRecordPushed(logger, rec.ID, created.ID)
	return nil
}

// pushUpdate replays a modified record under its existing server id.
func (e *Engine) pushUpdate(ctx context.Context, logger *slog.Logger, rec record.Record) error {
	res := wrapCall(ctx, e, "update", rec.ID, func(ctx context.Context) (record.Record, error) {
		return e.gateway.UpdateRecord(ctx, rec.ID, rec.Payload)
	})
	e.metrics.RecordPush(ctx, "update", res.Duration, res.Err)
	if res.Err != nil {
		return res.Err
	}

	if err := e.store.Put(ctx, res.Value); err != nil {
		return verrors.Store(err, "write updated record")
	}
	observability.LogRecordPushed(logger, rec.ID, res.Value.ID)
	return nil
}

// wrapCall runs one remote operation through the retry policy, with an
// optional call span and an attempt-count metric.
func wrapCall[T any](ctx context.Context, e *Engine, operation, recordID string, fn func(context.Context) (T, error)) retry.Result[T] {
	callCtx := ctx
	var span spanHandle
	if e.tracing {
		callCtx, span.span = e.spans.StartCallSpan(ctx, operation, recordID)
		span.active = true
	}

	res := retry.Do(callCtx, e.policy, fn)

	if span.active {
		e.spans.EndSpanWithError(span.span, res.Err)
	}
	e.metrics.RecordRetries(ctx, operation, res.Attempts)
	return res
}
