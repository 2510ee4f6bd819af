package vaultsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/vaultsync/pkg/vaultsync/cache"
	verrors "github.com/randalmurphal/vaultsync/pkg/vaultsync/errors"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/netmon"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/observability"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/record"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/remote"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/retry"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/store"
)

// Engine reconciles a local store against a remote gateway.
//
// All collaborators are injected at construction; the engine holds no
// process-wide state. It is safe for concurrent use: Sync is
// single-flight, and the read/write surface may be called from any
// goroutine.
type Engine struct {
	store   store.Store
	gateway remote.Gateway
	monitor *netmon.Monitor
	policy  retry.Policy

	cache    *cache.Cache
	cacheTTL time.Duration

	clock   func() time.Time
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	tracing bool

	onPassStart func(passID string)
	onPassEnd   func(passID string, report Report, err error)

	// Two-state pass machine: running is true between begin and end.
	mu      sync.Mutex
	running bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMonitor attaches a network monitor. The engine installs itself
// as the monitor's trigger, so an offline-to-online transition starts
// a background pass. While the monitor reports offline, Sync
// short-circuits.
func WithMonitor(m *netmon.Monitor) Option {
	return func(e *Engine) {
		e.monitor = m
	}
}

// WithRetryPolicy overrides the retry policy for remote calls.
// Default: retry.DefaultPolicy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithCache attaches a response cache for remote list reads with the
// given entry lifetime. Without a cache, CachedList always hits the
// gateway.
func WithCache(c *cache.Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// WithLogger sets the structured logger. Nil disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock injects a time source for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithMetrics sets the metrics recorder.
// Default: observability.NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracing enables OTel spans for passes and remote calls.
func WithTracing(enabled bool) Option {
	return func(e *Engine) {
		e.tracing = enabled
		if enabled {
			e.spans = observability.NewSpanManager()
		}
	}
}

// WithPassHooks sets callbacks fired at pass boundaries. Hooks run on
// the syncing goroutine; keep them fast.
func WithPassHooks(onStart func(passID string), onEnd func(passID string, report Report, err error)) Option {
	return func(e *Engine) {
		e.onPassStart = onStart
		e.onPassEnd = onEnd
	}
}

// New creates an engine over the given store and gateway.
func New(st store.Store, gw remote.Gateway, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		gateway: gw,
		policy:  retry.DefaultPolicy,
		clock:   time.Now,
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.monitor != nil {
		e.monitor.SetTrigger(func() {
			e.TriggerSync(context.Background())
		})
	}
	return e
}

// Sync runs one reconciliation pass.
//
// At most one pass runs at a time. A call arriving while a pass is in
// flight returns immediately with Report.Skipped set; it does not
// queue a second pass. While offline, the pass is a no-op with
// Report.Offline set.
//
// Per-record push failures are collected in the report, not returned
// as an error. A non-nil error means the local store failed and the
// pass was aborted; the checkpoint is not advanced.
func (e *Engine) Sync(ctx context.Context) (Report, error) {
	if !e.begin() {
		observability.LogPassSkipped(e.logger, "pass already running")
		return Report{Skipped: true}, nil
	}
	defer e.end()

	if !e.online() {
		observability.LogPassSkipped(e.logger, "offline")
		return Report{Offline: true}, nil
	}

	passID := newPassID()
	elapsed := observability.TimedOperation()
	start := time.Now()

	if e.onPassStart != nil {
		e.onPassStart(passID)
	}

	passCtx := ctx
	var span spanHandle
	if e.tracing {
		passCtx, span.span = e.spans.StartPassSpan(ctx, passID)
		span.active = true
	}

	report, err := e.runPass(passCtx, passID)
	report.Duration = time.Since(start)

	if span.active {
		e.spans.EndSpanWithError(span.span, err)
	}
	e.metrics.RecordPass(ctx, err == nil, report.Duration)

	if err != nil {
		observability.LogPassError(e.logger, passID, err, elapsed())
	} else {
		observability.LogPassComplete(e.logger, passID, elapsed(), report.Pulled, report.Pushed, report.Failed)
	}
	if e.onPassEnd != nil {
		e.onPassEnd(passID, report, err)
	}
	return report, err
}

// TriggerSync starts a best-effort pass on a new goroutine without
// blocking the caller. Failures are logged, not returned; the next
// pass retries whatever is still pending.
func (e *Engine) TriggerSync(ctx context.Context) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := e.Sync(bg); err != nil && e.logger != nil {
			e.logger.Warn("background sync failed", slog.String("error", err.Error()))
		}
	}()
}

// Create adds a record. When online it replays directly against the
// remote store and persists the result as Synced under its
// server-issued id. While offline, or when the replay fails, the
// record is kept locally as Pending under a temporary id for the next
// pass to push. The record is never silently dropped.
func (e *Engine) Create(ctx context.Context, payload json.RawMessage) (record.Record, error) {
	if e.online() {
		res := wrapCall(ctx, e, "create", "", func(ctx context.Context) (record.Record, error) {
			return e.gateway.CreateRecord(ctx, payload)
		})
		if res.Err == nil {
			created := res.Value
			if err := e.store.Put(ctx, created); err != nil {
				return record.Record{}, verrors.Store(err, "persist created record")
			}
			e.invalidateReads()
			return created, nil
		}
		if e.logger != nil {
			e.logger.Warn("direct create failed, holding record locally",
				slog.String("error", res.Err.Error()))
		}
	}

	rec := record.NewPending(payload, e.clock())
	if err := e.store.Put(ctx, rec); err != nil {
		return record.Record{}, verrors.Store(err, "persist pending record")
	}
	e.invalidateReads()
	return rec, nil
}

// Update replaces a record's payload locally and marks it Pending.
// The change reaches the remote store on the next pass; when online,
// one is triggered immediately in the background.
func (e *Engine) Update(ctx context.Context, id string, payload json.RawMessage) (record.Record, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return record.Record{}, err
		}
		return record.Record{}, verrors.Store(err, "load record")
	}

	rec.Payload = payload
	rec.LastModified = e.clock()
	rec.Status = record.StatusPending
	if err := e.store.Put(ctx, rec); err != nil {
		return record.Record{}, verrors.Store(err, "persist updated record")
	}
	e.invalidateReads()

	if e.online() {
		e.TriggerSync(ctx)
	}
	return rec, nil
}

// Delete removes a record. Records still under a temporary id exist
// only locally and are removed directly. Server-issued ids are deleted
// remotely first; that requires connectivity.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if !record.IsTempID(id) {
		if !e.online() {
			return fmt.Errorf("delete %s: %w", id, ErrOffline)
		}
		res := wrapCall(ctx, e, "delete", id, func(ctx context.Context) (bool, error) {
			return e.gateway.DeleteRecord(ctx, id)
		})
		if res.Err != nil {
			return res.Err
		}
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return verrors.Store(err, "delete record")
	}
	e.invalidateReads()
	return nil
}

// Records returns the local view of all records. This is the offline
// read path: it never touches the network synchronously, but when
// online it triggers an opportunistic background pass so the local
// view converges.
func (e *Engine) Records(ctx context.Context) ([]record.Record, error) {
	recs, err := e.store.GetAll(ctx)
	if err != nil {
		return nil, verrors.Store(err, "read records")
	}
	if e.online() {
		e.TriggerSync(ctx)
	}
	return recs, nil
}

// Record returns one record from the local view.
func (e *Engine) Record(ctx context.Context, id string) (record.Record, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return record.Record{}, err
		}
		return record.Record{}, verrors.Store(err, "read record")
	}
	return rec, nil
}

// Pending returns the records awaiting replay.
func (e *Engine) Pending(ctx context.Context) ([]record.Record, error) {
	recs, err := e.store.GetByStatus(ctx, record.StatusPending)
	if err != nil {
		return nil, verrors.Store(err, "read pending records")
	}
	return recs, nil
}

// Checkpoint returns the time of the last completed pass, or the zero
// time if none has completed.
func (e *Engine) Checkpoint(ctx context.Context) (time.Time, error) {
	t, err := e.store.Checkpoint(ctx)
	if err != nil {
		return time.Time{}, verrors.Store(err, "read checkpoint")
	}
	return t, nil
}

// begin claims the pass slot. Returns false when a pass is already
// running.
func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	e.running = true
	return true
}

func (e *Engine) end() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// online reports connectivity. Without a monitor the engine assumes
// online and lets the retry layer absorb failures.
func (e *Engine) online() bool {
	if e.monitor == nil {
		return true
	}
	return e.monitor.Online()
}

func newPassID() string {
	return "pass-" + uuid.New().String()[:8]
}
