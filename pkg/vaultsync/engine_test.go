package vaultsync_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/vaultsync/pkg/vaultsync"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/cache"
	verrors "github.com/randalmurphal/vaultsync/pkg/vaultsync/errors"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/netmon"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/record"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/remote"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/retry"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/store"
)

// fastPolicy retries without real backoff so failure tests run quickly.
func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      4 * time.Millisecond,
		BackoffFactor: 2.0,
		SleepFunc:     func(context.Context, time.Duration) error { return nil },
	}
}

// countingStore wraps a Store and counts record writes.
type countingStore struct {
	store.Store

	mu          sync.Mutex
	puts        int
	deletes     int
	checkpoints int
}

func (s *countingStore) Put(ctx context.Context, rec record.Record) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.Store.Put(ctx, rec)
}

func (s *countingStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.Store.Delete(ctx, id)
}

func (s *countingStore) SetCheckpoint(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	s.checkpoints++
	s.mu.Unlock()
	return s.Store.SetCheckpoint(ctx, t)
}

func (s *countingStore) writes() (puts, deletes, checkpoints int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts, s.deletes, s.checkpoints
}

func (s *countingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts, s.deletes, s.checkpoints = 0, 0, 0
}

// failingStore wraps a Store and fails Put with a fixed error.
type failingStore struct {
	store.Store
	putErr error
}

func (s *failingStore) Put(ctx context.Context, rec record.Record) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.Store.Put(ctx, rec)
}

func seedSynced(t *testing.T, gw *remote.FakeGateway, id, payload string) record.Record {
	t.Helper()
	rec := record.Record{
		ID:           id,
		Payload:      json.RawMessage(payload),
		LastModified: time.Now().UTC().Truncate(time.Millisecond),
		Status:       record.StatusSynced,
	}
	gw.Seed(rec)
	return rec
}

func TestSyncOfflineIsNoOp(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()
	monitor := netmon.New() // starts offline

	engine := vaultsync.New(st, gw,
		vaultsync.WithMonitor(monitor),
		vaultsync.WithRetryPolicy(fastPolicy()),
	)

	report, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Offline)
	assert.Empty(t, gw.Calls)

	cp, err := engine.Checkpoint(context.Background())
	require.NoError(t, err)
	assert.True(t, cp.IsZero())
}

func TestOfflineCreateThenReconnect(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()
	monitor := netmon.New()

	engine := vaultsync.New(st, gw,
		vaultsync.WithMonitor(monitor),
		vaultsync.WithRetryPolicy(fastPolicy()),
	)

	rec, err := engine.Create(context.Background(), json.RawMessage(`{"note":"offline"}`))
	require.NoError(t, err)
	assert.True(t, record.IsTempID(rec.ID))
	assert.Equal(t, record.StatusPending, rec.Status)
	assert.Equal(t, 0, gw.Count())

	// Reconnecting fires the trigger, which runs a background pass.
	monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		recs, err := st.GetAll(context.Background())
		if err != nil || len(recs) != 1 {
			return false
		}
		return recs[0].ID == "srv-1" && recs[0].Status == record.StatusSynced
	}, 2*time.Second, 10*time.Millisecond)

	_, err = st.Get(context.Background(), rec.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, gw.Count())
}

func TestSyncPushRenamesTemporaryID(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()

	pending := record.NewPending(json.RawMessage(`{"n":1}`), time.Now())
	require.NoError(t, st.Put(context.Background(), pending))

	engine := vaultsync.New(st, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	report, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pushed)
	assert.Zero(t, report.Failed)
	assert.False(t, report.CheckpointAt.IsZero())

	_, err = st.Get(context.Background(), pending.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := st.Get(context.Background(), "srv-1")
	require.NoError(t, err)
	assert.Equal(t, record.StatusSynced, got.Status)
	assert.JSONEq(t, `{"n":1}`, string(got.Payload))
}

func TestSyncPushUpdatesServerRecord(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()
	seedSynced(t, gw, "srv-1", `{"v":1}`)

	edited := record.Record{
		ID:           "srv-1",
		Payload:      json.RawMessage(`{"v":2}`),
		LastModified: time.Now(),
		Status:       record.StatusPending,
	}
	require.NoError(t, st.Put(context.Background(), edited))

	engine := vaultsync.New(st, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	report, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pushed)

	got, err := st.Get(context.Background(), "srv-1")
	require.NoError(t, err)
	assert.Equal(t, record.StatusSynced, got.Status)
	assert.JSONEq(t, `{"v":2}`, string(got.Payload))

	remoteRec, ok := gw.Record("srv-1")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(remoteRec.Payload))
}

func TestSyncPullFetchesRemoteState(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()
	seedSynced(t, gw, "srv-1", `{"v":1}`)
	seedSynced(t, gw, "srv-2", `{"v":2}`)

	engine := vaultsync.New(st, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	report, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pulled)
	assert.False(t, report.CheckpointAt.IsZero())

	recs, err := st.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, record.StatusSynced, rec.Status)
	}
}

func TestSyncIdempotence(t *testing.T) {
	mem := store.NewMemoryStore()
	counted := &countingStore{Store: mem}
	gw := remote.NewFakeGateway()
	seedSynced(t, gw, "srv-1", `{"v":1}`)

	engine := vaultsync.New(counted, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	first, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Pulled)

	counted.reset()

	second, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Pulled)
	assert.Zero(t, second.Pushed)

	puts, deletes, checkpoints := counted.writes()
	assert.Zero(t, puts, "second pass must not rewrite records")
	assert.Zero(t, deletes)
	assert.Equal(t, 1, checkpoints, "second pass refreshes only the checkpoint")
}

func TestSyncSingleFlight(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()

	entered := make(chan struct{})
	release := make(chan struct{})
	gw.ListErr = func() error {
		close(entered)
		<-release
		return nil
	}

	engine := vaultsync.New(st, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	type outcome struct {
		report vaultsync.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := engine.Sync(context.Background())
		done <- outcome{report, err}
	}()

	<-entered

	// Second call while the first is mid-pass coalesces into a no-op.
	report, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	close(release)
	first := <-done
	require.NoError(t, first.err)
	assert.False(t, first.report.Skipped)

	assert.Equal(t, 1, gw.Calls["ListRecords"])
}

func TestSyncPartialFailureIsolation(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()

	ctx := context.Background()
	var poisoned record.Record
	for i, payload := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		rec := record.NewPending(json.RawMessage(payload), time.Now())
		require.NoError(t, st.Put(ctx, rec))
		if i == 1 {
			poisoned = rec
		}
	}

	gw.CreateErr = func(payload json.RawMessage) error {
		if string(payload) == `{"n":2}` {
			return verrors.Client(errors.New("payload rejected"), "create")
		}
		return nil
	}

	engine := vaultsync.New(st, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	report, err := engine.Sync(ctx)
	require.NoError(t, err, "per-record failures never fail the pass")
	assert.Equal(t, 2, report.Pushed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, poisoned.ID, report.Failures[0].RecordID)

	// The failed record is left Pending, not discarded.
	got, err := st.Get(ctx, poisoned.ID)
	require.NoError(t, err)
	assert.Equal(t, record.StatusPending, got.Status)

	synced, err := st.GetByStatus(ctx, record.StatusSynced)
	require.NoError(t, err)
	assert.Len(t, synced, 2)

	// The pass still completed, so the checkpoint advanced.
	assert.False(t, report.CheckpointAt.IsZero())
}

func TestSyncTerminalErrorSkipsRetries(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()

	pending := record.NewPending(json.RawMessage(`{"n":1}`), time.Now())
	require.NoError(t, st.Put(context.Background(), pending))

	gw.CreateErr = func(json.RawMessage) error {
		return verrors.Client(errors.New("bad request"), "create")
	}

	engine := vaultsync.New(st, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	report, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, gw.Calls["CreateRecord"], "terminal errors are not retried")
}

func TestSyncRetriesTransientPushFailure(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()

	pending := record.NewPending(json.RawMessage(`{"n":1}`), time.Now())
	require.NoError(t, st.Put(context.Background(), pending))

	var calls int
	gw.CreateErr = func(json.RawMessage) error {
		calls++
		if calls < 3 {
			return verrors.Transient(errors.New("connection reset"), "create")
		}
		return nil
	}

	engine := vaultsync.New(st, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	report, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pushed)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 3, gw.Calls["CreateRecord"])
}

func TestSyncStoreFailureIsFatal(t *testing.T) {
	mem := store.NewMemoryStore()
	broken := &failingStore{Store: mem, putErr: errors.New("disk full")}
	gw := remote.NewFakeGateway()
	seedSynced(t, gw, "srv-1", `{"v":1}`)

	engine := vaultsync.New(broken, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	_, err := engine.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, verrors.IsFatal(err))

	cp, cpErr := mem.Checkpoint(context.Background())
	require.NoError(t, cpErr)
	assert.True(t, cp.IsZero(), "aborted pass must not advance the checkpoint")
}

func TestRecordsTriggersBackgroundSync(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()
	seedSynced(t, gw, "srv-1", `{"v":1}`)

	engine := vaultsync.New(st, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	recs, err := engine.Records(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs, "read path serves the local view without waiting")

	require.Eventually(t, func() bool {
		recs, err := st.GetAll(context.Background())
		return err == nil && len(recs) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdateMarksPending(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()
	monitor := netmon.New() // offline, so no background push interferes

	synced := record.Record{
		ID:           "srv-1",
		Payload:      json.RawMessage(`{"v":1}`),
		LastModified: time.Now(),
		Status:       record.StatusSynced,
	}
	require.NoError(t, st.Put(context.Background(), synced))

	engine := vaultsync.New(st, gw,
		vaultsync.WithMonitor(monitor),
		vaultsync.WithRetryPolicy(fastPolicy()),
	)

	got, err := engine.Update(context.Background(), "srv-1", json.RawMessage(`{"v":2}`))
	require.NoError(t, err)
	assert.Equal(t, record.StatusPending, got.Status)
	assert.JSONEq(t, `{"v":2}`, string(got.Payload))

	_, err = engine.Update(context.Background(), "missing", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteOfflineServerRecord(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()
	monitor := netmon.New()

	synced := record.Record{
		ID:      "srv-1",
		Payload: json.RawMessage(`{}`),
		Status:  record.StatusSynced,
	}
	require.NoError(t, st.Put(context.Background(), synced))

	engine := vaultsync.New(st, gw,
		vaultsync.WithMonitor(monitor),
		vaultsync.WithRetryPolicy(fastPolicy()),
	)

	err := engine.Delete(context.Background(), "srv-1")
	assert.ErrorIs(t, err, vaultsync.ErrOffline)

	// A record the remote store never saw can go away offline.
	local, err := engine.Create(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, engine.Delete(context.Background(), local.ID))

	_, err = st.Get(context.Background(), local.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateOnlineReplaysDirectly(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()

	engine := vaultsync.New(st, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	rec, err := engine.Create(context.Background(), json.RawMessage(`{"v":1}`))
	require.NoError(t, err)
	assert.Equal(t, "srv-1", rec.ID)
	assert.Equal(t, record.StatusSynced, rec.Status)
	assert.Equal(t, 1, gw.Count())

	got, err := st.Get(context.Background(), "srv-1")
	require.NoError(t, err)
	assert.Equal(t, record.StatusSynced, got.Status)
}

func TestCreateOnlineFallsBackToPending(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()
	gw.CreateErr = func(json.RawMessage) error {
		return verrors.Client(errors.New("quota exceeded"), "create")
	}

	engine := vaultsync.New(st, gw, vaultsync.WithRetryPolicy(fastPolicy()))

	rec, err := engine.Create(context.Background(), json.RawMessage(`{"v":1}`))
	require.NoError(t, err, "a failed replay holds the record locally instead of erroring")
	assert.True(t, record.IsTempID(rec.ID))
	assert.Equal(t, record.StatusPending, rec.Status)
}

func TestCachedListServesFromCache(t *testing.T) {
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()
	seedSynced(t, gw, "srv-1", `{"v":1}`)

	engine := vaultsync.New(st, gw,
		vaultsync.WithRetryPolicy(fastPolicy()),
		vaultsync.WithCache(cache.New(), time.Minute),
	)

	ctx := context.Background()

	first, err := engine.CachedList(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, gw.Calls["ListRecords"])

	second, err := engine.CachedList(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, gw.Calls["ListRecords"], "fresh cache entry shortcuts the gateway")

	// A write invalidates cached reads.
	_, err = engine.Create(ctx, json.RawMessage(`{"v":2}`))
	require.NoError(t, err)

	third, err := engine.CachedList(ctx)
	require.NoError(t, err)
	assert.Len(t, third, 2)
	assert.Equal(t, 2, gw.Calls["ListRecords"])
}
