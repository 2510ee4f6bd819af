package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/randalmurphal/vaultsync/pkg/vaultsync"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/cache"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/record"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/remote"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/store"
)

// BenchmarkSync_PullSteadyState measures a pass over already-converged
// state, the common case for periodic background syncs.
func BenchmarkSync_PullSteadyState(b *testing.B) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()
	for i := 0; i < 50; i++ {
		gw.Seed(benchRecord(fmt.Sprintf("srv-%d", i)))
	}

	engine := vaultsync.New(st, gw)
	if _, err := engine.Sync(ctx); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Sync(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSync_PushBatch measures replaying a batch of pending
// records created offline.
func BenchmarkSync_PushBatch(b *testing.B) {
	ctx := context.Background()
	payload := json.RawMessage(`{"n":1}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		st := store.NewMemoryStore()
		gw := remote.NewFakeGateway()
		engine := vaultsync.New(st, gw)
		for j := 0; j < 20; j++ {
			rec := benchRecord(fmt.Sprintf("temp_bench-%d", j))
			rec.Payload = payload
			rec.Status = record.StatusPending
			_ = st.Put(ctx, rec)
		}
		b.StartTimer()

		if _, err := engine.Sync(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCachedList_Hit measures the cached remote read path.
func BenchmarkCachedList_Hit(b *testing.B) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	gw := remote.NewFakeGateway()
	for i := 0; i < 50; i++ {
		gw.Seed(benchRecord(fmt.Sprintf("srv-%d", i)))
	}

	engine := vaultsync.New(st, gw,
		vaultsync.WithCache(cache.New(), time.Minute),
	)
	if _, err := engine.CachedList(ctx); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.CachedList(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
