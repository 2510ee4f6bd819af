package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/vaultsync/pkg/vaultsync/cache"
)

// fakeClock is a controllable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_GetSet(t *testing.T) {
	c := cache.New()

	c.Set("k", "v", time.Minute)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := cache.New(cache.WithClock(clock.Now))

	c.Set("k", "v", 100*time.Millisecond)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
	assert.Equal(t, 1, c.Len())

	clock.Advance(150 * time.Millisecond)

	// Expired lookup is a miss and purges the entry
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_FIFOEviction(t *testing.T) {
	c := cache.New(cache.WithCapacity(3))

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	// Read the oldest entry; FIFO must ignore access recency
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4, time.Minute)

	_, ok = c.Get("a")
	assert.False(t, ok, "oldest-inserted entry must be evicted even if recently read")

	for _, key := range []string{"b", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "entry %q should survive eviction", key)
	}
	assert.Equal(t, 3, c.Len())
}

func TestCache_EvictsExactlyOne(t *testing.T) {
	c := cache.New(cache.WithCapacity(2))

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	assert.Equal(t, 2, c.Len())
}

func TestCache_OverwriteRefreshesInsertionOrder(t *testing.T) {
	c := cache.New(cache.WithCapacity(2))

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	// Overwriting "a" makes it the newest insertion
	c.Set("a", 10, time.Minute)
	c.Set("c", 3, time.Minute)

	_, ok := c.Get("b")
	assert.False(t, ok, "b became the oldest insertion after a's overwrite")

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, got)
}

func TestCache_ClearAll(t *testing.T) {
	c := cache.New()

	c.Set("records:list", 1, time.Minute)
	c.Set("records:srv-1", 2, time.Minute)
	c.Set("other", 3, time.Minute)

	assert.Equal(t, 3, c.Clear(""))
	assert.Equal(t, 0, c.Len())
}

func TestCache_ClearPrefix(t *testing.T) {
	c := cache.New()

	c.Set("records:list", 1, time.Minute)
	c.Set("records:srv-1", 2, time.Minute)
	c.Set("other", 3, time.Minute)

	assert.Equal(t, 2, c.Clear("records:"))

	_, ok := c.Get("other")
	assert.True(t, ok)
	_, ok = c.Get("records:list")
	assert.False(t, ok)
}

func TestCache_Purge(t *testing.T) {
	clock := newFakeClock()
	c := cache.New(cache.WithClock(clock.Now))

	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)

	clock.Advance(time.Minute)

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestCache_ExpiredEntryStillCountsUntilPurged(t *testing.T) {
	clock := newFakeClock()
	c := cache.New(cache.WithClock(clock.Now))

	c.Set("k", 1, time.Second)
	clock.Advance(time.Minute)

	// Physically present until a lookup or purge removes it
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Concurrent(t *testing.T) {
	c := cache.New(cache.WithCapacity(32))

	var wg sync.WaitGroup
	wg.Add(8)

	for i := 0; i < 8; i++ {
		go func(id int) {
			defer wg.Done()
			key := "k" + string(rune('a'+id))
			for j := 0; j < 200; j++ {
				c.Set(key, j, time.Minute)
				_, _ = c.Get(key)
				if j%50 == 0 {
					c.Clear(key)
				}
			}
		}(i)
	}

	wg.Wait()
}
