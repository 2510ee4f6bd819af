// Package cache provides a capacity-bounded, TTL-based response cache
// for idempotent remote reads.
//
// Eviction is strictly insertion-ordered (FIFO): when the cache is at
// capacity the oldest-inserted entry is removed, regardless of access
// recency. This is a deliberate policy, not an LRU approximation.
// Mutating operations never go through the cache; invalidation is the
// caller's responsibility via Clear.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity bounds the cache when no capacity is configured.
const DefaultCapacity = 128

// Entry is one cached value with its lifetime metadata.
type Entry struct {
	Key        string
	Value      any
	InsertedAt time.Time
	ExpiresAt  time.Time
}

// expired reports whether the entry is logically absent at now.
// An entry past its ExpiresAt is a miss even if still physically
// stored until purged.
func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Cache is a TTL cache with FIFO eviction.
// It is safe for concurrent use; no operation blocks indefinitely.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // Entry values, front = oldest-inserted
	clock    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the maximum number of entries.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithClock injects a time source for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// New creates a cache with the given options.
func New(opts ...Option) *Cache {
	c := &Cache{
		capacity: DefaultCapacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key.
// A lookup past the entry's expiry is a miss, and the entry is purged
// as a side effect.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(Entry)
	if entry.expired(c.clock()) {
		c.remove(elem)
		return nil, false
	}
	return entry.Value, true
}

// Set stores a value with the given TTL, overwriting any existing
// entry for key. An overwrite counts as a fresh insertion for eviction
// ordering. When the cache is at capacity, the single oldest-inserted
// entry is evicted before the new one is admitted.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()

	if elem, ok := c.entries[key]; ok {
		c.remove(elem)
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Front(); oldest != nil {
			c.remove(oldest)
		}
	}

	elem := c.order.PushBack(Entry{
		Key:        key,
		Value:      value,
		InsertedAt: now,
		ExpiresAt:  now.Add(ttl),
	})
	c.entries[key] = elem
}

// Clear removes entries whose keys start with prefix and returns the
// number removed. An empty prefix clears the whole cache.
func (c *Cache) Clear(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prefix == "" {
		n := c.order.Len()
		c.entries = make(map[string]*list.Element)
		c.order.Init()
		return n
	}

	n := 0
	for key, elem := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.remove(elem)
			n++
		}
	}
	return n
}

// Len returns the number of physically stored entries, expired
// stragglers included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge removes every expired entry and returns the number removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	n := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(Entry).expired(now) {
			c.remove(elem)
			n++
		}
		elem = next
	}
	return n
}

// remove unlinks an entry. Callers must hold the lock.
func (c *Cache) remove(elem *list.Element) {
	entry := elem.Value.(Entry)
	delete(c.entries, entry.Key)
	c.order.Remove(elem)
}
