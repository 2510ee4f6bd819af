// Package netmon observes binary connectivity transitions and fans
// them out to observers.
//
// The monitor is driven externally through SetOnline, or by an
// optional probe loop (Watch). On a transition to online it fires the
// sync trigger exactly once and notifies observers with true; on a
// transition to offline it only notifies observers with false.
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Observer receives connectivity transitions.
type Observer func(online bool)

// Subscription is the disposer handle returned by Subscribe.
type Subscription interface {
	// Unsubscribe removes the observer. Calling it more than once,
	// or for an observer already removed, is a no-op.
	Unsubscribe()
}

// Monitor tracks connectivity state.
// It is safe for concurrent use; observer callbacks run synchronously
// on the goroutine that reported the transition, outside the
// monitor's lock.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	observers map[int]Observer
	nextID    int
	trigger   func()
	logger    *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger for transition logging.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithInitialOnline sets the starting connectivity state.
// Default: offline, so the first online report is a transition.
func WithInitialOnline(online bool) Option {
	return func(m *Monitor) {
		m.online = online
	}
}

// New creates a monitor with the given options.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTrigger installs the function invoked exactly once per
// offline-to-online transition. The sync engine installs itself here.
func (m *Monitor) SetTrigger(trigger func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trigger = trigger
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline reports the connectivity state. Repeating the current
// state is a no-op; only transitions notify observers.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	observers := make([]Observer, 0, len(m.observers))
	for _, obs := range m.observers {
		observers = append(observers, obs)
	}
	trigger := m.trigger
	logger := m.logger
	m.mu.Unlock()

	if logger != nil {
		logger.Info("connectivity changed", slog.Bool("online", online))
	}

	if online && trigger != nil {
		trigger()
	}
	for _, obs := range observers {
		obs(online)
	}
}

// Subscribe registers an observer and returns its disposer.
func (m *Monitor) Subscribe(obs Observer) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.observers[id] = obs
	return &subscription{monitor: m, id: id}
}

// Watch polls the probe at the given interval, feeding its result into
// SetOnline, until ctx is cancelled. The probe runs once immediately.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration, probe func(context.Context) bool) {
	m.SetOnline(probe(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(probe(ctx))
		}
	}
}

type subscription struct {
	monitor *Monitor
	mu      sync.Mutex
	id      int
	done    bool
}

// Unsubscribe implements Subscription.
func (s *subscription) Unsubscribe() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()

	s.monitor.mu.Lock()
	delete(s.monitor.observers, s.id)
	s.monitor.mu.Unlock()
}
