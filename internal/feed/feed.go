// ABOUTME: In-process change feed turning store invalidations into subscriber callbacks
// ABOUTME: Table-keyed subscriptions with coalesced delivery and idempotent cancellation

package feed

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Bridge fans table-keyed change notifications out to subscribers. The store
// calls Notify after every committed mutation; each subscriber gets its
// callback invoked on a dedicated goroutine. Bursts of notifications coalesce:
// a subscriber that is mid-callback sees at most one follow-up delivery for
// any number of changes that arrived meanwhile, which is safe because
// consumers resync their full snapshot on every callback.
type Bridge struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*Subscription // table -> subID -> sub
	metrics     EventRecorder
	logger      *slog.Logger
}

// EventRecorder counts change events as they enter the bridge.
type EventRecorder interface {
	RecordFeedEvent(table string)
}

// NewBridge creates a bridge. Pass nil logger for default.
func NewBridge(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		subscribers: make(map[string]map[string]*Subscription),
		logger:      logger.With("component", "feed"),
	}
}

// Subscribe registers onChange to run after every committed change to the
// given table. The callback runs on its own goroutine, never concurrently
// with itself. Callers resync from the store inside the callback.
func (b *Bridge) Subscribe(table string, onChange func()) *Subscription {
	sub := &Subscription{
		id:       uuid.New().String(),
		table:    table,
		bridge:   b,
		onChange: onChange,
		pending:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}

	b.mu.Lock()
	if _, ok := b.subscribers[table]; !ok {
		b.subscribers[table] = make(map[string]*Subscription)
	}
	b.subscribers[table][sub.id] = sub
	b.mu.Unlock()

	go sub.deliver()

	b.logger.Debug("subscriber added", "table", table, "sub_id", sub.id)
	return sub
}

// SetMetrics installs an event recorder. Call before the store starts
// notifying.
func (b *Bridge) SetMetrics(m EventRecorder) {
	b.metrics = m
}

// Notify wakes every subscriber of the given table. Non-blocking: a
// subscriber with a delivery already queued absorbs the new one.
func (b *Bridge) Notify(table string) {
	if b.metrics != nil {
		b.metrics.RecordFeedEvent(table)
	}
	b.mu.RLock()
	subs, ok := b.subscribers[table]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}
	targets := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.pending <- struct{}{}:
		default:
			// Delivery already queued; the callback resyncs everything anyway.
		}
	}
}

// Close cancels all subscriptions.
func (b *Bridge) Close() {
	b.mu.RLock()
	var all []*Subscription
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range all {
		sub.Cancel()
	}
	b.logger.Debug("feed bridge closed")
}

// remove drops a subscription from the table index.
func (b *Bridge) remove(table, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[table]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.subscribers, table)
	}

	b.logger.Debug("subscriber removed", "table", table, "sub_id", subID)
}

// Subscription is a handle to one table subscription.
type Subscription struct {
	id     string
	table  string
	bridge *Bridge

	onChange func()
	pending  chan struct{}
	stop     chan struct{}

	mu        sync.Mutex // serializes the callback against Cancel
	cancelled bool
	once      sync.Once
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string { return s.id }

// Cancel stops delivery. Safe to call multiple times. When Cancel returns,
// the callback is guaranteed not to run again; if an invocation is in flight,
// Cancel waits for it. Must not be called from inside the callback.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bridge.remove(s.table, s.id)

		s.mu.Lock()
		s.cancelled = true
		s.mu.Unlock()

		close(s.stop)
	})
}

// deliver runs the subscriber's callback once per coalesced notification.
func (s *Subscription) deliver() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.pending:
			s.mu.Lock()
			if !s.cancelled {
				s.onChange()
			}
			s.mu.Unlock()
		}
	}
}
