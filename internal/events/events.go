// Package events provides the typed event bus connecting the sync queue,
// the dashboard read model, and the status surfaces.
//
// Events are delivered synchronously on the publishing goroutine. A panicking
// listener is recovered and logged so that one bad subscriber cannot take down
// a sync pass. Subscribe methods return an unsubscribe function that MUST be
// called on teardown.
package events

import (
	"log"
	"os"
	"sync"
)

// QueueChanged is published whenever the sync queue gains or loses entries,
// so the status surfaces can refresh counts immediately instead of waiting
// for the next poll.
type QueueChanged struct {
	Pending int
}

// SyncComplete is published at the end of every sync pass.
type SyncComplete struct {
	Processed int
	Failed    int
}

// VisitDataChanged is published when offline-captured visit snapshots change
// on disk; the dashboard schedules a refresh in response.
type VisitDataChanged struct{}

// VisitStatusChanged is published when a visit completes with an order, so
// the dashboard can optimistically patch revenue and progress counters before
// the next full refresh.
type VisitStatusChanged struct {
	RetailerID string
	OrderValue float64
}

// Bus dispatches typed events to registered listeners.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	logger *log.Logger

	queueChanged       map[int]func(QueueChanged)
	syncComplete       map[int]func(SyncComplete)
	visitDataChanged   map[int]func(VisitDataChanged)
	visitStatusChanged map[int]func(VisitStatusChanged)
}

// NewBus creates an event bus. If logger is nil, a default logger writing to
// stderr is used.
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.New(os.Stderr, "[events] ", log.LstdFlags)
	}
	return &Bus{
		logger:             logger,
		queueChanged:       make(map[int]func(QueueChanged)),
		syncComplete:       make(map[int]func(SyncComplete)),
		visitDataChanged:   make(map[int]func(VisitDataChanged)),
		visitStatusChanged: make(map[int]func(VisitStatusChanged)),
	}
}

// OnQueueChanged registers a listener for QueueChanged events.
func (b *Bus) OnQueueChanged(fn func(QueueChanged)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.queueChanged[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.queueChanged, id)
	}
}

// OnSyncComplete registers a listener for SyncComplete events.
func (b *Bus) OnSyncComplete(fn func(SyncComplete)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.syncComplete[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.syncComplete, id)
	}
}

// OnVisitDataChanged registers a listener for VisitDataChanged events.
func (b *Bus) OnVisitDataChanged(fn func(VisitDataChanged)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.visitDataChanged[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.visitDataChanged, id)
	}
}

// OnVisitStatusChanged registers a listener for VisitStatusChanged events.
func (b *Bus) OnVisitStatusChanged(fn func(VisitStatusChanged)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.visitStatusChanged[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.visitStatusChanged, id)
	}
}

// PublishQueueChanged delivers a QueueChanged event to all listeners.
func (b *Bus) PublishQueueChanged(ev QueueChanged) {
	b.mu.RLock()
	listeners := make([]func(QueueChanged), 0, len(b.queueChanged))
	for _, fn := range b.queueChanged {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.dispatch(func() { fn(ev) })
	}
}

// PublishSyncComplete delivers a SyncComplete event to all listeners.
func (b *Bus) PublishSyncComplete(ev SyncComplete) {
	b.mu.RLock()
	listeners := make([]func(SyncComplete), 0, len(b.syncComplete))
	for _, fn := range b.syncComplete {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.dispatch(func() { fn(ev) })
	}
}

// PublishVisitDataChanged delivers a VisitDataChanged event to all listeners.
func (b *Bus) PublishVisitDataChanged(ev VisitDataChanged) {
	b.mu.RLock()
	listeners := make([]func(VisitDataChanged), 0, len(b.visitDataChanged))
	for _, fn := range b.visitDataChanged {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.dispatch(func() { fn(ev) })
	}
}

// PublishVisitStatusChanged delivers a VisitStatusChanged event to all listeners.
func (b *Bus) PublishVisitStatusChanged(ev VisitStatusChanged) {
	b.mu.RLock()
	listeners := make([]func(VisitStatusChanged), 0, len(b.visitStatusChanged))
	for _, fn := range b.visitStatusChanged {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.dispatch(func() { fn(ev) })
	}
}

// dispatch runs a listener, recovering panics so one subscriber cannot break
// the publisher.
func (b *Bus) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("Listener panic recovered: %v", r)
		}
	}()
	fn()
}
