// Package syncer provides the sync processor that drains the offline
// mutation queue against the remote backend.
//
// The processor walks actionable entries oldest-first and replays each one
// independently: a failed entry increments its retry count and the pass
// continues with the rest. Overlapping invocations are excluded by an
// in-flight guard; the second caller is a no-op, not a waiter. Sync storms
// from connectivity flapping are damped by an online debounce and a minimum
// gap between passes.
package syncer

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/salesbeat/fieldsync/internal/backend"
	"github.com/salesbeat/fieldsync/internal/events"
	"github.com/salesbeat/fieldsync/internal/queue"
)

// ErrSyncInProgress is returned when ProcessSyncQueue is invoked while a
// pass is already running. Callers treat it as benign.
var ErrSyncInProgress = errors.New("sync already in progress")

// EntryState notifies a progress observer of one entry's state transition
// during a pass: syncing, success, or error.
type EntryState struct {
	Entry  *queue.Entry
	Status string
}

// Config holds processor tuning.
type Config struct {
	// OnlineDebounce is how long to wait after connectivity returns before
	// starting a sync, absorbing rapid online/offline flapping.
	OnlineDebounce time.Duration

	// MinGap is the minimum time between the end of one pass and the start
	// of the next automatic one.
	MinGap time.Duration

	// Logger for processor activity.
	Logger *log.Logger
}

// DefaultConfig returns the tuning the product ships with.
func DefaultConfig() *Config {
	return &Config{
		OnlineDebounce: 2 * time.Second,
		MinGap:         10 * time.Second,
		Logger:         log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Result summarizes one sync pass.
type Result struct {
	Processed int
	Failed    int
	Skipped   int
}

// Processor replays queued mutations against the remote backend.
type Processor struct {
	queue  *queue.Queue
	remote backend.Client
	bus    *events.Bus
	config *Config

	inFlight atomic.Bool

	mu        sync.Mutex
	lastDone  time.Time
	active    map[string]bool
	observers []func(EntryState)

	// now is injected for deterministic tests.
	now func() time.Time
}

// New creates a sync processor. If config is nil, DefaultConfig is used.
func New(q *queue.Queue, remote backend.Client, bus *events.Bus, config *Config) *Processor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Processor{
		queue:  q,
		remote: remote,
		bus:    bus,
		config: config,
		active: make(map[string]bool),
		now:    time.Now,
	}
}

// SetClock overrides the processor's clock. Tests only.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// OnEntryState registers a progress observer for per-entry transitions.
// The status surfaces use this to show a live pending/syncing/success view.
func (p *Processor) OnEntryState(fn func(EntryState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// ActiveIDs returns the IDs currently mid-replay. The startup cleanup
// excludes these from deletion.
func (p *Processor) ActiveIDs() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make(map[string]bool, len(p.active))
	for id := range p.active {
		ids[id] = true
	}
	return ids
}

// ProcessSyncQueue replays every actionable entry against the remote backend.
//
// Returns ErrSyncInProgress if another pass is already running; the caller's
// invocation is a no-op in that case. Entry failures do not halt the pass:
// each failure increments that entry's retry count and processing continues.
// Entries at or past the retry ceiling are never attempted.
func (p *Processor) ProcessSyncQueue(ctx context.Context) (Result, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer func() {
		p.inFlight.Store(false)
		p.mu.Lock()
		p.lastDone = p.now()
		p.mu.Unlock()
	}()

	entries, err := p.queue.Pending(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(entries) == 0 {
		return Result{}, nil
	}

	p.config.Logger.Printf("Processing %d pending entries", len(entries))

	var result Result
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			result.Skipped = len(entries) - result.Processed - result.Failed
			return result, ctx.Err()
		default:
		}

		p.setActive(entry.ID, true)
		p.notify(EntryState{Entry: entry, Status: queue.StatusSyncing})

		err := p.replay(ctx, entry)
		p.setActive(entry.ID, false)

		if err != nil {
			p.config.Logger.Printf("WARNING: failed to sync %s (%s, attempt %d): %v",
				entry.ID, entry.Action, entry.RetryCount+1, err)
			if rerr := p.queue.IncrementRetry(ctx, entry); rerr != nil {
				p.config.Logger.Printf("WARNING: failed to record retry for %s: %v", entry.ID, rerr)
			}
			p.notify(EntryState{Entry: entry, Status: queue.StatusError})
			result.Failed++
			continue
		}

		if err := p.queue.Delete(ctx, entry.ID); err != nil {
			p.config.Logger.Printf("WARNING: synced %s but failed to dequeue: %v", entry.ID, err)
		}
		p.notify(EntryState{Entry: entry, Status: queue.StatusSuccess})
		result.Processed++
	}

	p.config.Logger.Printf("Sync pass complete: processed=%d failed=%d", result.Processed, result.Failed)
	if p.bus != nil {
		p.bus.PublishSyncComplete(events.SyncComplete{
			Processed: result.Processed,
			Failed:    result.Failed,
		})
	}
	return result, nil
}

// replay dispatches one entry to its action handler.
func (p *Processor) replay(ctx context.Context, entry *queue.Entry) error {
	h, ok := handlers[entry.Action]
	if !ok {
		// Unknown actions burn retries like any other failure so the
		// cleanup eventually removes them.
		return errors.New("no handler for action " + string(entry.Action))
	}
	return h(ctx, p.remote, entry.Data)
}

// TrySync runs a pass unless one finished within MinGap. Used by the poll
// timer and the online trigger; manual syncs call ProcessSyncQueue directly.
func (p *Processor) TrySync(ctx context.Context) (Result, error) {
	p.mu.Lock()
	since := p.now().Sub(p.lastDone)
	recent := !p.lastDone.IsZero() && since < p.config.MinGap
	p.mu.Unlock()

	if recent {
		return Result{}, nil
	}

	result, err := p.ProcessSyncQueue(ctx)
	if errors.Is(err, ErrSyncInProgress) {
		return Result{}, nil
	}
	return result, err
}

// HandleOnline reacts to an offline-to-online transition: if the queue is
// non-empty, wait the debounce window and then attempt a sync. The wait is
// abandoned if ctx is cancelled first.
func (p *Processor) HandleOnline(ctx context.Context) {
	count, err := p.queue.PendingCount(ctx)
	if err != nil {
		p.config.Logger.Printf("WARNING: failed to read pending count: %v", err)
		return
	}
	if count == 0 {
		return
	}

	p.config.Logger.Printf("Back online with %d pending entries, syncing in %v",
		count, p.config.OnlineDebounce)

	timer := time.NewTimer(p.config.OnlineDebounce)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if _, err := p.TrySync(ctx); err != nil {
		p.config.Logger.Printf("WARNING: online sync failed: %v", err)
	}
}

func (p *Processor) setActive(id string, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if active {
		p.active[id] = true
	} else {
		delete(p.active, id)
	}
}

func (p *Processor) notify(state EntryState) {
	p.mu.Lock()
	observers := make([]func(EntryState), len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}
