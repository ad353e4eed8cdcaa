package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/salesbeat/fieldsync/internal/events"
	"github.com/salesbeat/fieldsync/internal/store"
)

// Queue is the durable mutation queue over the local store.
//
// The store owns persistence; Queue adds ordering, eligibility policy, and
// the startup cleanup. All reads return entries oldest-first. Ordering across
// unrelated actions is best effort only.
type Queue struct {
	store  *store.Store
	bus    *events.Bus
	logger *log.Logger

	// now is injected for deterministic tests.
	now func() time.Time
}

// New creates a queue over the given store.
//
// The bus receives a QueueChanged event on every enqueue and delete so status
// surfaces can refresh counts without waiting for the next poll. If logger is
// nil, a default logger writing to stderr is used.
func New(st *store.Store, bus *events.Bus, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{
		store:  st,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the queue's clock. Tests only.
func (q *Queue) SetClock(now func() time.Time) {
	q.now = now
}

// Enqueue appends a new entry with retryCount 0 and the current timestamp.
func (q *Queue) Enqueue(ctx context.Context, action Action, data interface{}) (*Entry, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for %s: %w", action, err)
	}

	entry := &Entry{
		ID:         uuid.NewString(),
		Action:     action,
		Data:       payload,
		Timestamp:  q.now().UnixMilli(),
		RetryCount: 0,
	}
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid entry: %w", err)
	}

	if err := q.store.Save(ctx, store.SyncQueue, entry.ID, entry); err != nil {
		return nil, fmt.Errorf("failed to persist entry: %w", err)
	}

	q.logger.Printf("Enqueued %s (%s)", entry.Action, entry.ID)
	q.notifyChanged(ctx)
	return entry, nil
}

// All returns every entry, oldest first.
func (q *Queue) All(ctx context.Context) ([]*Entry, error) {
	records, err := q.store.GetAll(ctx, store.SyncQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	entries := make([]*Entry, 0, len(records))
	for _, rec := range records {
		var entry Entry
		if err := json.Unmarshal(rec.Payload, &entry); err != nil {
			q.logger.Printf("WARNING: skipping corrupt queue entry %s: %v", rec.ID, err)
			continue
		}
		entries = append(entries, &entry)
	}

	// Millisecond timestamps collide under burst capture, so break ties on
	// ID to keep replay order stable.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp < entries[j].Timestamp
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// Pending returns the actionable entries: not stuck, not stale, oldest first.
// These are the entries the processor will replay and the count the status
// badge shows.
func (q *Queue) Pending(ctx context.Context) ([]*Entry, error) {
	all, err := q.All(ctx)
	if err != nil {
		return nil, err
	}

	now := q.now()
	var pending []*Entry
	for _, entry := range all {
		if entry.Actionable(now) {
			pending = append(pending, entry)
		}
	}
	return pending, nil
}

// Stuck returns entries that have exhausted their automatic retries.
// They are surfaced only in the detailed queue view.
func (q *Queue) Stuck(ctx context.Context) ([]*Entry, error) {
	all, err := q.All(ctx)
	if err != nil {
		return nil, err
	}

	var stuck []*Entry
	for _, entry := range all {
		if entry.Stuck() {
			stuck = append(stuck, entry)
		}
	}
	return stuck, nil
}

// PendingCount returns the number of actionable entries.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	pending, err := q.Pending(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// Delete removes an entry by ID (idempotent) and notifies listeners.
func (q *Queue) Delete(ctx context.Context, id string) error {
	if err := q.store.Delete(ctx, store.SyncQueue, id); err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", id, err)
	}
	q.notifyChanged(ctx)
	return nil
}

// IncrementRetry bumps the retry count on a failed entry and persists it.
func (q *Queue) IncrementRetry(ctx context.Context, entry *Entry) error {
	entry.RetryCount++
	if err := q.store.Save(ctx, store.SyncQueue, entry.ID, entry); err != nil {
		return fmt.Errorf("failed to persist retry count for %s: %w", entry.ID, err)
	}
	return nil
}

// CleanupStuckItems deletes entries that are stuck (retryCount >= ceiling) or
// stale (older than the staleness window), excluding any IDs currently
// mid-sync. Run once at application start to keep the queue and the pending
// badge from growing without bound.
//
// Returns the number of entries removed.
func (q *Queue) CleanupStuckItems(ctx context.Context, activeIDs map[string]bool) (int, error) {
	all, err := q.All(ctx)
	if err != nil {
		return 0, err
	}

	now := q.now()
	removed := 0
	for _, entry := range all {
		if activeIDs[entry.ID] {
			continue
		}
		if !entry.Stuck() && !entry.Stale(now) {
			continue
		}

		if err := q.store.Delete(ctx, store.SyncQueue, entry.ID); err != nil {
			q.logger.Printf("WARNING: failed to clean up entry %s: %v", entry.ID, err)
			continue
		}
		q.logger.Printf("Cleaned up entry %s (%s, retries=%d, age=%v)",
			entry.ID, entry.Action, entry.RetryCount, entry.Age(now).Round(time.Minute))
		removed++
	}

	if removed > 0 {
		q.notifyChanged(ctx)
	}
	return removed, nil
}

// notifyChanged publishes the current pending count. Failures to read the
// count are logged, not raised; the next poll will correct the badge.
func (q *Queue) notifyChanged(ctx context.Context) {
	if q.bus == nil {
		return
	}
	count, err := q.PendingCount(ctx)
	if err != nil {
		q.logger.Printf("WARNING: failed to compute pending count: %v", err)
		return
	}
	q.bus.PublishQueueChanged(events.QueueChanged{Pending: count})
}
