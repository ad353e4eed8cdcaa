package queue

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/salesbeat/fieldsync/internal/events"
	"github.com/salesbeat/fieldsync/internal/logging"
	"github.com/salesbeat/fieldsync/internal/store"
)

func newTestQueue(t *testing.T) (*Queue, *events.Bus) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	bus := events.NewBus(logging.New("events", io.Discard))
	return New(st, bus, logging.New("queue", io.Discard)), bus
}

func TestEnqueueStartsAtZeroRetries(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	entry, err := q.Enqueue(ctx, ActionCreateOrder, map[string]string{"id": "o-1"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if entry.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", entry.RetryCount)
	}
	if entry.ID == "" {
		t.Error("entry has no ID")
	}
	if entry.Timestamp <= 0 {
		t.Errorf("Timestamp = %d, want positive epoch millis", entry.Timestamp)
	}
}

func TestAllReturnsOldestFirst(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	base := time.Now()
	for i, offset := range []time.Duration{2 * time.Minute, 0, time.Minute} {
		at := base.Add(offset)
		q.SetClock(func() time.Time { return at })
		if _, err := q.Enqueue(ctx, ActionCreateOrder, map[string]int{"seq": i}); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}
	q.SetClock(func() time.Time { return base })

	entries, err := q.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Timestamp > entries[i].Timestamp {
			t.Errorf("entries out of order at %d: %d > %d", i, entries[i-1].Timestamp, entries[i].Timestamp)
		}
	}
}

func TestAllBreaksTimestampTiesByID(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	// Burst capture lands several entries in the same millisecond.
	at := time.Now()
	q.SetClock(func() time.Time { return at })
	for i := 0; i < 5; i++ {
		if _, err := q.Enqueue(ctx, ActionCreateOrder, map[string]int{"seq": i}); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}

	first, err := q.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	for round := 0; round < 3; round++ {
		again, err := q.All(ctx)
		if err != nil {
			t.Fatalf("All failed: %v", err)
		}
		for i := range first {
			if first[i].ID != again[i].ID {
				t.Fatalf("replay order changed between reads at %d: %s vs %s", i, first[i].ID, again[i].ID)
			}
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].ID > first[i].ID {
			t.Errorf("tied timestamps not ordered by ID at %d", i)
		}
	}
}

func TestIncrementRetryIsMonotonic(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	entry, err := q.Enqueue(ctx, ActionCheckIn, map[string]string{"id": "v-1"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	for want := 1; want <= 3; want++ {
		if err := q.IncrementRetry(ctx, entry); err != nil {
			t.Fatalf("IncrementRetry failed: %v", err)
		}
		if entry.RetryCount != want {
			t.Errorf("RetryCount = %d, want %d", entry.RetryCount, want)
		}
	}

	// The persisted copy carries the count too.
	entries, err := q.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if entries[0].RetryCount != 3 {
		t.Errorf("persisted RetryCount = %d, want 3", entries[0].RetryCount)
	}
}

func TestPendingExcludesStuckAndStale(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	// Fresh actionable entry.
	q.SetClock(func() time.Time { return now })
	fresh, err := q.Enqueue(ctx, ActionCreateOrder, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Stuck entry: at the retry ceiling.
	stuck, err := q.Enqueue(ctx, ActionCreateVisit, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	for i := 0; i < RetryCeiling; i++ {
		if err := q.IncrementRetry(ctx, stuck); err != nil {
			t.Fatalf("IncrementRetry failed: %v", err)
		}
	}

	// Stale entry: enqueued two hours ago.
	q.SetClock(func() time.Time { return now.Add(-2 * time.Hour) })
	if _, err := q.Enqueue(ctx, ActionCheckOut, nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	q.SetClock(func() time.Time { return now })

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].ID != fresh.ID {
		t.Errorf("pending entry = %s, want %s", pending[0].ID, fresh.ID)
	}

	count, err := q.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("PendingCount = %d, want 1", count)
	}

	stuckEntries, err := q.Stuck(ctx)
	if err != nil {
		t.Fatalf("Stuck failed: %v", err)
	}
	if len(stuckEntries) != 1 || stuckEntries[0].ID != stuck.ID {
		t.Errorf("Stuck returned %d entries, want just the stuck one", len(stuckEntries))
	}
}

func TestCleanupStuckItems(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		retryCount int
		age        time.Duration
		removed    bool
	}{
		{"fresh zero retries", 0, 10 * time.Minute, false},
		{"fresh under ceiling", 4, 10 * time.Minute, false},
		{"at ceiling", 5, 10 * time.Minute, true},
		{"past ceiling", 6, 10 * time.Minute, true},
		{"stale zero retries", 0, 2 * time.Hour, true},
		{"stale under ceiling", 4, 2 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := newTestQueue(t)
			ctx := context.Background()

			q.SetClock(func() time.Time { return now.Add(-tt.age) })
			entry, err := q.Enqueue(ctx, ActionCreateOrder, nil)
			if err != nil {
				t.Fatalf("Enqueue failed: %v", err)
			}
			for i := 0; i < tt.retryCount; i++ {
				if err := q.IncrementRetry(ctx, entry); err != nil {
					t.Fatalf("IncrementRetry failed: %v", err)
				}
			}
			q.SetClock(func() time.Time { return now })

			removed, err := q.CleanupStuckItems(ctx, nil)
			if err != nil {
				t.Fatalf("CleanupStuckItems failed: %v", err)
			}

			wantRemoved := 0
			if tt.removed {
				wantRemoved = 1
			}
			if removed != wantRemoved {
				t.Errorf("removed = %d, want %d", removed, wantRemoved)
			}
		})
	}
}

func TestCleanupSkipsActiveEntries(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	q.SetClock(func() time.Time { return now.Add(-2 * time.Hour) })
	entry, err := q.Enqueue(ctx, ActionCreateOrder, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	q.SetClock(func() time.Time { return now })

	removed, err := q.CleanupStuckItems(ctx, map[string]bool{entry.ID: true})
	if err != nil {
		t.Fatalf("CleanupStuckItems failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0 (entry is mid-sync)", removed)
	}
}

func TestQueueChangedPublishedOnEnqueueAndDelete(t *testing.T) {
	q, bus := newTestQueue(t)
	ctx := context.Background()

	var counts []int
	unsub := bus.OnQueueChanged(func(ev events.QueueChanged) {
		counts = append(counts, ev.Pending)
	})
	defer unsub()

	entry, err := q.Enqueue(ctx, ActionCreateOrder, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Delete(ctx, entry.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if len(counts) != 2 {
		t.Fatalf("got %d QueueChanged events, want 2", len(counts))
	}
	if counts[0] != 1 || counts[1] != 0 {
		t.Errorf("pending counts = %v, want [1 0]", counts)
	}
}

func TestActionLabels(t *testing.T) {
	tests := []struct {
		action Action
		want   string
	}{
		{ActionCreateOrder, "Create order"},
		{ActionCheckIn, "Check in"},
		{ActionNoOrder, "Record no-order reason"},
		{ActionSendInvoiceSMS, "Send invoice SMS"},
		{Action("BOGUS"), "BOGUS"},
	}
	for _, tt := range tests {
		if got := tt.action.Label(); got != tt.want {
			t.Errorf("Label(%s) = %q, want %q", tt.action, got, tt.want)
		}
	}

	if Action("BOGUS").Valid() {
		t.Error("unknown action reported valid")
	}
	if !ActionCheckOut.Valid() {
		t.Error("known action reported invalid")
	}
}

func TestEntryValidate(t *testing.T) {
	base := Entry{ID: "q-1", Action: ActionCreateOrder, Timestamp: time.Now().UnixMilli()}

	tests := []struct {
		name    string
		mutate  func(*Entry)
		wantErr string
	}{
		{"valid", func(e *Entry) {}, ""},
		{"missing id", func(e *Entry) { e.ID = "" }, "id is required"},
		{"unknown action", func(e *Entry) { e.Action = "NOPE" }, "unknown action"},
		{"zero timestamp", func(e *Entry) { e.Timestamp = 0 }, "timestamp is required"},
		{"negative retries", func(e *Entry) { e.RetryCount = -1 }, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := base
			tt.mutate(&entry)
			err := entry.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestJSONLRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, ActionCreateOrder, map[string]string{"id": "o-1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := q.Enqueue(ctx, ActionCheckIn, map[string]string{"id": "v-1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	var buf bytes.Buffer
	written, err := q.ExportJSONL(ctx, &buf)
	if err != nil {
		t.Fatalf("ExportJSONL failed: %v", err)
	}
	if written != 2 {
		t.Fatalf("exported %d entries, want 2", written)
	}

	q2, _ := newTestQueue(t)
	imported, skipped, err := q2.ImportJSONL(ctx, &buf)
	if err != nil {
		t.Fatalf("ImportJSONL failed: %v", err)
	}
	if imported != 2 || skipped != 0 {
		t.Errorf("imported=%d skipped=%d, want 2/0", imported, skipped)
	}

	entries, err := q2.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len = %d after import, want 2", len(entries))
	}
}

func TestImportSkipsInvalidLines(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	input := strings.Join([]string{
		`{"id":"q-1","action":"CREATE_ORDER","data":{},"timestamp":1700000000000}`,
		`{"id":"","action":"CREATE_ORDER","data":{},"timestamp":1700000000000}`,
		`{"id":"q-2","action":"TOTALLY_UNKNOWN","data":{},"timestamp":1700000000000}`,
	}, "\n") + "\n"

	imported, skipped, err := q.ImportJSONL(ctx, strings.NewReader(input))
	if err != nil {
		t.Fatalf("ImportJSONL failed: %v", err)
	}
	if imported != 1 {
		t.Errorf("imported = %d, want 1", imported)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
}
