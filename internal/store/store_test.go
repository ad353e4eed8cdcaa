package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSaveAndGet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	type rec struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	if err := st.Save(ctx, Retailers, "r-1", rec{ID: "r-1", Name: "Sharma Stores"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw, err := st.Get(ctx, Retailers, "r-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	var got rec
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if got.Name != "Sharma Stores" {
		t.Errorf("Name = %q, want %q", got.Name, "Sharma Stores")
	}
}

func TestGetNotFound(t *testing.T) {
	st := openTestStore(t)

	_, err := st.Get(context.Background(), Retailers, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on missing record = %v, want ErrNotFound", err)
	}
}

func TestSaveIsIdempotentUpsert(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	type rec struct {
		ID    string `json:"id"`
		Value int    `json:"value"`
	}

	for i := 1; i <= 3; i++ {
		if err := st.Save(ctx, Orders, "o-1", rec{ID: "o-1", Value: i}); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	count, err := st.Count(ctx, Orders)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d after repeated saves of one ID, want 1", count)
	}

	raw, err := st.Get(ctx, Orders, "o-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var got rec
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.Value != 3 {
		t.Errorf("Value = %d, want latest write 3", got.Value)
	}
}

func TestGetAllScopedToCollection(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, Orders, "o-1", map[string]string{"id": "o-1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := st.Save(ctx, Visits, "v-1", map[string]string{"id": "v-1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := st.Save(ctx, Visits, "v-2", map[string]string{"id": "v-2"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	visits, err := st.GetAll(ctx, Visits)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(visits) != 2 {
		t.Errorf("GetAll(Visits) returned %d records, want 2", len(visits))
	}

	orders, err := st.GetAll(ctx, Orders)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(orders) != 1 {
		t.Errorf("GetAll(Orders) returned %d records, want 1", len(orders))
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, SyncQueue, "q-1", map[string]string{"id": "q-1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := st.Delete(ctx, SyncQueue, "q-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// Deleting again must not error.
	if err := st.Delete(ctx, SyncQueue, "q-1"); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}

	count, err := st.Count(ctx, SyncQueue)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Count = %d after delete, want 0", count)
	}
}

func TestFlags(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	got, err := st.GetFlag(ctx, "cache_warmed_at")
	if err != nil {
		t.Fatalf("GetFlag failed: %v", err)
	}
	if got != "" {
		t.Errorf("unset flag = %q, want empty", got)
	}

	if err := st.SetFlag(ctx, "cache_warmed_at", "2026-08-31"); err != nil {
		t.Fatalf("SetFlag failed: %v", err)
	}
	if err := st.SetFlag(ctx, "cache_warmed_at", "2026-09-01"); err != nil {
		t.Fatalf("SetFlag upsert failed: %v", err)
	}

	got, err = st.GetFlag(ctx, "cache_warmed_at")
	if err != nil {
		t.Fatalf("GetFlag failed: %v", err)
	}
	if got != "2026-09-01" {
		t.Errorf("flag = %q, want %q", got, "2026-09-01")
	}
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := st.Save(ctx, SyncQueue, "q-1", map[string]string{"id": "q-1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	st2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st2.Close()

	if _, err := st2.Get(ctx, SyncQueue, "q-1"); err != nil {
		t.Errorf("record did not survive reopen: %v", err)
	}
}
