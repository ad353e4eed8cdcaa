package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/salesbeat/fieldsync/internal/logging"
)

func newTestREST(t *testing.T, handler http.HandlerFunc) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewREST(RESTConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Logger:  logging.New("backend", io.Discard),
	})
	if err != nil {
		t.Fatalf("NewREST failed: %v", err)
	}
	return c
}

func TestSelectBuildsFilterQuery(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"o-1"},{"id":"o-2"}]`))
	})

	rows, err := c.Select(context.Background(), TableOrders,
		Eq("user_id", "u-1"), Eq("date", "2026-08-31"))
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if len(rows) != 2 {
		t.Errorf("len(rows) = %d, want 2", len(rows))
	}
	if gotPath != "/orders" {
		t.Errorf("path = %q, want /orders", gotPath)
	}
	if gotQuery != "date=eq.2026-08-31&user_id=eq.u-1" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestSelectKeepsRepeatedColumnFilters(t *testing.T) {
	var gotQuery string
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.Select(context.Background(), TableOrders,
		Gte("date", "2026-08-01"), Lte("date", "2026-08-31"))
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	// Both bounds of a range predicate must reach the backend.
	if gotQuery != "date=gte.2026-08-01&date=lte.2026-08-31" {
		t.Errorf("query = %q, want both date bounds", gotQuery)
	}
}

func TestInsertPostsRecord(t *testing.T) {
	var gotMethod, gotBody string
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
	})

	err := c.Insert(context.Background(), TableVisits, map[string]string{"id": "v-1"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotBody != `{"id":"v-1"}` {
		t.Errorf("body = %s", gotBody)
	}
}

func TestUpdatePatchesByID(t *testing.T) {
	var gotMethod, gotQuery string
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Update(context.Background(), TableVisits, "v-1", map[string]string{"status": "productive"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	if gotQuery != "id=eq.v-1" {
		t.Errorf("query = %q, want id=eq.v-1", gotQuery)
	}
}

func TestDeleteByID(t *testing.T) {
	var gotMethod string
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.Delete(context.Background(), TableRetailers, "r-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", gotMethod)
	}
}

func TestRPCPostsToFunctionPath(t *testing.T) {
	var gotPath string
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	err := c.RPC(context.Background(), "send_invoice_sms", map[string]string{"order_id": "o-1"})
	if err != nil {
		t.Fatalf("RPC failed: %v", err)
	}
	if gotPath != "/rpc/send_invoice_sms" {
		t.Errorf("path = %q, want /rpc/send_invoice_sms", gotPath)
	}
}

func TestErrorsCarryServerMessage(t *testing.T) {
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`duplicate key`))
	})

	err := c.Insert(context.Background(), TableOrders, map[string]string{"id": "o-1"})
	if err == nil {
		t.Fatal("Insert succeeded against a 409")
	}
	if got := err.Error(); !strings.Contains(got, "409") || !strings.Contains(got, "duplicate key") {
		t.Errorf("error = %q, want status and body", got)
	}
}

func TestPing(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		healthy bool
	}{
		{"ok", http.StatusOK, true},
		{"auth error still reachable", http.StatusUnauthorized, true},
		{"server down", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			err := c.Ping(context.Background())
			if tt.healthy && err != nil {
				t.Errorf("Ping = %v, want nil", err)
			}
			if !tt.healthy && err == nil {
				t.Error("Ping = nil, want error")
			}
		})
	}
}

func TestSelectInto(t *testing.T) {
	fake := NewFake()
	fake.Seed(TableOrders, map[string]interface{}{"id": "o-1", "user_id": "u-1", "total_amount": 100.0})
	fake.Seed(TableOrders, map[string]interface{}{"id": "o-2", "user_id": "u-2", "total_amount": 200.0})

	var got []struct {
		ID          string  `json:"id"`
		TotalAmount float64 `json:"total_amount"`
	}
	err := SelectInto(context.Background(), fake, TableOrders, &got, Eq("user_id", "u-1"))
	if err != nil {
		t.Fatalf("SelectInto failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "o-1" || got[0].TotalAmount != 100 {
		t.Errorf("got %+v, want just o-1", got)
	}
}

func TestFakeFilters(t *testing.T) {
	fake := NewFake()
	fake.Seed(TableVisits, map[string]string{"id": "v-1", "date": "2026-08-29"})
	fake.Seed(TableVisits, map[string]string{"id": "v-2", "date": "2026-08-30"})
	fake.Seed(TableVisits, map[string]string{"id": "v-3", "date": "2026-08-31"})

	rows, err := fake.Select(context.Background(), TableVisits,
		Gte("date", "2026-08-30"), Lte("date", "2026-08-31"))
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("len = %d, want 2 in range", len(rows))
	}
	for _, raw := range rows {
		var row struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &row); err != nil {
			t.Fatalf("bad row: %v", err)
		}
		if row.ID == "v-1" {
			t.Error("v-1 leaked through the range filter")
		}
	}
}
