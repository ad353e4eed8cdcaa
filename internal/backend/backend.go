// Package backend provides the remote backend client.
//
// The backend is consumed as a set of named row collections ("tables")
// supporting filtered select, insert, update, and delete, each keyed by a
// record id and scoped by user_id/date predicates, plus named RPC calls.
// Every operation is a fallible, context-aware call; no multi-table
// transactional semantics are assumed.
//
// The wire implementation speaks a PostgREST-style HTTP API. Tests substitute
// an httptest server or the Fake in fake.go.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
)

// Table names on the remote backend.
const (
	TableOrders          = "orders"
	TableVisits          = "visits"
	TableRetailers       = "retailers"
	TableAttendance      = "attendance"
	TableBeats           = "beats"
	TableBeatPlans       = "beat_plans"
	TableStock           = "stock"
	TableNoOrders        = "no_orders"
	TableCompetitionData = "competition_data"
	TableReturnStock     = "return_stock"
	TablePoints          = "points"
	TableLeaves          = "leaves"
)

// Filter is a single column predicate on a select.
type Filter struct {
	Column string
	Op     string // eq, gte, lte
	Value  string
}

// Eq builds an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Op: "eq", Value: value}
}

// Gte builds a greater-or-equal filter.
func Gte(column, value string) Filter {
	return Filter{Column: column, Op: "gte", Value: value}
}

// Lte builds a less-or-equal filter.
func Lte(column, value string) Filter {
	return Filter{Column: column, Op: "lte", Value: value}
}

// Client is the remote backend surface the sync processor and the dashboard
// loader consume.
type Client interface {
	// Select returns the rows of a table matching all filters.
	Select(ctx context.Context, table string, filters ...Filter) ([]json.RawMessage, error)

	// Insert creates a row. The record is marshaled to JSON.
	Insert(ctx context.Context, table string, record interface{}) error

	// Update replaces the row with the given id.
	Update(ctx context.Context, table, id string, record interface{}) error

	// Delete removes the row with the given id. Idempotent.
	Delete(ctx context.Context, table, id string) error

	// RPC invokes a named server-side function with JSON params.
	RPC(ctx context.Context, name string, params interface{}) error

	// Ping probes the backend for reachability. Used by the connectivity
	// monitor; a nil return means online.
	Ping(ctx context.Context) error
}

// SelectInto selects rows and unmarshals each into dst's element type.
// dst must be a pointer to a slice.
func SelectInto(ctx context.Context, c Client, table string, dst interface{}, filters ...Filter) error {
	rows, err := c.Select(ctx, table, filters...)
	if err != nil {
		return err
	}

	// Re-marshal as a JSON array and decode in one pass so callers get
	// plain typed slices without reflection here.
	buf, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to assemble rows for %s: %w", table, err)
	}
	if err := json.Unmarshal(buf, dst); err != nil {
		return fmt.Errorf("failed to decode rows for %s: %w", table, err)
	}
	return nil
}
