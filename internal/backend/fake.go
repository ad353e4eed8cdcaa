package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Fake is an in-memory Client used in tests and in local development mode.
//
// Rows are stored per table keyed by their "id" field. Set FailAll or add
// table names to FailTables to simulate transient backend failures.
type Fake struct {
	mu     sync.Mutex
	tables map[string]map[string]json.RawMessage

	// Offline makes every call fail, simulating a network outage.
	Offline bool

	// FailTables makes operations on specific tables fail.
	FailTables map[string]bool

	// RPCCalls records every RPC invocation by name.
	RPCCalls []string

	// Inserts counts inserts per table.
	Inserts map[string]int
}

// NewFake creates an empty in-memory backend.
func NewFake() *Fake {
	return &Fake{
		tables:     make(map[string]map[string]json.RawMessage),
		FailTables: make(map[string]bool),
		Inserts:    make(map[string]int),
	}
}

func (f *Fake) failure(table string) error {
	if f.Offline {
		return fmt.Errorf("network unreachable")
	}
	if f.FailTables[table] {
		return fmt.Errorf("backend rejected operation on %s", table)
	}
	return nil
}

func (f *Fake) table(name string) map[string]json.RawMessage {
	if f.tables[name] == nil {
		f.tables[name] = make(map[string]json.RawMessage)
	}
	return f.tables[name]
}

// Seed inserts a row directly, bypassing failure simulation.
func (f *Fake) Seed(table string, record interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, _ := json.Marshal(record)
	f.table(table)[rawID(raw)] = raw
}

// Rows returns the current rows of a table.
func (f *Fake) Rows(table string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []json.RawMessage
	for _, raw := range f.table(table) {
		rows = append(rows, raw)
	}
	return rows
}

// Select implements Client.Select with equality and range filters applied
// against the raw JSON fields.
func (f *Fake) Select(ctx context.Context, table string, filters ...Filter) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(table); err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	for _, raw := range f.table(table) {
		if matchesFilters(raw, filters) {
			rows = append(rows, raw)
		}
	}
	return rows, nil
}

// Insert implements Client.Insert.
func (f *Fake) Insert(ctx context.Context, table string, record interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(table); err != nil {
		return err
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	f.table(table)[rawID(raw)] = raw
	f.Inserts[table]++
	return nil
}

// Update implements Client.Update.
func (f *Fake) Update(ctx context.Context, table, id string, record interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(table); err != nil {
		return err
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	f.table(table)[id] = raw
	return nil
}

// Delete implements Client.Delete.
func (f *Fake) Delete(ctx context.Context, table, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(table); err != nil {
		return err
	}
	delete(f.table(table), id)
	return nil
}

// RPC implements Client.RPC.
func (f *Fake) RPC(ctx context.Context, name string, params interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Offline {
		return fmt.Errorf("network unreachable")
	}
	f.RPCCalls = append(f.RPCCalls, name)
	return nil
}

// Ping implements Client.Ping.
func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Offline {
		return fmt.Errorf("network unreachable")
	}
	return nil
}

func rawID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.ID
}

func matchesFilters(raw json.RawMessage, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}

	for _, f := range filters {
		got := fmt.Sprintf("%v", fields[f.Column])
		switch f.Op {
		case "eq":
			if got != f.Value {
				return false
			}
		case "gte":
			if got < f.Value {
				return false
			}
		case "lte":
			if got > f.Value {
				return false
			}
		default:
			return false
		}
	}
	return true
}
