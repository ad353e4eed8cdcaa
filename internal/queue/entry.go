// Package queue provides the durable offline mutation queue.
//
// Every mutation made while offline (or speculatively, as a durability
// measure) is appended here and later replayed against the remote backend by
// the sync processor. Entries live in the durable store's sync_queue
// collection and survive restarts.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action identifies the kind of mutation a queue entry carries.
type Action string

// The full set of replayable mutations.
const (
	ActionCreateOrder           Action = "CREATE_ORDER"
	ActionUpdateOrder           Action = "UPDATE_ORDER"
	ActionCreateVisit           Action = "CREATE_VISIT"
	ActionCheckIn               Action = "CHECK_IN"
	ActionCheckOut              Action = "CHECK_OUT"
	ActionCreateStock           Action = "CREATE_STOCK"
	ActionUpdateStock           Action = "UPDATE_STOCK"
	ActionCreateRetailer        Action = "CREATE_RETAILER"
	ActionUpdateRetailer        Action = "UPDATE_RETAILER"
	ActionDeleteRetailer        Action = "DELETE_RETAILER"
	ActionCreateAttendance      Action = "CREATE_ATTENDANCE"
	ActionUpdateAttendance      Action = "UPDATE_ATTENDANCE"
	ActionCreateBeat            Action = "CREATE_BEAT"
	ActionUpdateBeat            Action = "UPDATE_BEAT"
	ActionDeleteBeat            Action = "DELETE_BEAT"
	ActionCreateBeatPlan        Action = "CREATE_BEAT_PLAN"
	ActionUpdateBeatPlan        Action = "UPDATE_BEAT_PLAN"
	ActionNoOrder               Action = "NO_ORDER"
	ActionCreateCompetitionData Action = "CREATE_COMPETITION_DATA"
	ActionCreateReturnStock     Action = "CREATE_RETURN_STOCK"
	ActionSendInvoiceSMS        Action = "SEND_INVOICE_SMS"
)

// actionLabels maps actions to the human-readable labels shown in the queue
// detail view.
var actionLabels = map[Action]string{
	ActionCreateOrder:           "Create order",
	ActionUpdateOrder:           "Update order",
	ActionCreateVisit:           "Record visit",
	ActionCheckIn:               "Check in",
	ActionCheckOut:              "Check out",
	ActionCreateStock:           "Record stock",
	ActionUpdateStock:           "Update stock",
	ActionCreateRetailer:        "Add retailer",
	ActionUpdateRetailer:        "Update retailer",
	ActionDeleteRetailer:        "Remove retailer",
	ActionCreateAttendance:      "Mark attendance",
	ActionUpdateAttendance:      "Update attendance",
	ActionCreateBeat:            "Create beat",
	ActionUpdateBeat:            "Update beat",
	ActionDeleteBeat:            "Remove beat",
	ActionCreateBeatPlan:        "Create beat plan",
	ActionUpdateBeatPlan:        "Update beat plan",
	ActionNoOrder:               "Record no-order reason",
	ActionCreateCompetitionData: "Record competition data",
	ActionCreateReturnStock:     "Record stock return",
	ActionSendInvoiceSMS:        "Send invoice SMS",
}

// Label returns the human-readable description for an action.
// Unknown actions fall back to the raw action string.
func (a Action) Label() string {
	if label, ok := actionLabels[a]; ok {
		return label
	}
	return string(a)
}

// Valid reports whether the action is one of the known mutation kinds.
func (a Action) Valid() bool {
	_, ok := actionLabels[a]
	return ok
}

// Entry state as surfaced to the status view. Never persisted; derived at
// display time.
const (
	StatusPending = "pending"
	StatusSyncing = "syncing"
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	// RetryCeiling is the number of failed replay attempts after which an
	// entry is considered stuck and excluded from automatic retry.
	RetryCeiling = 5

	// StaleAfter is the age past which an unsynced entry is excluded from
	// the actionable-pending view and removed by the startup cleanup.
	StaleAfter = time.Hour
)

// Entry is a single queued mutation awaiting replay.
type Entry struct {
	ID     string `json:"id"`
	Action Action `json:"action"`

	// Data is the action-specific payload: the record to create or update,
	// plus denormalized display fields (retailer name) used only for
	// rendering the queue view.
	Data json.RawMessage `json:"data"`

	// Timestamp is the enqueue time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`

	// RetryCount is incremented on each failed replay attempt.
	RetryCount int `json:"retry_count"`
}

// Validate checks if the entry has valid field values.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !e.Action.Valid() {
		return fmt.Errorf("unknown action %q", e.Action)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("timestamp is required")
	}
	if e.RetryCount < 0 {
		return fmt.Errorf("retry_count must not be negative (got %d)", e.RetryCount)
	}
	return nil
}

// CreatedAt returns the enqueue time as a time.Time.
func (e *Entry) CreatedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Age returns how long the entry has been queued as of now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt())
}

// Stuck reports whether the entry has exhausted its automatic retries.
func (e *Entry) Stuck() bool {
	return e.RetryCount >= RetryCeiling
}

// Stale reports whether the entry has aged past the staleness window.
func (e *Entry) Stale(now time.Time) bool {
	return e.Age(now) > StaleAfter
}

// Actionable reports whether the entry counts toward the pending view and is
// eligible for automatic replay.
func (e *Entry) Actionable(now time.Time) bool {
	return !e.Stuck() && !e.Stale(now)
}
