// Package model provides the shared data structures for field-sales records
// exchanged between the durable store, the sync queue, and the remote backend.
//
// All records are flat JSON structures keyed by string IDs with last-write-wins
// semantics. The remote backend is the authoritative owner of every record once
// it has synced; local copies are caches.
package model

import (
	"fmt"
	"time"
)

// DateFormat is the canonical day format used for date-scoped queries.
const DateFormat = "2006-01-02"

// Order represents a confirmed sales order captured during a retailer visit.
type Order struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	RetailerID  string  `json:"retailer_id"`
	TotalAmount float64 `json:"total_amount"`
	Status      string  `json:"status"` // confirmed, draft, cancelled
	Date        string  `json:"date"`   // YYYY-MM-DD

	// RetailerName is denormalized for display only; server logic never
	// reads it.
	RetailerName string `json:"retailer_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the Order has valid field values.
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	if o.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if o.RetailerID == "" {
		return fmt.Errorf("retailer_id is required")
	}
	if o.TotalAmount < 0 {
		return fmt.Errorf("total_amount must not be negative (got %v)", o.TotalAmount)
	}
	return nil
}

// Visit statuses as recorded by the rep in the field.
const (
	VisitProductive   = "productive"
	VisitUnproductive = "unproductive"
)

// Visit represents a single check-in at a retailer.
type Visit struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	RetailerID    string `json:"retailer_id"`
	RetailerName  string `json:"retailer_name,omitempty"`
	Status        string `json:"status,omitempty"` // productive, unproductive, empty while open
	NoOrderReason string `json:"no_order_reason,omitempty"`
	Date          string `json:"date"`
	Invoiced      bool   `json:"invoiced,omitempty"`

	CheckInAt  *time.Time `json:"check_in_at,omitempty"`
	CheckOutAt *time.Time `json:"check_out_at,omitempty"`
}

// Validate checks if the Visit has valid field values.
func (v *Visit) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("id is required")
	}
	if v.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if v.RetailerID == "" {
		return fmt.Errorf("retailer_id is required")
	}
	return nil
}

// Completed reports whether the visit has been closed out by the rep.
func (v *Visit) Completed() bool {
	return v.Status != "" || v.CheckOutAt != nil
}

// BeatPlan is the day's planned route: which retailers the rep should visit.
type BeatPlan struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	BeatID      string   `json:"beat_id"`
	BeatName    string   `json:"beat_name,omitempty"`
	Date        string   `json:"date"`
	RetailerIDs []string `json:"retailer_ids"`
}

// Retailer is a store on the rep's beat.
type Retailer struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	UserID        string  `json:"user_id"`
	AvgOrderValue float64 `json:"avg_order_value,omitempty"`
	PendingAmount float64 `json:"pending_amount,omitempty"`
	Priority      bool    `json:"priority,omitempty"`
	CreatedDate   string  `json:"created_date,omitempty"`
}

// Attendance is the rep's daily attendance record.
type Attendance struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Date      string     `json:"date"`
	Status    string     `json:"status"` // present, leave, absent
	CheckInAt *time.Time `json:"check_in_at,omitempty"`
}
