// Package dashboard maintains the locally cached read model of a rep's day:
// beat plan, visits, attendance, and the derived progress and revenue
// figures.
//
// The read model is best-effort and eventually consistent, never a source of
// truth. It is recomputed from the remote backend, patched optimistically on
// local events, and rendered straight from cache when the network is
// unavailable.
package dashboard

import (
	"time"

	"github.com/salesbeat/fieldsync/internal/model"
)

// BeatProgress classifies every planned retailer into exactly one bucket.
// The three counts always sum to Total.
type BeatProgress struct {
	Productive   int `json:"productive"`
	Unproductive int `json:"unproductive"`
	NotVisited   int `json:"not_visited"`
	Total        int `json:"total"`
}

// TodayData is the "today" slice of the read model.
type TodayData struct {
	BeatPlan   *model.BeatPlan   `json:"beat_plan,omitempty"`
	Visits     []model.Visit     `json:"visits,omitempty"`
	Attendance *model.Attendance `json:"attendance,omitempty"`
	Orders     []model.Order     `json:"orders,omitempty"`

	BeatProgress BeatProgress `json:"beat_progress"`

	RevenueTarget    float64 `json:"revenue_target"`
	RevenueAchieved  float64 `json:"revenue_achieved"`
	PotentialRevenue float64 `json:"potential_revenue"`

	// DailyProgressPct is completed visits over planned visits, 0-100.
	DailyProgressPct float64 `json:"daily_progress_pct"`

	Points int `json:"points"`
}

// Performance holds the aggregate counters shown below the fold.
type Performance struct {
	TotalVisits  int     `json:"total_visits"`
	TotalOrders  int     `json:"total_orders"`
	TotalRevenue float64 `json:"total_revenue"`
	NewRetailers int     `json:"new_retailers"`
	OnLeave      bool    `json:"on_leave,omitempty"`
}

// UrgentItems lists the retailers needing attention first.
type UrgentItems struct {
	PendingPayments   []model.Retailer `json:"pending_payments,omitempty"`
	PriorityRetailers []model.Retailer `json:"priority_retailers,omitempty"`
}

// Data is the full dashboard read model, persisted as one JSON blob per user
// in the durable store's dashboard collection.
type Data struct {
	UserID      string      `json:"user_id"`
	Date        string      `json:"date"`
	Today       TodayData   `json:"today"`
	Performance Performance `json:"performance"`
	Urgent      UrgentItems `json:"urgent"`
	LastUpdated time.Time   `json:"last_updated"`
}

// Empty returns the default state shown on a cold start with no cache and no
// network: zeroed figures, never an error screen.
func Empty(userID, date string) *Data {
	return &Data{UserID: userID, Date: date}
}
