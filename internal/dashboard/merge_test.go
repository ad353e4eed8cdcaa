package dashboard

import (
	"testing"

	"github.com/salesbeat/fieldsync/internal/model"
)

func order(id, retailerID string, amount float64, status string) model.Order {
	return model.Order{
		ID: id, UserID: "u-1", RetailerID: retailerID,
		TotalAmount: amount, Status: status, Date: "2026-08-31",
	}
}

func visit(retailerID, status, noOrderReason string) model.Visit {
	return model.Visit{
		ID: "v-" + retailerID, UserID: "u-1", RetailerID: retailerID,
		Status: status, NoOrderReason: noOrderReason, Date: "2026-08-31",
	}
}

func TestMergeOrdersUnion(t *testing.T) {
	remote := []model.Order{
		order("o-1", "r-1", 100, "confirmed"),
		order("o-2", "r-2", 200, "confirmed"),
	}
	local := []model.Order{
		order("o-2", "r-2", 999, "draft"), // already synced; remote wins
		order("o-3", "r-3", 300, "confirmed"),
	}

	merged := MergeOrders(remote, local)

	if len(merged) != 3 {
		t.Fatalf("len = %d, want 3 (no duplicates)", len(merged))
	}

	byID := make(map[string]model.Order)
	for _, o := range merged {
		byID[o.ID] = o
	}
	if byID["o-2"].TotalAmount != 200 {
		t.Errorf("o-2 amount = %v, want remote's 200", byID["o-2"].TotalAmount)
	}
	if _, ok := byID["o-3"]; !ok {
		t.Error("local-only order o-3 missing from merge")
	}
}

func TestMergeOrdersMultipleLocalSets(t *testing.T) {
	remote := []model.Order{order("o-1", "r-1", 100, "confirmed")}
	snap := []model.Order{order("o-2", "r-2", 200, "confirmed")}
	stored := []model.Order{
		order("o-2", "r-2", 200, "confirmed"), // same order in both local sets
		order("o-3", "r-3", 300, "confirmed"),
	}

	merged := MergeOrders(remote, snap, stored)
	if len(merged) != 3 {
		t.Errorf("len = %d, want 3", len(merged))
	}
}

func TestMergeOrdersSkipsEmptyIDs(t *testing.T) {
	merged := MergeOrders(
		[]model.Order{{ID: "", TotalAmount: 50}},
		[]model.Order{{ID: "", TotalAmount: 60}},
	)
	if len(merged) != 0 {
		t.Errorf("len = %d, want 0 (id-less rows dropped)", len(merged))
	}
}

func TestClassifyBeatProgress(t *testing.T) {
	planned := []string{"r-1", "r-2", "r-3", "r-4"}

	tests := []struct {
		name   string
		visits []model.Visit
		orders []model.Order
		want   BeatProgress
	}{
		{
			name: "untouched day",
			want: BeatProgress{NotVisited: 4, Total: 4},
		},
		{
			name: "one of each",
			visits: []model.Visit{
				visit("r-1", model.VisitProductive, ""),
				visit("r-2", model.VisitUnproductive, ""),
			},
			want: BeatProgress{Productive: 1, Unproductive: 1, NotVisited: 2, Total: 4},
		},
		{
			name:   "order without visit counts productive",
			orders: []model.Order{order("o-1", "r-3", 500, "confirmed")},
			want:   BeatProgress{Productive: 1, NotVisited: 3, Total: 4},
		},
		{
			name: "order wins over unproductive visit",
			visits: []model.Visit{
				visit("r-1", model.VisitUnproductive, ""),
			},
			orders: []model.Order{order("o-1", "r-1", 500, "confirmed")},
			want:   BeatProgress{Productive: 1, NotVisited: 3, Total: 4},
		},
		{
			name: "no-order reason counts unproductive",
			visits: []model.Visit{
				visit("r-2", "", "shop closed"),
			},
			want: BeatProgress{Unproductive: 1, NotVisited: 3, Total: 4},
		},
		{
			name: "duplicate visits do not double count",
			visits: []model.Visit{
				visit("r-1", model.VisitProductive, ""),
				visit("r-1", model.VisitProductive, ""),
			},
			want: BeatProgress{Productive: 1, NotVisited: 3, Total: 4},
		},
		{
			name:   "cancelled orders are ignored",
			orders: []model.Order{order("o-1", "r-1", 500, "cancelled")},
			want:   BeatProgress{NotVisited: 4, Total: 4},
		},
		{
			name: "visit outside the plan does not count",
			visits: []model.Visit{
				visit("r-99", model.VisitProductive, ""),
			},
			want: BeatProgress{NotVisited: 4, Total: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyBeatProgress(planned, tt.visits, tt.orders)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.Productive+got.Unproductive+got.NotVisited != got.Total {
				t.Errorf("partition does not sum to total: %+v", got)
			}
		})
	}
}

func TestRevenueAchieved(t *testing.T) {
	orders := []model.Order{
		order("o-1", "r-1", 100, "confirmed"),
		order("o-2", "r-2", 200, ""), // legacy rows with no status count
		order("o-3", "r-3", 999, "cancelled"),
		order("o-4", "r-4", 999, "draft"),
	}
	if got := RevenueAchieved(orders); got != 300 {
		t.Errorf("RevenueAchieved = %v, want 300", got)
	}
}

func TestPotentialRevenue(t *testing.T) {
	planned := []string{"r-1", "r-2", "r-3"}
	retailers := []model.Retailer{
		{ID: "r-1", Name: "A", UserID: "u-1", AvgOrderValue: 500},
		{ID: "r-2", Name: "B", UserID: "u-1", AvgOrderValue: 300},
		{ID: "r-3", Name: "C", UserID: "u-1"}, // no history
	}
	orders := []model.Order{order("o-1", "r-1", 450, "confirmed")}

	// r-1 already ordered; r-2 contributes 300, r-3 contributes 0.
	if got := PotentialRevenue(planned, orders, retailers); got != 300 {
		t.Errorf("PotentialRevenue = %v, want 300", got)
	}
}

func TestDailyProgressPct(t *testing.T) {
	tests := []struct {
		name     string
		progress BeatProgress
		want     float64
	}{
		{"empty plan", BeatProgress{}, 0},
		{"half done", BeatProgress{Productive: 1, Unproductive: 1, NotVisited: 2, Total: 4}, 50},
		{"all done", BeatProgress{Productive: 4, Total: 4}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DailyProgressPct(tt.progress); got != tt.want {
				t.Errorf("DailyProgressPct = %v, want %v", got, tt.want)
			}
		})
	}
}
