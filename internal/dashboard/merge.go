package dashboard

import (
	"github.com/salesbeat/fieldsync/internal/model"
)

// MergeOrders unions the authoritative remote order set with local sets that
// may contain orders the backend has not seen yet.
//
// The result is remote ∪ (local \ remote) keyed by order id: every remote
// order is kept untouched, and a local order is added only when its id is
// absent from the remote set. Remote rows win on conflict because the backend
// is authoritative once an order has synced.
func MergeOrders(remote []model.Order, locals ...[]model.Order) []model.Order {
	merged := make([]model.Order, 0, len(remote))
	seen := make(map[string]bool, len(remote))

	for _, o := range remote {
		if o.ID == "" || seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		merged = append(merged, o)
	}

	for _, local := range locals {
		for _, o := range local {
			if o.ID == "" || seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			merged = append(merged, o)
		}
	}

	return merged
}

// ClassifyBeatProgress partitions the planned retailers into productive,
// unproductive, and not-yet-visited.
//
// Multiple visit records for the same retailer are deduplicated before
// classification so a retried visit cannot double-count. A retailer is:
//   - productive if it has a confirmed order, or any visit marked productive
//     (order presence wins over an unproductive visit);
//   - unproductive if its visits are marked unproductive or carry a no-order
//     reason;
//   - not-yet-visited otherwise.
func ClassifyBeatProgress(plannedRetailers []string, visits []model.Visit, orders []model.Order) BeatProgress {
	ordered := make(map[string]bool)
	for _, o := range orders {
		if o.Status == "" || o.Status == "confirmed" {
			ordered[o.RetailerID] = true
		}
	}

	// Collapse visits per retailer: one productive visit makes the retailer
	// productive, otherwise one unproductive/no-order visit makes it
	// unproductive.
	productiveVisit := make(map[string]bool)
	unproductiveVisit := make(map[string]bool)
	for _, v := range visits {
		if v.Status == model.VisitProductive {
			productiveVisit[v.RetailerID] = true
		}
		if v.Status == model.VisitUnproductive || v.NoOrderReason != "" {
			unproductiveVisit[v.RetailerID] = true
		}
	}

	progress := BeatProgress{Total: len(plannedRetailers)}
	for _, retailerID := range plannedRetailers {
		switch {
		case ordered[retailerID] || productiveVisit[retailerID]:
			progress.Productive++
		case unproductiveVisit[retailerID]:
			progress.Unproductive++
		default:
			progress.NotVisited++
		}
	}
	return progress
}

// RevenueAchieved sums total_amount over the merged confirmed-order set.
func RevenueAchieved(orders []model.Order) float64 {
	var total float64
	for _, o := range orders {
		if o.Status == "" || o.Status == "confirmed" {
			total += o.TotalAmount
		}
	}
	return total
}

// PotentialRevenue estimates what the rest of the day could still bring:
// for each planned retailer without a confirmed order yet, the retailer's
// historical average order value.
func PotentialRevenue(plannedRetailers []string, orders []model.Order, retailers []model.Retailer) float64 {
	ordered := make(map[string]bool)
	for _, o := range orders {
		if o.Status == "" || o.Status == "confirmed" {
			ordered[o.RetailerID] = true
		}
	}

	avg := make(map[string]float64, len(retailers))
	for _, r := range retailers {
		avg[r.ID] = r.AvgOrderValue
	}

	var potential float64
	for _, retailerID := range plannedRetailers {
		if !ordered[retailerID] {
			potential += avg[retailerID]
		}
	}
	return potential
}

// DailyProgressPct is completed visits over planned visits, as a 0-100
// percentage. A day with no planned retailers reports 0.
func DailyProgressPct(progress BeatProgress) float64 {
	if progress.Total == 0 {
		return 0
	}
	completed := progress.Productive + progress.Unproductive
	return float64(completed) / float64(progress.Total) * 100
}

// dedupeVisits keeps the first visit per retailer that has a terminal status,
// falling back to the first record seen. Used when persisting the interim
// visit list so retries do not inflate the cached view.
func dedupeVisits(visits []model.Visit) []model.Visit {
	byRetailer := make(map[string]model.Visit)
	var order []string
	for _, v := range visits {
		existing, ok := byRetailer[v.RetailerID]
		if !ok {
			byRetailer[v.RetailerID] = v
			order = append(order, v.RetailerID)
			continue
		}
		if existing.Status == "" && v.Status != "" {
			byRetailer[v.RetailerID] = v
		}
	}

	deduped := make([]model.Visit, 0, len(order))
	for _, id := range order {
		deduped = append(deduped, byRetailer[id])
	}
	return deduped
}
