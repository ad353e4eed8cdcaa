package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/salesbeat/fieldsync/internal/dashboard"
	"github.com/salesbeat/fieldsync/internal/model"
	"github.com/salesbeat/fieldsync/internal/ui"
)

var dashboardDate string

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "view",
	Short:   "Show the cached dashboard for a date",
	Long: `Show the dashboard read model: beat progress, revenue, and urgent items.

Renders from the local cache first so the view works offline; when the
backend is reachable the data is refreshed before display. The --date flag
accepts natural language ("today", "yesterday", "last friday") as well as
YYYY-MM-DD.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDashboard(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// parseDate accepts YYYY-MM-DD or a natural-language expression.
func parseDate(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Now().Format(model.DateFormat), nil
	}
	if t, err := time.Parse(model.DateFormat, input); err == nil {
		return t.Format(model.DateFormat), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(input, time.Now())
	if err != nil || result == nil {
		return "", fmt.Errorf("could not parse date %q (try YYYY-MM-DD)", input)
	}
	return result.Time.Format(model.DateFormat), nil
}

func runDashboard() error {
	date, err := parseDate(dashboardDate)
	if err != nil {
		return err
	}

	eng, err := newEngine(os.Stderr, true)
	if err != nil {
		return err
	}
	defer eng.close()

	ctx := context.Background()
	if eng.monitor != nil {
		// One synchronous probe so the cache-first policy has a real
		// connectivity answer instead of the cold offline default.
		eng.monitor.SetOnline(eng.remote.Ping(ctx) == nil)
	}

	data, err := eng.loader.Load(ctx, eng.cfg.Backend.UserID, date)
	if err != nil {
		return err
	}

	renderDashboard(data)
	return nil
}

func renderDashboard(data *dashboard.Data) {
	fmt.Printf("%s Dashboard for %s\n\n", ui.RenderAccent("📊"), data.Date)

	bp := data.Today.BeatProgress
	if data.Today.BeatPlan != nil {
		fmt.Printf("Beat: %s\n", data.Today.BeatPlan.BeatName)
	}
	fmt.Printf("Progress: %s productive, %s unproductive, %s not visited (of %d)\n",
		ui.RenderPass(fmt.Sprintf("%d", bp.Productive)),
		ui.RenderWarn(fmt.Sprintf("%d", bp.Unproductive)),
		ui.RenderDim(fmt.Sprintf("%d", bp.NotVisited)),
		bp.Total)
	fmt.Printf("Daily progress: %.0f%%\n\n", data.Today.DailyProgressPct)

	fmt.Printf("Revenue: %.2f", data.Today.RevenueAchieved)
	if data.Today.RevenueTarget > 0 {
		fmt.Printf(" / %.2f target", data.Today.RevenueTarget)
	}
	if data.Today.PotentialRevenue > 0 {
		fmt.Printf(" (+%.2f potential)", data.Today.PotentialRevenue)
	}
	fmt.Println()

	fmt.Printf("Orders: %d   Visits: %d   Points: %d\n",
		data.Performance.TotalOrders, data.Performance.TotalVisits, data.Today.Points)
	if data.Performance.OnLeave {
		fmt.Printf("%s On approved leave\n", ui.RenderWarn("!"))
	}

	if len(data.Urgent.PendingPayments) > 0 || len(data.Urgent.PriorityRetailers) > 0 {
		fmt.Printf("\n%s Urgent\n", ui.RenderFail("⚠"))
		for _, r := range data.Urgent.PendingPayments {
			fmt.Printf("   %s: %.2f pending\n", r.Name, r.PendingAmount)
		}
		for _, r := range data.Urgent.PriorityRetailers {
			fmt.Printf("   %s: priority retailer\n", r.Name)
		}
	}

	if !data.LastUpdated.IsZero() {
		fmt.Printf("\n%s\n", ui.RenderDim("Last updated "+data.LastUpdated.Format(time.RFC3339)))
	}
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardDate, "date", "", "date to show (default: today)")
	rootCmd.AddCommand(dashboardCmd)
}
