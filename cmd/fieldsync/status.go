package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/salesbeat/fieldsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "view",
	Short:   "Show queue and connectivity status",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStatus(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runStatus() error {
	eng, err := newEngine(os.Stderr, false)
	if err != nil {
		return err
	}
	defer eng.close()

	ctx := context.Background()

	pending, err := eng.queue.PendingCount(ctx)
	if err != nil {
		return err
	}
	stuck, err := eng.queue.Stuck(ctx)
	if err != nil {
		return err
	}
	all, err := eng.queue.All(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s fieldsync status\n\n", ui.RenderAccent("●"))

	if eng.remote == nil {
		fmt.Printf("Backend:  %s\n", ui.RenderDim("not configured (run 'fieldsync init')"))
	} else if eng.remote.Ping(ctx) == nil {
		fmt.Printf("Backend:  %s\n", ui.RenderPass("online"))
	} else {
		fmt.Printf("Backend:  %s\n", ui.RenderFail("offline"))
	}

	fmt.Printf("Queue:    %d total, %d pending", len(all), pending)
	if len(stuck) > 0 {
		fmt.Printf(", %s", ui.RenderFail(fmt.Sprintf("%d stuck", len(stuck))))
	}
	fmt.Println()

	if len(stuck) > 0 {
		fmt.Printf("\n%s Entries past the retry ceiling (run 'fieldsync queue cleanup'):\n",
			ui.RenderWarn("⚠"))
		for _, e := range stuck {
			fmt.Printf("   %.8s  %s  %d retries\n", e.ID, e.Action.Label(), e.RetryCount)
		}
	}

	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
