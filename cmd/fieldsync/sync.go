package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/salesbeat/fieldsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Replay the pending mutation queue now",
	Long: `Run a manual sync pass over the offline mutation queue.

Each pending entry is replayed against the hosted backend:
  1. Entries are processed oldest first
  2. A successful replay removes the entry
  3. A failed replay increments its retry count and the pass continues
  4. Entries past the retry ceiling are never attempted

This respects the same retry ceiling as automatic sync, so permanently
stuck entries need 'fieldsync queue cleanup' to clear.`,
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine(os.Stderr, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		pending, err := eng.queue.PendingCount(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading queue: %v\n", err)
			os.Exit(1)
		}
		if pending == 0 {
			fmt.Printf("%s Nothing to sync\n", ui.RenderPass("✓"))
			return
		}

		fmt.Printf("%s Syncing %d pending entries...\n", ui.RenderAccent("🔄"), pending)
		start := time.Now()

		result, err := eng.proc.ProcessSyncQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			os.Exit(1)
		}

		elapsed := time.Since(start)
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), elapsed.Round(time.Millisecond))
		fmt.Printf("   Synced: %d\n", result.Processed)
		if result.Failed > 0 {
			fmt.Printf("   %s Failed: %d (will retry)\n", ui.RenderWarn("⚠"), result.Failed)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
