package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/salesbeat/fieldsync/internal/queue"
	"github.com/salesbeat/fieldsync/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "Inspect and manage the offline mutation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued mutations with their status",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine(os.Stderr, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		ctx := context.Background()
		entries, err := eng.queue.All(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading queue: %v\n", err)
			os.Exit(1)
		}

		if len(entries) == 0 {
			fmt.Printf("%s Queue is empty\n", ui.RenderPass("✓"))
			return
		}

		now := time.Now()
		fmt.Printf("\n%s Offline Queue (%d entries)\n\n", ui.RenderAccent("📋"), len(entries))
		for _, entry := range entries {
			marker := ui.RenderWarn("●")
			status := "pending"
			switch {
			case entry.Stuck():
				marker = ui.RenderFail("✗")
				status = fmt.Sprintf("stuck (%d attempts)", entry.RetryCount)
			case entry.Stale(now):
				marker = ui.RenderDim("○")
				status = "stale"
			case entry.RetryCount > 0:
				status = fmt.Sprintf("pending (%d attempts)", entry.RetryCount)
			}
			fmt.Printf("%s %-26s %s %s\n", marker, entry.Action.Label(),
				ui.RenderDim(entry.CreatedAt().Format("15:04:05")), ui.RenderDim(status))
		}
		fmt.Println()
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add <action> [json]",
	Short: "Enqueue a mutation by hand",
	Long: `Enqueue a mutation as if it had been captured offline. The payload is
raw JSON for the action's backend table; it defaults to {}.

Mostly useful for testing a backend configuration end to end.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		action := queue.Action(args[0])
		if !action.Valid() {
			fmt.Fprintf(os.Stderr, "Error: unknown action %q\n", args[0])
			os.Exit(1)
		}
		payload := json.RawMessage(`{}`)
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				fmt.Fprintf(os.Stderr, "Error: payload is not valid JSON\n")
				os.Exit(1)
			}
			payload = json.RawMessage(args[1])
		}

		eng, err := newEngine(os.Stderr, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		entry, err := eng.queue.Enqueue(context.Background(), action, payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error enqueueing: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Queued %s (%s)\n", ui.RenderPass("✓"), action.Label(), entry.ID[:8])
	},
}

var queueCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stuck and stale queue entries",
	Long: `Remove entries that have exhausted their retries or aged past the
staleness window. The daemon runs this automatically at startup; run it
manually to clear a stuck pending badge immediately.`,
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine(os.Stderr, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		removed, err := eng.queue.CleanupStuckItems(context.Background(), nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during cleanup: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Removed %d entries\n", ui.RenderPass("✓"), removed)
	},
}

var queueExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the queue to a JSONL file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine(os.Stderr, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		written, err := eng.queue.ExportFile(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting queue: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Exported %d entries to %s\n", ui.RenderPass("✓"), written, args[0])
	},
}

var queueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import queue entries from a JSONL file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine(os.Stderr, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.close()

		imported, skipped, err := eng.queue.ImportFile(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing queue: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Imported %d entries", ui.RenderPass("✓"), imported)
		if skipped > 0 {
			fmt.Printf(" (%s %d skipped)", ui.RenderWarn("⚠"), skipped)
		}
		fmt.Println()
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueCleanupCmd)
	queueCmd.AddCommand(queueExportCmd)
	queueCmd.AddCommand(queueImportCmd)
	rootCmd.AddCommand(queueCmd)
}
