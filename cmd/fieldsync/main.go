// Command fieldsync runs the field-sales offline sync engine: it drains the
// offline mutation queue against the hosted backend and maintains the cached
// dashboard read model.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline sync engine for field sales data",
	Long: `fieldsync keeps field-captured sales data (orders, visits, attendance,
beats) in sync with the hosted backend.

Mutations made while disconnected are queued in a durable local store and
replayed when connectivity returns. The engine also maintains a locally
cached dashboard of today's beat progress and revenue that stays correct
even while some orders have not yet synced.`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./fieldsync.yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "view", Title: "View Commands:"},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
