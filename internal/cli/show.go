package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"voting-escrow/internal/app"
)

var (
	showLimit     int
	showSnapshots bool
	showJournal   bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display locks, recent supply snapshots and the command journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:     showLimit,
			Snapshots: showSnapshots,
			Journal:   showJournal,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of snapshots/journal entries to display")
	showCmd.Flags().BoolVar(&showSnapshots, "snapshots", true, "Include recent supply snapshots")
	showCmd.Flags().BoolVar(&showJournal, "journal", false, "Include the command journal")
}
