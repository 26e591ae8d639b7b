package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	powerAccount string
	powerAt      string
)

var powerCmd = &cobra.Command{
	Use:   "power",
	Short: "Print the voting power of an account, or the total",
	RunE: func(cmd *cobra.Command, args []string) error {
		var at *time.Time
		if powerAt != "" {
			t, err := time.Parse(time.RFC3339, powerAt)
			if err != nil {
				return fmt.Errorf("invalid --at value: %w", err)
			}
			at = &t
		}
		return getApp().Power(cmd.Context(), powerAccount, at)
	},
}

func init() {
	powerCmd.Flags().StringVar(&powerAccount, "account", "", "Account (defaults to total voting power)")
	powerCmd.Flags().StringVar(&powerAt, "at", "", "Timestamp (RFC3339); defaults to now")
}
