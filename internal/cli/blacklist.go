package cli

import (
	"github.com/spf13/cobra"

	"voting-escrow/internal/app"
	"voting-escrow/internal/escrow"
)

var (
	blacklistSender string
	blacklistAppend []string
	blacklistRemove []string
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Add or remove accounts from the blacklist (owner or guardian)",
	RunE: func(cmd *cobra.Command, args []string) error {
		appendAddrs, err := app.ParseAddresses(blacklistAppend)
		if err != nil {
			return err
		}
		removeAddrs, err := app.ParseAddresses(blacklistRemove)
		if err != nil {
			return err
		}
		return getApp().Execute(cmd.Context(), app.CommandOptions{Sender: blacklistSender},
			escrow.UpdateBlacklist{Append: appendAddrs, Remove: removeAddrs})
	},
}

func init() {
	blacklistCmd.Flags().StringVar(&blacklistSender, "sender", "", "Owner or guardian account")
	blacklistCmd.Flags().StringSliceVar(&blacklistAppend, "append", nil, "Accounts to blacklist")
	blacklistCmd.Flags().StringSliceVar(&blacklistRemove, "remove", nil, "Accounts to restore")
	_ = blacklistCmd.MarkFlagRequired("sender")
}
