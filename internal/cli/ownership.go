package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voting-escrow/internal/app"
	"voting-escrow/internal/escrow"
)

var (
	ownershipSender    string
	ownershipNewOwner  string
	ownershipExpiresIn time.Duration
)

var ownershipCmd = &cobra.Command{
	Use:   "ownership",
	Short: "Two-step ownership transfer",
}

var ownershipProposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose a new owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		newOwner, err := app.ParseAddress(ownershipNewOwner)
		if err != nil {
			return fmt.Errorf("--new-owner: %w", err)
		}
		return runOwnership(cmd, escrow.ProposeNewOwner{NewOwner: newOwner, ExpiresIn: ownershipExpiresIn})
	},
}

var ownershipDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the pending proposal",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOwnership(cmd, escrow.DropOwnershipProposal{})
	},
}

var ownershipClaimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim ownership as the proposed owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOwnership(cmd, escrow.ClaimOwnership{})
	},
}

func runOwnership(cmd *cobra.Command, c escrow.Command) error {
	return getApp().Execute(cmd.Context(), app.CommandOptions{Sender: ownershipSender}, c)
}

func init() {
	ownershipCmd.PersistentFlags().StringVar(&ownershipSender, "sender", "", "Account executing the command")
	_ = ownershipCmd.MarkPersistentFlagRequired("sender")

	ownershipProposeCmd.Flags().StringVar(&ownershipNewOwner, "new-owner", "", "Proposed owner")
	ownershipProposeCmd.Flags().DurationVar(&ownershipExpiresIn, "expires-in", 7*24*time.Hour, "Proposal lifetime")

	ownershipCmd.AddCommand(ownershipProposeCmd, ownershipDropCmd, ownershipClaimCmd)
}
