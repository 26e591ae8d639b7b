package cli

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"voting-escrow/internal/app"
	"voting-escrow/internal/escrow"
)

var (
	lockSender  string
	lockAmount  string
	lockPeriods uint64
	lockUser    string
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Create, top up, extend or withdraw a lock",
}

var lockCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Lock tokens for a number of periods",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmountFlag()
		if err != nil {
			return err
		}
		return runCommand(cmd, escrow.CreateLock{Amount: amount, Periods: escrow.Period(lockPeriods)})
	},
}

var lockDepositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Add tokens to an existing lock (--user defaults to the sender)",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmountFlag()
		if err != nil {
			return err
		}
		deposit := escrow.DepositFor{Amount: amount}
		if lockUser != "" {
			user, err := app.ParseAddress(lockUser)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			deposit.User = user
		}
		return runCommand(cmd, deposit)
	},
}

var lockExtendCmd = &cobra.Command{
	Use:   "extend",
	Short: "Push the lock end out by a number of periods",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, escrow.ExtendLockTime{Periods: escrow.Period(lockPeriods)})
	},
}

var lockWithdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw an expired lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, escrow.Withdraw{})
	},
}

func parseAmountFlag() (*big.Int, error) {
	d, err := app.ParseAmount(lockAmount)
	if err != nil {
		return nil, fmt.Errorf("--amount: %w", err)
	}
	return d.BigInt(), nil
}

func runCommand(cmd *cobra.Command, c escrow.Command) error {
	return getApp().Execute(cmd.Context(), app.CommandOptions{Sender: lockSender}, c)
}

func init() {
	lockCmd.PersistentFlags().StringVar(&lockSender, "sender", "", "Account executing the command")
	_ = lockCmd.MarkPersistentFlagRequired("sender")

	lockCreateCmd.Flags().StringVar(&lockAmount, "amount", "", "Whole token amount")
	lockCreateCmd.Flags().Uint64Var(&lockPeriods, "periods", 0, "Lock duration in periods")
	lockDepositCmd.Flags().StringVar(&lockAmount, "amount", "", "Whole token amount")
	lockDepositCmd.Flags().StringVar(&lockUser, "user", "", "Lock owner to deposit for")
	lockExtendCmd.Flags().Uint64Var(&lockPeriods, "periods", 0, "Additional periods")

	lockCmd.AddCommand(lockCreateCmd, lockDepositCmd, lockExtendCmd, lockWithdrawCmd)
}
