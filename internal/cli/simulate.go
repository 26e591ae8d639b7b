package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"voting-escrow/internal/app"
)

var (
	simulateSeed     int64
	simulateAccounts int
	simulateSteps    int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "随机交错执行命令并校验全局投票权等于各账户之和",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAccounts <= 0 || simulateSteps <= 0 {
			return errors.New("--accounts 与 --steps 必须大于 0")
		}
		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Seed:     simulateSeed,
			Accounts: simulateAccounts,
			Steps:    simulateSteps,
		})
	},
}

func init() {
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 1, "随机种子")
	simulateCmd.Flags().IntVar(&simulateAccounts, "accounts", 10, "参与账户数")
	simulateCmd.Flags().IntVar(&simulateSteps, "steps", 500, "执行命令数")
}
