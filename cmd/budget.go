package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/accounting"
)

var (
	budgetUser   string
	budgetAmount float64
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage monthly parking budgets",
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the budget limit for the current month",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(cmd, func(svc *accounting.Service) error {
			b, err := svc.SetMonthlyBudget(cmd.Context(), budgetUser, budgetAmount)
			if err != nil {
				return err
			}
			zap.L().Info("budget set",
				zap.String("budget", b.ID),
				zap.Float64("limit", b.LimitAmount),
			)
			return printJSON(b)
		})
	},
}

var budgetAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record additional spending against this month's budget",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(cmd, func(svc *accounting.Service) error {
			b, err := svc.AddSpending(cmd.Context(), budgetUser, budgetAmount)
			if err != nil {
				return err
			}
			return printJSON(b)
		})
	},
}

var budgetRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove spending from this month's budget (a refund or correction)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(cmd, func(svc *accounting.Service) error {
			b, err := svc.RemoveSpending(cmd.Context(), budgetUser, budgetAmount)
			if err != nil {
				return err
			}
			return printJSON(b)
		})
	},
}

var budgetSetSpendCmd = &cobra.Command{
	Use:   "set-spend",
	Short: "Overwrite this month's accumulated spend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(cmd, func(svc *accounting.Service) error {
			b, err := svc.UpdateCurrentSpending(cmd.Context(), budgetUser, budgetAmount)
			if err != nil {
				return err
			}
			return printJSON(b)
		})
	},
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show this month's budget with usage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(cmd, func(svc *accounting.Service) error {
			b, err := svc.CurrentBudget(cmd.Context(), budgetUser)
			if err != nil {
				if eris.Is(err, accounting.ErrNotFound) {
					return eris.New("no budget set for this month")
				}
				return err
			}
			return printJSON(map[string]any{
				"budget":        b,
				"remaining":     b.Remaining(),
				"usage_percent": b.UsagePercent(),
				"exceeded":      b.IsExceeded(),
			})
		})
	},
}

var budgetResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset this month's spending to zero",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(cmd, func(svc *accounting.Service) error {
			b, err := svc.CurrentBudget(cmd.Context(), budgetUser)
			if err != nil {
				return err
			}
			b, err = svc.ResetSpending(cmd.Context(), b.ID)
			if err != nil {
				return err
			}
			zap.L().Info("budget reset", zap.String("budget", b.ID))
			return printJSON(b)
		})
	},
}

// withService opens the store, wraps it in an accounting service, and
// closes it when fn returns.
func withService(cmd *cobra.Command, fn func(*accounting.Service) error) error {
	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	return fn(accounting.NewService(st, nil))
}

func init() {
	budgetCmd.PersistentFlags().StringVar(&budgetUser, "user", "", "user id (required)")
	_ = budgetCmd.MarkPersistentFlagRequired("user")

	for _, c := range []*cobra.Command{budgetSetCmd, budgetAddCmd, budgetRemoveCmd, budgetSetSpendCmd} {
		c.Flags().Float64Var(&budgetAmount, "amount", 0, "amount in dollars (required)")
		_ = c.MarkFlagRequired("amount")
	}

	budgetCmd.AddCommand(budgetSetCmd, budgetAddCmd, budgetRemoveCmd,
		budgetSetSpendCmd, budgetStatusCmd, budgetResetCmd)
	rootCmd.AddCommand(budgetCmd)
}
