package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/accounting"
	"github.com/parkpulse/parkpulse/internal/pricing"
	"github.com/parkpulse/parkpulse/internal/store"
)

var (
	sessionUser    string
	sessionCarpark string
	sessionCap     float64
	sessionCost    float64
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage parking sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a parking session at a carpark",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		svc := accounting.NewService(st, nil)

		params := accounting.StartSessionParams{
			UserID:    sessionUser,
			CarparkID: sessionCarpark,
		}
		if carpark, err := st.GetCarpark(ctx, sessionCarpark); err == nil {
			params.CarparkName = carpark.Address
			params.CarparkAddress = carpark.Address
		} else if !eris.Is(err, store.ErrNotFound) {
			return err
		}
		if sessionCap > 0 {
			params.BudgetCap = &sessionCap
		}

		sess, err := svc.StartSession(ctx, params)
		if err != nil {
			return err
		}

		zap.L().Info("session started",
			zap.String("session", sess.ID),
			zap.String("carpark", sess.CarparkID),
		)
		return printJSON(sess)
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the active parking session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		svc := accounting.NewService(st, nil)

		active, err := svc.ActiveSession(ctx, sessionUser)
		if err != nil {
			return err
		}
		if active == nil {
			return eris.New("no active session")
		}

		finalCost := sessionCost
		if finalCost == 0 {
			rates, err := loadRates()
			if err != nil {
				return err
			}
			calc := pricing.ForCarparkType(rates, carparkType(ctx, st, active.CarparkID))
			finalCost = calc.Estimate(active.Elapsed(svc.Now()))
		}

		ended, err := svc.EndSession(ctx, active.ID, finalCost)
		if err != nil {
			return err
		}

		// Ended sessions roll into the monthly budget when one exists.
		if _, err := svc.AddSpending(ctx, sessionUser, finalCost); err != nil && !eris.Is(err, accounting.ErrNotFound) {
			return err
		}

		zap.L().Info("session ended",
			zap.String("session", ended.ID),
			zap.Float64("cost", finalCost),
		)
		return printJSON(ended)
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active session with live cost estimate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		svc := accounting.NewService(st, nil)

		active, err := svc.ActiveSession(ctx, sessionUser)
		if err != nil {
			return err
		}
		if active == nil {
			return eris.New("no active session")
		}

		rates, err := loadRates()
		if err != nil {
			return err
		}
		calc := pricing.ForCarparkType(rates, carparkType(ctx, st, active.CarparkID))
		now := svc.Now()
		active.EstimatedCost = calc.Estimate(active.Elapsed(now))

		status := map[string]any{
			"session":        active,
			"elapsed":        active.ElapsedClock(now),
			"estimated_cost": active.EstimatedCost,
		}
		if remaining := active.RemainingTimeMinutes(calc.PerMinute()); remaining != nil {
			status["remaining_minutes"] = *remaining
		}
		return printJSON(status)
	},
}

func loadRates() (pricing.Rates, error) {
	if cfg.Pricing.RatesFile != "" {
		return pricing.LoadRates(cfg.Pricing.RatesFile)
	}
	rates := pricing.DefaultRates()
	if cfg.Pricing.PerHour > 0 {
		rates.PerHour = cfg.Pricing.PerHour
	}
	return rates, nil
}

func carparkType(ctx context.Context, st store.Store, carparkID string) string {
	carpark, err := st.GetCarpark(ctx, carparkID)
	if err != nil {
		return ""
	}
	return carpark.CarparkType
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	sessionCmd.PersistentFlags().StringVar(&sessionUser, "user", "", "user id (required)")
	_ = sessionCmd.MarkPersistentFlagRequired("user")

	sessionStartCmd.Flags().StringVar(&sessionCarpark, "carpark", "", "carpark id (required)")
	_ = sessionStartCmd.MarkFlagRequired("carpark")
	sessionStartCmd.Flags().Float64Var(&sessionCap, "cap", 0, "per-session budget cap")

	sessionEndCmd.Flags().Float64Var(&sessionCost, "cost", 0, "final cost override (default: estimate from elapsed time)")

	sessionCmd.AddCommand(sessionStartCmd, sessionEndCmd, sessionStatusCmd)
	rootCmd.AddCommand(sessionCmd)
}
