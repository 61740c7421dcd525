package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/internal/store"
	"github.com/parkpulse/parkpulse/pkg/datagov"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the current lot availability snapshot from data.gov.sg",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		client := newDataGovClient()
		n, err := syncAvailability(cmd.Context(), client, st)
		if err != nil {
			return err
		}

		zap.L().Info("availability sync complete", zap.Int("readings", n))
		return nil
	},
}

func newDataGovClient() *datagov.Client {
	opts := []datagov.Option{
		datagov.WithRateLimit(cfg.DataGov.RatePerSec),
		datagov.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.DataGov.TimeoutSecs) * time.Second,
		}),
	}
	if cfg.DataGov.BaseURL != "" {
		opts = append(opts, datagov.WithBaseURL(cfg.DataGov.BaseURL))
	}
	return datagov.NewClient(opts...)
}

// syncAvailability pulls one snapshot and upserts it.
func syncAvailability(ctx context.Context, client *datagov.Client, st store.Store) (int, error) {
	readings, err := client.CarparkAvailability(ctx, time.Time{})
	if err != nil {
		return 0, eris.Wrap(err, "fetch availability")
	}

	rows := make([]model.LotAvailability, 0, len(readings))
	for _, r := range readings {
		rows = append(rows, model.LotAvailability{
			CarparkID:     r.CarparkNumber,
			LotType:       r.LotType,
			LotsTotal:     r.TotalLots,
			LotsAvailable: r.LotsAvailable,
			AsOf:          r.UpdatedAt,
		})
	}
	n, err := st.UpsertAvailability(ctx, rows)
	if err != nil {
		return 0, eris.Wrap(err, "upsert availability")
	}
	return n, nil
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
