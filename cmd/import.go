package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/ingest"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the HDB carpark information CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close() //nolint:errcheck

		result, err := ingest.ImportCarparks(ctx, st, f, ingest.Options{})
		if err != nil {
			return eris.Wrap(err, "import carparks")
		}

		zap.L().Info("import complete",
			zap.String("batch", result.BatchID),
			zap.Int("total", result.Total),
			zap.Int("upserted", result.Upserted),
			zap.Int("defaulted", result.Defaulted),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
