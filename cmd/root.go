package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "parkpulse",
	Short: "Singapore carpark availability and parking budget tracker",
	Long:  "Imports HDB carpark data, syncs realtime lot availability from data.gov.sg, and tracks parking sessions against monthly budgets.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
