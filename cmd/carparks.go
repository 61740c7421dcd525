package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/parkpulse/parkpulse/internal/geo"
)

var (
	nearLat    float64
	nearLon    float64
	nearRadius float64
	nearLimit  int
)

var carparksCmd = &cobra.Command{
	Use:   "carparks",
	Short: "Query imported carparks",
}

var carparksNearCmd = &cobra.Command{
	Use:   "near",
	Short: "List carparks near a point, nearest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if nearLat == 0 && nearLon == 0 {
			return eris.New("--lat and --lon are required")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		bounds := geo.BoundsAround(nearLat, nearLon, nearRadius)
		candidates, err := st.CarparksInBounds(ctx,
			bounds.Min(1), bounds.Min(0), bounds.Max(1), bounds.Max(0), 1000)
		if err != nil {
			return eris.Wrap(err, "query carparks")
		}

		nearest := geo.Nearest(candidates, nearLat, nearLon, nearRadius, nearLimit)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(nearest)
	},
}

func init() {
	carparksNearCmd.Flags().Float64Var(&nearLat, "lat", 0, "latitude (required)")
	carparksNearCmd.Flags().Float64Var(&nearLon, "lon", 0, "longitude (required)")
	carparksNearCmd.Flags().Float64Var(&nearRadius, "radius", 1000, "search radius in meters")
	carparksNearCmd.Flags().IntVar(&nearLimit, "limit", 20, "max results")
	carparksCmd.AddCommand(carparksNearCmd)
	rootCmd.AddCommand(carparksCmd)
}
