package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/tanshuai2008/HouSmart-test/pkg/geoapify"
	"github.com/tanshuai2008/HouSmart-test/pkg/geocode"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Resolve an address to its census block group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []geocode.Option{
			geocode.WithTimeout(seconds(cfg.Geocode.TimeoutSecs)),
			geocode.WithRateLimit(cfg.Geocode.RateLimit),
		}
		var ro []geocode.ResolveOption
		if cfg.Features.EnableGeocoding {
			opts = append(opts, geocode.WithCoordinateClient(geoapify.NewClient(cfg.Geocode.GeoapifyKey)))
		} else {
			ro = append(ro, geocode.WithoutCoordinateLookup())
		}

		geo, err := geocode.NewResolver(opts...).Resolve(cmd.Context(), args[0], ro...)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(geo)
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
