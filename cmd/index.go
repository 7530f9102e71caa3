package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/config"
	"github.com/sells-group/rooftop-cli/internal/postgis"
	"github.com/sells-group/rooftop-cli/internal/store"
)

var indexCmd = &cobra.Command{
	Use:   "index [a|b]...",
	Short: "Precompute footprint centroids and their spatial index",
	Long: "Stores the first-vertex centroid of every footprint that lacks one and builds the " +
		"GiST index the centroid strategy needs. Without arguments both providers are indexed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeIndex); err != nil {
			return err
		}
		ctx := cmd.Context()

		if len(args) == 0 {
			args = []string{"a", "b"}
		}
		var tables []string
		for _, arg := range args {
			p, err := providerArg(arg)
			if err != nil {
				return err
			}
			table, err := postgis.BuildingTable(p.Table)
			if err != nil {
				return err
			}
			tables = append(tables, table)
		}

		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, poolConfig())
		if err != nil {
			return err
		}
		defer pg.Close() //nolint:errcheck

		for _, table := range tables {
			n, err := postgis.BuildCentroids(ctx, pg.Pool(), table)
			if err != nil {
				return err
			}
			zap.L().Info("centroid index ready", zap.String("table", table), zap.Int64("centroids_added", n))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
