package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/boundary"
	"github.com/sells-group/rooftop-cli/internal/building"
	"github.com/sells-group/rooftop-cli/internal/config"
	"github.com/sells-group/rooftop-cli/internal/postgis"
	"github.com/sells-group/rooftop-cli/internal/store"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load boundaries or building footprints into PostGIS",
}

var loadBoundariesCmd = &cobra.Command{
	Use:   "boundaries [file]",
	Short: "Load municipal boundaries from a shapefile or GeoJSON file",
	Long: "Reads the boundary file (sources.boundaries unless a path is given), joins the region " +
		"catalog when configured, and upserts every boundary into solar.boundaries.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeLoad); err != nil {
			return err
		}
		ctx := cmd.Context()

		src := boundaryFile()
		if len(args) == 1 {
			src.Path = args[0]
		}
		if src.Path == "" {
			return eris.New("load: no boundary file (pass a path or set sources.boundaries)")
		}
		bs, err := src.Boundaries(ctx)
		if err != nil {
			return err
		}
		if err := boundary.CheckUnique(bs); err != nil {
			return err
		}

		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, poolConfig())
		if err != nil {
			return err
		}
		defer pg.Close() //nolint:errcheck
		if err := pg.Migrate(ctx); err != nil {
			return eris.Wrap(err, "load: migrate")
		}

		n, err := postgis.LoadBoundaries(ctx, pg.Pool(), bs)
		if err != nil {
			return err
		}
		invalid := 0
		for _, b := range bs {
			if !b.Valid {
				invalid++
			}
		}
		zap.L().Info("boundaries loaded",
			zap.String("path", src.Path),
			zap.Int64("rows", n),
			zap.Int("invalid", invalid),
		)
		return nil
	},
}

var loadBuildingsCmd = &cobra.Command{
	Use:   "buildings <a|b> [file]",
	Short: "Load one provider's footprint extract into its building table",
	Long: "Replaces the contents of the provider's building table with the footprints in the " +
		"extract (sources.provider_X.path unless a path is given). Footprints below " +
		"aggregate.min_confidence are dropped while reading.",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeLoad); err != nil {
			return err
		}
		ctx := cmd.Context()

		p, err := providerArg(args[0])
		if err != nil {
			return err
		}
		if len(args) == 2 {
			p.Path = args[1]
		}
		if p.Path == "" {
			return eris.Errorf("load: no extract for provider %s", p.Name)
		}
		table, err := postgis.BuildingTable(p.Table)
		if err != nil {
			return err
		}
		if format, _ := cmd.Flags().GetString("format"); format != "" {
			p.Format = format
		}

		recs, rs, err := building.ReadFile(ctx, p.Path, strings.ToLower(p.Format), cfg.Aggregate.MinConfidence)
		if err != nil {
			return err
		}

		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, poolConfig())
		if err != nil {
			return err
		}
		defer pg.Close() //nolint:errcheck
		if err := pg.Migrate(ctx); err != nil {
			return eris.Wrap(err, "load: migrate")
		}

		n, err := postgis.LoadBuildings(ctx, pg.Pool(), table, recs)
		if err != nil {
			return err
		}
		zap.L().Info("footprints loaded",
			zap.String("provider", p.Name),
			zap.String("table", table),
			zap.Int64("rows", n),
			zap.Int("no_geometry", rs.NoGeometry),
			zap.Int("below_confidence", rs.BelowConfidence),
		)

		if cfg.Aggregate.BuildCentroidIndex {
			if _, err := postgis.BuildCentroids(ctx, pg.Pool(), table); err != nil {
				return err
			}
		}
		return nil
	},
}

// providerArg maps "a"/"b" (or a configured provider name) to its settings.
func providerArg(arg string) (config.ProviderConfig, error) {
	a, b := cfg.Sources.ProviderA, cfg.Sources.ProviderB
	switch strings.ToLower(arg) {
	case "a", strings.ToLower(a.Name):
		return a, nil
	case "b", strings.ToLower(b.Name):
		return b, nil
	}
	return config.ProviderConfig{}, eris.Errorf("unknown provider %q (want a, b, %s or %s)", arg, a.Name, b.Name)
}

func init() {
	loadBuildingsCmd.Flags().String("format", "", "extract format (geojsonl or csv); defaults to the provider's configured format")
	loadCmd.AddCommand(loadBoundariesCmd, loadBuildingsCmd)
	rootCmd.AddCommand(loadCmd)
}
