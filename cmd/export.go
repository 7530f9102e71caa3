package main

import (
	"context"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/boundary"
	"github.com/sells-group/rooftop-cli/internal/config"
	"github.com/sells-group/rooftop-cli/internal/export"
	"github.com/sells-group/rooftop-cli/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the deliverables from the stored results",
	Long: "Reads the stored result set and writes the CSV, XLSX and GeoJSON deliverables " +
		"without recomputing anything.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if f := cmd.Flags(); f.Changed("formats") {
			cfg.Export.Formats, _ = f.GetStringSlice("formats")
		}
		if err := cfg.Validate(config.ModeReport); err != nil {
			return err
		}
		dir := cfg.Export.Dir
		if cmd.Flags().Changed("out") {
			dir, _ = cmd.Flags().GetString("out")
		}
		paths, err := exportStored(cmd.Context(), dir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			_, _ = printer.Fprintf(os.Stdout, "wrote %s\n", p)
		}
		return nil
	},
}

func exportStored(ctx context.Context, dir string) ([]string, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	rows, err := st.List(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "export: list results")
	}
	if len(rows) == 0 {
		return nil, eris.New("export: no stored results (run first)")
	}
	regions, err := st.RollupByRegion(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "export: rollup")
	}

	d := export.Deliverable{Rows: rows, Regions: regions}
	if wantsGeoJSON(cfg.Export.Formats) {
		if d.Boundaries, err = exportBoundaries(ctx, st); err != nil {
			return nil, err
		}
	}
	return export.WriteAll(dir, cfg.Export.Formats, d)
}

func wantsGeoJSON(formats []string) bool {
	if len(formats) == 0 {
		formats = export.DefaultFormats
	}
	return slices.ContainsFunc(formats, func(f string) bool {
		return strings.EqualFold(strings.TrimSpace(f), export.FormatGeoJSON)
	})
}

// exportBoundaries supplies the geometry for the GeoJSON deliverable.
func exportBoundaries(ctx context.Context, st store.Store) ([]boundary.Boundary, error) {
	if usesPostGIS() {
		pg, release, err := openPostGIS(ctx, st)
		if err != nil {
			return nil, err
		}
		defer release()
		return boundarySource(pg).Boundaries(ctx)
	}
	if cfg.Sources.Boundaries == "" {
		zap.L().Warn("no boundary file configured; geojson features will be empty")
		return nil, nil
	}
	return boundaryFile().Boundaries(ctx)
}

func init() {
	exportCmd.Flags().String("out", "", "export directory (defaults to export.dir)")
	exportCmd.Flags().StringSlice("formats", nil, "deliverables to write: csv, xlsx, geojson")
	rootCmd.AddCommand(exportCmd)
}
