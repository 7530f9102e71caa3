package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/config"
	"github.com/sells-group/rooftop-cli/internal/postgis"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is loaded and stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeReport); err != nil {
			return err
		}
		return showStatus(cmd.Context(), os.Stdout)
	},
}

func showStatus(ctx context.Context, out io.Writer) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	rows, err := st.List(ctx)
	if err != nil {
		return err
	}
	degraded := 0
	for _, r := range rows {
		if r.Degraded() {
			degraded++
		}
	}
	runID := "-"
	if len(rows) > 0 {
		runID = rows[0].RunID
	}
	_, _ = printer.Fprintf(out, "store %s: %d municipalities (%d degraded), run %s\n",
		cfg.Store.Driver, len(rows), degraded, runID)

	if cfg.Store.DatabaseURL == "" {
		return nil
	}
	pg, release, err := openPostGIS(ctx, st)
	if err != nil {
		zap.L().Warn("postgis unavailable", zap.Error(err))
		return nil
	}
	defer release()

	ps, err := postgis.ReadStatus(ctx, pg.Pool())
	if err != nil {
		return err
	}
	formatStatus(out, ps)
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
