package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/rooftop-cli/internal/config"
	"github.com/sells-group/rooftop-cli/internal/pipeline"
	"github.com/sells-group/rooftop-cli/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Aggregate both providers over every municipality",
	Long: "Counts each provider's footprints inside every municipal boundary, merges the two " +
		"results, replaces the stored result set, rolls it up by region and writes the " +
		"deliverables. --codes limits the run to a few municipalities and never writes the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)
		if err := cfg.Validate(config.ModeRun); err != nil {
			return err
		}
		return runPipeline(cmd.Context(), os.Stdout, runOptions(cmd))
	},
}

// applyRunFlags overrides the aggregate settings given on the command line.
func applyRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("strategy") {
		cfg.Aggregate.Strategy, _ = f.GetString("strategy")
	}
	if f.Changed("sample-limit") {
		cfg.Aggregate.SampleLimit, _ = f.GetInt("sample-limit")
	}
	if f.Changed("concurrency") {
		cfg.Aggregate.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("require-exact") {
		cfg.Aggregate.RequireExact, _ = f.GetBool("require-exact")
	}
	if f.Changed("backend") {
		cfg.Sources.Backend, _ = f.GetString("backend")
	}
}

func runOptions(cmd *cobra.Command) pipeline.Options {
	f := cmd.Flags()
	dryRun, _ := f.GetBool("dry-run")
	codes, _ := f.GetStringSlice("codes")
	noExport, _ := f.GetBool("no-export")

	opts := pipeline.Options{DryRun: dryRun, Formats: cfg.Export.Formats}
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			opts.Codes = append(opts.Codes, c)
		}
	}
	if !noExport {
		opts.ExportDir = cfg.Export.Dir
		if f.Changed("out") {
			opts.ExportDir, _ = f.GetString("out")
		}
	}
	return opts
}

// runPipeline wires the configured sources and store into one pipeline run
// and prints its summary to out.
func runPipeline(ctx context.Context, out io.Writer, opts pipeline.Options) error {
	aggOpts, err := aggregateOptions()
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	env := pipeline.Env{
		Store:            st,
		Aggregate:        aggOpts,
		EfficiencyFactor: cfg.Aggregate.EfficiencyFactor,
		Concurrency:      cfg.Aggregate.Concurrency,
	}

	var pg *store.PostgresStore
	if usesPostGIS() {
		var release func()
		pg, release, err = openPostGIS(ctx, st)
		if err != nil {
			return err
		}
		defer release()
		env.SourceA, env.SourceB, err = postgisSources(pg)
	} else {
		env.SourceA, env.SourceB, err = fileSources(ctx)
	}
	if err != nil {
		return err
	}

	env.Boundaries, err = boundarySource(pg).Boundaries(ctx)
	if err != nil {
		return eris.Wrap(err, "run: read boundaries")
	}

	rep, err := pipeline.Run(ctx, env, opts)
	if err != nil {
		return err
	}

	_, _ = printer.Fprintf(out, "run %s: %d municipalities, %d regions, %d degraded pairs\n",
		rep.RunID, len(rep.Rows), len(rep.Regions), len(rep.Degradations))
	if rep.DryRun {
		_, _ = printer.Fprintln(out, "dry run: results store left untouched")
	}
	formatProfiles(out, rep.Profiles)
	formatRegions(out, rep.Regions)
	formatDegradations(out, rep.Degradations)
	for _, p := range rep.Exports {
		_, _ = printer.Fprintf(out, "wrote %s\n", p)
	}
	return nil
}

func init() {
	f := runCmd.Flags()
	f.String("strategy", "", "containment strategy: auto, exact, centroid or bbox")
	f.Int("sample-limit", 0, "footprints sampled per municipality for the average area")
	f.Int("concurrency", 0, "municipalities aggregated in parallel")
	f.Bool("require-exact", false, "count by exact containment only")
	f.String("backend", "", "building source backend: file or postgis")
	f.StringSlice("codes", nil, "only these municipality codes (implies --dry-run)")
	f.Bool("dry-run", false, "compute and export without writing the results store")
	f.String("out", "", "export directory (defaults to export.dir)")
	f.Bool("no-export", false, "skip writing the deliverables")
	rootCmd.AddCommand(runCmd)
}
