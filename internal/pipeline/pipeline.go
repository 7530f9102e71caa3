// Package pipeline runs one full aggregation: every boundary against both
// building sources, merged, persisted, rolled up and exported.
package pipeline

import (
	"context"
	"crypto/sha1"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/aggregate"
	"github.com/sells-group/rooftop-cli/internal/boundary"
	"github.com/sells-group/rooftop-cli/internal/building"
	"github.com/sells-group/rooftop-cli/internal/containment"
	"github.com/sells-group/rooftop-cli/internal/export"
	"github.com/sells-group/rooftop-cli/internal/stats"
	"github.com/sells-group/rooftop-cli/internal/store"
)

// runNamespace scopes run identifiers derived from run inputs.
var runNamespace = uuid.MustParse("6f1c1e43-4c39-4a8e-9a53-5d3f1a0c2b7e")

// Env is everything a run reads and writes. The CLI builds it once.
type Env struct {
	Boundaries []boundary.Boundary
	// SourceA and SourceB are the two providers, in report order.
	SourceA building.Source
	SourceB building.Source
	Store   store.Store

	Aggregate        aggregate.Options
	EfficiencyFactor float64
	Concurrency      int
}

// Options select what a run does with its results.
type Options struct {
	// DryRun computes everything but leaves the store untouched.
	DryRun bool
	// Codes restricts the run to these municipality codes and implies DryRun.
	Codes []string
	// ExportDir, when set, receives the deliverables and manifest.
	ExportDir string
	Formats   []string
}

// Report is the outcome of a run.
type Report struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	DryRun       bool
	Codes        []string
	Rows         []stats.MunicipalityStats
	Regions      []stats.RegionalRollup
	Degradations []aggregate.Degradation
	Profiles     []containment.Profile
	Exports      []string
}

// Run aggregates, merges, replaces the stored result set, rolls up and
// exports. Only an unreadable input set, a failed store write or export, or
// cancellation fail the run; per-pair failures are reported as degradations.
func Run(ctx context.Context, env Env, opts Options) (*Report, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	if env.SourceA == nil || env.SourceB == nil {
		return nil, eris.New("pipeline: two building sources are required")
	}

	bs, err := selectCodes(env.Boundaries, opts.Codes)
	if err != nil {
		return nil, err
	}
	dryRun := opts.DryRun || len(opts.Codes) > 0
	if !dryRun && env.Store == nil {
		return nil, eris.New("pipeline: no results store")
	}
	efficiency := env.EfficiencyFactor
	if efficiency <= 0 {
		efficiency = stats.DefaultEfficiencyFactor
	}

	rep := &Report{StartedAt: time.Now().UTC(), DryRun: dryRun, Codes: opts.Codes}

	agg := aggregate.New(ctx, env.Aggregate, env.SourceA, env.SourceB)
	rep.Profiles = agg.Profiles()
	rep.RunID = runID(env, efficiency, rep.Profiles, bs)
	log = log.With(zap.String("run_id", rep.RunID))
	log.Info("run started", zap.Int("boundaries", len(bs)), zap.Bool("dry_run", dryRun))

	ms, err := agg.All(ctx, bs, env.Concurrency)
	if err != nil {
		return nil, err
	}

	rep.Rows = make([]stats.MunicipalityStats, len(ms))
	for i, m := range ms {
		rep.Rows[i] = merge(m, efficiency, rep.RunID)
		rep.Degradations = append(rep.Degradations, m.Degradations...)
	}

	if dryRun {
		rep.Regions = stats.Rollup(rep.Rows)
	} else {
		if err := env.Store.ReplaceAll(ctx, rep.Rows); err != nil {
			return nil, eris.Wrap(err, "pipeline: write results")
		}
		if rep.Regions, err = env.Store.RollupByRegion(ctx); err != nil {
			return nil, eris.Wrap(err, "pipeline: rollup")
		}
	}

	rep.FinishedAt = time.Now().UTC()
	if opts.ExportDir != "" {
		m := rep.Manifest(env, efficiency)
		rep.Exports, err = export.WriteAll(opts.ExportDir, opts.Formats, export.Deliverable{
			Rows:       rep.Rows,
			Regions:    rep.Regions,
			Boundaries: bs,
			Manifest:   &m,
		})
		if err != nil {
			return nil, err
		}
	}

	log.Info("run finished",
		zap.Int("municipalities", len(rep.Rows)),
		zap.Int("regions", len(rep.Regions)),
		zap.Int("degraded_pairs", len(rep.Degradations)),
		zap.Duration("elapsed", rep.FinishedAt.Sub(rep.StartedAt)),
	)
	return rep, nil
}

func merge(m aggregate.Municipality, efficiency float64, runID string) stats.MunicipalityStats {
	b := m.Boundary
	out := stats.Merge(m.Stats[0], m.Stats[1], b.AreaKm2, efficiency)
	out.Code = b.Code
	out.Name = b.Name
	out.DeptName = b.DeptName
	out.RegionCode = b.RegionCode
	out.RegionName = b.RegionName
	out.Subregion = b.Subregion
	out.RunID = runID
	return out
}

func selectCodes(bs []boundary.Boundary, codes []string) ([]boundary.Boundary, error) {
	if len(codes) == 0 {
		return bs, nil
	}
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		norm, err := boundary.NormalizeCode(c)
		if err != nil {
			return nil, err
		}
		want[norm] = true
	}
	var out []boundary.Boundary
	for _, b := range bs {
		if want[b.Code] {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, eris.Errorf("pipeline: none of the codes %s is a known boundary", strings.Join(codes, ","))
	}
	return out, nil
}

// runID derives the run identifier from the run's inputs, so rerunning
// unchanged inputs stores identical rows.
func runID(env Env, efficiency float64, profiles []containment.Profile, bs []boundary.Boundary) string {
	h := sha1.New()
	p := env.Aggregate.Policy
	fmt.Fprintf(h, "%s|%t|%d|%d|%g|%g\n",
		p.Mode, p.RequireExact, p.ExactMaxRecords, env.Aggregate.Count.SampleLimit,
		env.Aggregate.Count.MinConfidence, efficiency)
	for _, prof := range profiles {
		fmt.Fprintf(h, "%s|%d|%t\n", prof.Provider, prof.Size, prof.Indexed)
	}
	codes := make([]string, len(bs))
	for i, b := range bs {
		codes[i] = b.Code
	}
	slices.Sort(codes)
	fmt.Fprintln(h, strings.Join(codes, ","))
	return uuid.NewSHA1(runNamespace, h.Sum(nil)).String()
}

// Manifest describes the run for export.
func (r *Report) Manifest(env Env, efficiency float64) export.Manifest {
	sizes := make(map[string]int64)
	indexed := make(map[string]bool)
	for _, p := range r.Profiles {
		sizes[p.Provider] = p.Size
		indexed[p.Provider] = p.Indexed
	}
	mode := string(env.Aggregate.Policy.Mode)
	if mode == "" {
		mode = string(containment.ModeAuto)
	}
	return export.Manifest{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Parameters: export.Parameters{
			Strategy:         mode,
			RequireExact:     env.Aggregate.Policy.RequireExact,
			ExactMaxRecords:  env.Aggregate.Policy.ExactMaxRecords,
			SampleLimit:      env.Aggregate.Count.SampleLimit,
			MinConfidence:    env.Aggregate.Count.MinConfidence,
			EfficiencyFactor: efficiency,
			Concurrency:      env.Concurrency,
			DryRun:           r.DryRun,
			Codes:            r.Codes,
		},
		Municipalities: len(r.Rows),
		Regions:        len(r.Regions),
		Providers:      export.Summarize(r.Rows, sizes, indexed),
		Degradations:   r.Degradations,
	}
}
