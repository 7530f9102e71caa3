// Package store persists per-municipality results. Every run replaces the
// whole result set, so a rerun converges to the same rows.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rooftop-cli/internal/stats"
)

// Store is a results sink keyed by municipality code.
type Store interface {
	// ReplaceAll deletes every stored row and inserts all, atomically.
	ReplaceAll(ctx context.Context, all []stats.MunicipalityStats) error
	// List returns every row ordered by code.
	List(ctx context.Context) ([]stats.MunicipalityStats, error)
	// RollupByRegion groups the stored rows by region.
	RollupByRegion(ctx context.Context) ([]stats.RegionalRollup, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Open returns the store for driver. dsn is a connection string for
// postgres and a file path for sqlite.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch strings.ToLower(driver) {
	case DriverPostgres:
		s, err := NewPostgres(ctx, dsn, poolCfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite, "":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemory(), nil
	}
	return nil, eris.Errorf("store: unknown driver %q", driver)
}

var providerFields = []string{
	"provider", "strategy", "count", "avg_area_m2", "total_area_m2", "total_estimated",
	"total_stderr_m2", "sample_size", "upper_bound", "useful_area_m2", "density_per_km2",
	"coverage_pct", "degraded", "degrade_reason",
}

// statsColumns is the column order shared by inserts and selects.
var statsColumns = func() []string {
	cols := []string{"code", "name", "dept_name", "region_code", "region_name", "subregion", "area_km2"}
	for _, prefix := range []string{"a_", "b_"} {
		for _, f := range providerFields {
			cols = append(cols, prefix+f)
		}
	}
	return append(cols, "diff_count", "diff_pct", "agreement_score", "run_id")
}()

func providerValues(p stats.ProviderStats) []any {
	return []any{
		p.Provider, p.Strategy, p.Count, p.AvgAreaM2, p.TotalAreaM2, p.TotalAreaEstimated,
		p.TotalAreaStdErrM2, p.SampleSize, p.UpperBound, p.UsefulAreaM2, p.DensityPerKm2,
		p.CoveragePct, p.Degraded, p.DegradeReason,
	}
}

func providerTargets(p *stats.ProviderStats) []any {
	return []any{
		&p.Provider, &p.Strategy, &p.Count, &p.AvgAreaM2, &p.TotalAreaM2, &p.TotalAreaEstimated,
		&p.TotalAreaStdErrM2, &p.SampleSize, &p.UpperBound, &p.UsefulAreaM2, &p.DensityPerKm2,
		&p.CoveragePct, &p.Degraded, &p.DegradeReason,
	}
}

func rowValues(m stats.MunicipalityStats) []any {
	row := []any{m.Code, m.Name, m.DeptName, m.RegionCode, m.RegionName, m.Subregion, m.AreaKm2}
	row = append(row, providerValues(m.A)...)
	row = append(row, providerValues(m.B)...)
	return append(row, m.DiffCount, m.DiffPct, m.AgreementScore, m.RunID)
}

func scanTargets(m *stats.MunicipalityStats) []any {
	dst := []any{&m.Code, &m.Name, &m.DeptName, &m.RegionCode, &m.RegionName, &m.Subregion, &m.AreaKm2}
	dst = append(dst, providerTargets(&m.A)...)
	dst = append(dst, providerTargets(&m.B)...)
	return append(dst, &m.DiffCount, &m.DiffPct, &m.AgreementScore, &m.RunID)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanStats(row scannable) (stats.MunicipalityStats, error) {
	var m stats.MunicipalityStats
	err := row.Scan(scanTargets(&m)...)
	return m, err
}

func checkUnique(all []stats.MunicipalityStats) error {
	seen := make(map[string]bool, len(all))
	for _, m := range all {
		if seen[m.Code] {
			return eris.Errorf("store: duplicate municipality code %s", m.Code)
		}
		seen[m.Code] = true
	}
	return nil
}
