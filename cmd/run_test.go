package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rooftop-cli/internal/config"
	"github.com/sells-group/rooftop-cli/internal/containment"
	"github.com/sells-group/rooftop-cli/internal/pipeline"
	"github.com/sells-group/rooftop-cli/internal/postgis"
	"github.com/sells-group/rooftop-cli/internal/stats"
	"github.com/sells-group/rooftop-cli/internal/store"
)

const boundariesJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"MPIO_CDPMP":"05001","MPIO_CNMBR":"Medellín","DPTO_CNMBR":"Antioquia"},
  "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
 {"type":"Feature","properties":{"MPIO_CDPMP":"05002","MPIO_CNMBR":"Abejorral","DPTO_CNMBR":"Antioquia"},
  "geometry":{"type":"Polygon","coordinates":[[[1,0],[2,0],[2,1],[1,1],[1,0]]]}}
]}`

// footprintCSV writes n small squares starting at (x, y), one per row.
func footprintCSV(n int, x, y float64) string {
	var b strings.Builder
	b.WriteString("latitude,longitude,area_in_meters,confidence,geometry\n")
	for i := range n {
		lx := x + 0.1*float64(i)
		fmt.Fprintf(&b, "%g,%g,120,0.9,\"POLYGON ((%g %g, %g %g, %g %g, %g %g, %g %g))\"\n",
			y, lx, lx, y, lx+0.01, y, lx+0.01, y+0.01, lx, y+0.01, lx, y)
	}
	return b.String()
}

// fileConfig points a default config at fixture files in a temp dir and
// stores results in SQLite there.
func fileConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	c, err := config.Load()
	require.NoError(t, err)

	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	c.Sources.Backend = "file"
	c.Sources.Boundaries = write("mpio.geojson", boundariesJSON)
	c.Sources.ProviderA.Path = write("a.csv", footprintCSV(3, 0.1, 0.1)+strings.SplitN(footprintCSV(2, 1.1, 0.5), "\n", 2)[1])
	c.Sources.ProviderA.Format = "csv"
	c.Sources.ProviderB.Path = write("b.csv", footprintCSV(2, 0.2, 0.3))
	c.Store.Driver = "sqlite"
	c.Store.SQLitePath = filepath.Join(dir, "results.db")
	c.Export.Dir = filepath.Join(dir, "out")
	c.Aggregate.Concurrency = 2

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	require.NoError(t, cfg.Validate(config.ModeRun))
}

func storedRows(t *testing.T) []stats.MunicipalityStats {
	t.Helper()
	st, err := store.NewSQLite(cfg.Store.SQLitePath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	rows, err := st.List(context.Background())
	require.NoError(t, err)
	return rows
}

func TestRunPipeline_FileBackend(t *testing.T) {
	fileConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runPipeline(ctx, &out, pipeline.Options{ExportDir: cfg.Export.Dir, Formats: cfg.Export.Formats}))

	rows := storedRows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "05001", rows[0].Code)
	assert.Equal(t, int64(3), rows[0].A.Count)
	assert.Equal(t, int64(2), rows[0].B.Count)
	assert.Equal(t, "05002", rows[1].Code)
	assert.Equal(t, int64(2), rows[1].A.Count)
	assert.Zero(t, rows[1].B.Count)
	assert.Equal(t, rows[0].RunID, rows[1].RunID)

	assert.Contains(t, out.String(), "2 municipalities")
	assert.Contains(t, out.String(), "PROVIDER")
	for _, name := range []string{"municipality_stats.csv", "regional_summary.csv", "municipality_stats.xlsx", "municipality_stats.geojson", "manifest.yaml"} {
		assert.FileExists(t, filepath.Join(cfg.Export.Dir, name))
	}

	// A second run over the same inputs stores identical rows.
	require.NoError(t, runPipeline(ctx, &bytes.Buffer{}, pipeline.Options{}))
	assert.Equal(t, rows, storedRows(t))
}

func TestRunPipeline_CodesLeaveStoreUntouched(t *testing.T) {
	fileConfig(t)

	var out bytes.Buffer
	require.NoError(t, runPipeline(context.Background(), &out, pipeline.Options{Codes: []string{"5001"}}))
	assert.Contains(t, out.String(), "1 municipalities")
	assert.Contains(t, out.String(), "dry run")
	assert.Empty(t, storedRows(t))
}

func TestRunPipeline_MissingExtract(t *testing.T) {
	fileConfig(t)
	cfg.Sources.ProviderB.Path = filepath.Join(t.TempDir(), "missing.csv")

	err := runPipeline(context.Background(), &bytes.Buffer{}, pipeline.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), cfg.Sources.ProviderB.Name)
}

func TestExportStoredAndStatus(t *testing.T) {
	fileConfig(t)
	ctx := context.Background()

	_, err := exportStored(ctx, cfg.Export.Dir)
	assert.ErrorContains(t, err, "no stored results")

	require.NoError(t, runPipeline(ctx, &bytes.Buffer{}, pipeline.Options{}))

	cfg.Export.Formats = []string{"csv", "geojson"}
	dir := filepath.Join(t.TempDir(), "again")
	paths, err := exportStored(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "municipality_stats.csv"),
		filepath.Join(dir, "regional_summary.csv"),
		filepath.Join(dir, "municipality_stats.geojson"),
	}, paths)

	var out bytes.Buffer
	require.NoError(t, showStatus(ctx, &out))
	assert.Contains(t, out.String(), "store sqlite: 2 municipalities (0 degraded)")
}

func TestProviderArg(t *testing.T) {
	fileConfig(t)

	p, err := providerArg("a")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name)
	p, err = providerArg("Microsoft")
	require.NoError(t, err)
	assert.Equal(t, "buildings_b", p.Table)
	_, err = providerArg("c")
	assert.ErrorContains(t, err, "unknown provider")
}

func TestFieldMap_Overrides(t *testing.T) {
	fileConfig(t)
	cfg.Sources.Fields.Name = "NOMBRE"
	cfg.Sources.Fields.Region = "REGION"

	fm := fieldMap()
	assert.Equal(t, "MPIO_CDPMP", fm.Code)
	assert.Equal(t, "NOMBRE", fm.Name)
	assert.Equal(t, "REGION", fm.Region)
}

func TestAggregateOptions(t *testing.T) {
	fileConfig(t)
	cfg.Aggregate.Strategy = "BBox"
	cfg.Aggregate.QueryTimeoutSecs = 5

	opts, err := aggregateOptions()
	require.NoError(t, err)
	assert.Equal(t, containment.ModeBBox, opts.Policy.Mode)
	assert.Equal(t, 1000, opts.Count.SampleLimit)
	assert.Equal(t, 3, opts.Retry.MaxAttempts)
	assert.Equal(t, "5s", opts.QueryTimeout.String())

	cfg.Aggregate.Strategy = "nearest"
	_, err = aggregateOptions()
	assert.Error(t, err)
}

func TestWantsGeoJSON(t *testing.T) {
	assert.True(t, wantsGeoJSON(nil))
	assert.True(t, wantsGeoJSON([]string{"csv", " GeoJSON"}))
	assert.False(t, wantsGeoJSON([]string{"csv", "xlsx"}))
}

func TestFormatRegions(t *testing.T) {
	var out bytes.Buffer
	formatRegions(&out, []stats.RegionalRollup{{
		RegionName:     "Andina",
		Municipalities: 2,
		A:              stats.ProviderRollup{TotalCount: 12345, TotalAreaKm2: 1.5, Top: stats.TopMunicipality{Name: "Medellín"}},
		B:              stats.ProviderRollup{TotalCount: 999},
	}})
	assert.Contains(t, out.String(), "12,345")
	assert.Contains(t, out.String(), "Medellín")
	assert.Contains(t, out.String(), "REGION")
}

func TestFormatStatus(t *testing.T) {
	var out bytes.Buffer
	formatStatus(&out, postgis.Status{
		Boundaries:        1122,
		InvalidBoundaries: 3,
		Buildings:         []postgis.TableStatus{{Table: "solar.buildings_a", Rows: 200, Centroids: 100}},
		Results:           1122,
	})
	s := out.String()
	assert.Contains(t, s, "1,122")
	assert.Contains(t, s, "(3 invalid)")
	assert.Contains(t, s, "50.0% with centroid")
}
