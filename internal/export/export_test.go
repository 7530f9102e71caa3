package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/aggregate"
	"github.com/sells-group/rooftop-cli/internal/boundary"
	"github.com/sells-group/rooftop-cli/internal/stats"
	"github.com/sells-group/rooftop-cli/internal/tabular"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func example() stats.MunicipalityStats {
	a := stats.ProviderStats{Provider: "google", Strategy: "exact", Count: 1000, AvgAreaM2: 120, TotalAreaM2: 120000, SampleSize: 1000}
	b := stats.ProviderStats{Provider: "microsoft", Strategy: "centroid", Count: 1100, AvgAreaM2: 115, TotalAreaM2: 126500, SampleSize: 1000}
	m := stats.Merge(a, b, 382.5, stats.DefaultEfficiencyFactor)
	m.Code, m.Name, m.DeptName, m.RegionCode, m.RegionName = "05001", "Medellín", "Antioquia", "R1", "Región Uno"
	m.RunID = "run-1"
	return m
}

func rows() []stats.MunicipalityStats {
	z := stats.Merge(stats.ProviderStats{Provider: "google"}, stats.ProviderStats{Provider: "microsoft", Degraded: true, DegradeReason: "query_failure"}, 0, stats.DefaultEfficiencyFactor)
	z.Code, z.Name, z.RegionCode, z.RegionName = "27001", "Quibdó", "R0", "Pacífico"
	y := example()
	y.Code, y.Name = "05002", "Abejorral"
	return []stats.MunicipalityStats{example(), z, y}
}

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.0571, Round(0.05712, 4))
	assert.Equal(t, 10.0, Round(9.999, 2))
	assert.Equal(t, 0.909, Round(1000.0/1100.0, 3))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows()))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"), "BOM")

	recs, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, Header, recs[0])

	// Pacífico sorts before Región Uno; Abejorral before Medellín.
	assert.Equal(t, "27001", recs[1][0])
	assert.Equal(t, "05002", recs[2][0])
	assert.Equal(t, "05001", recs[3][0])

	col := func(name string) int {
		for i, h := range Header {
			if h == name {
				return i
			}
		}
		t.Fatalf("no column %s", name)
		return -1
	}
	med := recs[3]
	assert.Equal(t, "0.12", med[col("a_total_area_km2")])
	assert.Equal(t, "0.0571", med[col("a_useful_area_km2")])
	assert.Equal(t, "100", med[col("diff_count")])
	assert.Equal(t, "10", med[col("diff_pct")])
	assert.Equal(t, "0.9091", med[col("agreement_score")])
	assert.Equal(t, "2.61", med[col("a_density_per_km2")])

	q := recs[1]
	assert.Equal(t, "0", q[col("a_density_per_km2")])
	assert.Equal(t, "true", q[col("b_degraded")])
	assert.Equal(t, "query_failure", q[col("b_degrade_reason")])
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	regions := stats.Rollup(rows())
	require.NoError(t, WriteXLSX(path, rows(), regions))

	muni, err := tabular.ReadXLSX(path, tabular.Options{Sheet: "municipalities", Required: []string{"code"}})
	require.NoError(t, err)
	require.Len(t, muni, 3)
	assert.Equal(t, "27001", muni[0].Get("code"), "codes stay text")
	assert.Equal(t, "Quibdó", muni[0].Get("municipality"))

	reg, err := tabular.ReadXLSX(path, tabular.Options{Sheet: "regions"})
	require.NoError(t, err)
	require.Len(t, reg, 2)
	assert.Equal(t, "R1", reg[0].Get("region_code"))
	assert.Equal(t, "05002", reg[0].Get("a_top_code"))
}

func TestWriteGeoJSON(t *testing.T) {
	bs := []boundary.Boundary{
		{Code: "05001", Geometry: square(-75.7, 6.1, -75.4, 6.4)},
		{Code: "05002"},
		{Code: "99999", Geometry: square(0, 0, 1, 1)},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, bs, rows()))

	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1, "missing geometry and missing row are skipped")

	f := fc.Features[0]
	assert.Equal(t, "05001", f.Properties.MustString("code"))
	assert.Equal(t, 1000.0, f.Properties.MustFloat64("a_count"))
	assert.Equal(t, 0.0571, f.Properties.MustFloat64("a_useful_area_km2"))
	assert.Equal(t, square(-75.7, 6.1, -75.4, 6.4), f.Geometry)
}

func TestManifestRoundTrip(t *testing.T) {
	started := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	m := Manifest{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Parameters: Parameters{Strategy: "auto", SampleLimit: 1000, EfficiencyFactor: 0.476, Codes: []string{"05001"}},
		Providers:  Summarize(rows(), map[string]int64{"google": 10}, map[string]bool{"microsoft": true}),
		Degradations: []aggregate.Degradation{
			{Code: "27001", Provider: "microsoft", Reason: "query_failure", Class: "transient"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteManifest(&buf, m))
	assert.Contains(t, buf.String(), "run_id: run-1")

	got, err := ReadManifest(&buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestSummarize(t *testing.T) {
	got := Summarize(rows(), map[string]int64{"google": 10, "microsoft": 20}, map[string]bool{"microsoft": true})
	require.Len(t, got, 2)

	assert.Equal(t, "google", got[0].Name)
	assert.Equal(t, int64(2000), got[0].TotalCount)
	assert.Equal(t, map[string]int{"exact": 2, "": 1}, got[0].StrategyCounts)

	assert.Equal(t, "microsoft", got[1].Name)
	assert.True(t, got[1].CentroidIndex)
	assert.Equal(t, 1, got[1].Degraded)
	assert.Equal(t, map[string]int{"centroid": 2}, got[1].StrategyCounts)
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteAll(dir, nil, Deliverable{
		Rows:     rows(),
		Regions:  stats.Rollup(rows()),
		Manifest: &Manifest{RunID: "run-1"},
	})
	require.NoError(t, err)
	require.Len(t, paths, 5)
	assert.Equal(t, filepath.Join(dir, "regional_summary.csv"), paths[1])
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	_, err = WriteAll(dir, []string{"pdf"}, Deliverable{})
	assert.ErrorContains(t, err, "unknown format")
}

func TestWriteRegionsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRegionsCSV(&buf, stats.Rollup(rows())))

	got, err := tabular.Collect(tabular.StreamCSV(context.Background(), &buf, tabular.Options{Required: []string{"region_code"}}))
	require.NoError(t, err)
	require.Len(t, got, 2)
	byCode := map[string]tabular.Row{}
	for _, r := range got {
		byCode[r.Get("region_code")] = r
	}
	assert.Equal(t, "2", byCode["R1"].Get("municipalities"))
	assert.Equal(t, "Región Uno", byCode["R1"].Get("region"))
	assert.Equal(t, "2000", byCode["R1"].Get("a_total_count"))
	assert.Equal(t, "1", byCode["R0"].Get("municipalities"))
}

func TestCSVReadableByTabular(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows()))

	got, err := tabular.Collect(tabular.StreamCSV(context.Background(), &buf, tabular.Options{Required: []string{"code"}}))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Pacífico", got[0].Get("region"))
}
