package building

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rooftop-cli/internal/geometry"
)

func box(x, y, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

// triangle boundary with its right angle at the origin: the hypotenuse runs
// from (10,0) to (0,10), so the box corner near (10,10) lies outside.
var triangle = orb.Polygon{orb.Ring{{0, 0}, {10, 0}, {0, 10}, {0, 0}}}

func fixture() *Dataset {
	return NewDataset("a", []Record{
		{ID: 4, Polygon: box(8, 8, 0.5), AreaM2: 40},  // box only
		{ID: 1, Polygon: box(1, 1, 0.5), AreaM2: 10},  // inside
		{ID: 3, Polygon: box(4.8, 4.8, 0.5), AreaM2: 30}, // first vertex inside, straddles hypotenuse
		{ID: 2, Polygon: box(2, 2, 0.5), AreaM2: 0},   // inside, no usable area
		{ID: 5, Polygon: box(20, 20, 0.5), AreaM2: 50}, // outside everything
	})
}

func query(p Predicate) Query {
	bb, _ := geometry.BoundingBox(triangle)
	return Query{Predicate: p, Boundary: triangle, Box: bb}
}

func TestNewDataset_SortsByID(t *testing.T) {
	d := fixture()
	var ids []int64
	for _, r := range d.Records() {
		ids = append(ids, r.ID)
		assert.Equal(t, "a", r.Provider)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
	n, err := d.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestCountAndSample_Predicates(t *testing.T) {
	d := fixture()
	require.NoError(t, d.BuildCentroidIndex())
	ctx := context.Background()

	within, err := d.CountAndSample(ctx, query(PredicateWithin), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), within.Count)
	assert.Equal(t, []float64{10}, within.Sample)

	centroid, err := d.CountAndSample(ctx, query(PredicateCentroidWithin), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(3), centroid.Count)
	assert.ElementsMatch(t, []float64{10, 30}, centroid.Sample)

	bbox, err := d.CountAndSample(ctx, query(PredicateFirstVertexInBox), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(4), bbox.Count)
	assert.ElementsMatch(t, []float64{10, 30, 40}, bbox.Sample)

	assert.LessOrEqual(t, within.Count, bbox.Count)
	assert.LessOrEqual(t, centroid.Count, bbox.Count)
}

func TestCountAndSample_SampleLimitFollowsSampleKey(t *testing.T) {
	recs := make([]Record, 0, 50)
	for i := 50; i >= 1; i-- {
		recs = append(recs, Record{ID: int64(i), Polygon: box(1, 1, 0.1), AreaM2: float64(i)})
	}
	d := NewDataset("b", recs)

	m, err := d.CountAndSample(context.Background(), query(PredicateFirstVertexInBox), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(50), m.Count)

	ids := make([]int64, 50)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	sort.Slice(ids, func(i, j int) bool { return keyLess(SampleKey(ids[i]), SampleKey(ids[j])) })
	want := make([]float64, 5)
	for i, id := range ids[:5] {
		want[i] = float64(id)
	}
	assert.Equal(t, want, m.Sample)

	again, err := d.CountAndSample(context.Background(), query(PredicateFirstVertexInBox), 5)
	require.NoError(t, err)
	assert.Equal(t, m.Sample, again.Sample)
}

func TestCountAndSample_SampleSpreadsOverSortedExtract(t *testing.T) {
	// Areas grow with ID, as in an extract sorted along a gradient.
	recs := make([]Record, 0, 1000)
	for i := 1; i <= 1000; i++ {
		recs = append(recs, Record{ID: int64(i), Polygon: box(1, 1, 0.1), AreaM2: float64(i)})
	}
	d := NewDataset("a", recs)

	m, err := d.CountAndSample(context.Background(), query(PredicateFirstVertexInBox), 100)
	require.NoError(t, err)
	require.Len(t, m.Sample, 100)
	var sum float64
	for _, a := range m.Sample {
		sum += a
	}
	assert.InDelta(t, 500.5, sum/100, 150)
}

func TestSampleKey(t *testing.T) {
	// md5('42') as computed by Postgres.
	assert.Equal(t, "a1d0c6e83f027327d8461063f4ac58a6", hexKey(SampleKey(42)))
	assert.NotEqual(t, SampleKey(1), SampleKey(2))
}

func TestCountAndSample_ConfidenceGate(t *testing.T) {
	d := NewDataset("b", []Record{
		{ID: 1, Polygon: box(1, 1, 0.5), AreaM2: 10, Confidence: 0.9, HasConfidence: true},
		{ID: 2, Polygon: box(1, 1, 0.5), AreaM2: 10, Confidence: 0.5, HasConfidence: true},
		{ID: 3, Polygon: box(1, 1, 0.5), AreaM2: 10},
	})
	q := query(PredicateWithin)
	q.MinConfidence = 0.65

	m, err := d.CountAndSample(context.Background(), q, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Count)
}

func TestCountAndSample_CentroidWithoutIndex(t *testing.T) {
	d := fixture()
	ok, err := d.HasCentroidIndex(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.CountAndSample(context.Background(), query(PredicateCentroidWithin), 10)
	assert.True(t, eris.Is(err, ErrIndexUnavailable))
}

func TestCountAndSample_BadBoundary(t *testing.T) {
	d := fixture()
	q := query(PredicateWithin)
	q.Boundary = orb.LineString{{0, 0}, {1, 1}}
	_, err := d.CountAndSample(context.Background(), q, 10)
	assert.True(t, eris.Is(err, geometry.ErrUnsupportedGeometryKind))
}

func TestCountAndSample_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fixture().CountAndSample(ctx, query(PredicateWithin), 10)
	assert.Error(t, err)
}

func TestBuildCentroidIndex(t *testing.T) {
	d := fixture()
	require.NoError(t, d.BuildCentroidIndex())
	ok, err := d.HasCentroidIndex(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	for _, r := range d.Records() {
		assert.True(t, r.HasCentroid)
		assert.Equal(t, r.Polygon[0][0], r.Centroid)
	}

	bad := NewDataset("a", []Record{{ID: 1, Polygon: orb.Polygon{}}})
	assert.Error(t, bad.BuildCentroidIndex())
	ok, _ = bad.HasCentroidIndex(context.Background())
	assert.False(t, ok)

	empty := NewDataset("a", nil)
	require.NoError(t, empty.BuildCentroidIndex())
	m, err := empty.CountAndSample(context.Background(), query(PredicateCentroidWithin), 10)
	require.NoError(t, err)
	assert.Zero(t, m.Count)
}

func TestPredicateString(t *testing.T) {
	assert.Equal(t, "within", PredicateWithin.String())
	assert.Equal(t, "first_vertex_in_box", PredicateFirstVertexInBox.String())
	assert.Equal(t, "centroid_within", PredicateCentroidWithin.String())
	assert.Equal(t, "unknown", Predicate(9).String())
}

func TestReadGeoJSONL(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"Feature","properties":{"area_m2":120.5},"geometry":{"type":"Polygon","coordinates":[[[-75.5,6.2],[-75.4999,6.2],[-75.4999,6.2001],[-75.5,6.2001],[-75.5,6.2]]]}}`,
		``,
		`{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[-75.5,6.2],[-75.4999,6.2],[-75.4999,6.2001],[-75.5,6.2001],[-75.5,6.2]]]}}`,
		`{"type":"Feature","properties":{"area_m2":10},"geometry":null}`,
		`{"type":"Feature","properties":{"confidence":0.3},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}`,
	}, "\n")

	recs, stats, err := ReadGeoJSONL(context.Background(), strings.NewReader(input), 0.65)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ReadStats{Kept: 2, NoGeometry: 1, BelowConfidence: 1}, stats)

	assert.Equal(t, int64(1), recs[0].ID)
	assert.InDelta(t, 120.5, recs[0].AreaM2, 1e-9)
	assert.Equal(t, int64(3), recs[1].ID)
	// ~11 m x ~11 m measured geodesically
	assert.InDelta(t, 122, recs[1].AreaM2, 3)
}

func TestReadGeoJSONL_BadLine(t *testing.T) {
	_, _, err := ReadGeoJSONL(context.Background(), strings.NewReader("{not json"), 0)
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	input := "latitude,longitude,area_in_meters,confidence,geometry,full_plus_code\n" +
		"6.2,-75.5,85.3,0.81,\"POLYGON((-75.5 6.2, -75.4999 6.2, -75.4999 6.2001, -75.5 6.2))\",67\n" +
		"6.2,-75.5,40,0.5,\"POLYGON((-75.5 6.2, -75.4999 6.2, -75.4999 6.2001, -75.5 6.2))\",67\n" +
		"6.2,-75.5,40,0.9,\"POINT(1 2)\",67\n" +
		"6.2,-75.5,,0.7,\"MULTIPOLYGON(((0 0, 1 0, 1 1, 0 0)),((0 0, 2 0, 2 2, 0 0)))\",67\n"

	recs, stats, err := ReadCSV(context.Background(), strings.NewReader(input), 0.65)
	require.NoError(t, err)
	assert.Equal(t, ReadStats{Kept: 2, NoGeometry: 1, BelowConfidence: 1}, stats)
	require.Len(t, recs, 2)

	assert.Equal(t, int64(2), recs[0].ID)
	assert.Equal(t, 85.3, recs[0].AreaM2)
	assert.True(t, recs[0].HasConfidence)
	assert.Equal(t, 0.81, recs[0].Confidence)

	// largest part of the multipolygon, with a measured area
	assert.Equal(t, orb.Point{2, 0}, recs[1].Polygon[0][1])
	assert.Positive(t, recs[1].AreaM2)
}

func TestReadCSV_MissingGeometryColumn(t *testing.T) {
	_, _, err := ReadCSV(context.Background(), strings.NewReader("latitude,longitude\n1,2\n"), 0)
	assert.Error(t, err)
}

func TestReadCSV_BadConfidence(t *testing.T) {
	input := "confidence,geometry\nhigh,\"POLYGON((0 0, 1 0, 1 1, 0 0))\"\nx,y\n"
	_, _, err := ReadCSV(context.Background(), strings.NewReader(input), 0)
	assert.Error(t, err)
}

func TestReadFile_UnknownFormat(t *testing.T) {
	_, _, err := ReadFile(context.Background(), "/nonexistent", "parquet", 0)
	assert.Error(t, err)
}

func hexKey(k [16]byte) string { return hex.EncodeToString(k[:]) }
