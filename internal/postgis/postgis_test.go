package postgis

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/boundary"
	"github.com/sells-group/rooftop-cli/internal/building"
	"github.com/sells-group/rooftop-cli/internal/geometry"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestMigrate_FreshDB(t *testing.T) {
	mock := newMock(t)
	names, err := migrationNames()
	require.NoError(t, err)
	require.Equal(t, []string{"001_solar_schema.sql", "002_municipality_stats.sql"}, names)

	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS solar").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM solar.schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	for _, name := range names {
		mock.ExpectExec(".*").WillReturnResult(pgxmock.NewResult("EXEC", 0))
		mock.ExpectExec("INSERT INTO solar.schema_migrations").
			WithArgs(name).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations_IndexesCreatedOnce(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)

	indexOn := regexp.MustCompile(`(?i)CREATE INDEX IF NOT EXISTS \w+ ON (solar\.\w+) USING GIST`)
	gist := map[string]int{}
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		require.NoError(t, err)
		sql := string(data)
		assert.NotContains(t, sql, "INCLUDING ALL", name)
		assert.NotContains(t, sql, "INCLUDING INDEXES", name)
		for _, m := range indexOn.FindAllStringSubmatch(sql, -1) {
			gist[m[1]]++
		}
	}
	for _, table := range []string{"solar.boundaries", "solar.buildings_a", "solar.buildings_b"} {
		assert.Equal(t, 1, gist[table], "gist indexes on %s", table)
	}
}

func TestMigrate_AlreadyApplied(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS solar").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM solar.schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).
			AddRow("001_solar_schema.sql").
			AddRow("002_municipality_stats.sql"))
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_ApplyFailureReleasesLock(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS solar").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM solar.schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec("CREATE EXTENSION").WillReturnError(errors.New("permission denied"))
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(pgxmock.NewResult("SELECT", 1))

	err := Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_solar_schema.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildingTable(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"buildings_a", "solar.buildings_a", true},
		{"solar.buildings_b", "solar.buildings_b", true},
		{" Buildings_A ", "solar.buildings_a", true},
		{"boundaries", "", false},
		{"buildings_a; DROP TABLE x", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := BuildingTable(tt.in)
			if !tt.ok {
				assert.True(t, eris.Is(err, ErrUnknownTable))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildingSource_Size(t *testing.T) {
	mock := newMock(t)
	src, err := NewBuildingSource(mock, "google", "buildings_a", 0)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "solar"."buildings_a"`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1234)))

	n, err := src.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n)
	assert.Equal(t, "google", src.Provider())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildingSource_HasCentroidIndexIsCached(t *testing.T) {
	mock := newMock(t)
	src, err := NewBuildingSource(mock, "google", "buildings_a", 0)
	require.NoError(t, err)

	mock.ExpectQuery("pg_indexes").WithArgs("buildings_a").
		WillReturnRows(pgxmock.NewRows([]string{"ok"}).AddRow(true))

	for range 2 {
		ok, err := src.HasCentroidIndex(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.NoError(t, mock.ExpectationsWereMet())

	src.Invalidate()
	mock.ExpectQuery("pg_indexes").WithArgs("buildings_a").
		WillReturnRows(pgxmock.NewRows([]string{"ok"}).AddRow(false))
	ok, err := src.HasCentroidIndex(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildingSource_CountAndSampleWithin(t *testing.T) {
	mock := newMock(t)
	src, err := NewBuildingSource(mock, "google", "buildings_a", 100)
	require.NoError(t, err)

	b := square(-75, 6, -74, 7)
	ewkb, err := geometry.EncodeEWKB(b)
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)ST_Within\(geom, ST_GeomFromEWKB\(\$1\)\).*md5\(id::text\) COLLATE "C" AS k`).
		WithArgs(ewkb, 0.65, 2).
		WillReturnRows(pgxmock.NewRows([]string{"count", "sample"}).AddRow(int64(7), []float64{80, 95.5}))

	m, err := src.CountAndSample(context.Background(), building.Query{
		Predicate:     building.PredicateWithin,
		Boundary:      b,
		MinConfidence: 0.65,
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, building.Match{Count: 7, Sample: []float64{80, 95.5}}, m)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildingSource_CountAndSampleBox(t *testing.T) {
	mock := newMock(t)
	src, err := NewBuildingSource(mock, "microsoft", "buildings_b", 0)
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)first_lon BETWEEN \$1 AND \$2 AND first_lat BETWEEN \$3 AND \$4.*ORDER BY k LIMIT \$6`).
		WithArgs(-75.0, -74.0, 6.0, 7.0, 0.0, 1000).
		WillReturnRows(pgxmock.NewRows([]string{"count", "sample"}).AddRow(int64(0), []float64{}))

	m, err := src.CountAndSample(context.Background(), building.Query{
		Predicate: building.PredicateFirstVertexInBox,
		Box:       geometry.BBox{MinLng: -75, MinLat: 6, MaxLng: -74, MaxLat: 7},
	}, 1000)
	require.NoError(t, err)
	assert.Zero(t, m.Count)
	assert.Empty(t, m.Sample)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildingSource_CentroidWithoutIndex(t *testing.T) {
	mock := newMock(t)
	src, err := NewBuildingSource(mock, "google", "buildings_a", 0)
	require.NoError(t, err)

	mock.ExpectQuery("pg_indexes").WillReturnRows(pgxmock.NewRows([]string{"ok"}).AddRow(false))

	_, err = src.CountAndSample(context.Background(), building.Query{
		Predicate: building.PredicateCentroidWithin,
		Boundary:  square(0, 0, 1, 1),
	}, 10)
	assert.True(t, eris.Is(err, building.ErrIndexUnavailable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildingSource_CentroidWithIndex(t *testing.T) {
	mock := newMock(t)
	src, err := NewBuildingSource(mock, "google", "buildings_a", 0)
	require.NoError(t, err)

	mock.ExpectQuery("pg_indexes").WillReturnRows(pgxmock.NewRows([]string{"ok"}).AddRow(true))
	mock.ExpectQuery(`ST_Within\(centroid`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "sample"}).AddRow(int64(3), []float64{10, 20, 30}))

	m, err := src.CountAndSample(context.Background(), building.Query{
		Predicate: building.PredicateCentroidWithin,
		Boundary:  square(0, 0, 1, 1),
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildingSource_QueryErrorIsWrapped(t *testing.T) {
	mock := newMock(t)
	src, err := NewBuildingSource(mock, "google", "buildings_a", 0)
	require.NoError(t, err)

	boom := errors.New("canceling statement due to statement timeout")
	mock.ExpectQuery("ST_Within").WillReturnError(boom)

	_, err = src.CountAndSample(context.Background(), building.Query{
		Predicate: building.PredicateWithin,
		Boundary:  square(0, 0, 1, 1),
	}, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "within on solar.buildings_a")
}

func TestBuildingSource_UnsupportedBoundary(t *testing.T) {
	mock := newMock(t)
	src, err := NewBuildingSource(mock, "google", "buildings_a", 0)
	require.NoError(t, err)

	_, err = src.CountAndSample(context.Background(), building.Query{
		Predicate: building.PredicateWithin,
		Boundary:  orb.LineString{{0, 0}, {1, 1}},
	}, 10)
	assert.True(t, eris.Is(err, geometry.ErrUnsupportedGeometryKind))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewBuildingSource_RejectsUnknownTable(t *testing.T) {
	_, err := NewBuildingSource(nil, "x", "municipality_stats", 0)
	assert.True(t, eris.Is(err, ErrUnknownTable))
}

func TestLoadBuildings(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE "solar"."buildings_b"`).WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"solar", "buildings_b"}, buildingColumns).WillReturnResult(2)
	mock.ExpectCommit()

	recs := []building.Record{
		{ID: 1, Polygon: square(0, 0, 1, 1), AreaM2: 50},
		{ID: 2, Polygon: square(1, 1, 2, 2), AreaM2: 70, Confidence: 0.9, HasConfidence: true},
	}
	n, err := LoadBuildings(context.Background(), mock, "buildings_b", recs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadBuildings_CopyFailureRollsBack(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"solar", "buildings_a"}, buildingColumns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := LoadBuildings(context.Background(), mock, "buildings_a", []building.Record{{ID: 1, Polygon: square(0, 0, 1, 1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO solar.buildings_a")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildingRow(t *testing.T) {
	row, err := buildingRow(&building.Record{ID: 9, Polygon: square(3, 4, 5, 6), AreaM2: 12})
	require.NoError(t, err)
	require.Len(t, row, len(buildingColumns))
	assert.Equal(t, int64(9), row[0])
	assert.Equal(t, 3.0, row[2])
	assert.Equal(t, 4.0, row[3])
	assert.Nil(t, row[5], "no confidence is NULL")

	_, err = buildingRow(&building.Record{ID: 10})
	assert.True(t, eris.Is(err, geometry.ErrMissingGeometry))
}

func TestLoadBoundaries(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_solar_boundaries"}, boundaryColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "solar"."boundaries"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	bs := []boundary.Boundary{
		{Code: "05001", Name: "Medellín", Geometry: square(-75.7, 6.1, -75.4, 6.4), Valid: true},
		{Code: "05002", Name: "Abejorral"},
	}
	n, err := LoadBoundaries(context.Background(), mock, bs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildCentroids(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec(`UPDATE "solar"."buildings_a" SET centroid = ST_PointN\(ST_ExteriorRing\(geom\), 1\)`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 42))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "buildings_a_centroid_gist"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`ANALYZE "solar"."buildings_a"`).WillReturnResult(pgxmock.NewResult("ANALYZE", 0))

	n, err := BuildCentroids(context.Background(), mock, "buildings_a")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoundaryStore(t *testing.T) {
	mock := newMock(t)
	poly := square(-75, 6, -74, 7)
	wkb, err := geometry.EncodeEWKB(poly)
	require.NoError(t, err)

	cols := []string{"code", "name", "dept_code", "dept_name", "region_code", "region_name",
		"subregion", "area_km2", "is_valid", "defect", "geom"}
	mock.ExpectQuery("FROM solar.boundaries ORDER BY code").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("05001", "Medellín", "05", "Antioquia", "R1", "R1", "Valle", 382.5, true, "", wkb).
			AddRow("05002", "Abejorral", "05", "Antioquia", "R1", "R1", "", 0.0, false, "", []byte(nil)))

	bs, err := NewBoundaryStore(mock).Boundaries(context.Background())
	require.NoError(t, err)
	require.Len(t, bs, 2)
	assert.Equal(t, poly, bs[0].Geometry)
	assert.Equal(t, 382.5, bs[0].AreaKm2)
	assert.Nil(t, bs[1].Geometry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadStatus(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("FROM solar.boundaries").
		WillReturnRows(pgxmock.NewRows([]string{"count", "invalid"}).AddRow(int64(170), int64(2)))
	mock.ExpectQuery(`FROM "solar"."buildings_a"`).
		WillReturnRows(pgxmock.NewRows([]string{"rows", "centroids"}).AddRow(int64(100), int64(50)))
	mock.ExpectQuery(`FROM "solar"."buildings_b"`).
		WillReturnRows(pgxmock.NewRows([]string{"rows", "centroids"}).AddRow(int64(0), int64(0)))
	mock.ExpectQuery("FROM solar.municipality_stats").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(170)))

	st, err := ReadStatus(context.Background(), mock)
	require.NoError(t, err)
	assert.Equal(t, int64(170), st.Boundaries)
	assert.Equal(t, int64(2), st.InvalidBoundaries)
	require.Len(t, st.Buildings, 2)
	assert.InDelta(t, 0.5, st.Buildings[0].CentroidCoverage(), 1e-12)
	assert.Zero(t, st.Buildings[1].CentroidCoverage())
	assert.Equal(t, int64(170), st.Results)
	assert.NoError(t, mock.ExpectationsWereMet())
}
