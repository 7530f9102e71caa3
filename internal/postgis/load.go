package postgis

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/boundary"
	"github.com/sells-group/rooftop-cli/internal/building"
	"github.com/sells-group/rooftop-cli/internal/db"
	"github.com/sells-group/rooftop-cli/internal/geometry"
)

var buildingColumns = []string{"id", "geom", "first_lon", "first_lat", "area_m2", "confidence"}

var boundaryColumns = []string{
	"code", "name", "dept_code", "dept_name", "region_code", "region_name",
	"subregion", "area_km2", "is_valid", "defect", "geom",
}

// LoadBuildings replaces the contents of a building table with recs in one
// transaction. Centroids are left NULL for BuildCentroids.
func LoadBuildings(ctx context.Context, pool db.Pool, table string, recs []building.Record) (int64, error) {
	t, err := BuildingTable(table)
	if err != nil {
		return 0, err
	}
	log := zap.L().With(zap.String("component", "postgis.load"), zap.String("table", t))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgis: load buildings: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "TRUNCATE "+quoted(t)); err != nil {
		return 0, eris.Wrapf(err, "postgis: truncate %s", t)
	}

	src := pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
		return buildingRow(&recs[i])
	})
	n, err := db.CopyStream(ctx, tx, t, buildingColumns, src)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgis: load buildings: commit")
	}
	log.Info("buildings loaded", zap.Int64("rows", n))
	return n, nil
}

func buildingRow(r *building.Record) ([]any, error) {
	if len(r.Polygon) == 0 || len(r.Polygon[0]) == 0 {
		return nil, eris.Wrapf(geometry.ErrMissingGeometry, "postgis: building %d", r.ID)
	}
	wkb, err := geometry.EncodeEWKB(r.Polygon)
	if err != nil {
		return nil, eris.Wrapf(err, "postgis: building %d", r.ID)
	}
	first := r.Polygon[0][0]
	var conf any
	if r.HasConfidence {
		conf = r.Confidence
	}
	return []any{r.ID, wkb, first[0], first[1], r.AreaM2, conf}, nil
}

// LoadBoundaries upserts boundaries by code.
func LoadBoundaries(ctx context.Context, pool db.Pool, bs []boundary.Boundary) (int64, error) {
	rows := make([][]any, 0, len(bs))
	for _, b := range bs {
		var wkb any
		if b.Geometry != nil {
			data, err := geometry.EncodeEWKB(b.Geometry)
			if err != nil {
				return 0, eris.Wrapf(err, "postgis: boundary %s", b.Code)
			}
			wkb = data
		}
		rows = append(rows, []any{
			b.Code, b.Name, b.DeptCode, b.DeptName, b.RegionCode, b.RegionName,
			b.Subregion, b.AreaKm2, b.Valid, b.Defect, wkb,
		})
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        BoundariesTable,
		Columns:      boundaryColumns,
		ConflictKeys: []string{"code"},
	}, rows)
	if err != nil {
		return 0, err
	}
	zap.L().Info("boundaries loaded", zap.String("component", "postgis.load"), zap.Int64("rows", n))
	return n, nil
}

// BuildCentroids fills missing centroids with each footprint's first vertex,
// creates the centroid GIST index and refreshes planner statistics.
func BuildCentroids(ctx context.Context, pool db.Pool, table string) (int64, error) {
	t, err := BuildingTable(table)
	if err != nil {
		return 0, err
	}
	log := zap.L().With(zap.String("component", "postgis.index"), zap.String("table", t))

	tag, err := pool.Exec(ctx, fmt.Sprintf(
		"UPDATE %s SET centroid = ST_PointN(ST_ExteriorRing(geom), 1) WHERE centroid IS NULL", quoted(t)))
	if err != nil {
		return 0, eris.Wrapf(err, "postgis: set centroids on %s", t)
	}
	log.Info("centroids set", zap.Int64("rows", tag.RowsAffected()))

	idx := bareName(t) + "_centroid_gist"
	if _, err := pool.Exec(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (centroid)", quoted(idx), quoted(t))); err != nil {
		return 0, eris.Wrapf(err, "postgis: create centroid index on %s", t)
	}
	if _, err := pool.Exec(ctx, "ANALYZE "+quoted(t)); err != nil {
		return 0, eris.Wrapf(err, "postgis: analyze %s", t)
	}
	return tag.RowsAffected(), nil
}
