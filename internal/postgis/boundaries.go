package postgis

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rooftop-cli/internal/boundary"
	"github.com/sells-group/rooftop-cli/internal/db"
	"github.com/sells-group/rooftop-cli/internal/geometry"
)

// BoundaryStore reads boundaries loaded by LoadBoundaries.
type BoundaryStore struct {
	pool db.Pool
}

var _ boundary.Source = (*BoundaryStore)(nil)

// NewBoundaryStore returns a store over pool.
func NewBoundaryStore(pool db.Pool) *BoundaryStore {
	return &BoundaryStore{pool: pool}
}

// Boundaries returns every boundary ordered by code. A stored geometry that
// cannot be decoded comes back nil so the aggregator degrades it.
func (s *BoundaryStore) Boundaries(ctx context.Context) ([]boundary.Boundary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, name, dept_code, dept_name, region_code, region_name,
		       subregion, area_km2, is_valid, defect, ST_AsEWKB(geom)
		FROM solar.boundaries ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgis: query boundaries")
	}
	defer rows.Close()

	var out []boundary.Boundary
	for rows.Next() {
		var b boundary.Boundary
		var wkb []byte
		if err := rows.Scan(&b.Code, &b.Name, &b.DeptCode, &b.DeptName, &b.RegionCode, &b.RegionName,
			&b.Subregion, &b.AreaKm2, &b.Valid, &b.Defect, &wkb); err != nil {
			return nil, eris.Wrap(err, "postgis: scan boundary")
		}
		if len(wkb) > 0 {
			if g, err := geometry.DecodeEWKB(wkb); err == nil {
				b.Geometry = g
			}
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgis: iterate boundaries")
	}
	return out, nil
}
