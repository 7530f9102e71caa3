package postgis

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rooftop-cli/internal/db"
)

// TableStatus describes one building table.
type TableStatus struct {
	Table     string `json:"table" yaml:"table"`
	Rows      int64  `json:"rows" yaml:"rows"`
	Centroids int64  `json:"centroids" yaml:"centroids"`
}

// CentroidCoverage is the share of rows with a centroid, in [0,1].
func (t TableStatus) CentroidCoverage() float64 {
	if t.Rows == 0 {
		return 0
	}
	return float64(t.Centroids) / float64(t.Rows)
}

// Status summarizes the solar schema.
type Status struct {
	Boundaries        int64         `json:"boundaries" yaml:"boundaries"`
	InvalidBoundaries int64         `json:"invalid_boundaries" yaml:"invalid_boundaries"`
	Buildings         []TableStatus `json:"buildings" yaml:"buildings"`
	Results           int64         `json:"results" yaml:"results"`
}

// ReadStatus counts rows in every solar table.
func ReadStatus(ctx context.Context, pool db.Pool) (Status, error) {
	var st Status
	if err := pool.QueryRow(ctx,
		"SELECT count(*), count(*) FILTER (WHERE NOT is_valid) FROM solar.boundaries",
	).Scan(&st.Boundaries, &st.InvalidBoundaries); err != nil {
		return st, eris.Wrap(err, "postgis: count boundaries")
	}
	for _, t := range BuildingTables() {
		ts := TableStatus{Table: t}
		if err := pool.QueryRow(ctx, fmt.Sprintf(
			"SELECT count(*), count(centroid) FROM %s", quoted(t)),
		).Scan(&ts.Rows, &ts.Centroids); err != nil {
			return st, eris.Wrapf(err, "postgis: count %s", t)
		}
		st.Buildings = append(st.Buildings, ts)
	}
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM "+StatsTable).Scan(&st.Results); err != nil {
		return st, eris.Wrap(err, "postgis: count results")
	}
	return st, nil
}
