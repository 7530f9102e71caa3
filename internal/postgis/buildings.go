package postgis

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/rooftop-cli/internal/building"
	"github.com/sells-group/rooftop-cli/internal/db"
	"github.com/sells-group/rooftop-cli/internal/geometry"
)

// confidenceGate keeps records without a confidence score.
const confidenceGate = "(confidence IS NULL OR confidence >= $%d)"

// BuildingSource answers containment queries against one building table.
type BuildingSource struct {
	pool     db.Pool
	provider string
	table    string
	limiter  *rate.Limiter
	log      *zap.Logger

	mu      sync.Mutex
	indexed *bool
}

var _ building.Source = (*BuildingSource)(nil)

// NewBuildingSource validates table against the allowlist. qps <= 0 leaves
// queries unthrottled.
func NewBuildingSource(pool db.Pool, provider, table string, qps float64) (*BuildingSource, error) {
	t, err := BuildingTable(table)
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if qps > 0 {
		limit = rate.Limit(qps)
	}
	return &BuildingSource{
		pool:     pool,
		provider: provider,
		table:    t,
		limiter:  rate.NewLimiter(limit, 1),
		log:      zap.L().With(zap.String("component", "postgis.buildings"), zap.String("table", t)),
	}, nil
}

// Provider returns the provider tag.
func (s *BuildingSource) Provider() string { return s.provider }

// Table returns the qualified table name.
func (s *BuildingSource) Table() string { return s.table }

// Size counts the table's rows.
func (s *BuildingSource) Size(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+quoted(s.table)).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgis: count %s", s.table)
	}
	return n, nil
}

// HasCentroidIndex reports whether a GIST index on centroid exists and every
// row has a centroid. The answer is cached; Invalidate forgets it.
func (s *BuildingSource) HasCentroidIndex(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexed != nil {
		return *s.indexed, nil
	}

	var ok bool
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE schemaname = 'solar' AND tablename = $1 AND indexdef ILIKE '%%gist (centroid)%%'
		) AND NOT EXISTS (SELECT 1 FROM %s WHERE centroid IS NULL)`, quoted(s.table)),
		bareName(s.table),
	).Scan(&ok)
	if err != nil {
		return false, eris.Wrapf(err, "postgis: check centroid index on %s", s.table)
	}
	s.indexed = &ok
	return ok, nil
}

// Invalidate drops the cached centroid index answer.
func (s *BuildingSource) Invalidate() {
	s.mu.Lock()
	s.indexed = nil
	s.mu.Unlock()
}

// CountAndSample counts the matching rows and fetches the areas of the first
// sampleLimit positive-area matches in building.SampleKey order, in a single
// round trip.
func (s *BuildingSource) CountAndSample(ctx context.Context, q building.Query, sampleLimit int) (building.Match, error) {
	if q.Predicate == building.PredicateCentroidWithin {
		ok, err := s.HasCentroidIndex(ctx)
		if err != nil {
			return building.Match{}, err
		}
		if !ok {
			return building.Match{}, eris.Wrapf(building.ErrIndexUnavailable, "postgis: %s", s.table)
		}
	}

	where, args, err := whereClause(q)
	if err != nil {
		return building.Match{}, err
	}
	args = append(args, max(sampleLimit, 0))
	sql := fmt.Sprintf(`
		WITH m AS (SELECT id, area_m2 FROM %s WHERE %s)
		SELECT (SELECT count(*) FROM m),
		       COALESCE((SELECT array_agg(area_m2 ORDER BY k) FROM (
		           SELECT md5(id::text) COLLATE "C" AS k, area_m2 FROM m
		           WHERE area_m2 > 0 ORDER BY k LIMIT $%d
		       ) s), '{}'::float8[])`,
		quoted(s.table), where, len(args))

	if err := s.limiter.Wait(ctx); err != nil {
		return building.Match{}, eris.Wrap(err, "postgis: rate limit")
	}

	var m building.Match
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&m.Count, &m.Sample); err != nil {
		return building.Match{}, eris.Wrapf(err, "postgis: %s on %s", q.Predicate, s.table)
	}
	s.log.Debug("containment query",
		zap.String("predicate", q.Predicate.String()),
		zap.Int64("count", m.Count),
		zap.Int("sample", len(m.Sample)),
	)
	return m, nil
}

// whereClause renders the predicate with positional parameters.
func whereClause(q building.Query) (string, []any, error) {
	switch q.Predicate {
	case building.PredicateWithin, building.PredicateCentroidWithin:
		ewkb, err := geometry.EncodeEWKB(q.Boundary)
		if err != nil {
			return "", nil, err
		}
		col := "geom"
		if q.Predicate == building.PredicateCentroidWithin {
			col = "centroid"
		}
		return fmt.Sprintf("ST_Within(%s, ST_GeomFromEWKB($1)) AND "+confidenceGate, col, 2),
			[]any{ewkb, q.MinConfidence}, nil
	case building.PredicateFirstVertexInBox:
		b := q.Box
		return "first_lon BETWEEN $1 AND $2 AND first_lat BETWEEN $3 AND $4 AND " + fmt.Sprintf(confidenceGate, 5),
			[]any{b.MinLng, b.MaxLng, b.MinLat, b.MaxLat, q.MinConfidence}, nil
	}
	return "", nil, eris.Errorf("postgis: unknown predicate %d", q.Predicate)
}
