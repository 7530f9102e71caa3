package store

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/db"
	"github.com/sells-group/rooftop-cli/internal/postgis"
	"github.com/sells-group/rooftop-cli/internal/stats"
)

// PostgresStore implements Store on solar.municipality_stats.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close leaves the pool open.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool for the PostGIS loaders and sources.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Migrate applies the solar schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return postgis.Migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// ReplaceAll deletes every row and copies all in one transaction, so a
// failed run leaves the previous result set in place.
func (s *PostgresStore) ReplaceAll(ctx context.Context, all []stats.MunicipalityStats) error {
	if err := checkUnique(all); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: replace results: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, "DELETE FROM "+postgis.StatsTable)
	if err != nil {
		return eris.Wrap(err, "postgres: delete results")
	}

	rows := make([][]any, len(all))
	for i, m := range all {
		rows[i] = rowValues(m)
	}
	n, err := db.CopyRows(ctx, tx, postgis.StatsTable, statsColumns, rows)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: replace results: commit")
	}
	zap.L().Info("results replaced",
		zap.String("component", "store.postgres"),
		zap.Int64("deleted", tag.RowsAffected()),
		zap.Int64("inserted", n),
	)
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]stats.MunicipalityStats, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+strings.Join(statsColumns, ", ")+" FROM "+postgis.StatsTable+" ORDER BY code")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []stats.MunicipalityStats
	for rows.Next() {
		m, err := scanStats(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate results")
}

// rollupSQL pushes the regional rollup down. DISTINCT ON picks each
// region's top municipality with the same ordering as stats.BetterTop;
// COLLATE "C" makes name comparison bytewise.
const rollupSQL = `
WITH g AS (
	SELECT region_code,
	       COALESCE((array_agg(region_name ORDER BY code) FILTER (WHERE region_name <> ''))[1], '') AS region_name,
	       count(*) AS n,
	       COALESCE(sum(a_count), 0)::bigint AS a_total,
	       COALESCE(sum(a_total_area_m2), 0) / 1e6 AS a_area,
	       COALESCE(sum(a_useful_area_m2), 0) / 1e6 AS a_useful,
	       COALESCE(sum(b_count), 0)::bigint AS b_total,
	       COALESCE(sum(b_total_area_m2), 0) / 1e6 AS b_area,
	       COALESCE(sum(b_useful_area_m2), 0) / 1e6 AS b_useful
	FROM solar.municipality_stats
	GROUP BY region_code
),
top_a AS (
	SELECT DISTINCT ON (region_code) region_code, code, name, a_count AS cnt
	FROM solar.municipality_stats
	ORDER BY region_code, a_count DESC, name COLLATE "C", code COLLATE "C"
),
top_b AS (
	SELECT DISTINCT ON (region_code) region_code, code, name, b_count AS cnt
	FROM solar.municipality_stats
	ORDER BY region_code, b_count DESC, name COLLATE "C", code COLLATE "C"
)
SELECT g.region_code, g.region_name, g.n,
       g.a_total, g.a_area, g.a_useful, ta.code, ta.name, ta.cnt,
       g.b_total, g.b_area, g.b_useful, tb.code, tb.name, tb.cnt
FROM g
JOIN top_a ta USING (region_code)
JOIN top_b tb USING (region_code)`

func (s *PostgresStore) RollupByRegion(ctx context.Context) ([]stats.RegionalRollup, error) {
	rows, err := s.pool.Query(ctx, rollupSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: rollup by region")
	}
	defer rows.Close()

	var out []stats.RegionalRollup
	for rows.Next() {
		var r stats.RegionalRollup
		if err := rows.Scan(&r.RegionCode, &r.RegionName, &r.Municipalities,
			&r.A.TotalCount, &r.A.TotalAreaKm2, &r.A.UsefulAreaKm2, &r.A.Top.Code, &r.A.Top.Name, &r.A.Top.Count,
			&r.B.TotalCount, &r.B.TotalAreaKm2, &r.B.UsefulAreaKm2, &r.B.Top.Code, &r.B.Top.Name, &r.B.Top.Count,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rollup")
		}
		if r.Municipalities > 0 {
			r.A.AvgCount = float64(r.A.TotalCount) / float64(r.Municipalities)
			r.B.AvgCount = float64(r.B.TotalCount) / float64(r.Municipalities)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate rollup")
	}
	stats.SortRegions(out)
	return out, nil
}
