package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/rooftop-cli/internal/stats"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "rooftop.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteMigration() string {
	var b strings.Builder
	b.WriteString(`CREATE TABLE IF NOT EXISTS municipality_stats (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	dept_name TEXT NOT NULL DEFAULT '',
	region_code TEXT NOT NULL DEFAULT '',
	region_name TEXT NOT NULL DEFAULT '',
	subregion TEXT NOT NULL DEFAULT '',
	area_km2 REAL NOT NULL DEFAULT 0`)
	for _, prefix := range []string{"a_", "b_"} {
		for _, f := range providerFields {
			typ := "REAL NOT NULL DEFAULT 0"
			switch f {
			case "provider", "strategy", "degrade_reason":
				typ = "TEXT NOT NULL DEFAULT ''"
			case "count", "sample_size", "total_estimated", "upper_bound", "degraded":
				typ = "INTEGER NOT NULL DEFAULT 0"
			}
			b.WriteString(",\n\t" + prefix + f + " " + typ)
		}
	}
	b.WriteString(`,
	diff_count INTEGER NOT NULL DEFAULT 0,
	diff_pct REAL NOT NULL DEFAULT 0,
	agreement_score REAL NOT NULL DEFAULT 0,
	run_id TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_municipality_stats_region ON municipality_stats(region_code);
`)
	return b.String()
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration())
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReplaceAll(ctx context.Context, all []stats.MunicipalityStats) error {
	if err := checkUnique(all); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM municipality_stats")
	if err != nil {
		return eris.Wrap(err, "sqlite: delete results")
	}
	deleted, _ := res.RowsAffected()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statsColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO municipality_stats ("+strings.Join(statsColumns, ", ")+") VALUES ("+placeholders+")")
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	for _, m := range all {
		if _, err := stmt.ExecContext(ctx, rowValues(m)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", m.Code)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit")
	}
	zap.L().Info("results replaced",
		zap.String("component", "store.sqlite"),
		zap.Int64("deleted", deleted),
		zap.Int("inserted", len(all)),
	)
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]stats.MunicipalityStats, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+strings.Join(statsColumns, ", ")+" FROM municipality_stats ORDER BY code")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close()

	var out []stats.MunicipalityStats
	for rows.Next() {
		m, err := scanStats(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate results")
}

// RollupByRegion computes the rollup in process over List.
func (s *SQLiteStore) RollupByRegion(ctx context.Context) ([]stats.RegionalRollup, error) {
	rows, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return stats.Rollup(rows), nil
}
