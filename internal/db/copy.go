package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Copier speaks the COPY protocol. Both Pool and pgx.Tx satisfy it, so the
// same helpers serve standalone loads and loads inside a replace transaction.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// CopyRows bulk-inserts rows into a table using PostgreSQL COPY protocol.
// The table may be schema-qualified ("solar.municipality_stats").
func CopyRows(ctx context.Context, c Copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	return CopyStream(ctx, c, table, columns, pgx.CopyFromRows(rows))
}

// CopyStream is CopyRows for sources that are too large to materialize,
// such as a building extract read line by line.
func CopyStream(ctx context.Context, c Copier, table string, columns []string, src pgx.CopyFromSource) (int64, error) {
	n, err := c.CopyFrom(ctx, Identifier(table), columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// Identifier splits a possibly schema-qualified table name into a pgx.Identifier.
func Identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}
