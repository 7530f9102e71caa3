package postgis

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rooftop-cli/internal/db"
)

// Tables owned by the solar schema.
const (
	BoundariesTable = "solar.boundaries"
	StatsTable      = "solar.municipality_stats"
)

// ErrUnknownTable is returned for a building table outside the allowlist.
var ErrUnknownTable = eris.New("postgis: unknown building table")

var buildingTables = map[string]bool{
	"solar.buildings_a": true,
	"solar.buildings_b": true,
}

// BuildingTable resolves a configured table name ("buildings_a" or
// "solar.buildings_a") against the allowlist. Table names end up in SQL
// text, so nothing else is accepted.
func BuildingTable(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.Contains(name, ".") {
		name = "solar." + name
	}
	if !buildingTables[name] {
		return "", eris.Wrapf(ErrUnknownTable, "postgis: table %q", name)
	}
	return name, nil
}

// BuildingTables lists the allowed building tables in name order.
func BuildingTables() []string {
	return []string{"solar.buildings_a", "solar.buildings_b"}
}

func quoted(table string) string {
	return db.Identifier(table).Sanitize()
}

func bareName(table string) string {
	if i := strings.IndexByte(table, '.'); i >= 0 {
		return table[i+1:]
	}
	return table
}
