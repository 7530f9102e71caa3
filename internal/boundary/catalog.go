package boundary

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/tabular"
)

// CatalogEntry is one row of the region catalog.
type CatalogEntry struct {
	Code         string
	Department   string
	Municipality string
	RegionCode   string
	Region       string
	Subregion    string
}

// Catalog maps municipality codes to region metadata.
type Catalog map[string]CatalogEntry

// LoadCatalog reads the region catalog from CSV or XLSX. Required columns:
// divipola_code, department, municipality, and a region column
// (pdet_region or region). subregion, pdet_subregion and region_code are
// optional.
func LoadCatalog(ctx context.Context, path string) (Catalog, error) {
	rows, err := tabular.ReadFile(ctx, path, tabular.Options{
		Required: []string{"divipola_code", "department", "municipality"},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: load catalog %s", filepath.Base(path))
	}

	cat := make(Catalog, len(rows))
	for _, row := range rows {
		code, err := NormalizeCode(row.Get("divipola_code"))
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: catalog line %d", row.Line)
		}
		if _, dup := cat[code]; dup {
			return nil, eris.Wrapf(ErrDuplicateCode, "boundary: catalog code %s", code)
		}
		e := CatalogEntry{
			Code:         code,
			Department:   CleanText(row.Get("department")),
			Municipality: CleanText(row.Get("municipality")),
			Region:       CleanText(firstOf(row, "pdet_region", "region")),
			Subregion:    CleanText(firstOf(row, "pdet_subregion", "subregion")),
			RegionCode:   strings.TrimSpace(row.Get("region_code")),
		}
		if e.RegionCode == "" {
			e.RegionCode = e.Region
		}
		cat[code] = e
	}
	return cat, nil
}

func firstOf(row tabular.Row, names ...string) string {
	for _, n := range names {
		if v := row.Get(n); v != "" {
			return v
		}
	}
	return ""
}

// ApplyCatalog fills names and regions from the catalog. Municipalities the
// catalog does not list keep their own names and get the Unknown region;
// with restrict set they are dropped instead. Codes the catalog lists but
// the boundary set lacks are logged.
func ApplyCatalog(bs []Boundary, cat Catalog, restrict bool) []Boundary {
	out := make([]Boundary, 0, len(bs))
	found := make(map[string]bool, len(cat))
	var unknown int

	for _, b := range bs {
		e, ok := cat[b.Code]
		if !ok {
			if restrict {
				continue
			}
			unknown++
			b.RegionCode, b.RegionName, b.Subregion = Unknown, Unknown, Unknown
			if b.Name == "" {
				b.Name = Unknown
			}
			if b.DeptName == "" {
				b.DeptName = Unknown
			}
			out = append(out, b)
			continue
		}
		found[b.Code] = true
		if e.Municipality != "" {
			b.Name = e.Municipality
		}
		if e.Department != "" {
			b.DeptName = e.Department
		}
		b.RegionCode, b.RegionName, b.Subregion = e.RegionCode, e.Region, e.Subregion
		if b.RegionCode == "" {
			b.RegionCode, b.RegionName = Unknown, Unknown
		}
		out = append(out, b)
	}

	log := zap.L().With(zap.String("component", "boundary"))
	if missing := len(cat) - len(found); missing > 0 {
		log.Warn("catalog codes without boundary", zap.Int("count", missing))
	}
	if unknown > 0 {
		log.Info("boundaries outside catalog", zap.Int("count", unknown))
	}
	return out
}
