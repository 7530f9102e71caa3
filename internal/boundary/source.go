package boundary

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Source yields the full boundary set once per run.
type Source interface {
	Boundaries(ctx context.Context) ([]Boundary, error)
}

// FileSource reads boundaries from a shapefile or GeoJSON file and joins
// them with an optional region catalog.
type FileSource struct {
	Path     string
	Fields   FieldMap
	Catalog  string
	Restrict bool
}

// Boundaries implements Source.
func (s FileSource) Boundaries(ctx context.Context) ([]Boundary, error) {
	bs, err := ReadFile(s.Path, s.Fields)
	if err != nil {
		return nil, err
	}
	if s.Catalog == "" {
		return bs, nil
	}
	cat, err := LoadCatalog(ctx, s.Catalog)
	if err != nil {
		return nil, err
	}
	return ApplyCatalog(bs, cat, s.Restrict), nil
}

// ReadFile picks the reader by extension.
func ReadFile(path string, fm FieldMap) ([]Boundary, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ReadShapefile(path, fm)
	case ".geojson", ".json":
		return ReadGeoJSON(path, fm)
	}
	return nil, eris.Errorf("boundary: unsupported file type %q", filepath.Ext(path))
}
