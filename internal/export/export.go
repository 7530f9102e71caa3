// Package export writes the run deliverables. Values are rounded here and
// nowhere else.
package export

import (
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/boundary"
	"github.com/sells-group/rooftop-cli/internal/stats"
)

// Formats accepted by WriteAll.
const (
	FormatCSV     = "csv"
	FormatXLSX    = "xlsx"
	FormatGeoJSON = "geojson"
)

// DefaultFormats is every tabular and spatial format.
var DefaultFormats = []string{FormatCSV, FormatXLSX, FormatGeoJSON}

// Deliverable is everything one export writes.
type Deliverable struct {
	Rows       []stats.MunicipalityStats
	Regions    []stats.RegionalRollup
	Boundaries []boundary.Boundary
	Manifest   *Manifest
}

// WriteAll writes the requested formats into dir, plus manifest.yaml when the
// deliverable carries one, and returns the paths written.
func WriteAll(dir string, formats []string, d Deliverable) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create %s", dir)
	}
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	log := zap.L().With(zap.String("component", "export"))

	var written []string
	emit := func(name string, write func(path string) error) error {
		path := filepath.Join(dir, name)
		if err := write(path); err != nil {
			return err
		}
		log.Info("deliverable written", zap.String("path", path))
		written = append(written, path)
		return nil
	}
	for _, f := range formats {
		var err error
		switch strings.ToLower(strings.TrimSpace(f)) {
		case FormatCSV:
			err = emit("municipality_stats.csv", func(path string) error {
				return writeFile(path, func(w *os.File) error { return WriteCSV(w, d.Rows) })
			})
			if err == nil {
				err = emit("regional_summary.csv", func(path string) error {
					return writeFile(path, func(w *os.File) error { return WriteRegionsCSV(w, d.Regions) })
				})
			}
		case FormatXLSX:
			err = emit("municipality_stats.xlsx", func(path string) error {
				return WriteXLSX(path, d.Rows, d.Regions)
			})
		case FormatGeoJSON:
			err = emit("municipality_stats.geojson", func(path string) error {
				return writeFile(path, func(w *os.File) error { return WriteGeoJSON(w, d.Boundaries, d.Rows) })
			})
		default:
			return written, eris.Errorf("export: unknown format %q", f)
		}
		if err != nil {
			return written, err
		}
	}

	if d.Manifest != nil {
		path := filepath.Join(dir, "manifest.yaml")
		if err := writeFile(path, func(w *os.File) error { return WriteManifest(w, *d.Manifest) }); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// Round rounds half away from zero to places decimals.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// m2 rounds square meters and densities.
func m2(v float64) float64 { return Round(v, 2) }

// km2 rounds square kilometers, coverage and agreement.
func km2(v float64) float64 { return Round(v, 4) }

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// sortForReport orders rows by region name, then municipality name, then code.
func sortForReport(rows []stats.MunicipalityStats) []stats.MunicipalityStats {
	out := slices.Clone(rows)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RegionName != out[j].RegionName {
			return out[i].RegionName < out[j].RegionName
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Code < out[j].Code
	})
	return out
}
