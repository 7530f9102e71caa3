package building

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/geometry"
	"github.com/sells-group/rooftop-cli/internal/tabular"
)

// Supported raw extract formats.
const (
	FormatGeoJSONL = "geojsonl"
	FormatCSV      = "csv"
)

// ReadStats counts what a reader kept and dropped.
type ReadStats struct {
	Kept            int
	NoGeometry      int
	BelowConfidence int
}

// ReadFile reads a raw provider extract in the given format.
func ReadFile(ctx context.Context, path, format string, minConfidence float64) ([]Record, ReadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ReadStats{}, eris.Wrapf(err, "building: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var (
		recs  []Record
		stats ReadStats
	)
	switch format {
	case FormatGeoJSONL:
		recs, stats, err = ReadGeoJSONL(ctx, f, minConfidence)
	case FormatCSV:
		recs, stats, err = ReadCSV(ctx, f, minConfidence)
	default:
		return nil, ReadStats{}, eris.Errorf("building: unknown format %q", format)
	}
	if err != nil {
		return nil, stats, err
	}

	zap.L().With(zap.String("component", "building")).Info("read building extract",
		zap.String("path", path),
		zap.Int("kept", stats.Kept),
		zap.Int("no_geometry", stats.NoGeometry),
		zap.Int("below_confidence", stats.BelowConfidence),
	)
	return recs, stats, nil
}

// ReadGeoJSONL reads one GeoJSON Feature (or bare geometry) per line. The
// record ID is the line number. Area comes from an area_m2 or
// area_in_meters property, or is measured geodesically when absent.
func ReadGeoJSONL(ctx context.Context, r io.Reader, minConfidence float64) ([]Record, ReadStats, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		recs  []Record
		stats ReadStats
		line  int64
	)
	for sc.Scan() {
		line++
		if line%cancelCheckEvery == 0 && ctx.Err() != nil {
			return nil, stats, eris.Wrap(ctx.Err(), "building: read geojsonl")
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		g, props, err := decodeLine(raw)
		if err != nil {
			return nil, stats, eris.Wrapf(err, "building: line %d", line)
		}
		poly, ok := footprint(g)
		if !ok {
			stats.NoGeometry++
			continue
		}

		rec := Record{ID: line, Polygon: poly}
		rec.AreaM2 = firstPositive(props, "area_m2", "area_in_meters")
		if c, ok := propFloat(props, "confidence"); ok {
			rec.Confidence, rec.HasConfidence = c, true
		}
		if !rec.admits(minConfidence) {
			stats.BelowConfidence++
			continue
		}
		if rec.AreaM2 <= 0 {
			rec.AreaM2 = geometry.AreaM2(poly)
		}
		recs = append(recs, rec)
		stats.Kept++
	}
	if err := sc.Err(); err != nil {
		return nil, stats, eris.Wrap(err, "building: scan geojsonl")
	}
	return recs, stats, nil
}

// ReadCSV reads the open-buildings CSV layout: latitude, longitude,
// area_in_meters, confidence and a WKT geometry column. The record ID is the
// CSV line number.
func ReadCSV(ctx context.Context, r io.Reader, minConfidence float64) ([]Record, ReadStats, error) {
	rowCh, errCh := tabular.StreamCSV(ctx, r, tabular.Options{Required: []string{"geometry"}})

	var (
		recs  []Record
		stats ReadStats
	)
	for row := range rowCh {
		rec := Record{ID: int64(row.Line)}
		if v := row.Get("confidence"); v != "" {
			c, err := strconv.ParseFloat(v, 64)
			if err != nil {
				drain(rowCh)
				return nil, stats, eris.Wrapf(err, "building: line %d confidence", row.Line)
			}
			rec.Confidence, rec.HasConfidence = c, true
		}
		if !rec.admits(minConfidence) {
			stats.BelowConfidence++
			continue
		}

		g, err := wkt.Unmarshal(row.Get("geometry"))
		if err != nil {
			stats.NoGeometry++
			continue
		}
		poly, ok := footprint(g)
		if !ok {
			stats.NoGeometry++
			continue
		}
		rec.Polygon = poly

		if v := row.Get("area_in_meters"); v != "" {
			a, err := strconv.ParseFloat(v, 64)
			if err != nil {
				drain(rowCh)
				return nil, stats, eris.Wrapf(err, "building: line %d area", row.Line)
			}
			rec.AreaM2 = a
		}
		if rec.AreaM2 <= 0 {
			rec.AreaM2 = geometry.AreaM2(poly)
		}
		recs = append(recs, rec)
		stats.Kept++
	}
	if err := <-errCh; err != nil {
		return nil, stats, eris.Wrap(err, "building: read csv")
	}
	return recs, stats, nil
}

func drain(ch <-chan tabular.Row) {
	for range ch {
	}
}

func decodeLine(raw []byte) (orb.Geometry, geojson.Properties, error) {
	if f, err := geojson.UnmarshalFeature(raw); err == nil {
		return f.Geometry, f.Properties, nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, nil, eris.Wrap(err, "decode geojson")
	}
	return g.Geometry(), nil, nil
}

// footprint reduces a geometry to one polygon: a MultiPolygon contributes
// its largest part.
func footprint(g orb.Geometry) (orb.Polygon, bool) {
	switch t := g.(type) {
	case orb.Polygon:
		return t, len(t) > 0 && len(t[0]) > 0
	case orb.MultiPolygon:
		best, bestArea := -1, -1.0
		for i, p := range t {
			if len(p) == 0 || len(p[0]) == 0 {
				continue
			}
			if a := planar.Area(p); a > bestArea {
				best, bestArea = i, a
			}
		}
		if best < 0 {
			return nil, false
		}
		return t[best], true
	}
	return nil, false
}

func propFloat(props geojson.Properties, key string) (float64, bool) {
	switch v := props[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func firstPositive(props geojson.Properties, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := propFloat(props, k); ok && v > 0 {
			return v
		}
	}
	return 0
}
