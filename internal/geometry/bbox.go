// Package geometry provides the cheap geometric primitives the aggregation
// engine is built on: bounding boxes, first-vertex centroids, validity checks,
// prepared containment tests, geodesic area, and EWKB conversion.
package geometry

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// Geometry failure taxonomy. Callers classify with eris.Is.
var (
	ErrMissingGeometry         = eris.New("geometry: missing geometry")
	ErrUnsupportedGeometryKind = eris.New("geometry: unsupported geometry kind")
	ErrInvalidGeometry         = eris.New("geometry: invalid geometry")
)

// BBox represents a geographic bounding box in WGS84 degrees.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Contains reports whether the point lies inside the box, edges included.
func (b BBox) Contains(lng, lat float64) bool {
	return lng >= b.MinLng && lng <= b.MaxLng && lat >= b.MinLat && lat <= b.MaxLat
}

// Bound converts the box to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLng, b.MinLat}, Max: orb.Point{b.MaxLng, b.MaxLat}}
}

// BoundingBox returns the axis-aligned box of a Polygon's outer ring, or of
// the union of every outer ring of a MultiPolygon. Holes never widen a box.
func BoundingBox(g orb.Geometry) (BBox, error) {
	var rings []orb.Ring
	switch t := g.(type) {
	case nil:
		return BBox{}, ErrMissingGeometry
	case orb.Polygon:
		if len(t) > 0 {
			rings = append(rings, t[0])
		}
	case orb.MultiPolygon:
		for _, p := range t {
			if len(p) > 0 {
				rings = append(rings, p[0])
			}
		}
	default:
		return BBox{}, eris.Wrapf(ErrUnsupportedGeometryKind, "geometry: bounding box of %s", g.GeoJSONType())
	}

	var (
		box  BBox
		seen bool
	)
	for _, ring := range rings {
		for _, p := range ring {
			if !seen {
				box = BBox{MinLng: p[0], MaxLng: p[0], MinLat: p[1], MaxLat: p[1]}
				seen = true
				continue
			}
			box.MinLng = min(box.MinLng, p[0])
			box.MaxLng = max(box.MaxLng, p[0])
			box.MinLat = min(box.MinLat, p[1])
			box.MaxLat = max(box.MaxLat, p[1])
		}
	}
	if !seen {
		return BBox{}, eris.Wrap(ErrMissingGeometry, "geometry: bounding box of empty coordinates")
	}
	return box, nil
}

// Kind returns the GeoJSON type name of g, or "" for nil.
func Kind(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return g.GeoJSONType()
}
