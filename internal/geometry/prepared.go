package geometry

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
)

// Prepared is a boundary polygon readied for many containment tests: its
// edges are sorted for window queries and its holes are precomputed, so a
// footprint test only touches the edges near the footprint.
type Prepared struct {
	geom     orb.Geometry
	bound    orb.Bound
	segs     []segment
	maxWidth float64
	holes    []orb.Point
}

// Prepare readies a Polygon or MultiPolygon for containment tests.
func Prepare(g orb.Geometry) (*Prepared, error) {
	var polys []orb.Polygon
	switch t := g.(type) {
	case nil:
		return nil, ErrMissingGeometry
	case orb.Polygon:
		polys = []orb.Polygon{t}
	case orb.MultiPolygon:
		polys = t
	default:
		return nil, eris.Wrapf(ErrUnsupportedGeometryKind, "geometry: prepare %s", g.GeoJSONType())
	}

	p := &Prepared{geom: g, bound: g.Bound()}
	id := 0
	for _, poly := range polys {
		for ri, ring := range poly {
			if ri > 0 && len(ring) > 0 {
				p.holes = append(p.holes, ring[0])
			}
			p.segs = ringSegments(p.segs, ring, id)
			id++
		}
	}
	if len(p.segs) == 0 {
		return nil, eris.Wrap(ErrMissingGeometry, "geometry: prepare empty coordinates")
	}
	p.maxWidth = sortByMinX(p.segs)
	return p, nil
}

// Geometry returns the prepared geometry.
func (p *Prepared) Geometry() orb.Geometry { return p.geom }

// Bound returns the envelope of every ring.
func (p *Prepared) Bound() orb.Bound { return p.bound }

// ContainsPoint reports whether pt lies inside the boundary (edges included).
func (p *Prepared) ContainsPoint(pt orb.Point) bool {
	if !p.bound.Contains(pt) {
		return false
	}
	switch t := p.geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(t, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(t, pt)
	}
	return false
}

// ContainsPolygon reports whether the footprint's outer ring lies entirely
// inside the boundary: every vertex inside, no edge crossing a boundary edge,
// and no boundary hole enclosed by the footprint.
func (p *Prepared) ContainsPolygon(fp orb.Polygon) bool {
	if len(fp) == 0 || len(fp[0]) == 0 {
		return false
	}
	outer := fp[0]
	fb := outer.Bound()
	if !p.bound.Contains(fb.Min) || !p.bound.Contains(fb.Max) {
		return false
	}
	for _, v := range outer {
		if !p.ContainsPoint(v) {
			return false
		}
	}
	for _, h := range p.holes {
		if fb.Contains(h) && planar.RingContains(outer, h) {
			return false
		}
	}

	lo := sort.Search(len(p.segs), func(i int) bool {
		return p.segs[i].minX() >= fb.Min[0]-p.maxWidth
	})
	for i := 0; i+1 < len(outer); i++ {
		a, b := outer[i], outer[i+1]
		if a == b {
			continue
		}
		for j := lo; j < len(p.segs) && p.segs[j].minX() <= fb.Max[0]; j++ {
			s := p.segs[j]
			if s.maxX() < fb.Min[0] || s.maxY() < fb.Min[1] || s.minY() > fb.Max[1] {
				continue
			}
			if crosses(a, b, s.a, s.b) {
				return false
			}
		}
	}
	return true
}
