package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
)

// IsValid reports whether g is a simple Polygon or MultiPolygon.
func IsValid(g orb.Geometry) bool {
	return Validate(g) == nil
}

// Validate checks a Polygon or MultiPolygon for topological defects: rings
// that are unclosed, too short, collapsed or non-finite, edges that cross or
// overlap, a ring touching itself, holes outside their shell or nested in a
// sibling hole, and parts lying inside another part. Distinct rings touching
// at a single point are accepted. Defects are wrapped in ErrInvalidGeometry.
func Validate(g orb.Geometry) error {
	var polys []orb.Polygon
	switch t := g.(type) {
	case nil:
		return ErrMissingGeometry
	case orb.Polygon:
		polys = []orb.Polygon{t}
	case orb.MultiPolygon:
		polys = t
	default:
		return eris.Wrapf(ErrUnsupportedGeometryKind, "geometry: validate %s", g.GeoJSONType())
	}
	if len(polys) == 0 {
		return eris.Wrap(ErrMissingGeometry, "geometry: validate empty multipolygon")
	}

	var segs []segment
	ringID := 0
	for pi, poly := range polys {
		if len(poly) == 0 {
			return eris.Wrapf(ErrInvalidGeometry, "geometry: polygon %d has no rings", pi)
		}
		for ri, ring := range poly {
			if err := validateRing(ring); err != nil {
				return eris.Wrapf(err, "geometry: polygon %d ring %d", pi, ri)
			}
			segs = ringSegments(segs, ring, ringID)
			ringID++
		}
	}

	sortByMinX(segs)
	if a, b, ok := firstCrossing(segs); ok {
		return eris.Wrapf(ErrInvalidGeometry, "geometry: self-intersection near (%.6f, %.6f) / (%.6f, %.6f)",
			a.a[0], a.a[1], b.a[0], b.a[1])
	}

	for pi, poly := range polys {
		if err := validateHoles(poly); err != nil {
			return eris.Wrapf(err, "geometry: polygon %d", pi)
		}
	}
	return validateParts(polys)
}

// validateHoles requires every hole inside the shell and outside its
// siblings. Edges no longer cross at this point, so one point of a ring that
// is off the other ring decides which side the whole ring is on.
func validateHoles(poly orb.Polygon) error {
	for hi := 1; hi < len(poly); hi++ {
		pt, ok := pointOffRings(poly[hi], poly[:1])
		if !ok || !planar.RingContains(poly[0], pt) {
			return eris.Wrapf(ErrInvalidGeometry, "hole %d outside shell", hi)
		}
		hb := poly[hi].Bound()
		for gi := 1; gi < len(poly); gi++ {
			if gi == hi || !poly[gi].Bound().Contains(hb.Min) || !poly[gi].Bound().Contains(hb.Max) {
				continue
			}
			pt, ok := pointOffRings(poly[hi], poly[gi:gi+1])
			if !ok || planar.RingContains(poly[gi], pt) {
				return eris.Wrapf(ErrInvalidGeometry, "hole %d nested in hole %d", hi, gi)
			}
		}
	}
	return nil
}

// validateParts rejects a MultiPolygon part whose shell lies in the interior
// of another part. A part inside another part's hole is fine.
func validateParts(polys []orb.Polygon) error {
	if len(polys) < 2 {
		return nil
	}
	bounds := make([]orb.Bound, len(polys))
	for i, poly := range polys {
		bounds[i] = poly[0].Bound()
	}
	for j, inner := range polys {
		for i, outer := range polys {
			if i == j || !bounds[i].Contains(bounds[j].Min) || !bounds[i].Contains(bounds[j].Max) {
				continue
			}
			pt, ok := pointOffRings(inner[0], outer)
			if !ok || planar.PolygonContains(outer, pt) {
				return eris.Wrapf(ErrInvalidGeometry, "geometry: polygon %d lies inside polygon %d", j, i)
			}
		}
	}
	return nil
}

// pointOffRings returns a vertex or edge midpoint of ring that is on none of
// the edges of rings.
func pointOffRings(ring orb.Ring, rings []orb.Ring) (orb.Point, bool) {
	for i := 0; i+1 < len(ring); i++ {
		mid := orb.Point{(ring[i][0] + ring[i+1][0]) / 2, (ring[i][1] + ring[i+1][1]) / 2}
		for _, pt := range []orb.Point{ring[i], mid} {
			if !onAnyRing(pt, rings) {
				return pt, true
			}
		}
	}
	return orb.Point{}, false
}

func onAnyRing(pt orb.Point, rings []orb.Ring) bool {
	for _, r := range rings {
		for i := 0; i+1 < len(r); i++ {
			if onSegment(r[i], r[i+1], pt) {
				return true
			}
		}
	}
	return false
}

func validateRing(ring orb.Ring) error {
	if len(ring) < 4 {
		return eris.Wrapf(ErrInvalidGeometry, "ring has %d points, need at least 4", len(ring))
	}
	for _, p := range ring {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return eris.Wrap(ErrInvalidGeometry, "ring has non-finite coordinates")
		}
	}
	if !ring.Closed() {
		return eris.Wrap(ErrInvalidGeometry, "ring is not closed")
	}
	if planar.Area(ring) == 0 {
		return eris.Wrap(ErrInvalidGeometry, "ring is collapsed")
	}
	return nil
}
