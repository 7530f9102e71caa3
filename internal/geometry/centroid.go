package geometry

import "github.com/paulmach/orb"

// ApproximateCentroid returns the first vertex of a Polygon's outer ring.
//
// This is not a true centroid. It is a constant-time stand-in used to key the
// centroid index at multi-million-record scale: a footprint that straddles a
// municipal boundary is attributed to whichever side its first vertex falls
// on. Results derived from it are approximate and are reported as such.
//
// The second return value is false for anything other than a non-empty Polygon.
func ApproximateCentroid(g orb.Geometry) (orb.Point, bool) {
	p, ok := g.(orb.Polygon)
	if !ok || len(p) == 0 || len(p[0]) == 0 {
		return orb.Point{}, false
	}
	return p[0][0], true
}
