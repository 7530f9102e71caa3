package geometry

import (
	"sort"

	"github.com/paulmach/orb"
)

// segment is one edge of a ring. ring and idx identify it so that adjacent
// edges of the same ring, which always share an endpoint, are not reported
// as intersecting.
type segment struct {
	a, b orb.Point
	ring int
	idx  int
	n    int
}

func (s segment) minX() float64 { return min(s.a[0], s.b[0]) }
func (s segment) maxX() float64 { return max(s.a[0], s.b[0]) }
func (s segment) minY() float64 { return min(s.a[1], s.b[1]) }
func (s segment) maxY() float64 { return max(s.a[1], s.b[1]) }

func (s segment) adjacent(o segment) bool {
	if s.ring != o.ring {
		return false
	}
	d := s.idx - o.idx
	if d == 1 || d == -1 {
		return true
	}
	last := s.n - 1
	return (s.idx == 0 && o.idx == last) || (o.idx == 0 && s.idx == last)
}

// ringSegments appends the non-degenerate edges of ring, tagged with id.
func ringSegments(dst []segment, ring orb.Ring, id int) []segment {
	start := len(dst)
	for i := 0; i+1 < len(ring); i++ {
		if ring[i] == ring[i+1] {
			continue
		}
		dst = append(dst, segment{a: ring[i], b: ring[i+1], ring: id})
	}
	n := len(dst) - start
	for i := start; i < len(dst); i++ {
		dst[i].idx = i - start
		dst[i].n = n
	}
	return dst
}

// sortByMinX orders segments for the sweep and returns the widest x-extent,
// which bounds how far back a window query has to look.
func sortByMinX(segs []segment) float64 {
	sort.Slice(segs, func(i, j int) bool { return segs[i].minX() < segs[j].minX() })
	var w float64
	for _, s := range segs {
		w = max(w, s.maxX()-s.minX())
	}
	return w
}

// firstCrossing sweeps segments sorted by minX and returns the first pair of
// non-adjacent edges that cross or overlap. Within one ring any contact
// between non-adjacent edges counts, so a vertex on its own ring's edge is
// reported too.
func firstCrossing(segs []segment) (segment, segment, bool) {
	for i := range segs {
		si := segs[i]
		for j := i + 1; j < len(segs) && segs[j].minX() <= si.maxX(); j++ {
			sj := segs[j]
			if sj.maxY() < si.minY() || sj.minY() > si.maxY() || si.adjacent(sj) {
				continue
			}
			if si.ring == sj.ring && touches(si.a, si.b, sj.a, sj.b) {
				return si, sj, true
			}
			if crosses(si.a, si.b, sj.a, sj.b) {
				return si, sj, true
			}
		}
	}
	return segment{}, segment{}, false
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// crosses reports a proper crossing of p1p2 and q1q2, or a collinear overlap
// longer than a point. Touching at an endpoint is not a crossing.
func crosses(p1, p2, q1, q2 orb.Point) bool {
	d1 := sign(orient(q1, q2, p1))
	d2 := sign(orient(q1, q2, p2))
	d3 := sign(orient(p1, p2, q1))
	d4 := sign(orient(p1, p2, q2))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	if d1 == 0 && d2 == 0 && d3 == 0 && d4 == 0 {
		return collinearOverlap(p1, p2, q1, q2)
	}
	return false
}

// touches reports whether p1p2 and q1q2 share any point.
func touches(p1, p2, q1, q2 orb.Point) bool {
	d1 := sign(orient(q1, q2, p1))
	d2 := sign(orient(q1, q2, p2))
	d3 := sign(orient(p1, p2, q1))
	d4 := sign(orient(p1, p2, q2))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	return (d1 == 0 && within(q1, q2, p1)) ||
		(d2 == 0 && within(q1, q2, p2)) ||
		(d3 == 0 && within(p1, p2, q1)) ||
		(d4 == 0 && within(p1, p2, q2))
}

// onSegment reports whether p lies on the segment ab, endpoints included.
func onSegment(a, b, p orb.Point) bool {
	return orient(a, b, p) == 0 && within(a, b, p)
}

// within reports whether p, known to be collinear with ab, is inside its box.
func within(a, b, p orb.Point) bool {
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}

func collinearOverlap(p1, p2, q1, q2 orb.Point) bool {
	axis := 0
	if max(p1[0], p2[0])-min(p1[0], p2[0]) < max(p1[1], p2[1])-min(p1[1], p2[1]) {
		axis = 1
	}
	lo := max(min(p1[axis], p2[axis]), min(q1[axis], q2[axis]))
	hi := min(max(p1[axis], p2[axis]), max(q1[axis], q2[axis]))
	return hi > lo
}
