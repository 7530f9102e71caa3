// Package building models rooftop footprint datasets and the queries the
// containment strategies run against them.
package building

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rooftop-cli/internal/geometry"
)

// ErrIndexUnavailable is returned when a centroid query is issued against a
// source that has no complete centroid index.
var ErrIndexUnavailable = eris.New("building: centroid index unavailable")

// Record is one footprint from one provider.
type Record struct {
	ID            int64
	Polygon       orb.Polygon
	AreaM2        float64
	Confidence    float64
	HasConfidence bool
	Centroid      orb.Point
	HasCentroid   bool
	Provider      string
}

// Predicate selects which records a query matches.
type Predicate int

const (
	// PredicateWithin matches footprints entirely inside the boundary.
	PredicateWithin Predicate = iota
	// PredicateFirstVertexInBox matches footprints whose first vertex falls
	// inside the boundary's bounding box.
	PredicateFirstVertexInBox
	// PredicateCentroidWithin matches footprints whose precomputed centroid
	// (first vertex) lies inside the boundary.
	PredicateCentroidWithin
)

func (p Predicate) String() string {
	switch p {
	case PredicateWithin:
		return "within"
	case PredicateFirstVertexInBox:
		return "first_vertex_in_box"
	case PredicateCentroidWithin:
		return "centroid_within"
	}
	return "unknown"
}

// Query is one containment question against a source. Boundary is used by
// the within predicates, Box by the box predicate. Records with a confidence
// below MinConfidence are excluded; records without one are kept.
type Query struct {
	Predicate     Predicate
	Boundary      orb.Geometry
	Box           geometry.BBox
	MinConfidence float64
}

// Match is the result of a query: the number of matching records and the
// areas of up to sampleLimit of them. The sample is the positive-area matches
// with the smallest SampleKey, in that order, which is a fixed pseudo-random
// permutation of IDs independent of how the extract was sorted.
type Match struct {
	Count  int64
	Sample []float64
}

// Source is a queryable building collection.
type Source interface {
	Provider() string
	Size(ctx context.Context) (int64, error)
	HasCentroidIndex(ctx context.Context) (bool, error)
	CountAndSample(ctx context.Context, q Query, sampleLimit int) (Match, error)
}

// admits applies the confidence gate.
func (r *Record) admits(minConfidence float64) bool {
	return !r.HasConfidence || r.Confidence >= minConfidence
}

// firstVertex is the record's precomputed centroid or, failing that, the
// first vertex of its outer ring.
func (r *Record) firstVertex() (orb.Point, bool) {
	if r.HasCentroid {
		return r.Centroid, true
	}
	return geometry.ApproximateCentroid(r.Polygon)
}
