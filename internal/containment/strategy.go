// Package containment counts the buildings of a source that fall inside a
// boundary, with one of three strategies that trade precision for speed:
//
//   - exact: the whole footprint lies inside the boundary.
//   - bbox: the footprint's first vertex lies inside the boundary's bounding
//     box. Counts are upper-bound estimates; buildings near the box corners
//     but outside the boundary are included.
//   - centroid: the footprint's first vertex, precomputed and indexed, lies
//     inside the boundary. Buildings straddling the boundary are attributed
//     to the side holding their first vertex.
//
// Downstream consumers must read counts differently depending on the
// strategy recorded in the Result.
package containment

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rooftop-cli/internal/building"
	"github.com/sells-group/rooftop-cli/internal/geometry"
)

// DefaultSampleLimit caps the number of areas averaged per query.
const DefaultSampleLimit = 1000

// ErrContainmentQuery matches every QueryError.
var ErrContainmentQuery = eris.New("containment: query failed")

// Kind names a strategy.
type Kind string

// Strategy kinds.
const (
	KindExact    Kind = "exact"
	KindBBox     Kind = "bbox"
	KindCentroid Kind = "centroid"
)

// Options tune a single count.
type Options struct {
	SampleLimit   int
	MinConfidence float64
}

// QueryError is a backend failure while counting one boundary against one
// source: a timeout, a lost connection, an engine error.
type QueryError struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("containment: %s query on %s: %v", e.Kind, e.Provider, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrContainmentQuery) hold for every QueryError.
func (e *QueryError) Is(target error) bool { return target == ErrContainmentQuery }

// IsQueryFailure reports whether err is a backend failure.
func IsQueryFailure(err error) bool {
	return errors.Is(err, ErrContainmentQuery)
}

// Strategy counts and samples the buildings of src inside boundary.
type Strategy interface {
	Kind() Kind
	CountAndSample(ctx context.Context, boundary orb.Geometry, src building.Source, opts Options) (Result, error)
}

// ForKind returns the strategy of the given kind.
func ForKind(k Kind) (Strategy, error) {
	switch k {
	case KindExact:
		return Exact{}, nil
	case KindBBox:
		return BBox{}, nil
	case KindCentroid:
		return Centroid{}, nil
	}
	return nil, eris.Errorf("containment: unknown strategy %q", k)
}

// Exact tests full footprint containment. It needs no index but scans
// every candidate the backend cannot exclude by its own spatial index.
type Exact struct{}

// Kind implements Strategy.
func (Exact) Kind() Kind { return KindExact }

// CountAndSample implements Strategy.
func (s Exact) CountAndSample(ctx context.Context, boundary orb.Geometry, src building.Source, opts Options) (Result, error) {
	return run(ctx, s.Kind(), src, building.Query{
		Predicate:     building.PredicateWithin,
		Boundary:      boundary,
		MinConfidence: opts.MinConfidence,
	}, opts)
}

// BBox counts first vertices inside the boundary's bounding box.
type BBox struct{}

// Kind implements Strategy.
func (BBox) Kind() Kind { return KindBBox }

// CountAndSample implements Strategy.
func (s BBox) CountAndSample(ctx context.Context, boundary orb.Geometry, src building.Source, opts Options) (Result, error) {
	box, err := geometry.BoundingBox(boundary)
	if err != nil {
		return Result{}, err
	}
	return run(ctx, s.Kind(), src, building.Query{
		Predicate:     building.PredicateFirstVertexInBox,
		Boundary:      boundary,
		Box:           box,
		MinConfidence: opts.MinConfidence,
	}, opts)
}

// Centroid tests the indexed first-vertex centroid against the boundary.
type Centroid struct{}

// Kind implements Strategy.
func (Centroid) Kind() Kind { return KindCentroid }

// CountAndSample implements Strategy.
func (s Centroid) CountAndSample(ctx context.Context, boundary orb.Geometry, src building.Source, opts Options) (Result, error) {
	return run(ctx, s.Kind(), src, building.Query{
		Predicate:     building.PredicateCentroidWithin,
		Boundary:      boundary,
		MinConfidence: opts.MinConfidence,
	}, opts)
}

func run(ctx context.Context, kind Kind, src building.Source, q building.Query, opts Options) (Result, error) {
	limit := opts.SampleLimit
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	m, err := src.CountAndSample(ctx, q, limit)
	if err != nil {
		if eris.Is(err, building.ErrIndexUnavailable) ||
			eris.Is(err, geometry.ErrMissingGeometry) ||
			eris.Is(err, geometry.ErrUnsupportedGeometryKind) ||
			eris.Is(err, geometry.ErrInvalidGeometry) {
			return Result{}, err
		}
		return Result{}, &QueryError{Kind: kind, Provider: src.Provider(), Err: err}
	}
	return Summarize(kind, m, limit), nil
}
