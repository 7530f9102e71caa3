package building

import (
	"context"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rooftop-cli/internal/geometry"
)

const cancelCheckEvery = 4096

// Dataset is an in-memory Source. Records are kept in ascending ID order.
type Dataset struct {
	provider string
	records  []Record

	mu    sync.RWMutex
	index *quadtree.Quadtree
}

type centroidRef struct {
	pt  orb.Point
	pos int
}

func (c centroidRef) Point() orb.Point { return c.pt }

// NewDataset takes ownership of records and sorts them by ID.
func NewDataset(provider string, records []Record) *Dataset {
	sort.SliceStable(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	for i := range records {
		records[i].Provider = provider
	}
	return &Dataset{provider: provider, records: records}
}

// Provider implements Source.
func (d *Dataset) Provider() string { return d.provider }

// Records returns the records in ID order. The slice must not be modified.
func (d *Dataset) Records() []Record { return d.records }

// Size implements Source.
func (d *Dataset) Size(_ context.Context) (int64, error) {
	return int64(len(d.records)), nil
}

// HasCentroidIndex implements Source.
func (d *Dataset) HasCentroidIndex(_ context.Context) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.index != nil, nil
}

// BuildCentroidIndex fills in the first-vertex centroid of every record and
// indexes the centroids in a quadtree. It fails, leaving no index, when any
// record has no usable vertex.
func (d *Dataset) BuildCentroidIndex() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.records) == 0 {
		d.index = quadtree.New(orb.Bound{})
		return nil
	}

	bound := orb.Bound{Min: orb.Point{180, 90}, Max: orb.Point{-180, -90}}
	for i := range d.records {
		r := &d.records[i]
		if !r.HasCentroid {
			pt, ok := geometry.ApproximateCentroid(r.Polygon)
			if !ok {
				return eris.Wrapf(geometry.ErrMissingGeometry, "building: record %d has no vertex", r.ID)
			}
			r.Centroid, r.HasCentroid = pt, true
		}
		bound = bound.Extend(r.Centroid)
	}
	// Pad so points on the max edge are accepted by the tree.
	bound = bound.Pad(1e-9)

	qt := quadtree.New(bound)
	for i := range d.records {
		if err := qt.Add(centroidRef{pt: d.records[i].Centroid, pos: i}); err != nil {
			return eris.Wrapf(err, "building: index record %d", d.records[i].ID)
		}
	}
	d.index = qt
	return nil
}

// CountAndSample implements Source.
func (d *Dataset) CountAndSample(ctx context.Context, q Query, sampleLimit int) (Match, error) {
	switch q.Predicate {
	case PredicateFirstVertexInBox:
		return d.scan(ctx, q, sampleLimit, func(r *Record) bool {
			pt, ok := r.firstVertex()
			return ok && q.Box.Contains(pt[0], pt[1])
		})
	case PredicateWithin:
		prep, err := geometry.Prepare(q.Boundary)
		if err != nil {
			return Match{}, err
		}
		return d.scan(ctx, q, sampleLimit, func(r *Record) bool {
			return prep.ContainsPolygon(r.Polygon)
		})
	case PredicateCentroidWithin:
		return d.centroidWithin(ctx, q, sampleLimit)
	}
	return Match{}, eris.Errorf("building: unknown predicate %d", q.Predicate)
}

func (d *Dataset) scan(ctx context.Context, q Query, sampleLimit int, match func(*Record) bool) (Match, error) {
	var m Match
	s := sampler{limit: sampleLimit}
	for i := range d.records {
		if i%cancelCheckEvery == 0 && ctx.Err() != nil {
			return Match{}, eris.Wrap(ctx.Err(), "building: scan")
		}
		r := &d.records[i]
		if !r.admits(q.MinConfidence) || !match(r) {
			continue
		}
		m.Count++
		s.offer(r)
	}
	m.Sample = s.areas()
	return m, nil
}

func (d *Dataset) centroidWithin(ctx context.Context, q Query, sampleLimit int) (Match, error) {
	d.mu.RLock()
	idx := d.index
	d.mu.RUnlock()
	if idx == nil {
		return Match{}, eris.Wrapf(ErrIndexUnavailable, "building: %s", d.provider)
	}

	prep, err := geometry.Prepare(q.Boundary)
	if err != nil {
		return Match{}, err
	}

	candidates := idx.InBound(nil, prep.Bound())
	positions := make([]int, 0, len(candidates))
	for _, c := range candidates {
		ref := c.(centroidRef)
		if prep.ContainsPoint(ref.pt) {
			positions = append(positions, ref.pos)
		}
	}
	if ctx.Err() != nil {
		return Match{}, eris.Wrap(ctx.Err(), "building: centroid query")
	}

	var m Match
	s := sampler{limit: sampleLimit}
	for _, pos := range positions {
		r := &d.records[pos]
		if r.admits(q.MinConfidence) {
			m.Count++
			s.offer(r)
		}
	}
	m.Sample = s.areas()
	return m, nil
}
