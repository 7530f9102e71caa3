package building

import (
	"bytes"
	"container/heap"
	"crypto/md5"
	"sort"
	"strconv"
)

// SampleKey is the sampling order of a record: the MD5 of its decimal ID.
// It matches ORDER BY md5(id::text) on the PostGIS backend.
func SampleKey(id int64) [md5.Size]byte {
	return md5.Sum([]byte(strconv.FormatInt(id, 10)))
}

func keyLess(a, b [md5.Size]byte) bool { return bytes.Compare(a[:], b[:]) < 0 }

type sampled struct {
	key  [md5.Size]byte
	area float64
}

// sampleHeap is a max-heap on key, so the root is the first to evict.
type sampleHeap []sampled

func (h sampleHeap) Len() int           { return len(h) }
func (h sampleHeap) Less(i, j int) bool { return keyLess(h[j].key, h[i].key) }
func (h sampleHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *sampleHeap) Push(x any)        { *h = append(*h, x.(sampled)) }

func (h *sampleHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// sampler keeps the limit positive-area matches with the smallest SampleKey.
type sampler struct {
	limit int
	items sampleHeap
}

func (s *sampler) offer(r *Record) {
	if r.AreaM2 <= 0 || s.limit <= 0 {
		return
	}
	it := sampled{key: SampleKey(r.ID), area: r.AreaM2}
	if len(s.items) < s.limit {
		heap.Push(&s.items, it)
		return
	}
	if keyLess(it.key, s.items[0].key) {
		s.items[0] = it
		heap.Fix(&s.items, 0)
	}
}

// areas returns the kept areas in ascending key order.
func (s *sampler) areas() []float64 {
	if len(s.items) == 0 {
		return nil
	}
	sort.Slice(s.items, func(i, j int) bool { return keyLess(s.items[i].key, s.items[j].key) })
	out := make([]float64, len(s.items))
	for i, it := range s.items {
		out[i] = it.area
	}
	return out
}
