package containment

import (
	"math"

	"github.com/sells-group/rooftop-cli/internal/building"
)

// Result is the outcome of one strategy for one boundary and one source.
//
// When Count does not exceed the sample limit the sample holds every
// positive-area match, so TotalAreaM2 is their exact sum and Exhaustive is
// set. Otherwise TotalAreaM2 is estimated as AverageAreaM2 × Count and
// TotalAreaStdErrM2 is the standard error of that estimate, with the finite
// population correction for sampling without replacement. Sources draw the
// sample in building.SampleKey order, a pseudo-random permutation of IDs, so
// the simple-random-sample formula holds however the extract was sorted.
type Result struct {
	Kind              Kind
	Count             int64
	AverageAreaM2     float64
	SampleSize        int
	Exhaustive        bool
	TotalAreaM2       float64
	TotalAreaStdErrM2 float64
}

// UpperBound reports whether Count over-approximates the true count.
func (r Result) UpperBound() bool { return r.Kind == KindBBox }

// Approximate reports whether Count may differ from exact containment.
func (r Result) Approximate() bool { return r.Kind != KindExact }

// Estimated reports whether TotalAreaM2 was extrapolated from a sample.
func (r Result) Estimated() bool { return !r.Exhaustive && r.Count > 0 }

// Summarize turns a match into a Result.
func Summarize(kind Kind, m building.Match, sampleLimit int) Result {
	res := Result{Kind: kind, Count: m.Count, SampleSize: len(m.Sample)}
	if m.Count <= 0 {
		res.Count = 0
		res.Exhaustive = true
		return res
	}

	n := float64(len(m.Sample))
	var sum float64
	for _, a := range m.Sample {
		sum += a
	}
	if n > 0 {
		res.AverageAreaM2 = sum / n
	}

	if m.Count <= int64(sampleLimit) {
		res.Exhaustive = true
		res.TotalAreaM2 = sum
		return res
	}

	N := float64(m.Count)
	res.TotalAreaM2 = res.AverageAreaM2 * N
	if n >= 2 {
		var ss float64
		for _, a := range m.Sample {
			d := a - res.AverageAreaM2
			ss += d * d
		}
		s := math.Sqrt(ss / (n - 1))
		fpc := math.Sqrt((N - n) / (N - 1))
		res.TotalAreaStdErrM2 = N * s / math.Sqrt(n) * fpc
	}
	return res
}
