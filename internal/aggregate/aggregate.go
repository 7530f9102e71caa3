// Package aggregate counts every provider's buildings inside each boundary.
// Failures are confined to one (boundary, provider) pair: the pair gets a
// zero result and a Degradation, and the batch goes on.
package aggregate

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rooftop-cli/internal/boundary"
	"github.com/sells-group/rooftop-cli/internal/building"
	"github.com/sells-group/rooftop-cli/internal/containment"
	"github.com/sells-group/rooftop-cli/internal/geometry"
	"github.com/sells-group/rooftop-cli/internal/resilience"
	"github.com/sells-group/rooftop-cli/internal/stats"
)

// Degradation reasons.
const (
	ReasonMissingGeometry     = "missing_geometry"
	ReasonUnsupportedGeometry = "unsupported_geometry"
	ReasonInvalidGeometry     = "invalid_geometry"
	ReasonIndexUnavailable    = "index_unavailable"
	ReasonBreakerOpen         = "breaker_open"
	ReasonQueryFailure        = "query_failure"
)

// Degradation records a (boundary, provider) pair whose result was replaced
// by zero, so operators can rerun it selectively.
type Degradation struct {
	Code     string `json:"code" yaml:"code"`
	Name     string `json:"name" yaml:"name"`
	Provider string `json:"provider" yaml:"provider"`
	Reason   string `json:"reason" yaml:"reason"`
	Class    string `json:"class" yaml:"class"`
	Detail   string `json:"detail" yaml:"detail"`
}

// Options configure an Aggregator.
type Options struct {
	Policy       containment.Policy
	Count        containment.Options
	Retry        resilience.RetryConfig
	QueryTimeout time.Duration
	// BreakerThreshold is the number of consecutive transient failures
	// after which a provider's queries are skipped. Zero disables it.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type provider struct {
	src     building.Source
	profile containment.Profile
}

// Aggregator runs the containment strategies for a fixed set of sources.
type Aggregator struct {
	opts      Options
	providers []provider
	log       *zap.Logger
}

// New profiles each source once and wraps it for retries and timeouts.
func New(ctx context.Context, opts Options, sources ...building.Source) *Aggregator {
	a := &Aggregator{opts: opts, log: zap.L().With(zap.String("component", "aggregate"))}
	for _, src := range sources {
		prof := opts.Policy.Profile(ctx, src)
		breaker := resilience.NewBreaker(opts.BreakerThreshold, opts.BreakerCooldown)
		a.providers = append(a.providers, provider{
			src:     guard(src, opts.Retry, breaker, opts.QueryTimeout),
			profile: prof,
		})
		a.log.Info("source profiled",
			zap.String("provider", prof.Provider),
			zap.Int64("size", prof.Size),
			zap.Bool("centroid_index", prof.Indexed),
		)
	}
	return a
}

// Profiles returns the measured source profiles in source order.
func (a *Aggregator) Profiles() []containment.Profile {
	out := make([]containment.Profile, len(a.providers))
	for i, p := range a.providers {
		out[i] = p.profile
	}
	return out
}

// Municipality is the per-provider result of one boundary.
type Municipality struct {
	Boundary     boundary.Boundary
	Stats        []stats.ProviderStats
	Degradations []Degradation
}

// Aggregate counts every source inside b. It never fails: each pair that
// cannot be answered yields a zero result and a Degradation.
func (a *Aggregator) Aggregate(ctx context.Context, b boundary.Boundary) Municipality {
	m := Municipality{Boundary: b, Stats: make([]stats.ProviderStats, len(a.providers))}
	for i, p := range a.providers {
		ps, deg := a.pair(ctx, b, p)
		m.Stats[i] = ps
		if deg != nil {
			m.Degradations = append(m.Degradations, *deg)
		}
	}
	return m
}

func (a *Aggregator) pair(ctx context.Context, b boundary.Boundary, p provider) (stats.ProviderStats, *Degradation) {
	name := p.src.Provider()
	ps := stats.ProviderStats{Provider: name}

	var err error
	switch b.Geometry.(type) {
	case nil:
		err = eris.Wrapf(geometry.ErrMissingGeometry, "aggregate: boundary %s", b.Code)
	case orb.Polygon, orb.MultiPolygon:
		var res containment.Result
		chain := a.opts.Policy.Plan(p.profile, b.Valid)
		res, err = containment.Select(ctx, chain, b.Geometry, p.src, a.opts.Count)
		if err == nil {
			return fromResult(name, res), nil
		}
	default:
		err = eris.Wrapf(geometry.ErrUnsupportedGeometryKind, "aggregate: boundary %s is %s", b.Code, b.Geometry.GeoJSONType())
	}

	deg := &Degradation{
		Code:     b.Code,
		Name:     b.Name,
		Provider: name,
		Reason:   Reason(err),
		Class:    resilience.Classify(err),
		Detail:   err.Error(),
	}
	ps.Degraded, ps.DegradeReason = true, deg.Reason
	a.log.Warn("pair degraded to zero",
		zap.String("code", b.Code),
		zap.String("provider", name),
		zap.String("reason", deg.Reason),
		zap.Error(err),
	)
	return ps, deg
}

func fromResult(name string, res containment.Result) stats.ProviderStats {
	return stats.ProviderStats{
		Provider:           name,
		Strategy:           string(res.Kind),
		Count:              res.Count,
		AvgAreaM2:          res.AverageAreaM2,
		TotalAreaM2:        res.TotalAreaM2,
		TotalAreaEstimated: res.Estimated(),
		TotalAreaStdErrM2:  res.TotalAreaStdErrM2,
		SampleSize:         res.SampleSize,
		UpperBound:         res.UpperBound(),
	}
}

// Reason maps an error to a degradation reason.
func Reason(err error) string {
	switch {
	case eris.Is(err, geometry.ErrMissingGeometry):
		return ReasonMissingGeometry
	case eris.Is(err, geometry.ErrUnsupportedGeometryKind):
		return ReasonUnsupportedGeometry
	case eris.Is(err, geometry.ErrInvalidGeometry):
		return ReasonInvalidGeometry
	case eris.Is(err, building.ErrIndexUnavailable):
		return ReasonIndexUnavailable
	case errors.Is(err, resilience.ErrBreakerOpen):
		return ReasonBreakerOpen
	}
	return ReasonQueryFailure
}

// All aggregates every boundary with at most concurrency boundaries in
// flight. Results are in boundary order. Only cancellation of ctx fails
// the call.
func (a *Aggregator) All(ctx context.Context, bs []boundary.Boundary, concurrency int) ([]Municipality, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make([]Municipality, len(bs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range bs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return eris.Wrap(err, "aggregate: cancelled")
			}
			out[i] = a.Aggregate(gCtx, bs[i])
			if err := gCtx.Err(); err != nil {
				return eris.Wrap(err, "aggregate: cancelled")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var degraded int
	for _, m := range out {
		degraded += len(m.Degradations)
	}
	a.log.Info("aggregation complete",
		zap.Int("boundaries", len(bs)),
		zap.Int("degraded_pairs", degraded),
	)
	return out, nil
}
