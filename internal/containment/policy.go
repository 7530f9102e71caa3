package containment

import (
	"context"
	"math"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/building"
	"github.com/sells-group/rooftop-cli/internal/geometry"
)

// Mode is the configured strategy preference.
type Mode string

// Modes. ModeAuto picks per source; the others put their strategy first and
// keep the automatic chain as fallback.
const (
	ModeAuto     Mode = "auto"
	ModeExact    Mode = "exact"
	ModeBBox     Mode = "bbox"
	ModeCentroid Mode = "centroid"
)

// DefaultExactMaxRecords is the source size above which exact containment
// is no longer attempted unless forced.
const DefaultExactMaxRecords = 250_000

// ParseMode validates a mode string. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeExact, ModeBBox, ModeCentroid:
		return m, nil
	}
	return "", eris.Errorf("containment: unknown strategy mode %q", s)
}

// Policy decides which strategies to try, in order, for a source.
//
// In auto mode the centroid strategy comes first when the source has a
// complete centroid index, exact containment follows when the source is no
// larger than ExactMaxRecords, and the bounding-box filter is the last
// resort. RequireExact restricts every chain to exact containment. A boundary
// with invalid geometry only ever gets the bounding-box filter.
type Policy struct {
	Mode            Mode
	ExactMaxRecords int64
	RequireExact    bool
}

// Profile is what the policy needs to know about a source. It is measured
// once per run.
type Profile struct {
	Provider string
	Size     int64
	Indexed  bool
}

// Profile measures src. When the source cannot report its size or index,
// the profile assumes the worst: unbounded size, no index.
func (p Policy) Profile(ctx context.Context, src building.Source) Profile {
	log := zap.L().With(zap.String("component", "containment"), zap.String("provider", src.Provider()))
	prof := Profile{Provider: src.Provider(), Size: math.MaxInt64}

	if n, err := src.Size(ctx); err != nil {
		log.Warn("source size unavailable", zap.Error(err))
	} else {
		prof.Size = n
	}
	if ok, err := src.HasCentroidIndex(ctx); err != nil {
		log.Warn("centroid index check failed", zap.Error(err))
	} else {
		prof.Indexed = ok
	}
	return prof
}

// Plan returns the strategies to try, in order.
func (p Policy) Plan(prof Profile, validBoundary bool) []Strategy {
	if !validBoundary {
		if p.RequireExact {
			return nil
		}
		return []Strategy{BBox{}}
	}
	if p.RequireExact {
		return []Strategy{Exact{}}
	}

	limit := p.ExactMaxRecords
	if limit <= 0 {
		limit = DefaultExactMaxRecords
	}
	var auto []Kind
	if prof.Indexed {
		auto = append(auto, KindCentroid)
	}
	if prof.Size <= limit {
		auto = append(auto, KindExact)
	}
	auto = append(auto, KindBBox)

	kinds := auto
	if p.Mode != "" && p.Mode != ModeAuto {
		first := Kind(p.Mode)
		kinds = []Kind{first}
		for _, k := range auto {
			if k != first {
				kinds = append(kinds, k)
			}
		}
	}

	chain := make([]Strategy, 0, len(kinds))
	for _, k := range kinds {
		s, err := ForKind(k)
		if err != nil {
			continue
		}
		chain = append(chain, s)
	}
	return chain
}

// Select runs the chain until a strategy answers. A strategy that cannot
// serve this boundary or source (no index, unusable geometry) hands over to
// the next one; a backend failure is returned as is.
func Select(ctx context.Context, chain []Strategy, boundary orb.Geometry, src building.Source, opts Options) (Result, error) {
	if len(chain) == 0 {
		return Result{}, eris.Wrap(geometry.ErrInvalidGeometry, "containment: no strategy can serve an invalid boundary when exactness is required")
	}

	var lastErr error
	for _, s := range chain {
		res, err := s.CountAndSample(ctx, boundary, src, opts)
		if err == nil {
			return res, nil
		}
		if IsQueryFailure(err) || ctx.Err() != nil {
			return Result{}, err
		}
		if eris.Is(err, geometry.ErrMissingGeometry) || eris.Is(err, geometry.ErrUnsupportedGeometryKind) {
			return Result{}, err
		}
		zap.L().Debug("strategy unavailable, falling back",
			zap.String("component", "containment"),
			zap.String("provider", src.Provider()),
			zap.String("strategy", string(s.Kind())),
			zap.Error(err),
		)
		lastErr = err
	}
	return Result{}, lastErr
}
