package aggregate

import (
	"context"
	"time"

	"github.com/sells-group/rooftop-cli/internal/building"
	"github.com/sells-group/rooftop-cli/internal/resilience"
)

// guardedSource bounds every containment query of a source with a timeout,
// retries transient failures and trips a breaker when the backend keeps
// failing.
type guardedSource struct {
	building.Source
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
	timeout time.Duration
}

func guard(src building.Source, retry resilience.RetryConfig, breaker *resilience.Breaker, timeout time.Duration) *guardedSource {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(src.Provider(), "count_and_sample")
	}
	return &guardedSource{Source: src, retry: retry, breaker: breaker, timeout: timeout}
}

// CountAndSample implements building.Source.
func (g *guardedSource) CountAndSample(ctx context.Context, q building.Query, sampleLimit int) (building.Match, error) {
	return resilience.Execute(ctx, g.breaker, func(ctx context.Context) (building.Match, error) {
		return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (building.Match, error) {
			if g.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, g.timeout)
				defer cancel()
			}
			return g.Source.CountAndSample(ctx, q, sampleLimit)
		})
	})
}
