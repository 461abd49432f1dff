package oracle

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type limitedProvider struct {
	Provider
	limiter *rate.Limiter
}

// Limited gates every fetch through l. A nil limiter returns p unchanged.
func Limited(p Provider, l *rate.Limiter) Provider {
	if p == nil || l == nil {
		return p
	}
	return &limitedProvider{Provider: p, limiter: l}
}

func (p *limitedProvider) FetchSpotPrices(ctx context.Context, symbols []string) (map[string]int64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit: %w", p.Name(), err)
	}
	return p.Provider.FetchSpotPrices(ctx, symbols)
}
