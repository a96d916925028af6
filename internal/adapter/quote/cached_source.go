package quote

import (
	"context"
	"time"

	"signed-transfer-gateway/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CachedSource serves prices from a RateCache and falls through to the
// wrapped source on a miss. Cache errors degrade to a direct fetch.
type CachedSource struct {
	source PriceSource
	cache  ports.RateCache
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedSource wraps source with cache.
func NewCachedSource(source PriceSource, cache ports.RateCache, ttl time.Duration, log zerolog.Logger) *CachedSource {
	return &CachedSource{source: source, cache: cache, ttl: ttl, log: log}
}

// PriceUSD returns the cached price if fresh, otherwise fetches and caches it.
func (s *CachedSource) PriceUSD(ctx context.Context) (decimal.Decimal, error) {
	cached, err := s.cache.Get(ctx, PairETHUSD)
	if err != nil {
		s.log.Warn().Err(err).Msg("rate cache read failed, fetching directly")
	}
	if cached != nil {
		return *cached, nil
	}

	price, err := s.source.PriceUSD(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	if err := s.cache.Set(ctx, PairETHUSD, price, s.ttl); err != nil {
		s.log.Warn().Err(err).Msg("rate cache write failed")
	}
	return price, nil
}
