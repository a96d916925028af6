package quote

import (
	"fmt"
	"net/http"

	"signed-transfer-gateway/config"
	"signed-transfer-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// NewProvider builds the configured rate provider. cache may be nil, in which
// case the oracle is queried on every call.
func NewProvider(cfg config.QuoteConfig, cache ports.RateCache, log zerolog.Logger) (*Converter, error) {
	switch cfg.Provider {
	case "static", "":
		src, err := NewStaticSource(cfg.StaticPriceUSD)
		if err != nil {
			return nil, err
		}
		log.Info().Str("price_usd", src.price.String()).Msg("using static exchange rate")
		return NewConverter(src), nil

	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("quote.url is required for the http provider")
		}
		oracle := NewHTTPSource(cfg.URL, cfg.Timeout, http.DefaultClient, DefaultBreakerSettings(), log)
		var src PriceSource = oracle
		if cache != nil && cfg.CacheTTL > 0 {
			src = NewCachedSource(src, cache, cfg.CacheTTL, log)
		}
		log.Info().Str("url", cfg.URL).Dur("cache_ttl", cfg.CacheTTL).Msg("using http exchange rate oracle")
		c := NewConverter(src)
		c.health = []ports.HealthChecker{NewBreakerHealth(oracle)}
		return c, nil
	}
	return nil, fmt.Errorf("unknown quote.provider %q", cfg.Provider)
}
