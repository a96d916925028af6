package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RateCache implements ports.RateCache. Prices are stored as decimal strings
// so no precision is lost between writers and readers.
type RateCache struct {
	client *goredis.Client
	prefix string
}

// NewRateCache creates a new Redis-backed exchange-rate cache.
func NewRateCache(client *goredis.Client) *RateCache {
	return &RateCache{
		client: client,
		prefix: keyPrefix + "rate:",
	}
}

// Get returns the cached price for pair. Returns nil, nil on a miss.
func (c *RateCache) Get(ctx context.Context, pair string) (*decimal.Decimal, error) {
	val, err := c.client.Get(ctx, c.prefix+pair).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis rate get: %w", err)
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		return nil, fmt.Errorf("redis rate decode %q: %w", val, err)
	}
	return &price, nil
}

// Set stores the price for pair with ttl.
func (c *RateCache) Set(ctx context.Context, pair string, price decimal.Decimal, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+pair, price.String(), ttl).Err(); err != nil {
		return fmt.Errorf("redis rate set: %w", err)
	}
	return nil
}
