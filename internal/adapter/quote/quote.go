// Package quote prices ether in USD for the approval and wallet services.
package quote

import (
	"context"
	"errors"
	"fmt"

	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"

	"github.com/shopspring/decimal"
)

// PairETHUSD is the cache key for the only pair the ledger prices.
const PairETHUSD = "ETH-USD"

// divisionPrecision keeps USD to ETH divisions exact to the wei.
const divisionPrecision = domain.NativeDecimals

// ErrUnavailable wraps every failure to obtain a usable price.
var ErrUnavailable = errors.New("exchange rate unavailable")

// PriceSource reports the current USD price of one ether.
type PriceSource interface {
	PriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// Converter implements ports.RateProvider on top of a PriceSource.
type Converter struct {
	source PriceSource
	health []ports.HealthChecker
}

// NewConverter creates a Converter reading prices from source.
func NewConverter(source PriceSource) *Converter {
	return &Converter{source: source}
}

// HealthCheckers lists the checks for the remote dependencies behind c.
func (c *Converter) HealthCheckers() []ports.HealthChecker {
	return c.health
}

// Quote converts amount from one unit to the other at the current price.
func (c *Converter) Quote(ctx context.Context, amount decimal.Decimal, from, to domain.Unit) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	price, err := c.source.PriceUSD(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s", ErrUnavailable, price)
	}

	switch {
	case from == domain.UnitETH && to == domain.UnitUSD:
		return amount.Mul(price), nil
	case from == domain.UnitUSD && to == domain.UnitETH:
		return amount.DivRound(price, divisionPrecision), nil
	}
	return decimal.Zero, fmt.Errorf("unsupported conversion %s to %s", from, to)
}

// StaticSource always reports the same price.
type StaticSource struct {
	price decimal.Decimal
}

// NewStaticSource parses price, e.g. "2000".
func NewStaticSource(price string) (*StaticSource, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse static price %q: %w", price, err)
	}
	if !p.IsPositive() {
		return nil, fmt.Errorf("static price must be positive, got %s", p)
	}
	return &StaticSource{price: p}, nil
}

// PriceUSD returns the configured price.
func (s *StaticSource) PriceUSD(_ context.Context) (decimal.Decimal, error) {
	return s.price, nil
}
