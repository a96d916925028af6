package service

import (
	"context"
	"errors"

	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/pkg/apperror"

	"github.com/shopspring/decimal"
)

// QuoteServiceImpl implements ports.QuoteService.
type QuoteServiceImpl struct {
	rates ports.RateProvider
}

// NewQuoteService creates a new QuoteServiceImpl.
func NewQuoteService(rates ports.RateProvider) *QuoteServiceImpl {
	return &QuoteServiceImpl{rates: rates}
}

// QuoteUSD prices a USD amount in ether using the same rounding as a
// QUOTE-typed transfer initiation.
func (s *QuoteServiceImpl) QuoteUSD(ctx context.Context, amountUSD string) (*ports.QuoteResult, error) {
	amount, err := parsePositiveAmount(amountUSD)
	if err != nil {
		return nil, err
	}
	usd := amount.Round(domain.QuotePlaces)

	// One price read backs both the ether amount and the reported rate.
	price, err := s.rates.Quote(ctx, decimal.NewFromInt(1), domain.UnitETH, domain.UnitUSD)
	if err != nil {
		return nil, apperror.ErrQuoteUnavailable(err)
	}
	if !price.IsPositive() {
		return nil, apperror.ErrQuoteUnavailable(errors.New("non-positive price"))
	}
	eth := usd.DivRound(price, domain.NativeDecimals).Round(domain.NativePlaces)

	wei, err := weiAmount(eth)
	if err != nil {
		return nil, err
	}

	return &ports.QuoteResult{
		AmountUSD:      domain.FormatUSD(usd),
		AmountEth:      eth.StringFixed(domain.NativePlaces),
		AmountWei:      wei,
		PriceUSDPerEth: domain.FormatUSD(price),
	}, nil
}
