package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// oracleResponse matches the CoinGecko simple-price shape:
// {"ethereum":{"usd":2456.12}}
type oracleResponse struct {
	Ethereum struct {
		USD decimal.Decimal `json:"usd"`
	} `json:"ethereum"`
}

// BreakerSettings tunes the circuit breaker in front of the oracle.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// DefaultBreakerSettings opens after five straight failures for thirty seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// HTTPSource fetches the price from a remote oracle through a circuit breaker,
// so a slow or failing oracle costs callers one fast error instead of a timeout.
type HTTPSource struct {
	url     string
	timeout time.Duration
	client  HTTPClient
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewHTTPSource creates an oracle-backed PriceSource.
func NewHTTPSource(url string, timeout time.Duration, client HTTPClient, bs BreakerSettings, log zerolog.Logger) *HTTPSource {
	s := &HTTPSource{
		url:     url,
		timeout: timeout,
		client:  client,
		log:     log,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "price-oracle",
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return s
}

// PriceUSD returns the oracle's current ETH price in USD.
func (s *HTTPSource) PriceUSD(ctx context.Context) (decimal.Decimal, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return decimal.Zero, fmt.Errorf("price oracle unavailable (circuit breaker): %w", err)
		}
		return decimal.Zero, err
	}
	return result.(decimal.Decimal), nil
}

// State exposes the breaker state for health reporting.
func (s *HTTPSource) State() gobreaker.State {
	return s.breaker.State()
}

// BreakerHealth reports the oracle as unhealthy while its breaker is open.
type BreakerHealth struct {
	source *HTTPSource
}

// NewBreakerHealth creates a health checker for an HTTPSource.
func NewBreakerHealth(source *HTTPSource) *BreakerHealth {
	return &BreakerHealth{source: source}
}

// Ping returns an error while the breaker is open. Half-open counts as
// healthy since the next request is allowed through.
func (h *BreakerHealth) Ping(_ context.Context) error {
	if st := h.source.State(); st == gobreaker.StateOpen {
		return errors.New("price oracle circuit breaker " + st.String())
	}
	return nil
}

// Name returns the dependency name.
func (h *BreakerHealth) Name() string {
	return "price_oracle"
}

func (s *HTTPSource) fetch(ctx context.Context) (decimal.Decimal, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return decimal.Zero, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var body oracleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode oracle response: %w", err)
	}
	if !body.Ethereum.USD.IsPositive() {
		return decimal.Zero, fmt.Errorf("oracle returned non-positive price %s", body.Ethereum.USD)
	}

	s.log.Debug().Str("price_usd", body.Ethereum.USD.String()).Msg("oracle price fetched")
	return body.Ethereum.USD, nil
}
