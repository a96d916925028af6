package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"signed-transfer-gateway/internal/core/domain"

	"github.com/rs/zerolog"
)

// HeaderSignature carries the hex HMAC-SHA256 of the request body.
const HeaderSignature = "X-Signature"

// DefaultRetryIntervals is the wait before each redelivery attempt.
var DefaultRetryIntervals = []time.Duration{
	time.Second,
	5 * time.Second,
	15 * time.Second,
	time.Minute,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Webhook POSTs events as JSON to a fixed URL, signing the body when a
// secret is configured.
type Webhook struct {
	url     string
	secret  string
	client  HTTPClient
	retries []time.Duration
	log     zerolog.Logger
}

// NewWebhook creates a webhook sink.
func NewWebhook(url, secret string, client HTTPClient, retries []time.Duration, log zerolog.Logger) *Webhook {
	return &Webhook{
		url:     url,
		secret:  secret,
		client:  client,
		retries: retries,
		log:     log,
	}
}

// Sign computes the lowercase hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notify delivers event, retrying non-2xx responses and transport errors
// until the retry schedule or ctx runs out.
func (w *Webhook) Notify(ctx context.Context, event *domain.SettlementEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	txID := event.TransactionID.String()

	var lastErr error
	for attempt := 0; attempt <= len(w.retries); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook: gave up on %s: %w", txID, ctx.Err())
			case <-time.After(w.retries[attempt-1]):
			}
		}

		lastErr = w.deliver(ctx, payload)
		if lastErr == nil {
			w.log.Info().Str("tx_id", txID).Int("attempt", attempt+1).Msg("webhook: delivered")
			return nil
		}
		w.log.Warn().Err(lastErr).Str("tx_id", txID).Int("attempt", attempt+1).Msg("webhook: delivery failed")
	}

	return fmt.Errorf("webhook: all attempts exhausted for %s: %w", txID, lastErr)
}

func (w *Webhook) deliver(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set(HeaderSignature, Sign(w.secret, payload))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return nil
}
