package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AmountType is the unit a transfer amount is expressed in.
type AmountType string

const (
	AmountTypeNative AmountType = "NATIVE" // ether
	AmountTypeQuote  AmountType = "QUOTE"  // USD
)

// ParseAmountType accepts NATIVE/QUOTE and the ETH/USD aliases used by
// browser clients.
func ParseAmountType(s string) (AmountType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NATIVE", "ETH":
		return AmountTypeNative, true
	case "QUOTE", "USD":
		return AmountTypeQuote, true
	}
	return "", false
}

// Approval is a time-bounded authorization for one transfer, waiting for the
// sender's signature over its canonical message.
type Approval struct {
	ID        uuid.UUID `json:"approval_id"` // doubles as the signing nonce
	Sender    string    `json:"sender"`      // verbatim, as submitted
	Recipient string    `json:"recipient"`   // verbatim, as submitted
	Amount    *big.Int  `json:"amount_wei"`
	AmountUSD *string   `json:"amount_usd"` // snapshot, nil when no quote was available
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether now is strictly after the expiry instant.
func (a *Approval) IsExpired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
