package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ActionTransfer is the only action a canonical message can carry.
const ActionTransfer = "transfer"

// MessageTimeLayout is the fixed-precision UTC timestamp used in messages.
const MessageTimeLayout = "2006-01-02T15:04:05.000Z"

// ApprovalMessage is the exact content a sender signs. Field order is part of
// the wire contract: wallets sign the serialized bytes, so reordering fields
// or changing tags breaks verification of every outstanding approval.
type ApprovalMessage struct {
	Action    string  `json:"action"`
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	AmountWei string  `json:"amount_wei"`
	AmountEth string  `json:"amount_eth"`
	AmountUSD *string `json:"amount_usd"`
	Nonce     string  `json:"nonce"`
	ExpiresAt string  `json:"expires_at"`
}

// FormatMessageTime renders t the way messages carry expiry instants.
func FormatMessageTime(t time.Time) string {
	return t.UTC().Format(MessageTimeLayout)
}

// MessageForApproval derives the canonical message from stored approval fields.
func MessageForApproval(a *Approval) ApprovalMessage {
	return ApprovalMessage{
		Action:    ActionTransfer,
		Sender:    a.Sender,
		Recipient: a.Recipient,
		AmountWei: a.Amount.String(),
		AmountEth: FormatEther(a.Amount),
		AmountUSD: a.AmountUSD,
		Nonce:     a.ID.String(),
		ExpiresAt: FormatMessageTime(a.ExpiresAt),
	}
}

// Encode serializes the message as compact JSON without HTML escaping, which
// is byte-identical to JSON.stringify on the same ordered object.
func (m ApprovalMessage) Encode() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("encode approval message: %w", err)
	}
	// Encoder terminates every value with a newline.
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// CanonicalMessage is MessageForApproval followed by Encode.
func CanonicalMessage(a *Approval) (string, error) {
	return MessageForApproval(a).Encode()
}
