package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventTransferSettled is the event type emitted after a settlement commits.
const EventTransferSettled = "TRANSFER_SETTLED"

// SettlementEvent is what notification sinks receive. It is built from
// committed state only and is never read back by the ledger.
type SettlementEvent struct {
	EventType           string    `json:"event_type"`
	TransactionID       uuid.UUID `json:"transaction_id"`
	ApprovalID          uuid.UUID `json:"approval_id"`
	Sender              string    `json:"sender"`
	Recipient           string    `json:"recipient"`
	AmountWei           string    `json:"amount_wei"`
	AmountEth           string    `json:"amount_eth"`
	AmountUSD           *string   `json:"amount_usd"`
	NewSenderBalanceWei string    `json:"new_sender_balance_wei"`
	NewSenderBalanceEth string    `json:"new_sender_balance_eth"`
	SettledAt           time.Time `json:"settled_at"`
}
