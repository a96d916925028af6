package domain

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// TransactionStatus represents the outcome recorded for a settlement.
type TransactionStatus string

// Only successful settlements produce a record.
const TransactionStatusSuccess TransactionStatus = "SUCCESS"

// Transaction is the immutable record of one consumed approval.
type Transaction struct {
	ID         uuid.UUID         `json:"id"`
	ApprovalID uuid.UUID         `json:"approval_id"`
	Sender     string            `json:"sender"`
	Recipient  string            `json:"recipient"`
	Amount     *big.Int          `json:"amount_wei"`
	AmountUSD  *string           `json:"amount_usd"`
	Status     TransactionStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
}

// IsIncoming reports whether the record credits address.
func (t *Transaction) IsIncoming(address string) bool {
	return SameAddress(t.Recipient, address)
}

// NewTransactionFromApproval mirrors a settled approval into a record.
func NewTransactionFromApproval(a *Approval, at time.Time) *Transaction {
	return &Transaction{
		ID:         uuid.New(),
		ApprovalID: a.ID,
		Sender:     a.Sender,
		Recipient:  a.Recipient,
		Amount:     new(big.Int).Set(a.Amount),
		AmountUSD:  a.AmountUSD,
		Status:     TransactionStatusSuccess,
		CreatedAt:  at,
	}
}
