package dto

import "encoding/json"

// InitiateTransferRequest is the request body for POST /transfers/initiate.
// Amount accepts a JSON number or a numeric string.
type InitiateTransferRequest struct {
	Sender     string      `json:"sender" binding:"required"`
	Recipient  string      `json:"recipient" binding:"required"`
	Amount     json.Number `json:"amount" binding:"required"`
	AmountType string      `json:"amount_type" binding:"required"`
}

// InitiateTransferResponse carries the message the sender must sign.
type InitiateTransferResponse struct {
	ApprovalID string `json:"approval_id"`
	Message    string `json:"message"`
	ExpiresAt  string `json:"expires_at"`
}

// SettleTransferRequest is the request body for POST /transfers/settle.
type SettleTransferRequest struct {
	ApprovalID string `json:"approval_id" binding:"required,uuid"`
	Message    string `json:"message" binding:"required"`
	Signature  string `json:"signature" binding:"required"`
}

// SettleTransferResponse is returned after a committed settlement.
type SettleTransferResponse struct {
	TransactionID       string `json:"tx_id"`
	Status              string `json:"status"`
	NewSenderBalanceWei string `json:"new_balance_wei"`
	NewSenderBalanceEth string `json:"new_balance_eth"`
}

// TransactionResponse is one settlement record as seen by address.
type TransactionResponse struct {
	ID         string  `json:"tx_id"`
	ApprovalID string  `json:"approval_id"`
	Sender     string  `json:"sender"`
	Recipient  string  `json:"recipient"`
	AmountWei  string  `json:"amount_wei"`
	AmountEth  string  `json:"amount_eth"`
	AmountUSD  *string `json:"amount_usd"`
	Direction  string  `json:"direction"` // "in" or "out"
	Status     string  `json:"status"`
	Timestamp  string  `json:"timestamp"`
}

// TransactionListResponse wraps the history of one address.
type TransactionListResponse struct {
	Address string                `json:"address"`
	Items   []TransactionResponse `json:"items"`
	Count   int                   `json:"count"`
}

// RegisterWalletRequest is the request body for POST /wallets.
type RegisterWalletRequest struct {
	Address string `json:"address" binding:"required,wallet_addr"`
}

// WalletBalanceResponse is the balance of one wallet in every unit.
type WalletBalanceResponse struct {
	Address    string  `json:"address"`
	BalanceWei string  `json:"balance_wei"`
	BalanceEth string  `json:"balance_eth"`
	BalanceUSD *string `json:"balance_usd"`
	Created    *bool   `json:"created,omitempty"` // set on registration only
}

// QuoteRequest is the request body for POST /price/quote.
type QuoteRequest struct {
	AmountUSD json.Number `json:"amount_usd" binding:"required"`
}

// QuoteResponse prices a USD amount in ether.
type QuoteResponse struct {
	AmountUSD      string `json:"amount_usd"`
	AmountEth      string `json:"amount_eth"`
	AmountWei      string `json:"amount_wei"`
	PriceUSDPerEth string `json:"price_usd_per_eth"`
}

// TopupRequest is the request body for the operator top-up endpoint.
type TopupRequest struct {
	Address   string `json:"address" binding:"required,wallet_addr"`
	AmountWei string `json:"amount_wei" binding:"required,wei_amount"`
}
