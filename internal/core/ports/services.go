package ports

import (
	"context"
	"math/big"
	"time"

	"signed-transfer-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SignatureVerifier recovers the address that signed a personal message.
type SignatureVerifier interface {
	// Recover returns the checksummed signer address, or an error when the
	// signature is malformed or not recoverable.
	Recover(message string, signature string) (string, error)
}

// RateProvider converts an amount between units at the current exchange rate.
type RateProvider interface {
	Quote(ctx context.Context, amount decimal.Decimal, from, to domain.Unit) (decimal.Decimal, error)
}

// RateCache is the Redis-layer cache for the last observed price.
type RateCache interface {
	Get(ctx context.Context, pair string) (*decimal.Decimal, error) // nil on miss
	Set(ctx context.Context, pair string, price decimal.Decimal, ttl time.Duration) error
}

// NotificationSink receives settled transfers. Delivery is best-effort.
type NotificationSink interface {
	Notify(ctx context.Context, event *domain.SettlementEvent) error
}

// TokenService handles operator JWT tokens.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Role    string
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// ApprovalService creates transfer approvals awaiting a signature.
type ApprovalService interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
}

// InitiateRequest holds raw input for approval creation.
type InitiateRequest struct {
	Sender     string
	Recipient  string
	Amount     string // decimal string, validated by the service
	AmountType string
}

// InitiateResult is returned to the client, who signs Message.
type InitiateResult struct {
	ApprovalID uuid.UUID
	Message    string
	ExpiresAt  time.Time
	Approval   *domain.Approval
}

// SettlementService consumes signed approvals.
type SettlementService interface {
	Settle(ctx context.Context, req SettleRequest) (*SettleResult, error)
}

// SettleRequest holds the signed approval submitted for settlement.
type SettleRequest struct {
	ApprovalID uuid.UUID
	Message    string
	Signature  string
}

// SettleResult describes a committed settlement.
type SettleResult struct {
	TransactionID    uuid.UUID
	Status           string
	NewSenderBalance *big.Int
	Transaction      *domain.Transaction
}

// HistoryService lists settlement records.
type HistoryService interface {
	ListTransactions(ctx context.Context, address string, limit int) ([]domain.Transaction, error)
}

// WalletService manages ledger entries outside of settlement.
type WalletService interface {
	Register(ctx context.Context, address string) (*domain.Wallet, bool, error)
	GetBalance(ctx context.Context, address string) (*BalanceView, error)
	Topup(ctx context.Context, address string, amountWei *big.Int) (*domain.Wallet, error)
}

// BalanceView is a wallet balance in every unit the API exposes.
type BalanceView struct {
	Address    string
	BalanceWei *big.Int
	BalanceEth string
	BalanceUSD *string // nil when no quote was available
}

// QuoteService prices USD amounts in ether.
type QuoteService interface {
	QuoteUSD(ctx context.Context, amountUSD string) (*QuoteResult, error)
}

// QuoteResult is a USD to ETH conversion at one price.
type QuoteResult struct {
	AmountUSD      string
	AmountEth      string
	AmountWei      *big.Int
	PriceUSDPerEth string
}
