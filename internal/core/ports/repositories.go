package ports

import (
	"context"
	"math/big"

	"signed-transfer-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for the balance ledger.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
// Addresses passed in are normalized by the repository.
type WalletRepository interface {
	GetByAddress(ctx context.Context, address string) (*domain.Wallet, error)
	// CreateIfAbsent inserts a wallet with the given opening balance. It
	// reports false when the wallet already existed; its balance is untouched.
	CreateIfAbsent(ctx context.Context, address string, initial *big.Int) (bool, error)
	EnsureExists(ctx context.Context, tx pgx.Tx, address string) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, address string) (*domain.Wallet, error)
	// Debit subtracts amount only if the balance covers it and returns the
	// new balance, or nil when it does not.
	Debit(ctx context.Context, tx pgx.Tx, address string, amount *big.Int) (*big.Int, error)
	Credit(ctx context.Context, tx pgx.Tx, address string, amount *big.Int) (*big.Int, error)
}

// ApprovalRepository defines persistence operations for approvals.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *domain.Approval) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Approval, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Approval, error)
	// MarkUsed flips used to true and reports false if it was already true.
	MarkUsed(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

// TransactionRepository defines persistence operations for settlement records.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	// ListByAddress returns records sent or received by address, newest first.
	ListByAddress(ctx context.Context, address string, limit int) ([]domain.Transaction, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// HealthChecker checks external dependency health.
type HealthChecker interface {
	// Ping verifies connectivity. Returns nil if healthy.
	Ping(ctx context.Context) error
	// Name returns the dependency name (e.g., "postgresql", "redis").
	Name() string
}
