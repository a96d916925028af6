package postgres

import (
	"context"
	"fmt"

	"signed-transfer-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a settlement record within a database transaction.
// approval_id is unique, so a second record for one approval fails the tx.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, approval_id, sender, recipient, amount_wei, amount_usd, status, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.ApprovalID, t.Sender, t.Recipient,
		t.Amount.String(), t.AmountUSD, t.Status, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// ListByAddress fetches records sent or received by address, newest first.
func (r *TransactionRepo) ListByAddress(ctx context.Context, address string, limit int) ([]domain.Transaction, error) {
	query := `SELECT id, approval_id, sender, recipient, amount_wei::text, amount_usd, status, created_at
		FROM transactions
		WHERE lower(sender) = $1 OR lower(recipient) = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, domain.NormalizeAddress(address), limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := []domain.Transaction{}
	for rows.Next() {
		var (
			t      domain.Transaction
			amount string
		)
		err := rows.Scan(
			&t.ID, &t.ApprovalID, &t.Sender, &t.Recipient,
			&amount, &t.AmountUSD, &t.Status, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		if t.Amount, err = parseWei(amount); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}
