package postgres

import (
	"context"
	"errors"
	"fmt"

	"signed-transfer-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const approvalColumns = `id, sender, recipient, amount_wei::text, amount_usd, expires_at, used, created_at`

// ApprovalRepo implements ports.ApprovalRepository.
type ApprovalRepo struct {
	pool Pool
}

// NewApprovalRepo creates a new ApprovalRepo.
func NewApprovalRepo(pool Pool) *ApprovalRepo {
	return &ApprovalRepo{pool: pool}
}

// Create inserts a new approval.
func (r *ApprovalRepo) Create(ctx context.Context, a *domain.Approval) error {
	query := `INSERT INTO approvals (id, sender, recipient, amount_wei, amount_usd, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Sender, a.Recipient, a.Amount.String(),
		a.AmountUSD, a.ExpiresAt, a.Used, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// GetByID fetches an approval without locking. Returns nil, nil if absent.
func (r *ApprovalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`

	a, err := scanApproval(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return a, nil
}

// GetByIDForUpdate fetches an approval with pessimistic locking.
// This MUST be called within a transaction.
func (r *ApprovalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1 FOR UPDATE`

	a, err := scanApproval(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get approval for update: %w", err)
	}
	return a, nil
}

// MarkUsed consumes the approval. Returns false if it was already used.
func (r *ApprovalRepo) MarkUsed(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	query := `UPDATE approvals SET used = TRUE WHERE id = $1 AND used = FALSE`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark approval used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanApproval(row pgx.Row) (*domain.Approval, error) {
	var (
		a      domain.Approval
		amount string
	)
	err := row.Scan(
		&a.ID, &a.Sender, &a.Recipient, &amount,
		&a.AmountUSD, &a.ExpiresAt, &a.Used, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if a.Amount, err = parseWei(amount); err != nil {
		return nil, err
	}
	a.ExpiresAt = a.ExpiresAt.UTC()
	return &a, nil
}
