package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"signed-transfer-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const walletColumns = `address, balance_wei::text, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// GetByAddress fetches a wallet without locking. Returns nil, nil if absent.
func (r *WalletRepo) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE address = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, domain.NormalizeAddress(address)))
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// CreateIfAbsent inserts a wallet with an opening balance.
func (r *WalletRepo) CreateIfAbsent(ctx context.Context, address string, initial *big.Int) (bool, error) {
	query := `INSERT INTO wallets (address, balance_wei) VALUES ($1, $2::numeric)
		ON CONFLICT (address) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, domain.NormalizeAddress(address), initial.String())
	if err != nil {
		return false, fmt.Errorf("insert wallet: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EnsureExists creates a zero-balance wallet inside tx if none exists.
func (r *WalletRepo) EnsureExists(ctx context.Context, tx pgx.Tx, address string) error {
	query := `INSERT INTO wallets (address, balance_wei) VALUES ($1, 0)
		ON CONFLICT (address) DO NOTHING`

	if _, err := tx.Exec(ctx, query, domain.NormalizeAddress(address)); err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

// GetForUpdate fetches a wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, address string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE address = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, domain.NormalizeAddress(address)))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// Debit subtracts amount if the balance covers it. A nil balance with a nil
// error means the guard rejected the update.
func (r *WalletRepo) Debit(ctx context.Context, tx pgx.Tx, address string, amount *big.Int) (*big.Int, error) {
	query := `UPDATE wallets SET balance_wei = balance_wei - $2::numeric, updated_at = NOW()
		WHERE address = $1 AND balance_wei >= $2::numeric
		RETURNING balance_wei::text`

	var balance string
	err := tx.QueryRow(ctx, query, domain.NormalizeAddress(address), amount.String()).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("debit wallet: %w", err)
	}
	return parseWei(balance)
}

// Credit adds amount to an existing wallet.
func (r *WalletRepo) Credit(ctx context.Context, tx pgx.Tx, address string, amount *big.Int) (*big.Int, error) {
	query := `UPDATE wallets SET balance_wei = balance_wei + $2::numeric, updated_at = NOW()
		WHERE address = $1
		RETURNING balance_wei::text`

	var balance string
	err := tx.QueryRow(ctx, query, domain.NormalizeAddress(address), amount.String()).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("wallet not found: %s", address)
		}
		return nil, fmt.Errorf("credit wallet: %w", err)
	}
	return parseWei(balance)
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		w       domain.Wallet
		balance string
	)
	if err := row.Scan(&w.Address, &balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	v, err := parseWei(balance)
	if err != nil {
		return nil, err
	}
	w.Balance = v
	return &w, nil
}
