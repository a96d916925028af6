package postgres

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"signed-transfer-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSender    = "0x5B38Da6a701c568545dCfcB03FcB875f56beddC4"
	testSenderKey = "0x5b38da6a701c568545dcfcb03fcb875f56beddc4"
	testRecipient = "0xab8483f64d9c6d1ecf9b849ae677dd3315835cb2"
)

func strPtr(s string) *string { return &s }

func walletColumnNames() []string {
	return []string{"address", "balance_wei", "created_at", "updated_at"}
}

func walletRow(address, balance string) *pgxmock.Rows {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return pgxmock.NewRows(walletColumnNames()).AddRow(address, balance, now, now)
}

func TestWalletRepo_GetByAddress_NormalizesKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE address").
		WithArgs(testSenderKey).
		WillReturnRows(walletRow(testSenderKey, "5000000000000000000"))

	w, err := repo.GetByAddress(context.Background(), testSender)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, testSenderKey, w.Address)
	assert.Equal(t, "5000000000000000000", w.Balance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByAddress_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE address").
		WithArgs(testRecipient).
		WillReturnError(pgx.ErrNoRows)

	w, err := repo.GetByAddress(context.Background(), testRecipient)
	assert.NoError(t, err)
	assert.Nil(t, w)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByAddress_DBError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE address").
		WithArgs(testRecipient).
		WillReturnError(errors.New("connection refused"))

	w, err := repo.GetByAddress(context.Background(), testRecipient)
	assert.Error(t, err)
	assert.Nil(t, w)
	assert.Contains(t, err.Error(), "get wallet")
}

func TestWalletRepo_CreateIfAbsent(t *testing.T) {
	tests := []struct {
		name    string
		rows    int64
		created bool
	}{
		{"new wallet", 1, true},
		{"existing wallet", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewWalletRepo(mock)

			mock.ExpectExec("INSERT INTO wallets .+ ON CONFLICT").
				WithArgs(testSenderKey, "1000").
				WillReturnResult(pgxmock.NewResult("INSERT", tt.rows))

			created, err := repo.CreateIfAbsent(context.Background(), testSender, big.NewInt(1000))
			require.NoError(t, err)
			assert.Equal(t, tt.created, created)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWalletRepo_EnsureExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallets .+ ON CONFLICT").
		WithArgs(testSenderKey).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.EnsureExists(context.Background(), tx, testSender)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE address .+ FOR UPDATE").
		WithArgs(testSenderKey).
		WillReturnRows(walletRow(testSenderKey, "42"))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	w, err := repo.GetForUpdate(context.Background(), tx, testSender)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, int64(42), w.Balance.Int64())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Debit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance_wei = balance_wei - .+ AND balance_wei >=").
		WithArgs(testSenderKey, "2000000000000000000").
		WillReturnRows(pgxmock.NewRows([]string{"balance_wei"}).AddRow("3000000000000000000"))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	amount, _ := new(big.Int).SetString("2000000000000000000", 10)
	balance, err := repo.Debit(context.Background(), tx, testSender, amount)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.Equal(t, "3000000000000000000", balance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Debit_GuardRejects(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance_wei = balance_wei -").
		WithArgs(testSenderKey, "10").
		WillReturnError(pgx.ErrNoRows)

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	balance, err := repo.Debit(context.Background(), tx, testSender, big.NewInt(10))
	assert.NoError(t, err)
	assert.Nil(t, balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Credit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance_wei = balance_wei \\+").
		WithArgs(testRecipient, "10").
		WillReturnRows(pgxmock.NewRows([]string{"balance_wei"}).AddRow("15"))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	balance, err := repo.Credit(context.Background(), tx, testRecipient, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance.Int64())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Credit_MissingWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance_wei = balance_wei \\+").
		WithArgs(testRecipient, "10").
		WillReturnError(pgx.ErrNoRows)

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	balance, err := repo.Credit(context.Background(), tx, testRecipient, big.NewInt(10))
	assert.Error(t, err)
	assert.Nil(t, balance)
	assert.Contains(t, err.Error(), "wallet not found")
}

func TestScanWallet_RejectsGarbageBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallets").
		WithArgs(testRecipient).
		WillReturnRows(walletRow(testRecipient, "1.5"))

	w, err := repo.GetByAddress(context.Background(), testRecipient)
	assert.Error(t, err)
	assert.Nil(t, w)
}

func TestDomainAddressKeyMatchesMigration(t *testing.T) {
	// wallets.address carries CHECK (address = lower(address)).
	assert.Equal(t, testSenderKey, domain.NormalizeAddress(testSender))
}
