package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports/mocks"
	"signed-transfer-gateway/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type walletTestDeps struct {
	svc        *WalletServiceImpl
	walletRepo *mocks.MockWalletRepository
	transactor *mocks.MockDBTransactor
	rates      *mocks.MockRateProvider
	ctrl       *gomock.Controller
}

func setupWalletService(t *testing.T, initial *big.Int) *walletTestDeps {
	ctrl := gomock.NewController(t)
	d := &walletTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		rates:      mocks.NewMockRateProvider(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewWalletService(d.walletRepo, d.transactor, d.rates, initial, newTestLogger())
	return d
}

func storedWallet(balance *big.Int) *domain.Wallet {
	return &domain.Wallet{Address: domain.NormalizeAddress(testSender), Balance: balance}
}

// ==================== Register Tests ====================

func TestWalletService_Register_New(t *testing.T) {
	d := setupWalletService(t, ether(1))

	d.walletRepo.EXPECT().CreateIfAbsent(gomock.Any(), testSender, ether(1)).Return(true, nil)
	d.walletRepo.EXPECT().GetByAddress(gomock.Any(), testSender).Return(storedWallet(ether(1)), nil)

	w, created, err := d.svc.Register(context.Background(), testSender)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ether(1).String(), w.Balance.String())
}

func TestWalletService_Register_Existing(t *testing.T) {
	d := setupWalletService(t, nil)

	d.walletRepo.EXPECT().CreateIfAbsent(gomock.Any(), testSender, big.NewInt(0)).Return(false, nil)
	d.walletRepo.EXPECT().GetByAddress(gomock.Any(), testSender).Return(storedWallet(ether(7)), nil)

	w, created, err := d.svc.Register(context.Background(), testSender)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ether(7).String(), w.Balance.String())
}

func TestWalletService_Register_InvalidAddress(t *testing.T) {
	d := setupWalletService(t, nil)

	_, _, err := d.svc.Register(context.Background(), "0xnothex")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidRequest))
}

func TestWalletService_Register_StoreFailure(t *testing.T) {
	d := setupWalletService(t, nil)

	d.walletRepo.EXPECT().CreateIfAbsent(gomock.Any(), testSender, gomock.Any()).Return(false, errors.New("down"))

	_, _, err := d.svc.Register(context.Background(), testSender)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal))
}

// ==================== GetBalance Tests ====================

func TestWalletService_GetBalance_WithUSD(t *testing.T) {
	d := setupWalletService(t, nil)

	d.walletRepo.EXPECT().GetByAddress(gomock.Any(), testSender).Return(storedWallet(big.NewInt(1_500_000_000_000_000_000)), nil)
	d.rates.EXPECT().Quote(gomock.Any(), decEq("1.5"), domain.UnitETH, domain.UnitUSD).
		Return(decimal.RequireFromString("3000.005"), nil)

	view, err := d.svc.GetBalance(context.Background(), testSender)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", view.BalanceWei.String())
	assert.Equal(t, "1.500000", view.BalanceEth)
	require.NotNil(t, view.BalanceUSD)
	assert.Equal(t, "3000.01", *view.BalanceUSD)
}

func TestWalletService_GetBalance_QuoteUnavailable(t *testing.T) {
	d := setupWalletService(t, nil)

	d.walletRepo.EXPECT().GetByAddress(gomock.Any(), testSender).Return(storedWallet(ether(1)), nil)
	d.rates.EXPECT().Quote(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(decimal.Zero, errors.New("oracle down"))

	view, err := d.svc.GetBalance(context.Background(), testSender)
	require.NoError(t, err)
	assert.Equal(t, "1.000000", view.BalanceEth)
	assert.Nil(t, view.BalanceUSD)
}

func TestWalletService_GetBalance_NotFound(t *testing.T) {
	d := setupWalletService(t, nil)

	d.walletRepo.EXPECT().GetByAddress(gomock.Any(), testSender).Return(nil, nil)

	_, err := d.svc.GetBalance(context.Background(), testSender)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

// ==================== Topup Tests ====================

func TestWalletService_Topup_Success(t *testing.T) {
	d := setupWalletService(t, nil)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.walletRepo.EXPECT().EnsureExists(gomock.Any(), tx, testSender).Return(nil)
	d.walletRepo.EXPECT().Credit(gomock.Any(), tx, testSender, ether(2)).Return(ether(3), nil)
	d.walletRepo.EXPECT().GetByAddress(gomock.Any(), testSender).Return(storedWallet(ether(3)), nil)

	w, err := d.svc.Topup(context.Background(), testSender, ether(2))
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.Equal(t, ether(3).String(), w.Balance.String())
}

func TestWalletService_Topup_InvalidAmount(t *testing.T) {
	for _, amt := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5), new(big.Int).Lsh(big.NewInt(1), 300)} {
		d := setupWalletService(t, nil)
		_, err := d.svc.Topup(context.Background(), testSender, amt)
		require.Error(t, err)
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidRequest))
	}
}

func TestWalletService_Topup_CreditFailureRollsBack(t *testing.T) {
	d := setupWalletService(t, nil)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.walletRepo.EXPECT().EnsureExists(gomock.Any(), tx, testSender).Return(nil)
	d.walletRepo.EXPECT().Credit(gomock.Any(), tx, testSender, gomock.Any()).Return(nil, errors.New("deadlock"))

	_, err := d.svc.Topup(context.Background(), testSender, ether(1))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal))
	assert.True(t, tx.rolledBack)
}
