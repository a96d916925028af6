package service

import (
	"context"
	"fmt"
	"math/big"

	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	walletRepo     ports.WalletRepository
	transactor     ports.DBTransactor
	rates          ports.RateProvider
	initialBalance *big.Int
	log            zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl. initialBalance is the
// opening balance of newly registered wallets; nil means zero.
func NewWalletService(
	walletRepo ports.WalletRepository,
	transactor ports.DBTransactor,
	rates ports.RateProvider,
	initialBalance *big.Int,
	log zerolog.Logger,
) *WalletServiceImpl {
	if initialBalance == nil {
		initialBalance = new(big.Int)
	}
	return &WalletServiceImpl{
		walletRepo:     walletRepo,
		transactor:     transactor,
		rates:          rates,
		initialBalance: new(big.Int).Set(initialBalance),
		log:            log,
	}
}

// Register creates the wallet if it does not exist yet. It reports whether
// this call created it; an existing balance is never reset.
func (s *WalletServiceImpl) Register(ctx context.Context, address string) (*domain.Wallet, bool, error) {
	if !domain.IsValidAddress(address) {
		return nil, false, apperror.InvalidRequest("Invalid wallet address")
	}

	created, err := s.walletRepo.CreateIfAbsent(ctx, address, s.initialBalance)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	wallet, err := s.walletRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, false, apperror.InternalError(fmt.Errorf("wallet %s missing after create", address))
	}

	if created {
		s.log.Info().
			Str("address", wallet.Address).
			Str("balance_wei", wallet.Balance.String()).
			Msg("wallet registered")
	}
	return wallet, created, nil
}

// GetBalance returns the wallet balance in wei, ether and (best-effort) USD.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, address string) (*ports.BalanceView, error) {
	if !domain.IsValidAddress(address) {
		return nil, apperror.InvalidRequest("Invalid wallet address")
	}

	wallet, err := s.walletRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}

	view := &ports.BalanceView{
		Address:    wallet.Address,
		BalanceWei: wallet.Balance,
		BalanceEth: domain.FormatEther(wallet.Balance),
	}

	usd, err := s.rates.Quote(ctx, domain.EtherFromWei(wallet.Balance), domain.UnitETH, domain.UnitUSD)
	if err != nil {
		s.log.Warn().Err(err).Str("address", wallet.Address).Msg("usd balance unavailable")
		return view, nil
	}
	formatted := domain.FormatUSD(usd.Round(domain.QuotePlaces))
	view.BalanceUSD = &formatted
	return view, nil
}

// Topup credits amountWei to address, creating the wallet when absent.
func (s *WalletServiceImpl) Topup(ctx context.Context, address string, amountWei *big.Int) (*domain.Wallet, error) {
	if !domain.IsValidAddress(address) {
		return nil, apperror.InvalidRequest("Invalid wallet address")
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return nil, apperror.InvalidRequest("Amount must be positive")
	}
	if amountWei.BitLen() > maxWeiBits {
		return nil, apperror.InvalidRequest("Amount too large")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.walletRepo.EnsureExists(ctx, dbTx, address); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ensure wallet: %w", err))
	}
	newBalance, err := s.walletRepo.Credit(ctx, dbTx, address, amountWei)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit wallet: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	wallet, err := s.walletRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		wallet = &domain.Wallet{Address: domain.NormalizeAddress(address), Balance: newBalance}
	}

	s.log.Info().
		Str("address", wallet.Address).
		Str("amount_wei", amountWei.String()).
		Str("balance_wei", newBalance.String()).
		Msg("wallet topped up")

	return wallet, nil
}
