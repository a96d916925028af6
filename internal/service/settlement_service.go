package service

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultNotifyTimeout bounds a single asynchronous sink delivery.
const DefaultNotifyTimeout = 2 * time.Minute

// SettlementServiceImpl implements ports.SettlementService.
type SettlementServiceImpl struct {
	approvalRepo ports.ApprovalRepository
	walletRepo   ports.WalletRepository
	txRepo       ports.TransactionRepository
	transactor   ports.DBTransactor
	verifier     ports.SignatureVerifier
	sink         ports.NotificationSink
	now          func() time.Time
	log          zerolog.Logger

	notifyTimeout time.Duration
	wg            sync.WaitGroup
}

// NewSettlementService creates a new SettlementServiceImpl. sink may be nil.
func NewSettlementService(
	approvalRepo ports.ApprovalRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	verifier ports.SignatureVerifier,
	sink ports.NotificationSink,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		approvalRepo:  approvalRepo,
		walletRepo:    walletRepo,
		txRepo:        txRepo,
		transactor:    transactor,
		verifier:      verifier,
		sink:          sink,
		now:           time.Now,
		log:           log,
		notifyTimeout: DefaultNotifyTimeout,
	}
}

// Settle consumes a signed approval and moves its amount from sender to
// recipient. Every balance change, the used flag and the record commit
// together or not at all.
func (s *SettlementServiceImpl) Settle(ctx context.Context, req ports.SettleRequest) (*ports.SettleResult, error) {
	approval, err := s.approvalRepo.GetByID(ctx, req.ApprovalID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load approval: %w", err))
	}
	if approval == nil {
		return nil, apperror.ErrNotFound("Approval")
	}
	if approval.Used {
		return nil, apperror.ErrAlreadyUsed()
	}
	if approval.IsExpired(s.now()) {
		return nil, apperror.ErrExpired()
	}

	expected, err := domain.CanonicalMessage(approval)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("encode message: %w", err))
	}
	if req.Message != expected {
		s.log.Debug().Str("approval_id", approval.ID.String()).Msg("submitted message does not match approval")
		return nil, apperror.ErrInvalidSignature()
	}

	signer, err := s.verifier.Recover(req.Message, req.Signature)
	if err != nil {
		s.log.Debug().Err(err).Str("approval_id", approval.ID.String()).Msg("signature not recoverable")
		return nil, apperror.ErrInvalidSignature()
	}
	if !domain.SameAddress(signer, approval.Sender) {
		s.log.Debug().
			Str("approval_id", approval.ID.String()).
			Str("signer", signer).
			Msg("signer is not the sender")
		return nil, apperror.ErrInvalidSignature()
	}

	txn, newBalance, err := s.apply(ctx, approval.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("approval_id", txn.ApprovalID.String()).
		Str("sender", txn.Sender).
		Str("recipient", txn.Recipient).
		Str("amount_wei", txn.Amount.String()).
		Msg("transfer settled")

	s.notifyAsync(settlementEvent(txn, newBalance))

	return &ports.SettleResult{
		TransactionID:    txn.ID,
		Status:           "success",
		NewSenderBalance: newBalance,
		Transaction:      txn,
	}, nil
}

// apply runs the binding checks and writes under row locks.
func (s *SettlementServiceImpl) apply(ctx context.Context, approvalID uuid.UUID) (*domain.Transaction, *big.Int, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	approval, err := s.approvalRepo.GetByIDForUpdate(ctx, dbTx, approvalID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("lock approval: %w", err))
	}
	if approval == nil {
		return nil, nil, apperror.ErrNotFound("Approval")
	}
	if approval.Used {
		return nil, nil, apperror.ErrAlreadyUsed()
	}
	now := s.now()
	if approval.IsExpired(now) {
		return nil, nil, apperror.ErrExpired()
	}

	// Lock both wallets in address order so opposite transfers cannot deadlock.
	order := []string{domain.NormalizeAddress(approval.Sender), domain.NormalizeAddress(approval.Recipient)}
	slices.Sort(order)
	for _, addr := range order {
		if err := s.walletRepo.EnsureExists(ctx, dbTx, addr); err != nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("ensure wallet: %w", err))
		}
	}
	locked := make(map[string]*domain.Wallet, len(order))
	for _, addr := range order {
		w, err := s.walletRepo.GetForUpdate(ctx, dbTx, addr)
		if err != nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if w == nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("wallet %s vanished under lock", addr))
		}
		locked[addr] = w
	}

	sender := locked[domain.NormalizeAddress(approval.Sender)]
	if sender.Balance.Cmp(approval.Amount) < 0 {
		return nil, nil, apperror.ErrInsufficientFunds()
	}

	newBalance, err := s.walletRepo.Debit(ctx, dbTx, approval.Sender, approval.Amount)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("debit sender: %w", err))
	}
	if newBalance == nil {
		return nil, nil, apperror.ErrInsufficientFunds()
	}
	if _, err := s.walletRepo.Credit(ctx, dbTx, approval.Recipient, approval.Amount); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("credit recipient: %w", err))
	}

	marked, err := s.approvalRepo.MarkUsed(ctx, dbTx, approval.ID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("mark approval used: %w", err))
	}
	if !marked {
		return nil, nil, apperror.ErrAlreadyUsed()
	}

	txn := domain.NewTransactionFromApproval(approval, now.UTC())
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return txn, newBalance, nil
}

// notifyAsync hands the event to the sink without blocking the caller.
// Sink failures and panics are logged and go no further.
func (s *SettlementServiceImpl) notifyAsync(event *domain.SettlementEvent) {
	if s.sink == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Str("tx_id", event.TransactionID.String()).Msg("notification sink panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.sink.Notify(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("tx_id", event.TransactionID.String()).Msg("settlement notification failed")
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (s *SettlementServiceImpl) Wait() {
	s.wg.Wait()
}

// WaitContext is Wait bounded by ctx. It returns ctx.Err() if notifications
// are still running when ctx ends.
func (s *SettlementServiceImpl) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func settlementEvent(txn *domain.Transaction, newBalance *big.Int) *domain.SettlementEvent {
	return &domain.SettlementEvent{
		EventType:           domain.EventTransferSettled,
		TransactionID:       txn.ID,
		ApprovalID:          txn.ApprovalID,
		Sender:              txn.Sender,
		Recipient:           txn.Recipient,
		AmountWei:           txn.Amount.String(),
		AmountEth:           domain.FormatEther(txn.Amount),
		AmountUSD:           txn.AmountUSD,
		NewSenderBalanceWei: newBalance.String(),
		NewSenderBalanceEth: domain.FormatEther(newBalance),
		SettledAt:           txn.CreatedAt,
	}
}
