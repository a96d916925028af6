package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// maxWeiBits bounds amounts to what a NUMERIC(78,0) column and the
	// canonical message can carry.
	maxWeiBits = 256
	// maxAmountLength, maxAmountDigits and maxAmountMagnitude reject inputs
	// before rounding expands their exponent into a huge coefficient.
	maxAmountLength    = 128
	maxAmountDigits    = 96
	maxAmountMagnitude = 78
)

// ApprovalServiceImpl implements ports.ApprovalService.
type ApprovalServiceImpl struct {
	approvalRepo ports.ApprovalRepository
	walletRepo   ports.WalletRepository
	rates        ports.RateProvider
	ttl          time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// NewApprovalService creates a new ApprovalServiceImpl.
func NewApprovalService(
	approvalRepo ports.ApprovalRepository,
	walletRepo ports.WalletRepository,
	rates ports.RateProvider,
	ttl time.Duration,
	log zerolog.Logger,
) *ApprovalServiceImpl {
	return &ApprovalServiceImpl{
		approvalRepo: approvalRepo,
		walletRepo:   walletRepo,
		rates:        rates,
		ttl:          ttl,
		now:          time.Now,
		log:          log,
	}
}

// Initiate validates a transfer request, prices it, and persists an unused
// approval whose canonical message the sender must sign.
func (s *ApprovalServiceImpl) Initiate(ctx context.Context, req ports.InitiateRequest) (*ports.InitiateResult, error) {
	if !domain.IsValidAddress(req.Sender) {
		return nil, apperror.InvalidRequest("Invalid sender address")
	}
	if !domain.IsValidAddress(req.Recipient) {
		return nil, apperror.InvalidRequest("Invalid recipient address")
	}
	if domain.SameAddress(req.Sender, req.Recipient) {
		return nil, apperror.InvalidRequest("Sender and recipient must differ")
	}

	amountType, ok := domain.ParseAmountType(req.AmountType)
	if !ok {
		return nil, apperror.InvalidRequest(fmt.Sprintf("Unknown amount type %q", req.AmountType))
	}
	amount, err := parsePositiveAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	eth, usd, err := s.price(ctx, amountType, amount)
	if err != nil {
		return nil, err
	}
	wei, err := weiAmount(eth)
	if err != nil {
		return nil, err
	}

	// Advisory only: settlement re-checks under row locks.
	wallet, err := s.walletRepo.GetByAddress(ctx, req.Sender)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read sender balance: %w", err))
	}
	if wallet == nil || wallet.Balance.Cmp(wei) < 0 {
		return nil, apperror.ErrInsufficientFunds()
	}

	now := s.now().UTC()
	approval := &domain.Approval{
		ID:        uuid.New(),
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Amount:    wei,
		AmountUSD: usd,
		ExpiresAt: now.Add(s.ttl).Truncate(time.Millisecond),
		Used:      false,
		CreatedAt: now,
	}

	message, err := domain.CanonicalMessage(approval)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("encode message: %w", err))
	}

	if err := s.approvalRepo.Create(ctx, approval); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create approval: %w", err))
	}

	s.log.Info().
		Str("approval_id", approval.ID.String()).
		Str("sender", approval.Sender).
		Str("recipient", approval.Recipient).
		Str("amount_wei", wei.String()).
		Time("expires_at", approval.ExpiresAt).
		Msg("transfer approval created")

	return &ports.InitiateResult{
		ApprovalID: approval.ID,
		Message:    message,
		ExpiresAt:  approval.ExpiresAt,
		Approval:   approval,
	}, nil
}

// price returns the ether amount (NativePlaces) and the USD snapshot.
// For native amounts a missing quote only drops the snapshot.
func (s *ApprovalServiceImpl) price(ctx context.Context, t domain.AmountType, amount decimal.Decimal) (decimal.Decimal, *string, error) {
	switch t {
	case domain.AmountTypeQuote:
		usd := amount.Round(domain.QuotePlaces)
		eth, err := s.rates.Quote(ctx, usd, domain.UnitUSD, domain.UnitETH)
		if err != nil {
			return decimal.Zero, nil, apperror.ErrQuoteUnavailable(err)
		}
		snapshot := domain.FormatUSD(usd)
		return eth.Round(domain.NativePlaces), &snapshot, nil

	default:
		eth := amount.Round(domain.NativePlaces)
		usd, err := s.rates.Quote(ctx, eth, domain.UnitETH, domain.UnitUSD)
		if err != nil {
			s.log.Warn().Err(err).Msg("usd snapshot unavailable, continuing without it")
			return eth, nil, nil
		}
		snapshot := domain.FormatUSD(usd.Round(domain.QuotePlaces))
		return eth, &snapshot, nil
	}
}

func parsePositiveAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, apperror.InvalidRequest("Amount is required")
	}
	if len(raw) > maxAmountLength {
		return decimal.Zero, apperror.InvalidRequest("Amount too large")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperror.InvalidRequest("Amount must be a decimal number")
	}
	if !amount.IsPositive() {
		return decimal.Zero, apperror.InvalidRequest("Amount must be positive")
	}

	// amount < 10^magnitude, where magnitude counts integer digits.
	digits := amount.NumDigits()
	magnitude := int64(digits) + int64(amount.Exponent())
	switch {
	case digits > maxAmountDigits || magnitude > maxAmountMagnitude:
		return decimal.Zero, apperror.InvalidRequest("Amount too large")
	case magnitude <= -domain.NativeDecimals:
		return decimal.Zero, apperror.InvalidRequest("Amount rounds to zero")
	}
	return amount, nil
}

func weiAmount(eth decimal.Decimal) (*big.Int, error) {
	wei := domain.WeiFromEther(eth)
	if wei.Sign() <= 0 {
		return nil, apperror.InvalidRequest("Amount rounds to zero")
	}
	if wei.BitLen() > maxWeiBits {
		return nil, apperror.InvalidRequest("Amount too large")
	}
	return wei, nil
}
