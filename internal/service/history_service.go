package service

import (
	"context"
	"fmt"

	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/pkg/apperror"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// HistoryServiceImpl implements ports.HistoryService.
type HistoryServiceImpl struct {
	txRepo ports.TransactionRepository
}

// NewHistoryService creates a new HistoryServiceImpl.
func NewHistoryService(txRepo ports.TransactionRepository) *HistoryServiceImpl {
	return &HistoryServiceImpl{txRepo: txRepo}
}

// ListTransactions returns records sent or received by address, newest first.
// A non-positive limit selects the default; larger limits are capped.
func (s *HistoryServiceImpl) ListTransactions(ctx context.Context, address string, limit int) ([]domain.Transaction, error) {
	if !domain.IsValidAddress(address) {
		return nil, apperror.InvalidRequest("Invalid wallet address")
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	txns, err := s.txRepo.ListByAddress(ctx, address, limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return txns, nil
}
