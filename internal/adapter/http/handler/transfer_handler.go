package handler

import (
	"time"

	"signed-transfer-gateway/internal/adapter/http/dto"
	"signed-transfer-gateway/internal/adapter/http/middleware"
	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/pkg/apperror"
	"signed-transfer-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransferHandler handles the two-phase signed transfer endpoints.
type TransferHandler struct {
	approvalSvc   ports.ApprovalService
	settlementSvc ports.SettlementService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(approvalSvc ports.ApprovalService, settlementSvc ports.SettlementService) *TransferHandler {
	return &TransferHandler{approvalSvc: approvalSvc, settlementSvc: settlementSvc}
}

// Initiate handles POST /api/v1/transfers/initiate.
func (h *TransferHandler) Initiate(c *gin.Context) {
	var req dto.InitiateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}

	result, err := h.approvalSvc.Initiate(c.Request.Context(), ports.InitiateRequest{
		Sender:     req.Sender,
		Recipient:  req.Recipient,
		Amount:     req.Amount.String(),
		AmountType: req.AmountType,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetAuditTarget(c, result.ApprovalID.String(), req.Sender)
	response.OK(c, dto.InitiateTransferResponse{
		ApprovalID: result.ApprovalID.String(),
		Message:    result.Message,
		ExpiresAt:  domain.FormatMessageTime(result.ExpiresAt),
	})
}

// Settle handles POST /api/v1/transfers/settle.
func (h *TransferHandler) Settle(c *gin.Context) {
	var req dto.SettleTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}
	approvalID, err := uuid.Parse(req.ApprovalID)
	if err != nil {
		response.Error(c, apperror.InvalidRequest("approval_id must be a UUID"))
		return
	}

	result, err := h.settlementSvc.Settle(c.Request.Context(), ports.SettleRequest{
		ApprovalID: approvalID,
		Message:    req.Message,
		Signature:  req.Signature,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetAuditTarget(c, result.TransactionID.String(), result.Transaction.Sender)
	response.OK(c, dto.SettleTransferResponse{
		TransactionID:       result.TransactionID.String(),
		Status:              result.Status,
		NewSenderBalanceWei: result.NewSenderBalance.String(),
		NewSenderBalanceEth: domain.FormatEther(result.NewSenderBalance),
	})
}

// toTransactionResponse converts domain.Transaction to DTO from the point of
// view of address.
func toTransactionResponse(tx *domain.Transaction, address string) dto.TransactionResponse {
	direction := "out"
	if tx.IsIncoming(address) {
		direction = "in"
	}
	return dto.TransactionResponse{
		ID:         tx.ID.String(),
		ApprovalID: tx.ApprovalID.String(),
		Sender:     tx.Sender,
		Recipient:  tx.Recipient,
		AmountWei:  tx.Amount.String(),
		AmountEth:  domain.FormatEther(tx.Amount),
		AmountUSD:  tx.AmountUSD,
		Direction:  direction,
		Status:     string(tx.Status),
		Timestamp:  tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}
