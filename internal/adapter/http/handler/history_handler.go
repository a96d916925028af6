package handler

import (
	"strconv"

	"signed-transfer-gateway/internal/adapter/http/dto"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/pkg/apperror"
	"signed-transfer-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// HistoryHandler serves settlement records.
type HistoryHandler struct {
	historySvc ports.HistoryService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(historySvc ports.HistoryService) *HistoryHandler {
	return &HistoryHandler{historySvc: historySvc}
}

// ListTransactions handles GET /api/v1/transactions?address=&limit=.
func (h *HistoryHandler) ListTransactions(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		response.Error(c, apperror.InvalidRequest("address query parameter is required"))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(c, apperror.InvalidRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}

	txns, err := h.historySvc.ListTransactions(c.Request.Context(), address, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, toTransactionResponse(&txns[i], address))
	}

	response.OK(c, dto.TransactionListResponse{
		Address: address,
		Items:   items,
		Count:   len(items),
	})
}
