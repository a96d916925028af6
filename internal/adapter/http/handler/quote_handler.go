package handler

import (
	"signed-transfer-gateway/internal/adapter/http/dto"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/pkg/apperror"
	"signed-transfer-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// QuoteHandler serves USD to ETH price quotes.
type QuoteHandler struct {
	quoteSvc ports.QuoteService
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(quoteSvc ports.QuoteService) *QuoteHandler {
	return &QuoteHandler{quoteSvc: quoteSvc}
}

// QuoteUSD handles POST /api/v1/price/quote.
func (h *QuoteHandler) QuoteUSD(c *gin.Context) {
	var req dto.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}

	q, err := h.quoteSvc.QuoteUSD(c.Request.Context(), req.AmountUSD.String())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.QuoteResponse{
		AmountUSD:      q.AmountUSD,
		AmountEth:      q.AmountEth,
		AmountWei:      q.AmountWei.String(),
		PriceUSDPerEth: q.PriceUSDPerEth,
	})
}
