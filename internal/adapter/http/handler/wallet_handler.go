package handler

import (
	"signed-transfer-gateway/internal/adapter/http/dto"
	"signed-transfer-gateway/internal/adapter/http/middleware"
	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/pkg/apperror"
	"signed-transfer-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet registration, balance and operator top-up.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// Register handles POST /api/v1/wallets. Registering an existing wallet
// returns it unchanged with 200; a new wallet returns 201.
func (h *WalletHandler) Register(c *gin.Context) {
	var req dto.RegisterWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}

	wallet, created, err := h.walletSvc.Register(c.Request.Context(), req.Address)
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.walletSvc.GetBalance(c.Request.Context(), wallet.Address)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := toBalanceResponse(view)
	resp.Created = &created
	middleware.SetAuditTarget(c, wallet.Address, wallet.Address)
	if created {
		response.Created(c, resp)
		return
	}
	response.OK(c, resp)
}

// GetBalance handles GET /api/v1/wallets/:address/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	view, err := h.walletSvc.GetBalance(c.Request.Context(), c.Param("address"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toBalanceResponse(view))
}

// Topup handles POST /api/v1/admin/wallets/topup (operator JWT).
func (h *WalletHandler) Topup(c *gin.Context) {
	var req dto.TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}
	amount, ok := dto.ParseWei(req.AmountWei)
	if !ok {
		response.Error(c, apperror.InvalidRequest("amount_wei must be a base-10 integer"))
		return
	}

	wallet, err := h.walletSvc.Topup(c.Request.Context(), req.Address, amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetAuditTarget(c, wallet.Address, wallet.Address)
	response.OK(c, dto.WalletBalanceResponse{
		Address:    wallet.Address,
		BalanceWei: wallet.Balance.String(),
		BalanceEth: domain.FormatEther(wallet.Balance),
	})
}

func toBalanceResponse(v *ports.BalanceView) dto.WalletBalanceResponse {
	return dto.WalletBalanceResponse{
		Address:    v.Address,
		BalanceWei: v.BalanceWei.String(),
		BalanceEth: v.BalanceEth,
		BalanceUSD: v.BalanceUSD,
	}
}
