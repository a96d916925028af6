package handler

import (
	"signed-transfer-gateway/internal/adapter/http/middleware"
	redisStore "signed-transfer-gateway/internal/adapter/storage/redis"
	"signed-transfer-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	ApprovalSvc    ports.ApprovalService
	SettlementSvc  ports.SettlementService
	HistorySvc     ports.HistoryService
	WalletSvc      ports.WalletService
	QuoteSvc       ports.QuoteService
	TokenSvc       ports.TokenService         // nil = admin routes disabled
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes: authenticity comes from the EIP-191 signature ---
	transferHandler := NewTransferHandler(deps.ApprovalSvc, deps.SettlementSvc)
	transfers := v1.Group("/transfers")
	{
		transfers.POST("/initiate", rl(middleware.GroupInitiate), transferHandler.Initiate)
		transfers.POST("/settle", rl(middleware.GroupSettle), transferHandler.Settle)
	}

	historyHandler := NewHistoryHandler(deps.HistorySvc)
	v1.GET("/transactions", rl(middleware.GroupRead), historyHandler.ListTransactions)

	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallets := v1.Group("/wallets")
	{
		wallets.POST("", rl(middleware.GroupRegister), walletHandler.Register)
		wallets.GET("/:address/balance", rl(middleware.GroupRead), walletHandler.GetBalance)
	}

	quoteHandler := NewQuoteHandler(deps.QuoteSvc)
	v1.POST("/price/quote", rl(middleware.GroupQuote), quoteHandler.QuoteUSD)

	// --- Operator routes (JWT-authenticated) ---
	if deps.TokenSvc != nil {
		jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
		admin := v1.Group("/admin", jwtAuth)
		{
			admin.POST("/wallets/topup", rl(middleware.GroupAdmin), walletHandler.Topup)
		}
	}

	return r
}
