package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signed-transfer-gateway/config"
	httpHandler "signed-transfer-gateway/internal/adapter/http/handler"
	"signed-transfer-gateway/internal/adapter/notify"
	"signed-transfer-gateway/internal/adapter/quote"
	pgStorage "signed-transfer-gateway/internal/adapter/storage/postgres"
	redisStorage "signed-transfer-gateway/internal/adapter/storage/redis"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/internal/service"
	"signed-transfer-gateway/pkg/logger"
)

func main() {
	cfgPath := os.Getenv("STG_CONFIG")

	// Load configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Dur("approval_ttl", cfg.Approval.TTL).
		Msg("Starting Signed Transfer Gateway")

	ctx := context.Background()

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(cfg.Database.DSN(), cfg.Database.DBName, logger.Component(log, "migrate")); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate schema")
		}
	}

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	healthCheckers := []ports.HealthChecker{
		pgStorage.NewHealthCheck(pool),
		redisStorage.NewHealthCheck(rdb),
	}

	// Notification sinks: fire-and-forget after commit
	var sinks []ports.NotificationSink
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(
			cfg.Notify.WebhookURL,
			cfg.Notify.WebhookSecret,
			&http.Client{Timeout: 10 * time.Second},
			notify.DefaultRetryIntervals,
			logger.Component(log, "webhook"),
		))
	}
	if cfg.NATS.URL != "" {
		nc, err := notify.Connect(cfg.NATS, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
		sinks = append(sinks, notify.NewNATS(nc, cfg.NATS.Subject, logger.Component(log, "nats")))
		healthCheckers = append(healthCheckers, notify.NewHealthCheck(nc))
	}
	var sink ports.NotificationSink = notify.Nop{}
	if len(sinks) > 0 {
		sink = notify.NewFanout(sinks...)
	}

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	approvalRepo := pgStorage.NewApprovalRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Exchange rate
	rates, err := quote.NewProvider(cfg.Quote, redisStorage.NewRateCache(rdb), logger.Component(log, "quote"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize rate provider")
	}
	healthCheckers = append(healthCheckers, rates.HealthCheckers()...)

	initialBalance, ok := new(big.Int).SetString(cfg.Wallet.InitialBalanceWei, 10)
	if !ok || initialBalance.Sign() < 0 {
		log.Fatal().Str("value", cfg.Wallet.InitialBalanceWei).Msg("wallet.initial_balance_wei must be a non-negative integer")
	}

	// Initialize business services
	approvalSvc := service.NewApprovalService(approvalRepo, walletRepo, rates, cfg.Approval.TTL, logger.Component(log, "approval"))
	settlementSvc := service.NewSettlementService(
		approvalRepo,
		walletRepo,
		txRepo,
		transactor,
		service.NewPersonalSignVerifier(),
		sink,
		logger.Component(log, "settlement"),
	)
	historySvc := service.NewHistoryService(txRepo)
	walletSvc := service.NewWalletService(walletRepo, transactor, rates, initialBalance, logger.Component(log, "wallet"))
	quoteSvc := service.NewQuoteService(rates)
	auditSvc := service.NewAuditService(auditRepo, log)

	// Operator routes stay disabled without a signing secret.
	var tokenSvc ports.TokenService
	if cfg.JWT.Secret != "" {
		tokenSvc = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	} else {
		log.Warn().Msg("jwt.secret not set, admin routes disabled")
	}

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		ApprovalSvc:    approvalSvc,
		SettlementSvc:  settlementSvc,
		HistorySvc:     historySvc,
		WalletSvc:      walletSvc,
		QuoteSvc:       quoteSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		HealthCheckers: healthCheckers,
		AuditSvc:       auditSvc,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight notifications finish before the sinks go away.
	if err := settlementSvc.WaitContext(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Abandoning in-flight notifications")
	}

	log.Info().Msg("Server exited")
}
