package handler_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	httpHandler "signed-transfer-gateway/internal/adapter/http/handler"
	"signed-transfer-gateway/internal/adapter/http/middleware"
	"signed-transfer-gateway/internal/adapter/quote"
	redisStorage "signed-transfer-gateway/internal/adapter/storage/redis"
	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/internal/service"
	"signed-transfer-gateway/internal/testutil/memstore"
	"signed-transfer-gateway/pkg/apperror"
	"signed-transfer-gateway/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/crypto"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp runs the real router, middleware and services over the in-memory
// ledger and miniredis.
type testApp struct {
	server     *httptest.Server
	redis      *miniredis.Miniredis
	store      *memstore.Store
	settlement *service.SettlementServiceImpl
	sink       *recordingSink
	opsToken   string
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.SettlementEvent
}

func (s *recordingSink) Notify(_ context.Context, event *domain.SettlementEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *recordingSink) Events() []domain.SettlementEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SettlementEvent(nil), s.events...)
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	log := logger.New("error", false)
	store := memstore.New()

	static, err := quote.NewStaticSource("2000")
	require.NoError(t, err)
	rates := quote.NewConverter(quote.NewCachedSource(static, redisStorage.NewRateCache(rdb), 15*time.Second, log))

	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", time.Hour, "test-issuer")
	sink := &recordingSink{}
	settlement := service.NewSettlementService(
		store.Approvals(), store.Wallets(), store.TransactionRecords(),
		store, service.NewPersonalSignVerifier(), sink, log,
	)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		ApprovalSvc:    service.NewApprovalService(store.Approvals(), store.Wallets(), rates, 30*time.Second, log),
		SettlementSvc:  settlement,
		HistorySvc:     service.NewHistoryService(store.TransactionRecords()),
		WalletSvc:      service.NewWalletService(store.Wallets(), store, rates, nil, log),
		QuoteSvc:       service.NewQuoteService(rates),
		TokenSvc:       tokenSvc,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		AuditSvc:       service.NewAuditService(store.AuditRecords(), log),
		Logger:         log,
	})

	opsToken, _, err := tokenSvc.Generate("ops-alice")
	require.NoError(t, err)

	app := &testApp{
		server:     httptest.NewServer(router),
		redis:      mr,
		store:      store,
		settlement: settlement,
		sink:       sink,
		opsToken:   opsToken,
	}
	t.Cleanup(func() {
		app.server.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return app
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
	RequestID string          `json:"request_id"`
}

func (a *testApp) do(t *testing.T, method, path string, body any, headers map[string]string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (a *testApp) topup(t *testing.T, address, wei string) {
	t.Helper()
	status, env := a.do(t, http.MethodPost, "/api/v1/admin/wallets/topup",
		map[string]string{"address": address, "amount_wei": wei},
		map[string]string{"Authorization": "Bearer " + a.opsToken})
	require.Equal(t, http.StatusOK, status, "topup failed: %s", env.ErrorCode)
}

type account struct {
	key     *ecdsa.PrivateKey
	address string
}

func newAccount(t *testing.T) account {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return account{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

type initiated struct {
	ApprovalID string `json:"approval_id"`
	Message    string `json:"message"`
	ExpiresAt  string `json:"expires_at"`
}

func (a *testApp) initiate(t *testing.T, from, to, amount, amountType string) (int, envelope, initiated) {
	t.Helper()
	status, env := a.do(t, http.MethodPost, "/api/v1/transfers/initiate", map[string]string{
		"sender":      from,
		"recipient":   to,
		"amount":      amount,
		"amount_type": amountType,
	}, nil)
	var out initiated
	if status == http.StatusOK {
		require.NoError(t, json.Unmarshal(env.Data, &out))
	}
	return status, env, out
}

func (a *testApp) settle(t *testing.T, approvalID, message, signature string) (int, envelope) {
	t.Helper()
	return a.do(t, http.MethodPost, "/api/v1/transfers/settle", map[string]string{
		"approval_id": approvalID,
		"message":     message,
		"signature":   signature,
	}, nil)
}

func sign(t *testing.T, acct account, message string) string {
	t.Helper()
	sig, err := service.SignPersonalMessage(acct.key, message)
	require.NoError(t, err)
	return sig
}

// --- End-to-end tests ---

func TestAPI_HealthCheck(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestAPI_TransferLifecycle(t *testing.T) {
	app := newTestApp(t)
	alice := newAccount(t)
	bob := newAccount(t)

	app.topup(t, alice.address, "5000000000000000000")

	status, _, init := app.initiate(t, alice.address, bob.address, "2", "NATIVE")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, init.Message, `"amount_wei":"2000000000000000000"`)
	assert.Contains(t, init.Message, `"amount_usd":"4000.00"`)

	status, env := app.settle(t, init.ApprovalID, init.Message, sign(t, alice, init.Message))
	require.Equal(t, http.StatusOK, status)
	var settled struct {
		TxID          string `json:"tx_id"`
		Status        string `json:"status"`
		NewBalanceWei string `json:"new_balance_wei"`
		NewBalanceEth string `json:"new_balance_eth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &settled))
	assert.Equal(t, "success", settled.Status)
	assert.Equal(t, "3000000000000000000", settled.NewBalanceWei)
	assert.Equal(t, "3.000000", settled.NewBalanceEth)

	// Balances, as seen through the API.
	status, env = app.do(t, http.MethodGet, "/api/v1/wallets/"+bob.address+"/balance", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var bal struct {
		BalanceWei string  `json:"balance_wei"`
		BalanceUSD *string `json:"balance_usd"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bal))
	assert.Equal(t, "2000000000000000000", bal.BalanceWei)
	require.NotNil(t, bal.BalanceUSD)
	assert.Equal(t, "4000.00", *bal.BalanceUSD)

	// History from both sides.
	status, env = app.do(t, http.MethodGet, "/api/v1/transactions?address="+bob.address, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var hist struct {
		Count int `json:"count"`
		Items []struct {
			TxID      string `json:"tx_id"`
			Direction string `json:"direction"`
			AmountEth string `json:"amount_eth"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	require.Equal(t, 1, hist.Count)
	assert.Equal(t, settled.TxID, hist.Items[0].TxID)
	assert.Equal(t, "in", hist.Items[0].Direction)
	assert.Equal(t, "2.000000", hist.Items[0].AmountEth)

	// Replaying the same signed approval is rejected.
	status, env = app.settle(t, init.ApprovalID, init.Message, sign(t, alice, init.Message))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, apperror.CodeAlreadyUsed, env.ErrorCode)

	app.settlement.Wait()
	events := app.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTransferSettled, events[0].EventType)
	assert.Equal(t, "3000000000000000000", events[0].NewSenderBalanceWei)

	// topup + initiate + settle; GETs and failed requests are not audited.
	assert.Eventually(t, func() bool {
		return len(app.store.AuditLogs()) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAPI_QuoteTransfer(t *testing.T) {
	app := newTestApp(t)
	alice := newAccount(t)
	bob := newAccount(t)
	app.topup(t, alice.address, "1000000000000000000")

	status, _, init := app.initiate(t, alice.address, bob.address, "100", "QUOTE")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, init.Message, `"amount_wei":"50000000000000000"`)

	status, _ = app.settle(t, init.ApprovalID, init.Message, sign(t, alice, init.Message))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "950000000000000000", app.store.Balance(alice.address).String())
}

func TestAPI_SettleRejections(t *testing.T) {
	app := newTestApp(t)
	alice := newAccount(t)
	mallory := newAccount(t)
	bob := newAccount(t)
	app.topup(t, alice.address, "1000000000000000000")

	_, _, init := app.initiate(t, alice.address, bob.address, "0.5", "NATIVE")

	t.Run("wrong signer", func(t *testing.T) {
		status, env := app.settle(t, init.ApprovalID, init.Message, sign(t, mallory, init.Message))
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, apperror.CodeInvalidSignature, env.ErrorCode)
	})

	t.Run("tampered message", func(t *testing.T) {
		tampered := init.Message + " "
		status, env := app.settle(t, init.ApprovalID, tampered, sign(t, alice, tampered))
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, apperror.CodeInvalidSignature, env.ErrorCode)
	})

	t.Run("unknown approval", func(t *testing.T) {
		status, env := app.settle(t, "6f1c2a53-3b9a-4c55-9a4e-0f6c1f4f2a11", init.Message, sign(t, alice, init.Message))
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, apperror.CodeNotFound, env.ErrorCode)
	})

	// None of the failures moved funds.
	assert.Equal(t, "1000000000000000000", app.store.Balance(alice.address).String())
	assert.Empty(t, app.store.Transactions())
}

func TestAPI_InitiateRejections(t *testing.T) {
	app := newTestApp(t)
	alice := newAccount(t)
	bob := newAccount(t)
	app.topup(t, alice.address, "1000000000000000000")

	tests := []struct {
		name       string
		from, to   string
		amount     string
		amountType string
		wantStatus int
		wantCode   string
	}{
		{"self transfer", alice.address, alice.address, "1", "NATIVE", http.StatusBadRequest, apperror.CodeInvalidRequest},
		{"bad recipient", alice.address, "0xdeadbeef", "1", "NATIVE", http.StatusBadRequest, apperror.CodeInvalidRequest},
		{"zero amount", alice.address, bob.address, "0", "NATIVE", http.StatusBadRequest, apperror.CodeInvalidRequest},
		{"unknown unit", alice.address, bob.address, "1", "BTC", http.StatusBadRequest, apperror.CodeInvalidRequest},
		{"unfunded sender", bob.address, alice.address, "1", "NATIVE", http.StatusPaymentRequired, apperror.CodeInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env, _ := app.initiate(t, tt.from, tt.to, tt.amount, tt.amountType)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, env.ErrorCode)
		})
	}
}

func TestAPI_RegisterWalletIdempotent(t *testing.T) {
	app := newTestApp(t)
	alice := newAccount(t)

	status, env := app.do(t, http.MethodPost, "/api/v1/wallets", map[string]string{"address": alice.address}, nil)
	require.Equal(t, http.StatusCreated, status)
	var first struct {
		Address string `json:"address"`
		Created bool   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.True(t, first.Created)
	assert.Equal(t, domain.NormalizeAddress(alice.address), first.Address)

	app.topup(t, alice.address, "7")

	status, env = app.do(t, http.MethodPost, "/api/v1/wallets", map[string]string{"address": alice.address}, nil)
	require.Equal(t, http.StatusOK, status)
	var second struct {
		BalanceWei string `json:"balance_wei"`
		Created    bool   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.False(t, second.Created)
	assert.Equal(t, "7", second.BalanceWei)
}

func TestAPI_QuoteEndpoint(t *testing.T) {
	app := newTestApp(t)

	status, env := app.do(t, http.MethodPost, "/api/v1/price/quote", map[string]string{"amount_usd": "250"}, nil)
	require.Equal(t, http.StatusOK, status)
	var q struct {
		AmountUSD      string `json:"amount_usd"`
		AmountEth      string `json:"amount_eth"`
		AmountWei      string `json:"amount_wei"`
		PriceUSDPerEth string `json:"price_usd_per_eth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, "250.00", q.AmountUSD)
	assert.Equal(t, "0.125000", q.AmountEth)
	assert.Equal(t, "125000000000000000", q.AmountWei)
	assert.Equal(t, "2000.00", q.PriceUSDPerEth)
}

func TestAPI_AdminRequiresOperatorToken(t *testing.T) {
	app := newTestApp(t)
	alice := newAccount(t)
	body := map[string]string{"address": alice.address, "amount_wei": "1"}

	status, env := app.do(t, http.MethodPost, "/api/v1/admin/wallets/topup", body, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apperror.CodeInvalidToken, env.ErrorCode)

	status, _ = app.do(t, http.MethodPost, "/api/v1/admin/wallets/topup", body,
		map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, status)

	assert.Nil(t, app.store.Balance(alice.address))
}

func TestAPI_RequestIDEchoed(t *testing.T) {
	app := newTestApp(t)

	status, env := app.do(t, http.MethodGet, "/api/v1/wallets/0x0000000000000000000000000000000000000001/balance", nil,
		map[string]string{middleware.HeaderRequestID: "req-abc-123"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "req-abc-123", env.RequestID)
}

func TestAPI_RateLimitOnRegister(t *testing.T) {
	app := newTestApp(t)
	limit := middleware.DefaultRateLimitRules()[middleware.GroupRegister].Limit

	var last int
	for i := int64(0); i <= limit; i++ {
		addr := fmt.Sprintf("0x%040x", i+1)
		last, _ = app.do(t, http.MethodPost, "/api/v1/wallets", map[string]string{"address": addr}, nil)
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
