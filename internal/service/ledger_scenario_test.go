package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"signed-transfer-gateway/internal/adapter/quote"
	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"
	"signed-transfer-gateway/internal/testutil/memstore"
	"signed-transfer-gateway/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ledger wires the real services over the in-memory store.
type ledger struct {
	store      *memstore.Store
	approvals  *ApprovalServiceImpl
	settlement *SettlementServiceImpl
	history    *HistoryServiceImpl
	wallets    *WalletServiceImpl
	clock      time.Time
	mu         sync.Mutex
}

func newLedger(t *testing.T) *ledger {
	t.Helper()
	src, err := quote.NewStaticSource("2000")
	require.NoError(t, err)
	rates := quote.NewConverter(src)

	store := memstore.New()
	l := &ledger{store: store, clock: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l.approvals = NewApprovalService(store.Approvals(), store.Wallets(), rates, 30*time.Second, newTestLogger())
	l.settlement = NewSettlementService(
		store.Approvals(), store.Wallets(), store.TransactionRecords(),
		store, NewPersonalSignVerifier(), nil, newTestLogger(),
	)
	l.history = NewHistoryService(store.TransactionRecords())
	l.wallets = NewWalletService(store.Wallets(), store, rates, nil, newTestLogger())
	l.approvals.now = l.now
	l.settlement.now = l.now
	return l
}

func (l *ledger) now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clock
}

func (l *ledger) advance(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = l.clock.Add(d)
}

func (l *ledger) initiate(t *testing.T, from signer, to, amount string) *ports.InitiateResult {
	t.Helper()
	res, err := l.approvals.Initiate(context.Background(), ports.InitiateRequest{
		Sender: from.address, Recipient: to, Amount: amount, AmountType: "NATIVE",
	})
	require.NoError(t, err)
	return res
}

func (l *ledger) settle(by signer, res *ports.InitiateResult) (*ports.SettleResult, error) {
	sig, err := SignPersonalMessage(by.key, res.Message)
	if err != nil {
		return nil, err
	}
	return l.settlement.Settle(context.Background(), ports.SettleRequest{
		ApprovalID: res.ApprovalID, Message: res.Message, Signature: sig,
	})
}

func TestLedger_SignedTransfer(t *testing.T) {
	l := newLedger(t)
	alice, bob := newSigner(t), newSigner(t)
	l.store.SetBalance(alice.address, ether(5))

	res := l.initiate(t, alice, bob.address, "2")
	assert.Contains(t, res.Message, `"amount_usd":"4000.00"`)

	out, err := l.settle(alice, res)
	require.NoError(t, err)
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, ether(3).String(), out.NewSenderBalance.String())

	assert.Equal(t, ether(3).String(), l.store.Balance(alice.address).String())
	assert.Equal(t, ether(2).String(), l.store.Balance(bob.address).String())
	assert.True(t, l.store.Approval(res.ApprovalID).Used)

	for _, who := range []string{alice.address, bob.address} {
		txns, err := l.history.ListTransactions(context.Background(), who, 0)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, out.TransactionID, txns[0].ID)
	}
}

func TestLedger_DoubleSettle(t *testing.T) {
	l := newLedger(t)
	alice, bob := newSigner(t), newSigner(t)
	l.store.SetBalance(alice.address, ether(5))

	res := l.initiate(t, alice, bob.address, "2")
	_, err := l.settle(alice, res)
	require.NoError(t, err)

	_, err = l.settle(alice, res)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyUsed))

	assert.Equal(t, ether(3).String(), l.store.Balance(alice.address).String())
	assert.Equal(t, ether(2).String(), l.store.Balance(bob.address).String())
	assert.Len(t, l.store.Transactions(), 1)
}

func TestLedger_ExpiredApproval(t *testing.T) {
	l := newLedger(t)
	alice, bob := newSigner(t), newSigner(t)
	l.store.SetBalance(alice.address, ether(5))

	res := l.initiate(t, alice, bob.address, "1")
	l.advance(31 * time.Second)

	_, err := l.settle(alice, res)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeExpired))
	assert.Equal(t, ether(5).String(), l.store.Balance(alice.address).String())
	assert.False(t, l.store.Approval(res.ApprovalID).Used)
}

func TestLedger_WrongSigner(t *testing.T) {
	l := newLedger(t)
	alice, bob, mallory := newSigner(t), newSigner(t), newSigner(t)
	l.store.SetBalance(alice.address, ether(5))

	res := l.initiate(t, alice, bob.address, "1")

	_, err := l.settle(mallory, res)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidSignature))

	assert.Equal(t, ether(5).String(), l.store.Balance(alice.address).String())
	assert.Nil(t, l.store.Balance(bob.address), "recipient wallet is not created by a rejected settle")
	assert.False(t, l.store.Approval(res.ApprovalID).Used)

	// The genuine signature still works afterwards.
	_, err = l.settle(alice, res)
	require.NoError(t, err)
}

func TestLedger_TamperedMessage(t *testing.T) {
	l := newLedger(t)
	alice, bob := newSigner(t), newSigner(t)
	l.store.SetBalance(alice.address, ether(5))

	res := l.initiate(t, alice, bob.address, "1")
	tampered := *res
	tampered.Message = res.Message[:len(res.Message)-1] + " }"

	_, err := l.settle(alice, &tampered)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidSignature))
	assert.Equal(t, ether(5).String(), l.store.Balance(alice.address).String())
}

func TestLedger_FailedWriteRollsBack(t *testing.T) {
	l := newLedger(t)
	alice, bob := newSigner(t), newSigner(t)
	l.store.SetBalance(alice.address, ether(5))
	res := l.initiate(t, alice, bob.address, "2")
	commits := l.store.Commits()

	l.store.FailNext(memstore.FaultCreateTransaction, errors.New("disk full"))
	_, err := l.settle(alice, res)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal))
	assert.Equal(t, commits, l.store.Commits(), "failed settle must not commit")

	assert.Equal(t, ether(5).String(), l.store.Balance(alice.address).String())
	assert.Nil(t, l.store.Balance(bob.address))
	assert.False(t, l.store.Approval(res.ApprovalID).Used)
	assert.Empty(t, l.store.Transactions())

	_, err = l.settle(alice, res)
	require.NoError(t, err)
	assert.Equal(t, ether(3).String(), l.store.Balance(alice.address).String())
	assert.Equal(t, commits+1, l.store.Commits())
}

func TestLedger_ConcurrentOverdraw(t *testing.T) {
	l := newLedger(t)
	alice, bob := newSigner(t), newSigner(t)
	l.store.SetBalance(alice.address, ether(5))

	// Every initiation passes the advisory check against the same balance.
	const n = 12
	pending := make([]*ports.InitiateResult, n)
	for i := range pending {
		pending[i] = l.initiate(t, alice, bob.address, "1")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for _, res := range pending {
		wg.Add(1)
		go func(res *ports.InitiateResult) {
			defer wg.Done()
			_, err := l.settle(alice, res)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperror.HasCode(err, apperror.CodeInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(res)
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, n-5, rejected)
	assert.Equal(t, "0", l.store.Balance(alice.address).String())
	assert.Equal(t, ether(5).String(), l.store.Balance(bob.address).String())
	assert.Len(t, l.store.Transactions(), 5)
}

func TestLedger_ConcurrentOverdrawMixedAmounts(t *testing.T) {
	l := newLedger(t)
	alice, bob := newSigner(t), newSigner(t)
	l.store.SetBalance(alice.address, ether(5))

	// Whichever 3 ETH transfer lands first, the other cannot fit but 1 ETH can.
	amounts := []int64{3, 3, 1}
	pending := make([]*ports.InitiateResult, len(amounts))
	for i, a := range amounts {
		pending[i] = l.initiate(t, alice, bob.address, strconv.FormatInt(a, 10))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled []int64
	)
	for i, res := range pending {
		wg.Add(1)
		go func(amount int64, res *ports.InitiateResult) {
			defer wg.Done()
			_, err := l.settle(alice, res)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				settled = append(settled, amount)
			case apperror.HasCode(err, apperror.CodeInsufficientFunds):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(amounts[i], res)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int64{3, 1}, settled)
	var total int64
	for _, a := range settled {
		total += a
	}
	assert.Equal(t, ether(5-total).String(), l.store.Balance(alice.address).String())
	assert.Equal(t, ether(total).String(), l.store.Balance(bob.address).String())
	assert.Len(t, l.store.Transactions(), len(settled))
}

func TestLedger_ConcurrentSettleOfOneApproval(t *testing.T) {
	l := newLedger(t)
	alice, bob := newSigner(t), newSigner(t)
	l.store.SetBalance(alice.address, ether(5))
	res := l.initiate(t, alice, bob.address, "1")

	const n = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		dupes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.settle(alice, res)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if apperror.HasCode(err, apperror.CodeAlreadyUsed) {
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, dupes)
	assert.Equal(t, ether(4).String(), l.store.Balance(alice.address).String())
	assert.Len(t, l.store.Transactions(), 1)
}

func TestLedger_OppositeTransfersDoNotDeadlock(t *testing.T) {
	l := newLedger(t)
	alice, bob := newSigner(t), newSigner(t)
	l.store.SetBalance(alice.address, ether(10))
	l.store.SetBalance(bob.address, ether(10))

	type pendingSettle struct {
		by  signer
		res *ports.InitiateResult
	}
	var pending []pendingSettle
	for i := 0; i < 5; i++ {
		pending = append(pending,
			pendingSettle{alice, l.initiate(t, alice, bob.address, "1")},
			pendingSettle{bob, l.initiate(t, bob, alice.address, "1")},
		)
	}

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, p := range pending {
			wg.Add(1)
			go func(by signer, res *ports.InitiateResult) {
				defer wg.Done()
				_, err := l.settle(by, res)
				assert.NoError(t, err)
			}(p.by, p.res)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("settlements did not finish")
	}
	assert.Equal(t, ether(10).String(), l.store.Balance(alice.address).String())
	assert.Equal(t, ether(10).String(), l.store.Balance(bob.address).String())
}

func TestLedger_TopupThenTransfer(t *testing.T) {
	l := newLedger(t)
	alice, bob := newSigner(t), newSigner(t)

	w, err := l.wallets.Topup(context.Background(), alice.address, ether(3))
	require.NoError(t, err)
	assert.Equal(t, domain.NormalizeAddress(alice.address), w.Address)

	res := l.initiate(t, alice, bob.address, "3")
	out, err := l.settle(alice, res)
	require.NoError(t, err)
	assert.Equal(t, "0", out.NewSenderBalance.String())
}
