// Package memstore is an in-memory implementation of the storage ports used
// by service and API tests. Transactions are serialized by a single lock and
// their writes become visible only on Commit, which models the row-locking
// behaviour of the PostgreSQL adapter closely enough for concurrency tests.
package memstore

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"signed-transfer-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store holds committed state.
type Store struct {
	txLock sync.Mutex // held for the lifetime of a Tx

	mu        sync.RWMutex
	wallets   map[string]*domain.Wallet
	approvals map[uuid.UUID]*domain.Approval
	txns      []domain.Transaction
	audits    []domain.AuditLog
	faults    map[string]error
	commits   int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		wallets:   make(map[string]*domain.Wallet),
		approvals: make(map[uuid.UUID]*domain.Approval),
		faults:    make(map[string]error),
	}
}

// Fault points accepted by FailNext.
const (
	FaultDebit             = "debit"
	FaultCredit            = "credit"
	FaultMarkUsed          = "mark_used"
	FaultCreateTransaction = "create_transaction"
	FaultCommit            = "commit"
)

// FailNext makes the next call at point return err.
func (s *Store) FailNext(point string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[point] = err
}

func (s *Store) fault(point string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.faults[point]
	delete(s.faults, point)
	return err
}

// SetBalance seeds or overwrites a wallet outside any transaction.
func (s *Store) SetBalance(address string, wei *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NormalizeAddress(address)
	now := time.Now().UTC()
	if w, ok := s.wallets[key]; ok {
		w.Balance = new(big.Int).Set(wei)
		w.UpdatedAt = now
		return
	}
	s.wallets[key] = &domain.Wallet{Address: key, Balance: new(big.Int).Set(wei), CreatedAt: now, UpdatedAt: now}
}

// Balance returns the committed balance, or nil if the wallet does not exist.
func (s *Store) Balance(address string) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[domain.NormalizeAddress(address)]
	if !ok {
		return nil
	}
	return new(big.Int).Set(w.Balance)
}

// Approval returns a copy of a committed approval.
func (s *Store) Approval(id uuid.UUID) *domain.Approval {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil
	}
	c := copyApproval(a)
	return &c
}

// Transactions returns all committed records in commit order.
func (s *Store) Transactions() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Transaction(nil), s.txns...)
}

// AuditLogs returns all persisted audit entries.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditLog(nil), s.audits...)
}

// Commits reports how many transactions committed.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// --- Transactor ---

// Tx is a serialized unit of work. Only Commit and Rollback are implemented;
// the embedded pgx.Tx is nil.
type Tx struct {
	pgx.Tx
	store    *Store
	balances map[string]*big.Int
	used     map[uuid.UUID]bool
	txns     []domain.Transaction
	once     sync.Once
	closed   bool
}

// Begin implements ports.DBTransactor.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.txLock.Lock()
	return &Tx{
		store:    s,
		balances: make(map[string]*big.Int),
		used:     make(map[uuid.UUID]bool),
	}, nil
}

// Commit applies staged writes atomically.
func (t *Tx) Commit(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	defer t.release()

	if err := t.store.fault(FaultCommit); err != nil {
		return err
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for addr, bal := range t.balances {
		if w, ok := s.wallets[addr]; ok {
			w.Balance = bal
			w.UpdatedAt = now
			continue
		}
		s.wallets[addr] = &domain.Wallet{Address: addr, Balance: bal, CreatedAt: now, UpdatedAt: now}
	}
	for id := range t.used {
		s.approvals[id].Used = true
	}
	s.txns = append(s.txns, t.txns...)
	s.commits++
	return nil
}

// Rollback discards staged writes.
func (t *Tx) Rollback(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.release()
	return nil
}

func (t *Tx) release() {
	t.once.Do(func() {
		t.closed = true
		t.store.txLock.Unlock()
	})
}

func asTx(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.closed {
		return nil, fmt.Errorf("memstore: not an open transaction")
	}
	return t, nil
}

// balance reads through staged writes to committed state.
func (t *Tx) balance(addr string) (*big.Int, bool) {
	if b, ok := t.balances[addr]; ok {
		return b, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	w, ok := t.store.wallets[addr]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(w.Balance), true
}

// --- Wallets ---

// Wallets implements ports.WalletRepository.
type Wallets struct{ s *Store }

// Wallets returns the wallet repository view of the store.
func (s *Store) Wallets() *Wallets { return &Wallets{s: s} }

func (r *Wallets) GetByAddress(_ context.Context, address string) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.wallets[domain.NormalizeAddress(address)]
	if !ok {
		return nil, nil
	}
	c := *w
	c.Balance = new(big.Int).Set(w.Balance)
	return &c, nil
}

func (r *Wallets) CreateIfAbsent(ctx context.Context, address string, initial *big.Int) (bool, error) {
	// Runs as its own transaction so it never races a staged insert.
	tx, err := r.s.Begin(ctx)
	if err != nil {
		return false, err
	}
	t := tx.(*Tx)
	defer t.Rollback(ctx) //nolint:errcheck

	key := domain.NormalizeAddress(address)
	if _, ok := t.balance(key); ok {
		return false, nil
	}
	t.balances[key] = new(big.Int).Set(initial)
	return true, t.Commit(ctx)
}

func (r *Wallets) EnsureExists(_ context.Context, tx pgx.Tx, address string) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	key := domain.NormalizeAddress(address)
	if _, ok := t.balance(key); !ok {
		t.balances[key] = new(big.Int)
	}
	return nil
}

func (r *Wallets) GetForUpdate(_ context.Context, tx pgx.Tx, address string) (*domain.Wallet, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	key := domain.NormalizeAddress(address)
	b, ok := t.balance(key)
	if !ok {
		return nil, nil
	}
	return &domain.Wallet{Address: key, Balance: new(big.Int).Set(b)}, nil
}

func (r *Wallets) Debit(_ context.Context, tx pgx.Tx, address string, amount *big.Int) (*big.Int, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := r.s.fault(FaultDebit); err != nil {
		return nil, err
	}
	key := domain.NormalizeAddress(address)
	b, ok := t.balance(key)
	if !ok || b.Cmp(amount) < 0 {
		return nil, nil
	}
	nb := new(big.Int).Sub(b, amount)
	t.balances[key] = nb
	return new(big.Int).Set(nb), nil
}

func (r *Wallets) Credit(_ context.Context, tx pgx.Tx, address string, amount *big.Int) (*big.Int, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := r.s.fault(FaultCredit); err != nil {
		return nil, err
	}
	key := domain.NormalizeAddress(address)
	b, ok := t.balance(key)
	if !ok {
		return nil, fmt.Errorf("wallet not found: %s", address)
	}
	nb := new(big.Int).Add(b, amount)
	t.balances[key] = nb
	return new(big.Int).Set(nb), nil
}

// --- Approvals ---

// Approvals implements ports.ApprovalRepository.
type Approvals struct{ s *Store }

// Approvals returns the approval repository view of the store.
func (s *Store) Approvals() *Approvals { return &Approvals{s: s} }

func (r *Approvals) Create(_ context.Context, a *domain.Approval) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.approvals[a.ID]; ok {
		return fmt.Errorf("duplicate approval %s", a.ID)
	}
	c := copyApproval(a)
	r.s.approvals[a.ID] = &c
	return nil
}

func (r *Approvals) GetByID(_ context.Context, id uuid.UUID) (*domain.Approval, error) {
	return r.s.Approval(id), nil
}

func (r *Approvals) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Approval, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	a := r.s.Approval(id)
	if a != nil && t.used[id] {
		a.Used = true
	}
	return a, nil
}

func (r *Approvals) MarkUsed(_ context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return false, err
	}
	if err := r.s.fault(FaultMarkUsed); err != nil {
		return false, err
	}
	a := r.s.Approval(id)
	if a == nil || a.Used || t.used[id] {
		return false, nil
	}
	t.used[id] = true
	return true, nil
}

// --- Transactions ---

// TransactionRecords implements ports.TransactionRepository.
type TransactionRecords struct{ s *Store }

// TransactionRecords returns the transaction repository view of the store.
func (s *Store) TransactionRecords() *TransactionRecords { return &TransactionRecords{s: s} }

func (r *TransactionRecords) Create(_ context.Context, tx pgx.Tx, rec *domain.Transaction) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := r.s.fault(FaultCreateTransaction); err != nil {
		return err
	}
	r.s.mu.RLock()
	for _, existing := range r.s.txns {
		if existing.ApprovalID == rec.ApprovalID {
			r.s.mu.RUnlock()
			return fmt.Errorf("duplicate transaction for approval %s", rec.ApprovalID)
		}
	}
	r.s.mu.RUnlock()
	c := *rec
	c.Amount = new(big.Int).Set(rec.Amount)
	t.txns = append(t.txns, c)
	return nil
}

func (r *TransactionRecords) ListByAddress(_ context.Context, address string, limit int) ([]domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Transaction{}
	for i := len(r.s.txns) - 1; i >= 0; i-- {
		t := r.s.txns[i]
		if domain.SameAddress(t.Sender, address) || domain.SameAddress(t.Recipient, address) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Audit ---

// AuditRecords implements ports.AuditRepository.
type AuditRecords struct{ s *Store }

// AuditRecords returns the audit repository view of the store.
func (s *Store) AuditRecords() *AuditRecords { return &AuditRecords{s: s} }

func (r *AuditRecords) Create(_ context.Context, entry *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

func copyApproval(a *domain.Approval) domain.Approval {
	c := *a
	c.Amount = new(big.Int).Set(a.Amount)
	if a.AmountUSD != nil {
		usd := *a.AmountUSD
		c.AmountUSD = &usd
	}
	return c
}
