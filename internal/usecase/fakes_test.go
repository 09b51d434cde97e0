package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-payment-service/internal/domain"
	"booking-payment-service/internal/ledger"
	"booking-payment-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// scriptedLedger wraps the in-process ledger and lets a test interfere with
// mutation calls.
type scriptedLedger struct {
	inner *ledger.Service

	mu    sync.Mutex
	calls int
	// before runs ahead of every mutation; a non-nil error is returned without
	// touching the ledger.
	before func(ctx context.Context) error
	// after replaces the result of an applied mutation, simulating a lost response.
	after error
	// lookupErrs fails lookups of the given references.
	lookupErrs map[string]error
}

func (l *scriptedLedger) Increase(ctx context.Context, userID, amount int64, reference string) (*domain.LedgerOperation, error) {
	return l.mutate(ctx, func() (*domain.LedgerOperation, error) {
		return l.inner.Increase(ctx, userID, amount, reference)
	})
}

func (l *scriptedLedger) Decrease(ctx context.Context, userID, amount int64, reference string) (*domain.LedgerOperation, error) {
	return l.mutate(ctx, func() (*domain.LedgerOperation, error) {
		return l.inner.Decrease(ctx, userID, amount, reference)
	})
}

func (l *scriptedLedger) Lookup(ctx context.Context, reference string) (*domain.LedgerOperation, error) {
	l.mu.Lock()
	err := l.lookupErrs[reference]
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return l.inner.Lookup(ctx, reference)
}

func (l *scriptedLedger) failLookup(reference string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lookupErrs == nil {
		l.lookupErrs = make(map[string]error)
	}
	l.lookupErrs[reference] = err
}

func (l *scriptedLedger) mutate(ctx context.Context, apply func() (*domain.LedgerOperation, error)) (*domain.LedgerOperation, error) {
	l.mu.Lock()
	l.calls++
	before, after := l.before, l.after
	l.mu.Unlock()

	if before != nil {
		if err := before(ctx); err != nil {
			return nil, err
		}
	}
	op, err := apply()
	if err == nil && after != nil {
		return nil, after
	}
	return op, err
}

func (l *scriptedLedger) script(before func(ctx context.Context) error, after error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.before, l.after = before, after
}

func (l *scriptedLedger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.TransactionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e *domain.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Events() []*domain.TransactionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.TransactionEvent(nil), p.events...)
}

// memCache implements BalanceCache, BillCache and Locker.
type memCache struct {
	mu       sync.Mutex
	balances map[int64]domain.Balance
	versions map[int64]int64
	bills    map[int64]domain.Bill
	locks    map[string]bool
}

func newMemCache() *memCache {
	return &memCache{
		balances: make(map[int64]domain.Balance),
		versions: make(map[int64]int64),
		bills:    make(map[int64]domain.Bill),
		locks:    make(map[string]bool),
	}
}

func (c *memCache) GetBalance(_ context.Context, userID int64) (*domain.Balance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.balances[userID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (c *memCache) BalanceVersion(_ context.Context, userID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[userID], nil
}

func (c *memCache) SetBalanceIfVersion(_ context.Context, b *domain.Balance, version int64, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[b.UserID] != version {
		return false, nil
	}
	c.balances[b.UserID] = *b
	return true, nil
}

func (c *memCache) InvalidateBalance(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[userID]++
	delete(c.balances, userID)
	return nil
}

// seedBalance caches b unconditionally.
func (c *memCache) seedBalance(b domain.Balance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[b.UserID] = b
}

func (c *memCache) GetBill(_ context.Context, id int64) (*domain.Bill, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bills[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (c *memCache) SetBill(_ context.Context, b *domain.Bill, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bills[b.Transaction.ID] = *b
	return nil
}

var errHeld = errors.New("held")

func (c *memCache) TryLock(_ context.Context, resource string, _ time.Duration) (func(context.Context) error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[resource] {
		return nil, errHeld
	}
	c.locks[resource] = true
	return func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.locks, resource)
		return nil
	}, nil
}

type fixture struct {
	txns      *repository.MemoryTransactionRepository
	balances  *repository.MemoryBalanceRepository
	ledger    *scriptedLedger
	publisher *recordingPublisher
	cache     *memCache
	payments  *PaymentUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	f := &fixture{
		txns:      repository.NewMemoryTransactionRepository(),
		balances:  repository.NewMemoryBalanceRepository(),
		publisher: &recordingPublisher{},
		cache:     newMemCache(),
	}
	f.ledger = &scriptedLedger{inner: ledger.NewService(f.balances, logger)}
	f.payments = NewPaymentUsecase(
		f.txns,
		f.ledger,
		f.publisher,
		f.cache,
		f.cache,
		PaymentConfig{
			LedgerTimeout:   50 * time.Millisecond,
			FinalizeTimeout: time.Second,
			UnitPrice:       decimal.RequireFromString("2.50"),
			Currency:        "MXN",
		},
		logger,
	)
	return f
}

func (f *fixture) create(t *testing.T, userID int64, typ domain.TransactionType, amount int64) *domain.Transaction {
	t.Helper()
	txn, err := f.payments.Create(context.Background(), &domain.CreateTransactionRequest{
		UserID:          userID,
		RoleID:          1,
		TransactionType: typ,
		Amount:          amount,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return txn
}

func (f *fixture) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := f.balances.GetByUserID(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetByUserID(%d): %v", userID, err)
	}
	return b.CreditBalance
}

func (f *fixture) status(t *testing.T, id int64) domain.TransactionStatus {
	t.Helper()
	txn, err := f.txns.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d): %v", id, err)
	}
	return txn.Status
}
