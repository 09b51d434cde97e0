package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"booking-payment-service/internal/domain"
)

// MemoryTransactionRepository is a process-local TransactionRepository. It backs
// STORE_DRIVER=memory and the usecase tests.
type MemoryTransactionRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.Transaction
	now    func() time.Time
}

func NewMemoryTransactionRepository() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{
		rows: make(map[int64]domain.Transaction),
		now:  time.Now,
	}
}

func (r *MemoryTransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := r.now()
	txn.ID = r.nextID
	txn.CreatedAt = now
	txn.UpdatedAt = now
	r.rows[txn.ID] = *txn
	return nil
}

func (r *MemoryTransactionRepository) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return &txn, nil
}

func (r *MemoryTransactionRepository) TransitionStatus(ctx context.Context, change domain.StatusChange) (*domain.Transaction, error) {
	if !domain.CanTransition(change.From, change.To) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, change.From, change.To)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, ok := r.rows[change.ID]
	if !ok || txn.Status != change.From {
		return nil, domain.ErrStaleTransition
	}

	now := r.now()
	txn.Status = change.To
	txn.UpdatedAt = now
	if change.FailureReason != "" {
		reason := change.FailureReason
		txn.FailureReason = &reason
	}
	if change.To == domain.StatusProcessing {
		ref := domain.LedgerRefForTransaction(txn.ID)
		txn.LedgerReference = &ref
		txn.Attempts++
	}
	if change.To.Terminal() {
		txn.CompletedAt = &now
	}
	r.rows[txn.ID] = txn
	return &txn, nil
}

func (r *MemoryTransactionRepository) ListUnresolved(ctx context.Context, staleBefore time.Time, limit int) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Transaction
	for _, txn := range r.rows {
		if txn.Status == domain.StatusIndeterminate ||
			(txn.Status == domain.StatusProcessing && txn.UpdatedAt.Before(staleBefore)) {
			t := txn
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTransactionRepository) Requeue(ctx context.Context, id int64, status domain.TransactionStatus) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, ok := r.rows[id]
	if !ok || txn.Status != status {
		return nil
	}
	txn.UpdatedAt = r.now()
	r.rows[id] = txn
	return nil
}

// MemoryBalanceRepository is a process-local BalanceRepository.
type MemoryBalanceRepository struct {
	mu       sync.Mutex
	nextID   int64
	nextOpID int64
	balances map[int64]domain.Balance
	ops      map[string]domain.LedgerOperation
	now      func() time.Time
}

func NewMemoryBalanceRepository() *MemoryBalanceRepository {
	return &MemoryBalanceRepository{
		balances: make(map[int64]domain.Balance),
		ops:      make(map[string]domain.LedgerOperation),
		now:      time.Now,
	}
}

func (r *MemoryBalanceRepository) Create(ctx context.Context, balance *domain.Balance) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.balances[balance.UserID]; exists {
		return domain.ErrBalanceExists
	}
	r.nextID++
	now := r.now()
	balance.ID = r.nextID
	balance.CreditBalance = 0
	balance.CreatedAt = now
	balance.UpdatedAt = now
	r.balances[balance.UserID] = *balance
	return nil
}

func (r *MemoryBalanceRepository) GetByUserID(ctx context.Context, userID int64) (*domain.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.balances[userID]
	if !ok {
		return nil, domain.ErrBalanceNotFound
	}
	return &b, nil
}

func (r *MemoryBalanceRepository) GetOperation(ctx context.Context, reference string) (*domain.LedgerOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[reference]
	if !ok {
		return nil, domain.ErrOperationNotFound
	}
	return &op, nil
}

func (r *MemoryBalanceRepository) Apply(ctx context.Context, req domain.LedgerRequest) (*domain.LedgerOperation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.ops[req.Reference]; ok {
		return matchReplay(&existing, req)
	}

	r.nextOpID++
	op := domain.LedgerOperation{
		ID:        r.nextOpID,
		Reference: req.Reference,
		UserID:    req.UserID,
		Direction: req.Direction,
		Amount:    req.Amount,
		Outcome:   domain.OutcomeApplied,
		CreatedAt: r.now(),
	}

	b, ok := r.balances[req.UserID]
	switch {
	case !ok:
		op.Outcome = domain.OutcomeRejected
		op.Reason = domain.ReasonBalanceNotFound
	case req.Direction == domain.LedgerDecrease && b.CreditBalance < req.Amount:
		op.Outcome = domain.OutcomeRejected
		op.Reason = domain.ReasonInsufficientBalance
		op.BalanceAfter = b.CreditBalance
	default:
		if req.Direction == domain.LedgerIncrease {
			b.CreditBalance += req.Amount
		} else {
			b.CreditBalance -= req.Amount
		}
		b.UpdatedAt = op.CreatedAt
		r.balances[req.UserID] = b
		op.BalanceAfter = b.CreditBalance
	}

	r.ops[req.Reference] = op
	return &op, nil
}

// SetBalance overwrites a user's credits. Seeding helper for local runs and tests.
func (r *MemoryBalanceRepository) SetBalance(userID, roleID, credits int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.balances[userID]
	if !ok {
		r.nextID++
		b = domain.Balance{ID: r.nextID, UserID: userID, RoleID: roleID, CreatedAt: r.now()}
	}
	b.CreditBalance = credits
	b.UpdatedAt = r.now()
	r.balances[userID] = b
}

// Operations returns how many ledger operations have been recorded.
func (r *MemoryBalanceRepository) Operations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}
