package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-payment-service/internal/domain"
)

func newPending(userID int64, typ domain.TransactionType, amount int64) *domain.Transaction {
	return &domain.Transaction{
		UserID:          userID,
		RoleID:          1,
		TransactionType: typ,
		Amount:          amount,
		Status:          domain.StatusPending,
	}
}

func TestMemoryTransactionCreateAndGet(t *testing.T) {
	repo := NewMemoryTransactionRepository()
	ctx := context.Background()

	txn := newPending(1, domain.TransactionTypeCreditPurchase, 100)
	if err := repo.Create(ctx, txn); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if txn.ID == 0 || txn.CreatedAt.IsZero() {
		t.Fatalf("Create did not assign id and timestamps: %+v", txn)
	}

	got, err := repo.GetByID(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusPending || got.Amount != 100 {
		t.Errorf("unexpected transaction %+v", got)
	}

	if _, err := repo.GetByID(ctx, 999); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestMemoryTransitionStatusCAS(t *testing.T) {
	repo := NewMemoryTransactionRepository()
	ctx := context.Background()
	txn := newPending(1, domain.TransactionTypeReservationCharge, 10)
	repo.Create(ctx, txn)

	claimed, err := repo.TransitionStatus(ctx, domain.StatusChange{ID: txn.ID, From: domain.StatusPending, To: domain.StatusProcessing})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.LedgerReference == nil || *claimed.LedgerReference != "payment:1" {
		t.Errorf("ledger reference not recorded: %v", claimed.LedgerReference)
	}
	if claimed.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", claimed.Attempts)
	}

	// Second claim sees the row is no longer pending.
	_, err = repo.TransitionStatus(ctx, domain.StatusChange{ID: txn.ID, From: domain.StatusPending, To: domain.StatusProcessing})
	if !errors.Is(err, domain.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}

	done, err := repo.TransitionStatus(ctx, domain.StatusChange{
		ID: txn.ID, From: domain.StatusProcessing, To: domain.StatusFailed, FailureReason: "insufficient_balance",
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if done.CompletedAt == nil || done.FailureReason == nil || *done.FailureReason != "insufficient_balance" {
		t.Errorf("terminal fields not set: %+v", done)
	}

	_, err = repo.TransitionStatus(ctx, domain.StatusChange{ID: txn.ID, From: domain.StatusFailed, To: domain.StatusCompleted})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMemoryTransitionStatusConcurrentClaims(t *testing.T) {
	repo := NewMemoryTransactionRepository()
	ctx := context.Background()
	txn := newPending(1, domain.TransactionTypeCreditPurchase, 10)
	repo.Create(ctx, txn)

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.TransitionStatus(ctx, domain.StatusChange{ID: txn.ID, From: domain.StatusPending, To: domain.StatusProcessing})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d claims won, want exactly 1", wins)
	}
}

func TestMemoryListUnresolved(t *testing.T) {
	repo := NewMemoryTransactionRepository()
	ctx := context.Background()

	mk := func(to ...domain.TransactionStatus) int64 {
		txn := newPending(1, domain.TransactionTypeCreditPurchase, 10)
		repo.Create(ctx, txn)
		from := domain.StatusPending
		for _, s := range to {
			if _, err := repo.TransitionStatus(ctx, domain.StatusChange{ID: txn.ID, From: from, To: s}); err != nil {
				t.Fatalf("transition %s -> %s: %v", from, s, err)
			}
			from = s
		}
		return txn.ID
	}

	mk()
	processing := mk(domain.StatusProcessing)
	indeterminate := mk(domain.StatusProcessing, domain.StatusIndeterminate)
	mk(domain.StatusProcessing, domain.StatusCompleted)

	// Nothing is stale yet, so only the indeterminate one is returned.
	got, err := repo.ListUnresolved(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListUnresolved: %v", err)
	}
	if len(got) != 1 || got[0].ID != indeterminate {
		t.Fatalf("got %v, want only %d", ids(got), indeterminate)
	}

	got, _ = repo.ListUnresolved(ctx, time.Now().Add(time.Hour), 10)
	if len(got) != 2 {
		t.Fatalf("got %v, want %d and %d", ids(got), processing, indeterminate)
	}

	got, _ = repo.ListUnresolved(ctx, time.Now().Add(time.Hour), 1)
	if len(got) != 1 {
		t.Fatalf("limit not applied: %v", ids(got))
	}
}

func TestMemoryRequeueMovesToBack(t *testing.T) {
	repo := NewMemoryTransactionRepository()
	ctx := context.Background()

	var parked []int64
	for i := 0; i < 2; i++ {
		txn := newPending(1, domain.TransactionTypeCreditPurchase, 10)
		repo.Create(ctx, txn)
		repo.TransitionStatus(ctx, domain.StatusChange{ID: txn.ID, From: domain.StatusPending, To: domain.StatusProcessing})
		repo.TransitionStatus(ctx, domain.StatusChange{ID: txn.ID, From: domain.StatusProcessing, To: domain.StatusIndeterminate})
		parked = append(parked, txn.ID)
	}

	got, _ := repo.ListUnresolved(ctx, time.Now(), 1)
	if len(got) != 1 || got[0].ID != parked[0] {
		t.Fatalf("got %v, want oldest %d first", ids(got), parked[0])
	}

	if err := repo.Requeue(ctx, parked[0], domain.StatusIndeterminate); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	got, _ = repo.ListUnresolved(ctx, time.Now(), 1)
	if len(got) != 1 || got[0].ID != parked[1] {
		t.Fatalf("got %v, want %d after requeue", ids(got), parked[1])
	}

	// A stale status leaves the row untouched.
	before, _ := repo.GetByID(ctx, parked[1])
	if err := repo.Requeue(ctx, parked[1], domain.StatusProcessing); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	after, _ := repo.GetByID(ctx, parked[1])
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatal("requeue with a stale status changed updated_at")
	}
}

func ids(txns []*domain.Transaction) []int64 {
	out := make([]int64, len(txns))
	for i, t := range txns {
		out[i] = t.ID
	}
	return out
}

func TestMemoryBalanceCreateUnique(t *testing.T) {
	repo := NewMemoryBalanceRepository()
	ctx := context.Background()

	b := &domain.Balance{UserID: 7, RoleID: 1}
	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ID == 0 || b.CreditBalance != 0 {
		t.Fatalf("unexpected balance %+v", b)
	}
	if err := repo.Create(ctx, &domain.Balance{UserID: 7}); !errors.Is(err, domain.ErrBalanceExists) {
		t.Fatalf("expected ErrBalanceExists, got %v", err)
	}
}

func TestMemoryBalanceApply(t *testing.T) {
	tests := []struct {
		name        string
		seed        int64
		direction   domain.LedgerDirection
		amount      int64
		wantOutcome domain.LedgerOutcome
		wantReason  string
		wantBalance int64
	}{
		{"increase", 10, domain.LedgerIncrease, 5, domain.OutcomeApplied, "", 15},
		{"decrease", 10, domain.LedgerDecrease, 10, domain.OutcomeApplied, "", 0},
		{"decrease below zero", 30, domain.LedgerDecrease, 50, domain.OutcomeRejected, domain.ReasonInsufficientBalance, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryBalanceRepository()
			repo.SetBalance(1, 1, tt.seed)

			op, err := repo.Apply(context.Background(), domain.LedgerRequest{
				Reference: "payment:1", UserID: 1, Direction: tt.direction, Amount: tt.amount,
			})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if op.Outcome != tt.wantOutcome || op.Reason != tt.wantReason {
				t.Errorf("outcome = %s/%q, want %s/%q", op.Outcome, op.Reason, tt.wantOutcome, tt.wantReason)
			}
			b, _ := repo.GetByUserID(context.Background(), 1)
			if b.CreditBalance != tt.wantBalance {
				t.Errorf("balance = %d, want %d", b.CreditBalance, tt.wantBalance)
			}
		})
	}
}

func TestMemoryBalanceApplyUnknownUser(t *testing.T) {
	repo := NewMemoryBalanceRepository()
	op, err := repo.Apply(context.Background(), domain.LedgerRequest{
		Reference: "payment:9", UserID: 9, Direction: domain.LedgerIncrease, Amount: 1,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !errors.Is(op.Err(), domain.ErrBalanceNotFound) {
		t.Fatalf("expected balance_not_found rejection, got %+v", op)
	}
}

func TestMemoryBalanceApplyIsIdempotentPerReference(t *testing.T) {
	repo := NewMemoryBalanceRepository()
	repo.SetBalance(1, 1, 0)
	ctx := context.Background()
	req := domain.LedgerRequest{Reference: "payment:5", UserID: 1, Direction: domain.LedgerIncrease, Amount: 40}

	first, err := repo.Apply(ctx, req)
	if err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	second, err := repo.Apply(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("replay returned a new operation: %d vs %d", first.ID, second.ID)
	}

	b, _ := repo.GetByUserID(ctx, 1)
	if b.CreditBalance != 40 {
		t.Fatalf("balance = %d, want 40", b.CreditBalance)
	}

	req.Amount = 41
	if _, err := repo.Apply(ctx, req); !errors.Is(err, domain.ErrLedgerConflict) {
		t.Fatalf("expected ErrLedgerConflict, got %v", err)
	}

	got, err := repo.GetOperation(ctx, "payment:5")
	if err != nil || got.Amount != 40 {
		t.Fatalf("GetOperation = %+v, %v", got, err)
	}
	if _, err := repo.GetOperation(ctx, "payment:6"); !errors.Is(err, domain.ErrOperationNotFound) {
		t.Fatalf("expected ErrOperationNotFound, got %v", err)
	}
}

func TestMemoryBalanceConcurrentDecrease(t *testing.T) {
	repo := NewMemoryBalanceRepository()
	repo.SetBalance(1, 1, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repo.Apply(ctx, domain.LedgerRequest{
				Reference: "payment:" + string(rune('a'+i)),
				UserID:    1,
				Direction: domain.LedgerDecrease,
				Amount:    10,
			})
		}(i)
	}
	wg.Wait()

	b, _ := repo.GetByUserID(ctx, 1)
	if b.CreditBalance != 0 {
		t.Fatalf("balance = %d, want 0", b.CreditBalance)
	}
}
