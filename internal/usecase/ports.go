package usecase

import (
	"context"
	"time"

	"booking-payment-service/internal/domain"
)

// CreditLedgerClient moves credits on the ledger-of-record. Every call is
// idempotent per reference. Implemented in-process by ledger.Service and
// remotely by client.LedgerClient.
type CreditLedgerClient interface {
	Increase(ctx context.Context, userID, amount int64, reference string) (*domain.LedgerOperation, error)
	Decrease(ctx context.Context, userID, amount int64, reference string) (*domain.LedgerOperation, error)
	Lookup(ctx context.Context, reference string) (*domain.LedgerOperation, error)
}

// BalanceLedger is the read and bootstrap side of the ledger-of-record.
type BalanceLedger interface {
	GetBalance(ctx context.Context, userID int64) (*domain.Balance, error)
	CreateBalance(ctx context.Context, userID, roleID int64) (*domain.Balance, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event *domain.TransactionEvent) error
}

// BalanceCache returns nil, nil on a miss. Entries are versioned per user:
// InvalidateBalance bumps the version, and SetBalanceIfVersion refuses a write
// carrying an older one.
type BalanceCache interface {
	GetBalance(ctx context.Context, userID int64) (*domain.Balance, error)
	BalanceVersion(ctx context.Context, userID int64) (int64, error)
	SetBalanceIfVersion(ctx context.Context, b *domain.Balance, version int64, ttl time.Duration) (bool, error)
	InvalidateBalance(ctx context.Context, userID int64) error
}

// BillCache returns nil, nil on a miss.
type BillCache interface {
	GetBill(ctx context.Context, transactionID int64) (*domain.Bill, error)
	SetBill(ctx context.Context, b *domain.Bill, ttl time.Duration) error
}

// Locker grants a short-lived exclusive lease on a named resource.
type Locker interface {
	TryLock(ctx context.Context, resource string, ttl time.Duration) (release func(context.Context) error, err error)
}

type UserDirectory interface {
	UserExists(ctx context.Context, userID int64) error
}
