// internal/domain/transaction.go
package domain

import (
	"fmt"
	"time"
)

type TransactionType string

const (
	TransactionTypeCreditPurchase    TransactionType = "credit-purchase"
	TransactionTypeReservationCharge TransactionType = "reservation-charge"
)

// Valid reports whether t is one of the recognized transaction tags.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeCreditPurchase, TransactionTypeReservationCharge:
		return true
	}
	return false
}

// Direction returns the balance movement a completed transaction of this type causes.
func (t TransactionType) Direction() LedgerDirection {
	if t == TransactionTypeReservationCharge {
		return LedgerDecrease
	}
	return LedgerIncrease
}

// Transaction is the ledger-of-intent record. It is never deleted.
type Transaction struct {
	ID              int64             `json:"id" db:"id"`
	UserID          int64             `json:"userId" db:"user_id"`
	RoleID          int64             `json:"roleId" db:"role_id"`
	TransactionType TransactionType   `json:"transactionType" db:"transaction_type"`
	Amount          int64             `json:"amount" db:"amount"`
	Status          TransactionStatus `json:"status" db:"status"`

	LedgerReference *string `json:"ledgerReference,omitempty" db:"ledger_reference"`
	FailureReason   *string `json:"failureReason,omitempty" db:"failure_reason"`
	Attempts        int     `json:"attempts" db:"attempts"`

	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// LedgerRef is the idempotency key used for the ledger mutation of this transaction.
func (t *Transaction) LedgerRef() string {
	return LedgerRefForTransaction(t.ID)
}

func LedgerRefForTransaction(id int64) string {
	return fmt.Sprintf("payment:%d", id)
}

// StatusChange describes a single compare-and-swap status write.
type StatusChange struct {
	ID            int64
	From          TransactionStatus
	To            TransactionStatus
	FailureReason string
}

// UpdateAction is the decision an external authority sends for a pending transaction.
type UpdateAction string

const (
	ActionConfirm UpdateAction = "confirm"
	ActionDeny    UpdateAction = "deny"
)

type UpdatePaymentRequest struct {
	ID     int64        `json:"id"`
	Status UpdateAction `json:"status"`
}

func (r *UpdatePaymentRequest) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: id must be greater than 0", ErrValidation)
	}
	if r.Status != ActionConfirm && r.Status != ActionDeny {
		return fmt.Errorf("%w: status must be %q or %q", ErrInvalidAction, ActionConfirm, ActionDeny)
	}
	return nil
}
