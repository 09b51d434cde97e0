package domain

import (
	"fmt"
	"time"
)

type LedgerDirection string

const (
	LedgerIncrease LedgerDirection = "increase"
	LedgerDecrease LedgerDirection = "decrease"
)

type LedgerOutcome string

const (
	OutcomeApplied  LedgerOutcome = "applied"
	OutcomeRejected LedgerOutcome = "rejected"
)

// LedgerRequest asks the ledger-of-record to move a user's credits. Reference is
// the idempotency key: the same reference is applied at most once.
type LedgerRequest struct {
	Reference string          `json:"reference"`
	UserID    int64           `json:"userId"`
	Direction LedgerDirection `json:"direction"`
	Amount    int64           `json:"amount"`
}

func (r *LedgerRequest) Validate() error {
	if r.Reference == "" {
		return fmt.Errorf("%w: reference is required", ErrValidation)
	}
	if r.UserID <= 0 {
		return fmt.Errorf("%w: userId must be greater than 0", ErrValidation)
	}
	if r.Direction != LedgerIncrease && r.Direction != LedgerDecrease {
		return fmt.Errorf("%w: unknown direction %q", ErrValidation, r.Direction)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than 0", ErrValidation)
	}
	return nil
}

// LedgerOperation is the journal entry recorded for every reference the ledger has seen.
type LedgerOperation struct {
	ID           int64           `json:"id" db:"id"`
	Reference    string          `json:"reference" db:"reference"`
	UserID       int64           `json:"userId" db:"user_id"`
	Direction    LedgerDirection `json:"direction" db:"direction"`
	Amount       int64           `json:"amount" db:"amount"`
	Outcome      LedgerOutcome   `json:"outcome" db:"outcome"`
	Reason       string          `json:"reason,omitempty" db:"reason"`
	BalanceAfter int64           `json:"balanceAfter" db:"balance_after"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

// Err converts a recorded rejection back into the error the ledger returned
// when the operation was first applied.
func (op *LedgerOperation) Err() error {
	if op.Outcome == OutcomeApplied {
		return nil
	}
	switch op.Reason {
	case ReasonInsufficientBalance:
		return ErrInsufficientBalance
	case ReasonBalanceNotFound:
		return ErrBalanceNotFound
	}
	return fmt.Errorf("%w: %s", ErrLedgerFailure, op.Reason)
}

const (
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonBalanceNotFound     = "balance_not_found"
)
