package domain

import (
	"fmt"
	"strings"
)

// CreateTransactionRequest is the creation payload for a transaction.
type CreateTransactionRequest struct {
	UserID          int64           `json:"userId"`
	RoleID          int64           `json:"roleId"`
	TransactionType TransactionType `json:"transactionType"`
	Amount          int64           `json:"amount"`
}

// Validate checks the shape of the request. It has no side effects and reports
// every offending field in one error wrapping ErrValidation.
func (r *CreateTransactionRequest) Validate() error {
	var problems []string
	if r.UserID <= 0 {
		problems = append(problems, "userId must be greater than 0")
	}
	if r.RoleID <= 0 {
		problems = append(problems, "roleId must be greater than 0")
	}
	if !r.TransactionType.Valid() {
		problems = append(problems, fmt.Sprintf("transactionType must be %q or %q",
			TransactionTypeCreditPurchase, TransactionTypeReservationCharge))
	}
	if r.Amount <= 0 {
		problems = append(problems, "amount must be greater than 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// CreateBalanceRequest bootstraps a zero balance for a user.
type CreateBalanceRequest struct {
	UserID int64 `json:"userId"`
	RoleID int64 `json:"roleId"`
}

func (r *CreateBalanceRequest) Validate() error {
	if r.UserID <= 0 {
		return fmt.Errorf("%w: userId must be greater than 0", ErrValidation)
	}
	if r.RoleID < 0 {
		return fmt.Errorf("%w: roleId must not be negative", ErrValidation)
	}
	return nil
}
