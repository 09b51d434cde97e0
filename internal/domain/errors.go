package domain

import "errors"

var (
	ErrValidation    = errors.New("validation error")
	ErrInvalidAction = errors.New("invalid payment action")

	ErrTransactionNotFound = errors.New("transaction not found")
	ErrBalanceNotFound     = errors.New("balance not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrBalanceExists       = errors.New("balance already exists for user")

	// Idempotent rejections: the caller is told no mutation occurred.
	ErrAlreadyCompleted       = errors.New("transaction already completed")
	ErrAlreadyFailed          = errors.New("transaction already failed")
	ErrConfirmationInProgress = errors.New("transaction confirmation already in progress")

	ErrLedgerFailure        = errors.New("credit ledger operation failed")
	ErrInsufficientBalance  = errors.New("insufficient credit balance")
	ErrLedgerOutcomeUnknown = errors.New("credit ledger outcome unknown")
	ErrLedgerConflict       = errors.New("ledger reference reused with different parameters")
	ErrOperationNotFound    = errors.New("ledger operation not found")

	ErrPersistence       = errors.New("persistence failure")
	ErrStaleTransition   = errors.New("transaction status changed concurrently")
	ErrInvalidTransition = errors.New("invalid status transition")
)
