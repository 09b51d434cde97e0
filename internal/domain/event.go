package domain

import "time"

const (
	EventPaymentCompleted     = "payment.completed"
	EventPaymentFailed        = "payment.failed"
	EventPaymentIndeterminate = "payment.indeterminate"
)

// TransactionEvent is published whenever a transaction leaves the pending path.
type TransactionEvent struct {
	EventID         string          `json:"event_id"`
	EventType       string          `json:"event_type"`
	TransactionID   int64           `json:"transaction_id"`
	UserID          int64           `json:"user_id"`
	RoleID          int64           `json:"role_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Amount          int64           `json:"amount"`
	Status          string          `json:"status"`
	BalanceAfter    *int64          `json:"balance_after,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}
