package domain

type TransactionStatus string

const (
	StatusPending       TransactionStatus = "pending"
	StatusProcessing    TransactionStatus = "processing"
	StatusIndeterminate TransactionStatus = "indeterminate"
	StatusCompleted     TransactionStatus = "completed"
	StatusFailed        TransactionStatus = "failed"
)

// transitions lists every status write the lifecycle is allowed to perform.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:       {StatusProcessing, StatusFailed},
	StatusProcessing:    {StatusCompleted, StatusFailed, StatusIndeterminate},
	StatusIndeterminate: {StatusCompleted, StatusFailed},
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusIndeterminate, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// InFlight reports whether a confirmation has claimed the transaction but not finished it.
func (s TransactionStatus) InFlight() bool {
	return s == StatusProcessing || s == StatusIndeterminate
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrForStatus returns the idempotent-rejection error for a transaction that is
// no longer pending, or nil when it still is.
func ErrForStatus(s TransactionStatus) error {
	switch s {
	case StatusCompleted:
		return ErrAlreadyCompleted
	case StatusFailed:
		return ErrAlreadyFailed
	case StatusProcessing, StatusIndeterminate:
		return ErrConfirmationInProgress
	}
	return nil
}
