package domain

import "time"

// Balance is the ledger-of-record row for a user's credits.
type Balance struct {
	ID            int64     `json:"id" db:"id"`
	UserID        int64     `json:"userId" db:"user_id"`
	RoleID        int64     `json:"roleId" db:"role_id"`
	CreditBalance int64     `json:"creditBalance" db:"credit_balance"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}
