package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bill is the confirmation artifact issued for a transaction.
type Bill struct {
	Code        string          `json:"code"`
	Transaction *Transaction    `json:"transaction"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
	Final       bool            `json:"final"`
	IssuedAt    time.Time       `json:"issuedAt"`
}
