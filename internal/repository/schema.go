package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentsMigrations returns the schema of the transaction store (ledger-of-intent).
// Each string is a single statement.
func PaymentsMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS payment_transactions (
			id               BIGSERIAL PRIMARY KEY,
			user_id          BIGINT NOT NULL,
			role_id          BIGINT NOT NULL,
			transaction_type TEXT NOT NULL CHECK (transaction_type IN ('credit-purchase', 'reservation-charge')),
			amount           BIGINT NOT NULL CHECK (amount > 0),
			status           TEXT NOT NULL DEFAULT 'pending'
			                 CHECK (status IN ('pending', 'processing', 'indeterminate', 'completed', 'failed')),
			ledger_reference TEXT,
			failure_reason   TEXT,
			attempts         INTEGER NOT NULL DEFAULT 0,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at     TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_transactions_user ON payment_transactions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_transactions_unresolved
			ON payment_transactions(status, updated_at)
			WHERE status IN ('processing', 'indeterminate')`,
	}
}

// LedgerMigrations returns the schema of the balance store (ledger-of-record).
func LedgerMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS credit_balances (
			id             BIGSERIAL PRIMARY KEY,
			user_id        BIGINT NOT NULL UNIQUE,
			role_id        BIGINT NOT NULL DEFAULT 0,
			credit_balance BIGINT NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_operations (
			id            BIGSERIAL PRIMARY KEY,
			reference     TEXT NOT NULL UNIQUE,
			user_id       BIGINT NOT NULL,
			direction     TEXT NOT NULL CHECK (direction IN ('increase', 'decrease')),
			amount        BIGINT NOT NULL CHECK (amount > 0),
			outcome       TEXT NOT NULL CHECK (outcome IN ('applied', 'rejected')),
			reason        TEXT NOT NULL DEFAULT '',
			balance_after BIGINT NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_operations_user ON ledger_operations(user_id)`,
	}
}

// Migrate executes the statements in order.
func Migrate(ctx context.Context, db *pgxpool.Pool, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
