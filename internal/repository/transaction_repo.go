// internal/repository/transaction_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-payment-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TransactionRepository interface {
	Create(ctx context.Context, txn *domain.Transaction) error
	GetByID(ctx context.Context, id int64) (*domain.Transaction, error)

	// TransitionStatus moves a transaction from change.From to change.To only if it
	// is still in change.From. Returns domain.ErrStaleTransition otherwise.
	TransitionStatus(ctx context.Context, change domain.StatusChange) (*domain.Transaction, error)

	// ListUnresolved returns indeterminate transactions and processing ones that
	// have not moved since staleBefore, oldest first.
	ListUnresolved(ctx context.Context, staleBefore time.Time, limit int) ([]*domain.Transaction, error)

	// Requeue moves a transaction still in status to the back of the unresolved
	// queue. It is a no-op when the status has already changed.
	Requeue(ctx context.Context, id int64, status domain.TransactionStatus) error
}

const transactionColumns = `
	id, user_id, role_id, transaction_type, amount, status,
	ledger_reference, failure_reason, attempts,
	created_at, updated_at, completed_at`

type transactionRepo struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) Create(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO payment_transactions (user_id, role_id, transaction_type, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		txn.UserID,
		txn.RoleID,
		string(txn.TransactionType),
		txn.Amount,
		string(txn.Status),
	).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert transaction: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = $1`

	txn, err := scanTransaction(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: get transaction: %w", domain.ErrPersistence, err)
	}
	return txn, nil
}

func (r *transactionRepo) TransitionStatus(ctx context.Context, change domain.StatusChange) (*domain.Transaction, error) {
	if !domain.CanTransition(change.From, change.To) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, change.From, change.To)
	}

	var ledgerRef *string
	if change.To == domain.StatusProcessing {
		ref := domain.LedgerRefForTransaction(change.ID)
		ledgerRef = &ref
	}

	// Compare-and-swap: the WHERE clause on status is what serializes concurrent
	// confirmations of the same transaction.
	query := `
		UPDATE payment_transactions
		SET
			status = $1::text,
			failure_reason = CASE WHEN $2::text = '' THEN failure_reason ELSE $2::text END,
			ledger_reference = COALESCE($3::text, ledger_reference),
			attempts = attempts + CASE WHEN $1::text = 'processing' THEN 1 ELSE 0 END,
			completed_at = CASE WHEN $1::text IN ('completed', 'failed') THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $4 AND status = $5::text
		RETURNING ` + transactionColumns

	txn, err := scanTransaction(r.db.QueryRow(ctx, query,
		string(change.To),
		change.FailureReason,
		ledgerRef,
		change.ID,
		string(change.From),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStaleTransition
		}
		return nil, fmt.Errorf("%w: update transaction status: %w", domain.ErrPersistence, err)
	}
	return txn, nil
}

func (r *transactionRepo) ListUnresolved(ctx context.Context, staleBefore time.Time, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE status = 'indeterminate'
		   OR (status = 'processing' AND updated_at < $1)
		ORDER BY updated_at ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list unresolved transactions: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan transaction: %w", domain.ErrPersistence, err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate transactions: %w", domain.ErrPersistence, err)
	}
	return out, nil
}

func (r *transactionRepo) Requeue(ctx context.Context, id int64, status domain.TransactionStatus) error {
	query := `
		UPDATE payment_transactions
		SET updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	if _, err := r.db.Exec(ctx, query, id, string(status)); err != nil {
		return fmt.Errorf("%w: requeue transaction: %w", domain.ErrPersistence, err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn    domain.Transaction
		txType string
		status string
	)
	err := row.Scan(
		&txn.ID,
		&txn.UserID,
		&txn.RoleID,
		&txType,
		&txn.Amount,
		&status,
		&txn.LedgerReference,
		&txn.FailureReason,
		&txn.Attempts,
		&txn.CreatedAt,
		&txn.UpdatedAt,
		&txn.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.TransactionType = domain.TransactionType(txType)
	txn.Status = domain.TransactionStatus(status)
	return &txn, nil
}
