// internal/repository/balance_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"booking-payment-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type BalanceRepository interface {
	Create(ctx context.Context, balance *domain.Balance) error
	GetByUserID(ctx context.Context, userID int64) (*domain.Balance, error)

	// Apply performs the ledger request at most once per reference. The returned
	// operation records whether it was applied or rejected; a replayed reference
	// returns the operation recorded the first time.
	Apply(ctx context.Context, req domain.LedgerRequest) (*domain.LedgerOperation, error)
	GetOperation(ctx context.Context, reference string) (*domain.LedgerOperation, error)
}

const operationColumns = `
	id, reference, user_id, direction, amount, outcome, reason, balance_after, created_at`

type balanceRepo struct {
	db *pgxpool.Pool
}

func NewBalanceRepository(db *pgxpool.Pool) BalanceRepository {
	return &balanceRepo{db: db}
}

func (r *balanceRepo) Create(ctx context.Context, balance *domain.Balance) error {
	query := `
		INSERT INTO credit_balances (user_id, role_id, credit_balance)
		VALUES ($1, $2, 0)
		RETURNING id, credit_balance, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, balance.UserID, balance.RoleID).
		Scan(&balance.ID, &balance.CreditBalance, &balance.CreatedAt, &balance.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBalanceExists
		}
		return fmt.Errorf("%w: insert balance: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (r *balanceRepo) GetByUserID(ctx context.Context, userID int64) (*domain.Balance, error) {
	query := `
		SELECT id, user_id, role_id, credit_balance, created_at, updated_at
		FROM credit_balances
		WHERE user_id = $1
	`

	var b domain.Balance
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&b.ID,
		&b.UserID,
		&b.RoleID,
		&b.CreditBalance,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("%w: get balance: %w", domain.ErrPersistence, err)
	}
	return &b, nil
}

func (r *balanceRepo) GetOperation(ctx context.Context, reference string) (*domain.LedgerOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM ledger_operations WHERE reference = $1`

	op, err := scanOperation(r.db.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOperationNotFound
		}
		return nil, fmt.Errorf("%w: get ledger operation: %w", domain.ErrPersistence, err)
	}
	return op, nil
}

func (r *balanceRepo) Apply(ctx context.Context, req domain.LedgerRequest) (*domain.LedgerOperation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Fast path for replays.
	existing, err := r.GetOperation(ctx, req.Reference)
	if err == nil {
		return matchReplay(existing, req)
	}
	if !errors.Is(err, domain.ErrOperationNotFound) {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin ledger tx: %w", domain.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	op := &domain.LedgerOperation{
		Reference: req.Reference,
		UserID:    req.UserID,
		Direction: req.Direction,
		Amount:    req.Amount,
		Outcome:   domain.OutcomeApplied,
	}

	balanceAfter, reason, err := r.mutate(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	op.BalanceAfter = balanceAfter
	if reason != "" {
		op.Outcome = domain.OutcomeRejected
		op.Reason = reason
	}

	insert := `
		INSERT INTO ledger_operations (reference, user_id, direction, amount, outcome, reason, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, insert,
		op.Reference,
		op.UserID,
		string(op.Direction),
		op.Amount,
		string(op.Outcome),
		op.Reason,
		op.BalanceAfter,
	).Scan(&op.ID, &op.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent call with the same reference committed first; our
			// balance change is rolled back with the deferred Rollback.
			_ = tx.Rollback(ctx)
			winner, getErr := r.GetOperation(ctx, req.Reference)
			if getErr != nil {
				return nil, getErr
			}
			return matchReplay(winner, req)
		}
		return nil, fmt.Errorf("%w: record ledger operation: %w", domain.ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit ledger tx: %w", domain.ErrPersistence, err)
	}
	return op, nil
}

// mutate changes the balance row inside tx. A non-empty reason means the request
// was rejected and nothing was changed.
func (r *balanceRepo) mutate(ctx context.Context, tx pgx.Tx, req domain.LedgerRequest) (int64, string, error) {
	var query string
	if req.Direction == domain.LedgerIncrease {
		query = `
			UPDATE credit_balances
			SET credit_balance = credit_balance + $1, updated_at = NOW()
			WHERE user_id = $2
			RETURNING credit_balance
		`
	} else {
		// Conditional decrement: never goes negative, atomic against concurrent decreases.
		query = `
			UPDATE credit_balances
			SET credit_balance = credit_balance - $1, updated_at = NOW()
			WHERE user_id = $2 AND credit_balance >= $1
			RETURNING credit_balance
		`
	}

	var after int64
	err := tx.QueryRow(ctx, query, req.Amount, req.UserID).Scan(&after)
	if err == nil {
		return after, "", nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, "", fmt.Errorf("%w: update balance: %w", domain.ErrPersistence, err)
	}

	var current int64
	err = tx.QueryRow(ctx, `SELECT credit_balance FROM credit_balances WHERE user_id = $1`, req.UserID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ReasonBalanceNotFound, nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("%w: read balance: %w", domain.ErrPersistence, err)
	}
	return current, domain.ReasonInsufficientBalance, nil
}

// matchReplay returns the recorded operation when the replayed request carries the
// same parameters.
func matchReplay(op *domain.LedgerOperation, req domain.LedgerRequest) (*domain.LedgerOperation, error) {
	if op.UserID != req.UserID || op.Direction != req.Direction || op.Amount != req.Amount {
		return nil, fmt.Errorf("%w: %s", domain.ErrLedgerConflict, req.Reference)
	}
	return op, nil
}

func scanOperation(row pgx.Row) (*domain.LedgerOperation, error) {
	var (
		op        domain.LedgerOperation
		direction string
		outcome   string
	)
	err := row.Scan(
		&op.ID,
		&op.Reference,
		&op.UserID,
		&direction,
		&op.Amount,
		&outcome,
		&op.Reason,
		&op.BalanceAfter,
		&op.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	op.Direction = domain.LedgerDirection(direction)
	op.Outcome = domain.LedgerOutcome(outcome)
	return &op, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
