// Package ledger is the ledger-of-record: it owns user credit balances and applies
// credit movements idempotently per reference. It is used in-process by the payment
// lifecycle when LEDGER_MODE=local and is exposed over HTTP to remote callers.
package ledger

import (
	"context"

	"booking-payment-service/internal/domain"
	"booking-payment-service/internal/repository"

	"go.uber.org/zap"
)

type Service struct {
	repo   repository.BalanceRepository
	logger *zap.Logger
}

func NewService(repo repository.BalanceRepository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Increase adds amount credits to the user's balance.
func (s *Service) Increase(ctx context.Context, userID, amount int64, reference string) (*domain.LedgerOperation, error) {
	return s.apply(ctx, domain.LedgerRequest{
		Reference: reference,
		UserID:    userID,
		Direction: domain.LedgerIncrease,
		Amount:    amount,
	})
}

// Decrease removes amount credits. It is rejected with domain.ErrInsufficientBalance
// instead of letting the balance go negative.
func (s *Service) Decrease(ctx context.Context, userID, amount int64, reference string) (*domain.LedgerOperation, error) {
	return s.apply(ctx, domain.LedgerRequest{
		Reference: reference,
		UserID:    userID,
		Direction: domain.LedgerDecrease,
		Amount:    amount,
	})
}

// Apply dispatches on req.Direction.
func (s *Service) Apply(ctx context.Context, req domain.LedgerRequest) (*domain.LedgerOperation, error) {
	return s.apply(ctx, req)
}

// Lookup returns the operation recorded for reference, or domain.ErrOperationNotFound.
func (s *Service) Lookup(ctx context.Context, reference string) (*domain.LedgerOperation, error) {
	return s.repo.GetOperation(ctx, reference)
}

func (s *Service) GetBalance(ctx context.Context, userID int64) (*domain.Balance, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// CreateBalance opens a zero balance. A second call for the same user returns
// domain.ErrBalanceExists.
func (s *Service) CreateBalance(ctx context.Context, userID, roleID int64) (*domain.Balance, error) {
	b := &domain.Balance{UserID: userID, RoleID: roleID}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("credit balance created",
		zap.Int64("user_id", userID),
		zap.Int64("role_id", roleID),
		zap.Int64("balance_id", b.ID))
	return b, nil
}

func (s *Service) apply(ctx context.Context, req domain.LedgerRequest) (*domain.LedgerOperation, error) {
	op, err := s.repo.Apply(ctx, req)
	if err != nil {
		s.logger.Error("ledger operation failed",
			zap.String("reference", req.Reference),
			zap.Int64("user_id", req.UserID),
			zap.String("direction", string(req.Direction)),
			zap.Error(err))
		return nil, err
	}

	if opErr := op.Err(); opErr != nil {
		s.logger.Warn("ledger operation rejected",
			zap.String("reference", op.Reference),
			zap.Int64("user_id", op.UserID),
			zap.String("direction", string(op.Direction)),
			zap.Int64("amount", op.Amount),
			zap.String("reason", op.Reason))
		return op, opErr
	}

	s.logger.Info("ledger operation applied",
		zap.String("reference", op.Reference),
		zap.Int64("user_id", op.UserID),
		zap.String("direction", string(op.Direction)),
		zap.Int64("amount", op.Amount),
		zap.Int64("balance_after", op.BalanceAfter))
	return op, nil
}
