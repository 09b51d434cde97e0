package usecase

import (
	"context"
	"fmt"
	"time"

	"booking-payment-service/internal/domain"

	"go.uber.org/zap"
)

// BalanceUsecase is the read and bootstrap path for credit balances. Balances
// only move through PaymentUsecase.
type BalanceUsecase struct {
	ledger BalanceLedger
	cache  BalanceCache
	users  UserDirectory
	ttl    time.Duration
	logger *zap.Logger
}

// NewBalanceUsecase wires the balance read path. cache and users may be nil.
func NewBalanceUsecase(ledger BalanceLedger, cache BalanceCache, users UserDirectory, ttl time.Duration, logger *zap.Logger) *BalanceUsecase {
	return &BalanceUsecase{
		ledger: ledger,
		cache:  cache,
		users:  users,
		ttl:    ttl,
		logger: logger,
	}
}

func (uc *BalanceUsecase) GetBalance(ctx context.Context, userID int64) (*domain.Balance, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: userId must be greater than 0", domain.ErrValidation)
	}

	if uc.cache != nil {
		cached, err := uc.cache.GetBalance(ctx, userID)
		if err != nil {
			uc.logger.Warn("balance cache read failed", zap.Int64("user_id", userID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	// The version is read before the ledger so a confirm landing in between
	// invalidates this read's cache write.
	cacheable := uc.cache != nil && uc.ttl > 0
	var version int64
	if cacheable {
		v, err := uc.cache.BalanceVersion(ctx, userID)
		if err != nil {
			uc.logger.Warn("balance cache version read failed", zap.Int64("user_id", userID), zap.Error(err))
			cacheable = false
		}
		version = v
	}

	balance, err := uc.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cacheable {
		stored, err := uc.cache.SetBalanceIfVersion(ctx, balance, version, uc.ttl)
		switch {
		case err != nil:
			uc.logger.Warn("balance cache write failed", zap.Int64("user_id", userID), zap.Error(err))
		case !stored:
			uc.logger.Debug("balance moved during read, not cached", zap.Int64("user_id", userID))
		}
	}
	return balance, nil
}

// CreateBalance opens a zero balance for a user known to the identity service.
func (uc *BalanceUsecase) CreateBalance(ctx context.Context, req *domain.CreateBalanceRequest) (*domain.Balance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if uc.users != nil {
		if err := uc.users.UserExists(ctx, req.UserID); err != nil {
			uc.logger.Warn("user check failed before balance creation",
				zap.Int64("user_id", req.UserID),
				zap.Error(err))
			return nil, err
		}
	}

	balance, err := uc.ledger.CreateBalance(ctx, req.UserID, req.RoleID)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("balance created",
		zap.Int64("user_id", balance.UserID),
		zap.Int64("balance_id", balance.ID))
	return balance, nil
}
