package usecase

import (
	"context"
	"errors"
	"time"

	"booking-payment-service/internal/domain"
	"booking-payment-service/internal/repository"

	"go.uber.org/zap"
)

type ReconcileConfig struct {
	StaleAfter    time.Duration
	BatchSize     int
	LockTTL       time.Duration
	LookupTimeout time.Duration
}

// ReconcileReport summarizes one sweep.
type ReconcileReport struct {
	Scanned    int
	Completed  int
	Failed     int
	Unresolved int
	Skipped    int
}

// ReconcileUsecase resolves transactions stuck between claim and final status:
// indeterminate ones, and processing ones whose confirmer has gone quiet. The
// ledger journal is the source of truth. A reference the ledger has never seen
// is driven again, which is safe because ledger mutations are idempotent.
type ReconcileUsecase struct {
	repo     repository.TransactionRepository
	ledger   CreditLedgerClient
	payments *PaymentUsecase
	locker   Locker
	cfg      ReconcileConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconcileUsecase wires the reconciler. locker may be nil for a single replica.
func NewReconcileUsecase(
	repo repository.TransactionRepository,
	ledger CreditLedgerClient,
	payments *PaymentUsecase,
	locker Locker,
	cfg ReconcileConfig,
	logger *zap.Logger,
) *ReconcileUsecase {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 5 * time.Second
	}
	return &ReconcileUsecase{
		repo:     repo,
		ledger:   ledger,
		payments: payments,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// RunOnce sweeps one batch of unresolved transactions.
func (uc *ReconcileUsecase) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	pending, err := uc.repo.ListUnresolved(ctx, uc.now().Add(-uc.cfg.StaleAfter), uc.cfg.BatchSize)
	if err != nil {
		return report, err
	}
	report.Scanned = len(pending)

	for _, txn := range pending {
		if ctx.Err() != nil {
			break
		}
		status, err := uc.Resolve(ctx, txn)
		switch {
		case errors.Is(err, errSkipped):
			report.Skipped++
		case status == domain.StatusCompleted:
			report.Completed++
		case status == domain.StatusFailed:
			report.Failed++
		default:
			report.Unresolved++
			// Still open: rotate it behind the rest so it cannot starve the batch.
			if err := uc.repo.Requeue(ctx, txn.ID, status); err != nil {
				uc.logger.Warn("failed to requeue unresolved transaction",
					zap.Int64("transaction_id", txn.ID),
					zap.Error(err))
			}
		}
	}

	if report.Scanned > 0 {
		uc.logger.Info("reconcile sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("completed", report.Completed),
			zap.Int("failed", report.Failed),
			zap.Int("unresolved", report.Unresolved),
			zap.Int("skipped", report.Skipped))
	}
	return report, nil
}

var errSkipped = errors.New("transaction held by another reconciler")

// Resolve settles a single in-flight transaction and returns its resulting status.
func (uc *ReconcileUsecase) Resolve(ctx context.Context, txn *domain.Transaction) (domain.TransactionStatus, error) {
	ref := txn.LedgerRef()

	if uc.locker != nil {
		release, err := uc.locker.TryLock(ctx, "reconcile:"+ref, uc.cfg.LockTTL)
		if err != nil {
			uc.logger.Debug("reconcile lock not acquired", zap.String("reference", ref), zap.Error(err))
			return txn.Status, errSkipped
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				uc.logger.Warn("reconcile lock release failed", zap.String("reference", ref), zap.Error(err))
			}
		}()
	}

	// Re-read under the lock: a confirmer or another sweep may have finished it.
	current, err := uc.repo.GetByID(ctx, txn.ID)
	if err != nil {
		return txn.Status, err
	}
	if !current.Status.InFlight() {
		return current.Status, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, uc.cfg.LookupTimeout)
	op, err := uc.ledger.Lookup(lookupCtx, ref)
	cancel()

	var final *domain.Transaction
	switch {
	case err == nil:
		final, err = uc.payments.finalize(ctx, current, op, op.Err())
	case errors.Is(err, domain.ErrOperationNotFound):
		uc.logger.Info("ledger has no record of reference, re-driving",
			zap.Int64("transaction_id", current.ID),
			zap.String("reference", ref),
			zap.String("status", string(current.Status)))
		final, err = uc.payments.settle(ctx, current)
	default:
		uc.logger.Warn("ledger lookup failed, will retry",
			zap.Int64("transaction_id", current.ID),
			zap.String("reference", ref),
			zap.Error(err))
		return current.Status, err
	}

	if final == nil {
		return current.Status, err
	}
	if final.Status.Terminal() {
		reconcileResolved.WithLabelValues(string(final.Status)).Inc()
		uc.logger.Info("transaction reconciled",
			zap.Int64("transaction_id", final.ID),
			zap.String("from", string(current.Status)),
			zap.String("status", string(final.Status)))
	}
	return final.Status, err
}
