// internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-payment-service/internal/domain"
	"booking-payment-service/internal/repository"
	"booking-payment-service/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const reasonDenied = "denied"

type PaymentConfig struct {
	LedgerTimeout   time.Duration
	FinalizeTimeout time.Duration
	UnitPrice       decimal.Decimal
	Currency        string
	BillCacheTTL    time.Duration
}

// PaymentUsecase drives a transaction from pending to a terminal state. On
// confirmation the ledger is mutated first and the status finalized after.
type PaymentUsecase struct {
	repo      repository.TransactionRepository
	ledger    CreditLedgerClient
	publisher EventPublisher
	balances  BalanceCache
	bills     BillCache
	cfg       PaymentConfig
	logger    *zap.Logger
}

// NewPaymentUsecase wires the lifecycle. balances and bills may be nil when no
// cache is configured.
func NewPaymentUsecase(
	repo repository.TransactionRepository,
	ledger CreditLedgerClient,
	publisher EventPublisher,
	balances BalanceCache,
	bills BillCache,
	cfg PaymentConfig,
	logger *zap.Logger,
) *PaymentUsecase {
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 5 * time.Second
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 10 * time.Second
	}
	if cfg.BillCacheTTL <= 0 {
		cfg.BillCacheTTL = 24 * time.Hour
	}
	return &PaymentUsecase{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		balances:  balances,
		bills:     bills,
		cfg:       cfg,
		logger:    logger,
	}
}

// Create validates req and records it as pending. Nothing is stored when
// validation fails.
func (uc *PaymentUsecase) Create(ctx context.Context, req *domain.CreateTransactionRequest) (*domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		UserID:          req.UserID,
		RoleID:          req.RoleID,
		TransactionType: req.TransactionType,
		Amount:          req.Amount,
		Status:          domain.StatusPending,
	}
	if err := uc.repo.Create(ctx, txn); err != nil {
		uc.logger.Error("failed to create transaction",
			zap.Int64("user_id", req.UserID),
			zap.String("type", string(req.TransactionType)),
			zap.Error(err))
		return nil, err
	}

	transactionsCreated.WithLabelValues(string(txn.TransactionType)).Inc()
	uc.logger.Info("transaction created",
		zap.Int64("transaction_id", txn.ID),
		zap.Int64("user_id", txn.UserID),
		zap.String("type", string(txn.TransactionType)),
		zap.Int64("amount", txn.Amount))
	return txn, nil
}

func (uc *PaymentUsecase) Get(ctx context.Context, id int64) (*domain.Transaction, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be greater than 0", domain.ErrValidation)
	}
	return uc.repo.GetByID(ctx, id)
}

// Update applies a confirm or deny decision.
func (uc *PaymentUsecase) Update(ctx context.Context, req *domain.UpdatePaymentRequest) (*domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Status == domain.ActionDeny {
		return uc.Deny(ctx, req.ID)
	}
	return uc.Confirm(ctx, req.ID)
}

// Confirm claims a pending transaction and applies its ledger mutation exactly
// once. A transaction that already left pending is rejected with
// ErrAlreadyCompleted, ErrAlreadyFailed or ErrConfirmationInProgress and the
// ledger is not touched.
//
// When the ledger rejects the mutation the transaction ends failed and the
// ledger error is returned with it. When the outcome cannot be known the
// transaction is parked as indeterminate for the reconciler and
// ErrLedgerOutcomeUnknown is returned.
func (uc *PaymentUsecase) Confirm(ctx context.Context, id int64) (*domain.Transaction, error) {
	txn, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		paymentUpdates.WithLabelValues(string(domain.ActionConfirm), "error").Inc()
		return nil, err
	}
	if err := domain.ErrForStatus(txn.Status); err != nil {
		paymentUpdates.WithLabelValues(string(domain.ActionConfirm), "rejected").Inc()
		uc.logger.Info("confirmation rejected",
			zap.Int64("transaction_id", id),
			zap.String("status", string(txn.Status)))
		return txn, err
	}

	// The caller can still abandon the request up to this point.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claimed, err := uc.repo.TransitionStatus(ctx, domain.StatusChange{
		ID:   id,
		From: domain.StatusPending,
		To:   domain.StatusProcessing,
	})
	if err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			paymentUpdates.WithLabelValues(string(domain.ActionConfirm), "rejected").Inc()
			return uc.lostRace(ctx, id)
		}
		paymentUpdates.WithLabelValues(string(domain.ActionConfirm), "error").Inc()
		return nil, err
	}
	statusTransitions.WithLabelValues(string(domain.StatusPending), string(domain.StatusProcessing)).Inc()

	final, err := uc.settle(ctx, claimed)
	result := "error"
	if final != nil {
		result = string(final.Status)
	}
	paymentUpdates.WithLabelValues(string(domain.ActionConfirm), result).Inc()
	return final, err
}

// Deny fails a pending transaction without touching the ledger. It is guarded
// by the same status checks as Confirm.
func (uc *PaymentUsecase) Deny(ctx context.Context, id int64) (*domain.Transaction, error) {
	txn, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		paymentUpdates.WithLabelValues(string(domain.ActionDeny), "error").Inc()
		return nil, err
	}
	if err := domain.ErrForStatus(txn.Status); err != nil {
		paymentUpdates.WithLabelValues(string(domain.ActionDeny), "rejected").Inc()
		return txn, err
	}

	final, err := uc.repo.TransitionStatus(ctx, domain.StatusChange{
		ID:            id,
		From:          domain.StatusPending,
		To:            domain.StatusFailed,
		FailureReason: reasonDenied,
	})
	if err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			paymentUpdates.WithLabelValues(string(domain.ActionDeny), "rejected").Inc()
			return uc.lostRace(ctx, id)
		}
		paymentUpdates.WithLabelValues(string(domain.ActionDeny), "error").Inc()
		return nil, err
	}

	paymentUpdates.WithLabelValues(string(domain.ActionDeny), string(final.Status)).Inc()
	statusTransitions.WithLabelValues(string(domain.StatusPending), string(domain.StatusFailed)).Inc()
	uc.logger.Info("transaction denied", zap.Int64("transaction_id", id))
	uc.afterTransition(ctx, final, nil, "")
	return final, nil
}

// IssueBill builds the confirmation artifact for a transaction. Bills of
// terminal transactions are cached so repeated requests return the same code.
func (uc *PaymentUsecase) IssueBill(ctx context.Context, id int64) (*domain.Bill, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be greater than 0", domain.ErrValidation)
	}

	if uc.bills != nil {
		cached, err := uc.bills.GetBill(ctx, id)
		if err != nil {
			uc.logger.Warn("bill cache read failed", zap.Int64("transaction_id", id), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	txn, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	bill := &domain.Bill{
		Code:        utils.BillCode(),
		Transaction: txn,
		UnitPrice:   uc.cfg.UnitPrice,
		Total:       uc.cfg.UnitPrice.Mul(decimal.NewFromInt(txn.Amount)),
		Currency:    uc.cfg.Currency,
		Final:       txn.Status.Terminal(),
		IssuedAt:    time.Now().UTC(),
	}

	if bill.Final && uc.bills != nil {
		if err := uc.bills.SetBill(ctx, bill, uc.cfg.BillCacheTTL); err != nil {
			uc.logger.Warn("bill cache write failed", zap.Int64("transaction_id", id), zap.Error(err))
		}
	}
	return bill, nil
}

// settle performs the ledger mutation for a transaction this process has
// claimed and records the outcome.
func (uc *PaymentUsecase) settle(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	op, ledgerErr := uc.callLedger(ctx, txn)
	return uc.finalize(ctx, txn, op, ledgerErr)
}

// callLedger runs detached from the caller's cancellation so that a dispatched
// mutation is always followed by a status write. Panics are converted into
// ledger failures.
func (uc *PaymentUsecase) callLedger(ctx context.Context, txn *domain.Transaction) (op *domain.LedgerOperation, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.LedgerTimeout)
	defer cancel()

	direction := txn.TransactionType.Direction()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("ledger call panicked",
				zap.Int64("transaction_id", txn.ID),
				zap.Any("panic", r))
			op = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrLedgerFailure, r)
		}
		ledgerCallDuration.WithLabelValues(string(direction), ledgerResult(err)).Observe(time.Since(start).Seconds())
	}()

	ref := txn.LedgerRef()
	if direction == domain.LedgerDecrease {
		op, err = uc.ledger.Decrease(ctx, txn.UserID, txn.Amount, ref)
	} else {
		op, err = uc.ledger.Increase(ctx, txn.UserID, txn.Amount, ref)
	}

	if err != nil && outcomeUnknown(err) && !errors.Is(err, domain.ErrLedgerOutcomeUnknown) {
		err = fmt.Errorf("%w: %w", domain.ErrLedgerOutcomeUnknown, err)
	}
	return op, err
}

// finalize writes the status that follows a ledger result. The write is
// detached from the caller and bounded by FinalizeTimeout.
func (uc *PaymentUsecase) finalize(ctx context.Context, txn *domain.Transaction, op *domain.LedgerOperation, ledgerErr error) (*domain.Transaction, error) {
	change := domain.StatusChange{ID: txn.ID, From: txn.Status}
	switch {
	case ledgerErr == nil:
		change.To = domain.StatusCompleted
	case outcomeUnknown(ledgerErr):
		change.To = domain.StatusIndeterminate
	default:
		change.To = domain.StatusFailed
		change.FailureReason = failureReason(ledgerErr)
	}

	if change.From == change.To {
		// Still unknown on a reconcile pass; leave it for the next sweep.
		return txn, ledgerErr
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.FinalizeTimeout)
	defer cancel()

	final, err := uc.repo.TransitionStatus(wctx, change)
	if err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			// Another worker finalized it first.
			current, getErr := uc.repo.GetByID(wctx, txn.ID)
			if getErr != nil {
				return nil, getErr
			}
			return current, ledgerErr
		}
		// The transaction stays in its in-flight state and the reconciler
		// will resolve it from the ledger journal.
		uc.logger.Error("failed to record ledger outcome",
			zap.Int64("transaction_id", txn.ID),
			zap.String("from", string(change.From)),
			zap.String("to", string(change.To)),
			zap.NamedError("ledger_error", ledgerErr),
			zap.Error(err))
		return nil, err
	}

	statusTransitions.WithLabelValues(string(change.From), string(change.To)).Inc()
	logFields := []zap.Field{
		zap.Int64("transaction_id", final.ID),
		zap.String("status", string(final.Status)),
		zap.String("reference", txn.LedgerRef()),
	}
	switch final.Status {
	case domain.StatusCompleted:
		uc.logger.Info("transaction completed", logFields...)
	case domain.StatusIndeterminate:
		uc.logger.Warn("ledger outcome unknown, awaiting reconciliation", append(logFields, zap.Error(ledgerErr))...)
	default:
		uc.logger.Warn("transaction failed", append(logFields, zap.Error(ledgerErr))...)
	}

	uc.afterTransition(wctx, final, op, errorMessage(ledgerErr))
	return final, ledgerErr
}

// lostRace reports why a CAS on a pending transaction did not apply.
func (uc *PaymentUsecase) lostRace(ctx context.Context, id int64) (*domain.Transaction, error) {
	current, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.ErrForStatus(current.Status); err != nil {
		return current, err
	}
	return current, domain.ErrStaleTransition
}

// afterTransition publishes the transaction event and drops the cached balance
// once it has moved. Failures are logged only.
func (uc *PaymentUsecase) afterTransition(ctx context.Context, txn *domain.Transaction, op *domain.LedgerOperation, errMsg string) {
	if txn.Status == domain.StatusCompleted && uc.balances != nil {
		if err := uc.balances.InvalidateBalance(ctx, txn.UserID); err != nil {
			uc.logger.Warn("balance cache invalidation failed",
				zap.Int64("user_id", txn.UserID),
				zap.Error(err))
		}
	}

	if uc.publisher == nil {
		return
	}
	event := &domain.TransactionEvent{
		EventID:         uuid.NewString(),
		EventType:       eventTypeFor(txn.Status),
		TransactionID:   txn.ID,
		UserID:          txn.UserID,
		RoleID:          txn.RoleID,
		TransactionType: txn.TransactionType,
		Amount:          txn.Amount,
		Status:          string(txn.Status),
		ErrorMessage:    errMsg,
		Timestamp:       time.Now().UTC(),
	}
	if op != nil && op.Outcome == domain.OutcomeApplied {
		after := op.BalanceAfter
		event.BalanceAfter = &after
	}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		eventPublishErrors.Inc()
		uc.logger.Error("failed to publish transaction event",
			zap.Int64("transaction_id", txn.ID),
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}

// outcomeUnknown reports whether a ledger error leaves it open whether the
// mutation was applied.
func outcomeUnknown(err error) bool {
	return errors.Is(err, domain.ErrLedgerOutcomeUnknown) ||
		errors.Is(err, domain.ErrPersistence) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return domain.ReasonInsufficientBalance
	case errors.Is(err, domain.ErrBalanceNotFound):
		return domain.ReasonBalanceNotFound
	case errors.Is(err, domain.ErrLedgerConflict):
		return "ledger_conflict"
	}
	return "ledger_failure"
}

func ledgerResult(err error) string {
	switch {
	case err == nil:
		return "applied"
	case outcomeUnknown(err):
		return "unknown"
	}
	return "rejected"
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func eventTypeFor(s domain.TransactionStatus) string {
	switch s {
	case domain.StatusCompleted:
		return domain.EventPaymentCompleted
	case domain.StatusIndeterminate:
		return domain.EventPaymentIndeterminate
	}
	return domain.EventPaymentFailed
}
