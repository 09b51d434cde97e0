// internal/worker/reconcile_worker.go
package worker

import (
	"context"
	"sync"
	"time"

	"booking-payment-service/internal/usecase"

	"go.uber.org/zap"
)

type sweeper interface {
	RunOnce(ctx context.Context) (usecase.ReconcileReport, error)
}

// ReconcileWorker runs a reconcile sweep on every tick until stopped.
type ReconcileWorker struct {
	reconciler sweeper
	interval   time.Duration
	logger     *zap.Logger

	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewReconcileWorker(reconciler sweeper, interval time.Duration, logger *zap.Logger) *ReconcileWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ReconcileWorker{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx is cancelled. One sweep runs
// immediately to pick up work left by a previous process.
func (w *ReconcileWorker) Start(ctx context.Context) {
	defer close(w.done)
	w.logger.Info("starting reconcile worker", zap.Duration("interval", w.interval))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-ctx.Done():
			w.logger.Info("stopping reconcile worker")
			return
		}
	}
}

// Stop signals the worker and waits for the running sweep to return.
func (w *ReconcileWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.done
}

func (w *ReconcileWorker) sweep(ctx context.Context) {
	if _, err := w.reconciler.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("reconcile sweep failed", zap.Error(err))
	}
}
