package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transactions_created_total",
			Help: "Transactions recorded as pending",
		},
		[]string{"type"},
	)

	paymentUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_updates_total",
			Help: "Confirm and deny requests by result",
		},
		[]string{"action", "result"},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_status_transitions_total",
			Help: "Status writes performed by the lifecycle",
		},
		[]string{"from", "to"},
	)

	ledgerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_ledger_call_duration_seconds",
			Help:    "Duration of credit ledger mutations",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"direction", "result"},
	)

	reconcileResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconcile_resolved_total",
			Help: "Transactions resolved by the reconciler",
		},
		[]string{"status"},
	)

	eventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_event_publish_errors_total",
			Help: "Transaction events that could not be published",
		},
	)
)
