package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	ReconcilePasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_passes_total",
		Help: "The total number of reconciliation passes by outcome",
	}, []string{"lane", "outcome"})

	ReconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconciler_pass_duration_seconds",
		Help:    "Time taken to run one reconciliation pass",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // Start at 100ms with 10 buckets doubling in size
	}, []string{"lane"})

	IntentsConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_intents_confirmed_total",
		Help: "The total number of intents confirmed as fully paid",
	}, []string{"lane"})

	IntentsCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_intents_canceled_total",
		Help: "The total number of intents canceled by expiry or exhausted budget",
	}, []string{"lane", "reason"})

	PendingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reconciler_pending_jobs",
		Help: "The number of reconcile jobs waiting to be processed",
	})

	RetryCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_retry_count_total",
		Help: "The total number of rescheduled reconciliation passes by lane",
	}, []string{"lane"})

	ReconcileErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_errors_total",
		Help: "Total number of errors by type",
	}, []string{"lane", "error_type"})

	MaxRetriesReached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_max_retries_reached_total",
		Help: "Number of jobs that reached maximum retry attempts",
	}, []string{"lane", "error_type"})

	WalletRPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_wallet_rpc_errors_total",
		Help: "Total number of wallet RPC transport errors by type",
	}, []string{"error_type"})

	RateFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_rate_fetches_total",
		Help: "Total number of exchange rate fetches by provider and result",
	}, []string{"provider", "result"})

	ExchangeRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reconciler_exchange_rate",
		Help: "Last observed fiat/XMR exchange rate by provider",
	}, []string{"provider"})

	AmountReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_amount_received_atomic_total",
		Help: "Cumulative confirmed payment volume in atomic units",
	})
)
