// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Token outcomes within an accrual run.
const (
	OutcomeAccrued     = "accrued"
	OutcomeUnchanged   = "unchanged"
	OutcomeNoAgreement = "no_agreement"
	OutcomeSourceError = "source_error"
	OutcomeCommitError = "commit_error"
	OutcomeStale       = "stale"
	OutcomeStoreError  = "store_error"
	OutcomeBadVersion  = "invalid_agreement"
	OutcomePanic       = "panic"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Accrual metrics
	JobRunsTotal      *prometheus.CounterVec
	JobRunDuration    prometheus.Histogram
	JobRunsLocked     prometheus.Counter
	TokenOutcomes     *prometheus.CounterVec
	LamportsAccrued   *prometheus.CounterVec
	SnapshotsWritten  prometheus.Counter
	LastSuccessfulRun prometheus.Gauge

	// Reconciliation metrics
	ReconciliationRuns     prometheus.Counter
	ReconciliationFailures *prometheus.CounterVec
	ReconciliationPending  *prometheus.CounterVec

	// Executor entries
	ExecutorEntries *prometheus.CounterVec

	// Solana metrics
	RPCCallLatency   *prometheus.HistogramVec
	WatcherTriggers  prometheus.Counter
	WatcherReconnect prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Balance view cache
	BalanceCacheHits   prometheus.Counter
	BalanceCacheMisses prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "royalty_ledger"
	}

	return &Metrics{
		JobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "job_runs_total",
			Help:      "Total number of accrual job runs by terminal status",
		}, []string{"status"}),
		JobRunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "job_run_duration_seconds",
			Help:      "Accrual job run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		JobRunsLocked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "job_runs_locked_total",
			Help:      "Total number of runs skipped because another run held the lock",
		}),
		TokenOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "token_outcomes_total",
			Help:      "Total number of per-token outcomes within accrual runs",
		}, []string{"outcome"}),
		LamportsAccrued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "lamports_accrued_total",
			Help:      "Total lamports accrued by beneficiary kind",
		}, []string{"kind"}),
		SnapshotsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "snapshots_written_total",
			Help:      "Total number of fee snapshots committed",
		}),
		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful accrual run",
		}),

		ReconciliationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "runs_total",
			Help:      "Total number of reconciliation audits",
		}),
		ReconciliationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "failures_total",
			Help:      "Total number of confirmed check failures by check",
		}, []string{"check"}),
		ReconciliationPending: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "unconfirmed_failures_total",
			Help:      "Total number of failed checks not yet confirmed",
		}, []string{"check"}),

		ExecutorEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "executor_entries_total",
			Help:      "Total number of executor entries by type and result",
		}, []string{"entry_type", "result"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WatcherTriggers: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "watcher_triggers_total",
			Help:      "Total number of accrual runs triggered by fee account changes",
		}),
		WatcherReconnect: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "watcher_resubscribes_total",
			Help:      "Total number of fee account subscriptions re-established",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		BalanceCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "cache_hits_total",
			Help:      "Total number of balance reads served from cache",
		}),
		BalanceCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "cache_misses_total",
			Help:      "Total number of balance reads recomputed from the ledger",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordJobRun records a finished accrual run.
func RecordJobRun(status string, durationSeconds float64, finishedUnix int64) {
	DefaultMetrics.JobRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.JobRunDuration.Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulRun.Set(float64(finishedUnix))
	}
}

// RecordJobLocked counts a run skipped on a held lock.
func RecordJobLocked() {
	DefaultMetrics.JobRunsLocked.Inc()
}

// RecordTokenOutcome counts one token's outcome within a run.
func RecordTokenOutcome(outcome string) {
	DefaultMetrics.TokenOutcomes.WithLabelValues(outcome).Inc()
}

// RecordAccrual records a committed snapshot and its split.
func RecordAccrual(platformLamports, earnerLamports uint64) {
	DefaultMetrics.SnapshotsWritten.Inc()
	DefaultMetrics.LamportsAccrued.WithLabelValues("PLATFORM").Add(float64(platformLamports))
	DefaultMetrics.LamportsAccrued.WithLabelValues("EARNER").Add(float64(earnerLamports))
}

// RecordReconciliationRun counts an audit pass.
func RecordReconciliationRun() {
	DefaultMetrics.ReconciliationRuns.Inc()
}

// RecordCheckFailure counts a failed check. confirmed is false while a
// conservation mismatch has not yet persisted long enough.
func RecordCheckFailure(check string, confirmed bool) {
	if confirmed {
		DefaultMetrics.ReconciliationFailures.WithLabelValues(check).Inc()
		return
	}
	DefaultMetrics.ReconciliationPending.WithLabelValues(check).Inc()
}

// RecordExecutorEntry counts an executor entry; result is "recorded" or "duplicate".
func RecordExecutorEntry(entryType, result string) {
	DefaultMetrics.ExecutorEntries.WithLabelValues(entryType, result).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWatcherTrigger counts a run triggered by an account notification.
func RecordWatcherTrigger() {
	DefaultMetrics.WatcherTriggers.Inc()
}

// RecordWatcherResubscribe counts a re-established subscription.
func RecordWatcherResubscribe() {
	DefaultMetrics.WatcherReconnect.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordBalanceCache counts a balance view cache lookup.
func RecordBalanceCache(hit bool) {
	if hit {
		DefaultMetrics.BalanceCacheHits.Inc()
		return
	}
	DefaultMetrics.BalanceCacheMisses.Inc()
}
