// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Watcher metrics
	TradeEventsProcessed *prometheus.CounterVec
	TradeEventsSkipped   *prometheus.CounterVec
	WatcherReconnects    *prometheus.CounterVec
	ProviderErrors       *prometheus.CounterVec
	LastBlockProcessed   prometheus.Gauge

	// Ingestion metrics
	TradesIngested  prometheus.Counter
	DuplicateTrades prometheus.Counter
	StoreRetries    prometheus.Counter

	// Lifecycle metrics
	WhalesDiscovered  prometheus.Counter
	StatusTransitions *prometheus.CounterVec
	ScoreRecomputes   *prometheus.CounterVec

	// Decision metrics
	IntentsCreated    *prometheus.CounterVec
	ExecutionFailures prometheus.Counter

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "whale_allocator"
	}

	return &Metrics{
		TradeEventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "trade_events_processed_total",
			Help:      "Total number of trade events processed by source",
		}, []string{"source"}),
		TradeEventsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "trade_events_skipped_total",
			Help:      "Total number of trade events skipped by reason",
		}, []string{"reason"}),
		WatcherReconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "reconnects_total",
			Help:      "Total number of watcher reconnects by mode",
		}, []string{"mode"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "provider_errors_total",
			Help:      "Total number of provider errors by method",
		}, []string{"method"}),
		LastBlockProcessed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "last_block_processed",
			Help:      "Highest block number fully processed",
		}),

		TradesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_ingested_total",
			Help:      "Total number of trades appended to whale histories",
		}),
		DuplicateTrades: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicate_trades_total",
			Help:      "Total number of trades dropped as duplicates",
		}),
		StoreRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "store_retries_total",
			Help:      "Total number of retried store writes",
		}),

		WhalesDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "whales_discovered_total",
			Help:      "Total number of new whale records created",
		}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "status_transitions_total",
			Help:      "Total number of status transitions by from/to",
		}, []string{"from", "to"}),
		ScoreRecomputes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "score_recomputes_total",
			Help:      "Total number of score recomputations by resulting status",
		}, []string{"status"}),

		IntentsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "intents_created_total",
			Help:      "Total number of copy-trade intents by mode",
		}, []string{"mode"}),
		ExecutionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "execution_failures_total",
			Help:      "Total number of failed executor calls",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ethereum",
			Name:      "rpc_call_latency_seconds",
			Help:      "Ethereum RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful trade ingestion",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventProcessed increments the processed counter for a source.
func RecordEventProcessed(source string) {
	DefaultMetrics.TradeEventsProcessed.WithLabelValues(source).Inc()
}

// RecordEventSkipped increments the skipped counter for a reason.
func RecordEventSkipped(reason string) {
	DefaultMetrics.TradeEventsSkipped.WithLabelValues(reason).Inc()
}

// RecordReconnect increments the reconnect counter for a watcher mode.
func RecordReconnect(mode string) {
	DefaultMetrics.WatcherReconnects.WithLabelValues(mode).Inc()
}

// RecordProviderError increments the provider error counter for a method.
func RecordProviderError(method string) {
	DefaultMetrics.ProviderErrors.WithLabelValues(method).Inc()
}

// UpdateLastBlock updates the highest fully processed block gauge.
func UpdateLastBlock(block int64) {
	DefaultMetrics.LastBlockProcessed.Set(float64(block))
}

// RecordTradeIngested increments ingested trades and stamps the health gauge.
func RecordTradeIngested(unixSeconds float64) {
	DefaultMetrics.TradesIngested.Inc()
	DefaultMetrics.LastSuccessfulIngestion.Set(unixSeconds)
}

// RecordDuplicateTrade increments the duplicate counter.
func RecordDuplicateTrade() {
	DefaultMetrics.DuplicateTrades.Inc()
}

// RecordStoreRetry increments the store retry counter.
func RecordStoreRetry() {
	DefaultMetrics.StoreRetries.Inc()
}

// RecordWhaleDiscovered increments the discovery counter.
func RecordWhaleDiscovered() {
	DefaultMetrics.WhalesDiscovered.Inc()
}

// RecordStatusTransition increments the transition counter.
func RecordStatusTransition(from, to string) {
	DefaultMetrics.StatusTransitions.WithLabelValues(from, to).Inc()
}

// RecordScoreRecompute increments the recompute counter.
func RecordScoreRecompute(status string) {
	DefaultMetrics.ScoreRecomputes.WithLabelValues(status).Inc()
}

// RecordIntent increments the intent counter for a mode.
func RecordIntent(mode string) {
	DefaultMetrics.IntentsCreated.WithLabelValues(mode).Inc()
}

// RecordExecutionFailure increments the execution failure counter.
func RecordExecutionFailure() {
	DefaultMetrics.ExecutionFailures.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
