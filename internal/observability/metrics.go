package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	transitionCounter      *prometheus.CounterVec
	bidCounter             *prometheus.CounterVec
	settlementCounter      *prometheus.CounterVec
	feesCollectedCounter   *prometheus.CounterVec
	payoutCounter          *prometheus.CounterVec
	eventCounter           *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	manualReviewQueueGauge prometheus.Gauge
	manualReviewCounter    *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
	sweptRecordsCounter    prometheus.Counter
	reconcileMismatch      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_transitions_total",
			Help: "Committed lifecycle transitions",
		}, []string{"kind", "from", "to"})

		bidCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_bids_total",
			Help: "Bid submissions by outcome",
		}, []string{"outcome"})

		settlementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_settlements_total",
			Help: "Completed settlements",
		}, []string{"kind", "outcome"})

		feesCollectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_fees_collected_total",
			Help: "Fees accrued in smallest asset units (approximate; the ledger is authoritative)",
		}, []string{"asset"})

		payoutCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_total",
			Help: "Payout dispatch outcomes",
		}, []string{"result"})

		eventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Event sink deliveries",
		}, []string{"result"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		manualReviewQueueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payout_manual_review_queue_size",
			Help: "Current number of payouts waiting in manual review",
		})

		manualReviewCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_manual_review_transitions_total",
			Help: "Manual review transitions and resolutions",
		}, []string{"action"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		sweptRecordsCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "store_swept_records_total",
			Help: "Expired records physically removed",
		})

		reconcileMismatch = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_mismatch_total",
			Help: "Inconsistencies found by payout reconciliation",
		}, []string{"check"})

		prometheus.MustRegister(
			httpDurationHistogram,
			transitionCounter,
			bidCounter,
			settlementCounter,
			feesCollectedCounter,
			payoutCounter,
			eventCounter,
			idempotencyCounter,
			manualReviewQueueGauge,
			manualReviewCounter,
			workerRunCounter,
			sweptRecordsCounter,
			reconcileMismatch,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementTransition(kind domain.RecordKind, from, to domain.State) {
	if transitionCounter == nil {
		return
	}
	transitionCounter.WithLabelValues(string(kind), string(from), string(to)).Inc()
}

func IncrementBid(outcome string) {
	if bidCounter == nil {
		return
	}
	bidCounter.WithLabelValues(outcome).Inc()
}

func IncrementSettlement(kind domain.RecordKind, outcome string) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.WithLabelValues(string(kind), outcome).Inc()
}

func AddFeesCollected(asset domain.AssetRef, fee domain.Amount) {
	if feesCollectedCounter == nil || fee.IsZero() {
		return
	}
	f, _ := fee.ToDecimal().Float64()
	feesCollectedCounter.WithLabelValues(string(asset)).Add(f)
}

func IncrementPayout(result string) {
	if payoutCounter == nil {
		return
	}
	payoutCounter.WithLabelValues(result).Inc()
}

func IncrementEventPublish(result string, n int) {
	if eventCounter == nil {
		return
	}
	eventCounter.WithLabelValues(result).Add(float64(n))
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func SetManualReviewQueueSize(size int64) {
	if manualReviewQueueGauge == nil {
		return
	}
	manualReviewQueueGauge.Set(float64(size))
}

func IncrementManualReviewTransition(action string) {
	if manualReviewCounter == nil {
		return
	}
	manualReviewCounter.WithLabelValues(action).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func AddSweptRecords(n int) {
	if sweptRecordsCounter == nil || n <= 0 {
		return
	}
	sweptRecordsCounter.Add(float64(n))
}

func IncrementReconciliationMismatch(check string) {
	if reconcileMismatch == nil {
		return
	}
	reconcileMismatch.WithLabelValues(check).Inc()
}
