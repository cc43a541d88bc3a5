package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	ledgerImbalanceCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	policyCheckCounter     *prometheus.CounterVec
	transferCounter        *prometheus.CounterVec
	decisionWriteCounter   *prometheus.CounterVec
	limitResetCounter      prometheus.Counter
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of reconciliation findings by kind",
		}, []string{"kind"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		policyCheckCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_checks_total",
			Help: "Limits checks by outcome",
		}, []string{"outcome"})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Payment executions by result",
		}, []string{"result"})

		decisionWriteCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decision_ledger_writes_total",
			Help: "Decision ledger appends by result",
		}, []string{"result"})

		limitResetCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daily_limit_resets_total",
			Help: "Limits rows restored to their daily limit on day rollover",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerImbalanceCounter,
			idempotencyCounter,
			policyCheckCounter,
			transferCounter,
			decisionWriteCounter,
			limitResetCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerImbalance(kind string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(kind).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

// IncrementPolicyCheck counts a limits check; outcome is approved or rejected.
func IncrementPolicyCheck(outcome string) {
	if policyCheckCounter == nil {
		return
	}
	policyCheckCounter.WithLabelValues(outcome).Inc()
}

func IncrementTransfer(result string) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(result).Inc()
}

func IncrementDecisionWrite(result string) {
	if decisionWriteCounter == nil {
		return
	}
	decisionWriteCounter.WithLabelValues(result).Inc()
}

func AddLimitResets(n int) {
	if limitResetCounter == nil || n <= 0 {
		return
	}
	limitResetCounter.Add(float64(n))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
