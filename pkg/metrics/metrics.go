package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Erasure request metrics
	ErasureRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erasure_requests_total",
			Help: "Total number of erasure requests by outcome",
		},
		[]string{"scope", "outcome"}, // outcome: scheduled, blocked_by_legal_hold, rejected
	)

	ErasureExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erasure_executions_total",
			Help: "Total number of erasure executions by result",
		},
		[]string{"result"}, // success, failure, invalid_status
	)

	ErasureExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "erasure_execution_duration_seconds",
			Help:    "Erasure execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	KeysDestroyedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "erasure_keys_destroyed_total",
			Help: "Total number of encryption keys destroyed",
		},
	)

	CertificatesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "erasure_certificates_issued_total",
			Help: "Total number of erasure certificates issued",
		},
	)

	CertificatesPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "erasure_certificates_purged_total",
			Help: "Total number of expired certificates purged",
		},
	)

	// Legal hold metrics
	LegalHoldsActiveGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "erasure_legal_holds_active",
			Help: "Number of currently active legal holds",
		},
	)

	LegalHoldBlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "erasure_legal_hold_blocks_total",
			Help: "Total number of erasure requests blocked by a legal hold",
		},
	)

	// Verification metrics
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erasure_verifications_total",
			Help: "Total number of erasure verifications by result",
		},
		[]string{"verified"}, // true, false
	)

	VerificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "erasure_verification_duration_seconds",
			Help:    "Verification run duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		},
	)

	// Scheduler metrics
	SchedulerBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "erasure_scheduler_batches_total",
			Help: "Total number of scheduler poll batches processed",
		},
	)

	SchedulerBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "erasure_scheduler_batch_size",
			Help:    "Number of due requests picked up per poll",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)

	SchedulerItemFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "erasure_scheduler_item_failures_total",
			Help: "Total number of per-item failures inside scheduler batches",
		},
	)

	// External dependency metrics
	KMSCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erasure_kms_calls_total",
			Help: "Total number of key management provider calls",
		},
		[]string{"operation", "status"},
	)
)
