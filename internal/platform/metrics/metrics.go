package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Consent lifecycle
	ConsentsRequested   *prometheus.CounterVec
	ConsentsGranted     *prometheus.CounterVec
	ConsentsDenied      *prometheus.CounterVec
	ConsentsRevoked     *prometheus.CounterVec
	VerificationResults *prometheus.CounterVec
	CascadeDeletions    prometheus.Counter
	CascadeRollbacks    prometheus.Counter

	// DSR lifecycle
	DSRSubmitted   *prometheus.CounterVec
	DSRCompleted   *prometheus.CounterVec
	DSRRejected    *prometheus.CounterVec
	DSRRetried     prometheus.Counter
	DSROpenGauge   prometheus.Gauge
	SLAWarnings    prometheus.Counter
	DSRProcessTime *prometheus.HistogramVec

	EndpointLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		ConsentsRequested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_consents_requested_total",
			Help: "Total number of consent requests created, labeled by consent type",
		}, []string{"type"}),
		ConsentsGranted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_consents_granted_total",
			Help: "Total number of consents granted, labeled by consent type",
		}, []string{"type"}),
		ConsentsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_consents_denied_total",
			Help: "Total number of consents denied by a guardian, labeled by consent type",
		}, []string{"type"}),
		ConsentsRevoked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_consents_revoked_total",
			Help: "Total number of consents revoked, labeled by consent type",
		}, []string{"type"}),
		VerificationResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_verifications_total",
			Help: "Verification attempts, labeled by method and outcome",
		}, []string{"method", "outcome"}),
		CascadeDeletions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentry_cascade_deletions_total",
			Help: "Total number of cascading deletion runs that committed",
		}),
		CascadeRollbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentry_cascade_rollbacks_total",
			Help: "Total number of cascading deletion runs rolled back",
		}),
		DSRSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_dsr_submitted_total",
			Help: "Total data subject requests submitted, labeled by type",
		}, []string{"type"}),
		DSRCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_dsr_completed_total",
			Help: "Total data subject requests completed, labeled by type",
		}, []string{"type"}),
		DSRRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_dsr_rejected_total",
			Help: "Total data subject requests rejected or withdrawn, labeled by type",
		}, []string{"type"}),
		DSRRetried: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentry_dsr_retries_total",
			Help: "Total processing attempts returned to the retry-eligible state",
		}),
		DSROpenGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "consentry_dsr_open",
			Help: "Current number of pending or processing data subject requests",
		}),
		SLAWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentry_sla_warnings_total",
			Help: "Total SLA deadline warnings emitted",
		}),
		DSRProcessTime: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consentry_dsr_process_seconds",
			Help:    "Time spent processing a data subject request",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consentry_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}
