package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the biometrics server.
type Metrics struct {
	EnrollmentsCompleted prometheus.Counter
	SimilarityChecks     *prometheus.CounterVec
	LedgerPublishFailed  prometheus.Counter
	EnrollmentLatency    prometheus.Histogram
	SimilarityLatency    prometheus.Histogram
	MatcherLatency       prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EnrollmentsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "biometrics_enrollments_completed_total",
			Help: "Total number of completed humanity verifications",
		}),
		SimilarityChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "biometrics_similarity_checks_total",
			Help: "Total number of similarity checks by classified result",
		}, []string{"result"}),
		LedgerPublishFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "biometrics_ledger_publish_failed_total",
			Help: "Total number of best-effort ledger publishes that failed",
		}),
		EnrollmentLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "biometrics_enrollment_duration_seconds",
			Help:    "End to end enrollment latency",
			Buckets: prometheus.DefBuckets,
		}),
		SimilarityLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "biometrics_similarity_duration_seconds",
			Help:    "End to end similarity check latency",
			Buckets: prometheus.DefBuckets,
		}),
		MatcherLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "biometrics_matcher_duration_seconds",
			Help:    "External matcher invocation latency",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// IncrementEnrollments increments the completed enrollments counter by 1.
func (m *Metrics) IncrementEnrollments() {
	m.EnrollmentsCompleted.Inc()
}

// IncrementSimilarityChecks increments the similarity check counter for a result.
func (m *Metrics) IncrementSimilarityChecks(result string) {
	m.SimilarityChecks.WithLabelValues(result).Inc()
}

// IncrementLedgerPublishFailed increments the ledger failure counter by 1.
func (m *Metrics) IncrementLedgerPublishFailed() {
	m.LedgerPublishFailed.Inc()
}

// ObserveEnrollmentLatency records an enrollment duration in seconds.
func (m *Metrics) ObserveEnrollmentLatency(seconds float64) {
	m.EnrollmentLatency.Observe(seconds)
}

// ObserveSimilarityLatency records a similarity check duration in seconds.
func (m *Metrics) ObserveSimilarityLatency(seconds float64) {
	m.SimilarityLatency.Observe(seconds)
}

// ObserveMatcherLatency records an external matcher duration in seconds.
func (m *Metrics) ObserveMatcherLatency(seconds float64) {
	m.MatcherLatency.Observe(seconds)
}
