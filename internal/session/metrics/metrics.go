package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for session processing.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	ReviewReasons  *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	ClaimDuration  prometheus.Histogram
	ActiveSessions prometheus.Gauge
}

// New creates and registers session metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claimguard_claim_decisions_total",
			Help: "Validation results by decision",
		}, []string{"decision"}),
		ReviewReasons: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claimguard_claim_review_reasons_total",
			Help: "Claims routed to human review without a result, by reason",
		}, []string{"reason"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claimguard_claim_rejections_total",
			Help: "Claims rejected before processing, by error code",
		}, []string{"code"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claimguard_session_transitions_total",
			Help: "Session status transitions by target status",
		}, []string{"status"}),
		ClaimDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimguard_claim_processing_seconds",
			Help:    "End-to-end processing time per claim",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 180},
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "claimguard_sessions_active",
			Help: "Sessions that are ready or processing",
		}),
	}
}

func (m *Metrics) IncDecision(decision string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncReviewReason(reason string) {
	if m == nil {
		return
	}
	m.ReviewReasons.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncRejection(code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(code).Inc()
}

// ObserveTransition counts a transition and keeps the active gauge in step.
func (m *Metrics) ObserveTransition(status string, terminal bool) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status).Inc()
	if terminal {
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues("ready").Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) ObserveClaimDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.ClaimDuration.Observe(d.Seconds())
}
