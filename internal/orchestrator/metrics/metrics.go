package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for AI calls.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	CostUSD  *prometheus.CounterVec
	Outcomes *prometheus.CounterVec
}

// New creates and registers orchestrator metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claimguard_ai_attempts_total",
			Help: "AI call attempts by service and result category",
		}, []string{"service", "result"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claimguard_ai_attempt_duration_seconds",
			Help:    "AI call attempt latency by service",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 90},
		}, []string{"service"}),
		CostUSD: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claimguard_ai_cost_usd_total",
			Help: "Metered AI cost by service, including failed attempts",
		}, []string{"service"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claimguard_ai_claim_outcomes_total",
			Help: "Per-claim orchestration outcomes",
		}, []string{"outcome"}),
	}
}

// ObserveAttempt records one attempt.
func (m *Metrics) ObserveAttempt(service, result string, d time.Duration, costUSD float64) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(service, result).Inc()
	m.Latency.WithLabelValues(service).Observe(d.Seconds())
	if costUSD > 0 {
		m.CostUSD.WithLabelValues(service).Add(costUSD)
	}
}

// IncOutcome records a per-claim outcome: complete, partial, unavailable or cancelled.
func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome).Inc()
}
