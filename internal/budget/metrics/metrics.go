package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the budget governor.
type Metrics struct {
	CommittedUSD   prometheus.Gauge
	OutstandingUSD prometheus.Gauge
	Reservations   *prometheus.CounterVec
	Settlements    *prometheus.CounterVec
	OverrunUSD     prometheus.Counter
	Events         *prometheus.CounterVec
}

// New creates and registers budget metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CommittedUSD: f.NewGauge(prometheus.GaugeOpts{
			Name: "claimguard_budget_committed_usd",
			Help: "Settled AI spend for the most recently updated session",
		}),
		OutstandingUSD: f.NewGauge(prometheus.GaugeOpts{
			Name: "claimguard_budget_outstanding_usd",
			Help: "Reserved but unsettled AI spend for the most recently updated session",
		}),
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claimguard_budget_reservations_total",
			Help: "Reservation requests by outcome",
		}, []string{"outcome"}),
		Settlements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claimguard_budget_settlements_total",
			Help: "Settlements by outcome",
		}, []string{"outcome"}),
		OverrunUSD: f.NewCounter(prometheus.CounterOpts{
			Name: "claimguard_budget_overrun_usd_total",
			Help: "Actual cost that could not be charged because the hard cap was reached",
		}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claimguard_budget_events_total",
			Help: "Threshold events emitted by the governor",
		}, []string{"kind"}),
	}
}

// ObserveReservation records a reservation outcome: granted, exceeded or halted.
func (m *Metrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.Reservations.WithLabelValues(outcome).Inc()
}

// ObserveSettlement records a settlement outcome: charged, released, duplicate or unknown.
func (m *Metrics) ObserveSettlement(outcome string) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(outcome).Inc()
}

// SetBalances updates the committed and outstanding gauges.
func (m *Metrics) SetBalances(committedUSD, outstandingUSD float64) {
	if m == nil {
		return
	}
	m.CommittedUSD.Set(committedUSD)
	m.OutstandingUSD.Set(outstandingUSD)
}

// AddOverrun adds uncharged overrun.
func (m *Metrics) AddOverrun(usd float64) {
	if m == nil {
		return
	}
	m.OverrunUSD.Add(usd)
}

// IncEvent counts an emitted event.
func (m *Metrics) IncEvent(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
}
