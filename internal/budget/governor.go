// Package budget tracks cumulative AI spend for one session and authorizes each
// claim's spend before any external call is made.
//
// A claim reserves its estimated cost, the orchestrator runs, and the claim
// settles exactly once with the cost actually incurred. The committed total
// never exceeds the hard cap: reservations that would breach it are denied and
// any overrun at settlement is clamped and reported.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"claimguard/internal/budget/metrics"
	"claimguard/internal/claims/models"
	"claimguard/internal/platform/logger"
	dErrors "claimguard/pkg/domain-errors"
	"claimguard/pkg/requestcontext"
)

// Allowance is a granted reservation. Its token settles exactly once.
type Allowance struct {
	Token     uuid.UUID
	ClaimID   models.ClaimID
	Reserved  Micros
	GrantedAt time.Time
}

// ReservedUSD returns the reserved amount in dollars.
func (a *Allowance) ReservedUSD() float64 { return a.Reserved.USD() }

// Settlement is the outcome of settling an allowance.
type Settlement struct {
	Token     uuid.UUID
	ClaimID   models.ClaimID
	Actual    Micros
	Charged   Micros
	Overrun   Micros
	Released  bool
	Duplicate bool
	Snapshot  Snapshot
}

// Snapshot is a consistent view of the governor balances.
type Snapshot struct {
	HardCap        float64 `json:"hard_cap_usd"`
	Warning        float64 `json:"warning_threshold_usd"`
	Committed      float64 `json:"committed_usd"`
	Outstanding    float64 `json:"outstanding_usd"`
	Remaining      float64 `json:"remaining_usd"`
	UtilizationPct float64 `json:"utilization_pct"`
	WarningRaised  bool    `json:"warning_raised"`
	HardCapReached bool    `json:"hard_cap_reached"`
	InFlight       int     `json:"in_flight"`
	Failed         bool    `json:"failed"`
}

// Governor is the single source of truth for session spend. All state changes
// are serialized by mu; events are delivered after mu is released.
type Governor struct {
	mu      sync.Mutex
	hardCap Micros
	warning Micros

	committed   Micros
	outstanding map[uuid.UUID]*Allowance
	settled     map[uuid.UUID]*Settlement
	warned      bool
	capped      bool
	failed      bool

	sink    EventSink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Governor.
type Option func(*Governor)

// WithEventSink sets the receiver of threshold events.
func WithEventSink(sink EventSink) Option {
	return func(g *Governor) {
		g.sink = sink
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Governor) {
		g.logger = l
	}
}

// WithMetrics sets Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Governor) {
		g.metrics = m
	}
}

// New creates a governor for the given limits in USD.
func New(hardCapUSD, warningUSD float64, opts ...Option) (*Governor, error) {
	if hardCapUSD <= 0 {
		return nil, fmt.Errorf("hard cap must be positive, got %.2f", hardCapUSD)
	}
	if warningUSD <= 0 || warningUSD >= hardCapUSD {
		return nil, fmt.Errorf("warning threshold %.2f must be positive and below hard cap %.2f", warningUSD, hardCapUSD)
	}
	g := &Governor{
		hardCap:     FromUSD(hardCapUSD),
		warning:     FromUSD(warningUSD),
		outstanding: make(map[uuid.UUID]*Allowance),
		settled:     make(map[uuid.UUID]*Settlement),
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Reserve authorizes estimatedUSD of spend for a claim. It is denied with
// CodeBudgetExceeded when committed plus outstanding plus the estimate would
// exceed the hard cap, or once the hard cap has been reached.
func (g *Governor) Reserve(ctx context.Context, claimID models.ClaimID, estimatedUSD float64) (*Allowance, error) {
	if estimatedUSD < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "estimated cost must not be negative")
	}
	estimate := FromUSD(estimatedUSD)

	g.mu.Lock()
	if g.failed {
		g.mu.Unlock()
		g.metrics.ObserveReservation("halted")
		return nil, dErrors.New(dErrors.CodeBudgetInconsistency, "budget governor is in a failed state")
	}
	if g.capped {
		g.mu.Unlock()
		g.metrics.ObserveReservation("halted")
		return nil, dErrors.New(dErrors.CodeBudgetExceeded, "hard cap reached; no new spend is authorized").
			WithDetail("claim_id", claimID)
	}
	pending := g.outstandingLocked()
	if g.committed+pending+estimate > g.hardCap {
		remaining := g.hardCap - g.committed - pending
		g.mu.Unlock()
		g.metrics.ObserveReservation("exceeded")
		g.logger.WarnContext(ctx, "budget reservation denied",
			"claim_id", claimID,
			"estimate_usd", estimate.USD(),
			"remaining_usd", remaining.USD(),
		)
		return nil, dErrors.New(dErrors.CodeBudgetExceeded,
			fmt.Sprintf("estimated cost %.2f exceeds remaining budget %.2f", estimate.USD(), remaining.USD())).
			WithDetail("claim_id", claimID)
	}
	a := &Allowance{
		Token:     uuid.New(),
		ClaimID:   claimID,
		Reserved:  estimate,
		GrantedAt: requestcontext.Now(ctx),
	}
	g.outstanding[a.Token] = a
	committed, outstanding := g.committed, g.outstandingLocked()
	g.mu.Unlock()

	g.metrics.ObserveReservation("granted")
	g.metrics.SetBalances(committed.USD(), outstanding.USD())
	cp := *a
	return &cp, nil
}

// Settle records the actual cost for an allowance. It is idempotent per token:
// a repeated call returns the first settlement marked Duplicate and charges
// nothing. An unknown token is an inconsistency and fails the governor.
func (g *Governor) Settle(ctx context.Context, allowance *Allowance, actualUSD float64) (*Settlement, error) {
	if allowance == nil {
		return nil, dErrors.New(dErrors.CodeBudgetInconsistency, "settle called without an allowance")
	}
	if actualUSD < 0 {
		actualUSD = 0
	}
	actual := FromUSD(actualUSD)
	now := requestcontext.Now(ctx)

	g.mu.Lock()
	if prev, ok := g.settled[allowance.Token]; ok {
		dup := *prev
		dup.Duplicate = true
		g.mu.Unlock()
		g.metrics.ObserveSettlement("duplicate")
		return &dup, nil
	}
	held, ok := g.outstanding[allowance.Token]
	if !ok {
		g.failed = true
		committed := g.committed
		g.mu.Unlock()
		g.metrics.ObserveSettlement("unknown")
		g.logger.ErrorContext(ctx, "settlement for unknown allowance",
			"claim_id", allowance.ClaimID,
			"token", allowance.Token,
		)
		g.emit(ctx, []Event{{Kind: EventInconsistency, Committed: committed.USD(), ClaimID: string(allowance.ClaimID), OccurredAt: now}})
		return nil, dErrors.New(dErrors.CodeBudgetInconsistency, "settlement for unknown allowance").
			WithDetail("claim_id", allowance.ClaimID)
	}
	delete(g.outstanding, held.Token)

	headroom := g.hardCap - g.committed - g.outstandingLocked()
	if headroom < 0 {
		headroom = 0
	}
	charged := actual
	if charged > headroom {
		charged = headroom
	}
	overrun := actual - charged
	g.committed += charged

	s := &Settlement{
		Token:    held.Token,
		ClaimID:  held.ClaimID,
		Actual:   actual,
		Charged:  charged,
		Overrun:  overrun,
		Released: actual == 0,
	}
	var events []Event
	if overrun > 0 {
		events = append(events, Event{Kind: EventCostOverrun, Committed: g.committed.USD(), Threshold: g.hardCap.USD(),
			Amount: overrun.USD(), ClaimID: string(held.ClaimID), OccurredAt: now})
	}
	if !g.warned && g.committed >= g.warning {
		g.warned = true
		events = append(events, Event{Kind: EventWarningThresholdCrossed, Committed: g.committed.USD(),
			Threshold: g.warning.USD(), ClaimID: string(held.ClaimID), OccurredAt: now})
	}
	if !g.capped && g.committed >= g.hardCap {
		g.capped = true
		events = append(events, Event{Kind: EventHardCapReached, Committed: g.committed.USD(),
			Threshold: g.hardCap.USD(), ClaimID: string(held.ClaimID), OccurredAt: now})
	}
	s.Snapshot = g.snapshotLocked()
	g.settled[held.Token] = s
	out := *s
	g.mu.Unlock()

	switch {
	case s.Released:
		g.metrics.ObserveSettlement("released")
	default:
		g.metrics.ObserveSettlement("charged")
	}
	g.metrics.AddOverrun(overrun.USD())
	g.metrics.SetBalances(out.Snapshot.Committed, out.Snapshot.Outstanding)
	g.logger.InfoContext(ctx, "budget settled",
		"claim_id", held.ClaimID,
		"reserved_usd", held.Reserved.USD(),
		"charged_usd", charged.USD(),
		"overrun_usd", overrun.USD(),
		"committed_usd", out.Snapshot.Committed,
	)
	g.emit(ctx, events)
	return &out, nil
}

// Snapshot returns the current balances.
func (g *Governor) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

// HardCapReached reports whether committed spend has hit the cap.
func (g *Governor) HardCapReached() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.capped
}

// Failed reports whether an inconsistency latched the governor.
func (g *Governor) Failed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed
}

func (g *Governor) outstandingLocked() Micros {
	var total Micros
	for _, a := range g.outstanding {
		total += a.Reserved
	}
	return total
}

func (g *Governor) snapshotLocked() Snapshot {
	outstanding := g.outstandingLocked()
	remaining := g.hardCap - g.committed - outstanding
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		HardCap:        g.hardCap.USD(),
		Warning:        g.warning.USD(),
		Committed:      g.committed.USD(),
		Outstanding:    outstanding.USD(),
		Remaining:      remaining.USD(),
		UtilizationPct: float64(g.committed) / float64(g.hardCap) * 100,
		WarningRaised:  g.warned,
		HardCapReached: g.capped,
		InFlight:       len(g.outstanding),
		Failed:         g.failed,
	}
}

func (g *Governor) emit(ctx context.Context, events []Event) {
	for _, e := range events {
		g.metrics.IncEvent(string(e.Kind))
		g.logger.WarnContext(ctx, "budget event",
			"kind", e.Kind,
			"committed_usd", e.Committed,
			"threshold_usd", e.Threshold,
			"claim_id", e.ClaimID,
		)
		if g.sink != nil {
			g.sink.BudgetEvent(ctx, e)
		}
	}
}
