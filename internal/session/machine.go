package session

import (
	"context"
	"sync"
	"time"

	"claimguard/internal/budget"
	claims "claimguard/internal/claims/models"
	"claimguard/internal/session/models"
	dErrors "claimguard/pkg/domain-errors"
	"claimguard/pkg/requestcontext"
)

// BudgetReader exposes the governor balances to the machine.
type BudgetReader interface {
	Snapshot() budget.Snapshot
}

// Ticket identifies one admitted claim until Complete is called for it.
type Ticket uint64

// Machine owns a session's lifecycle and aggregates. Every mutation goes
// through its methods and is serialized by mu. notify runs under mu so
// observers see snapshots in order; it must not block or call back into the
// machine.
type Machine struct {
	mu        sync.Mutex
	s         models.DemonstrationSession
	budget    BudgetReader
	maxClaims int

	nextTicket Ticket
	inFlight   map[Ticket]struct{}
	admitted   int
	capReached bool

	// running sums behind the presentation metrics
	results      int
	checksPassed int
	checksTotal  int

	ctx    context.Context
	cancel context.CancelFunc
	notify func(models.DemonstrationSession)
}

// NewMachine creates a ready session. Its context is cancelled when the
// session reaches a terminal state.
func NewMachine(id models.SessionID, executiveID string, startedAt time.Time, b BudgetReader, maxClaims int, notify func(models.DemonstrationSession)) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	if notify == nil {
		notify = func(models.DemonstrationSession) {}
	}
	m := &Machine{
		s: models.DemonstrationSession{
			ID:          id,
			ExecutiveID: executiveID,
			Status:      models.StatusReady,
			StartedAt:   startedAt,
			Decisions:   make(map[string]int),
		},
		budget:    b,
		maxClaims: maxClaims,
		inFlight:  make(map[Ticket]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		notify:    notify,
	}
	m.s.Budget = b.Snapshot()
	return m
}

// Context is cancelled on the transition to complete or error.
func (m *Machine) Context() context.Context {
	return m.ctx
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() models.DemonstrationSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Clone()
}

// Accepting reports whether Admit could succeed right now.
func (m *Machine) Accepting() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acceptingLocked()
}

func (m *Machine) acceptingLocked() error {
	if m.s.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeSessionNotAcceptingNew, "session is "+string(m.s.Status)).
			WithDetail("session_id", m.s.ID)
	}
	if m.maxClaims > 0 && m.admitted >= m.maxClaims {
		return dErrors.New(dErrors.CodeSessionLimitReached, "session claim limit reached").
			WithDetail("session_id", m.s.ID).
			WithDetail("max_claims", m.maxClaims)
	}
	return nil
}

// Admit registers a claim as in flight. The first admission moves the
// session from ready to processing.
func (m *Machine) Admit() (Ticket, error) {
	m.mu.Lock()
	if err := m.acceptingLocked(); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	m.nextTicket++
	t := m.nextTicket
	m.inFlight[t] = struct{}{}
	m.admitted++
	if m.s.Status == models.StatusReady {
		m.s.Status = models.StatusProcessing
	}
	m.s.ClaimsInFlight = len(m.inFlight)
	m.notify(m.s.Clone())
	m.mu.Unlock()
	return t, nil
}

// Complete is the single entry point for a finished claim. It folds the claim
// into the aggregates and, once the hard cap was reached and nothing is left
// in flight, completes the session. A claim admitted before a terminal
// transition still completes so its settled cost is reflected.
func (m *Machine) Complete(ctx context.Context, t Ticket, rec models.ClaimRecord) (models.DemonstrationSession, error) {
	now := requestcontext.Now(ctx)

	m.mu.Lock()
	if _, ok := m.inFlight[t]; !ok {
		m.mu.Unlock()
		return models.DemonstrationSession{}, dErrors.New(dErrors.CodeInvariantViolation, "claim completed without admission").
			WithDetail("claim_id", rec.ClaimID)
	}
	delete(m.inFlight, t)
	m.s.ClaimsInFlight = len(m.inFlight)
	if rec.AdmissionDenied {
		m.admitted--
	}

	if rec.Counted {
		m.s.ClaimsProcessed++
		n := time.Duration(m.s.ClaimsProcessed)
		m.s.AvgProcessingTime += (rec.ProcessingTime - m.s.AvgProcessingTime) / n
	}
	if rec.Status == claims.ClaimStatusRequiresHumanReview {
		m.s.HumanReviewCount++
	}
	if rec.Result != nil {
		m.s.Decisions[string(rec.Result.Decision)]++
		m.foldResultLocked(rec.Result)
	}
	m.refreshBudgetLocked()

	var changed bool
	if m.capReached && len(m.inFlight) == 0 {
		changed = m.finishLocked(models.StatusComplete, now, "")
	}
	snap := m.s.Clone()
	m.notify(snap.Clone())
	m.mu.Unlock()

	if changed {
		m.cancel()
	}
	return snap, nil
}

func (m *Machine) foldResultLocked(r *claims.ValidationResult) {
	m.results++
	n := float64(m.results)
	pm := &m.s.PresentationMetrics
	pm.CostReductionPct += (r.CostReductionEstimate - pm.CostReductionPct) / n
	pm.TimeReductionPct += (r.BusinessMetrics.ProcessingTimeReductionPct - pm.TimeReductionPct) / n
	pm.AccuracyImprovementPct += (r.BusinessMetrics.AccuracyImprovementPct - pm.AccuracyImprovementPct) / n

	m.checksTotal += len(r.ComplianceChecks)
	m.checksPassed += r.PassedChecks()
	if m.checksTotal > 0 {
		pm.ComplianceScore = float64(m.checksPassed) / float64(m.checksTotal) * 100
	}
}

// refreshBudgetLocked copies the governor balances. Committed spend only
// grows, so the session total never moves backwards.
func (m *Machine) refreshBudgetLocked() {
	b := m.budget.Snapshot()
	m.s.Budget = b
	if b.Committed > m.s.TotalCostUSD {
		m.s.TotalCostUSD = b.Committed
	}
}

// BudgetEvent implements budget.EventSink. A hard cap with nothing in flight
// completes the session; an inconsistency fails it.
func (m *Machine) BudgetEvent(ctx context.Context, ev budget.Event) {
	m.mu.Lock()
	m.s.BudgetAlerts = append(m.s.BudgetAlerts, ev)
	m.refreshBudgetLocked()

	var changed bool
	switch ev.Kind {
	case budget.EventHardCapReached:
		m.capReached = true
		if len(m.inFlight) == 0 {
			changed = m.finishLocked(models.StatusComplete, ev.OccurredAt, "")
		}
	case budget.EventInconsistency:
		changed = m.finishLocked(models.StatusError, ev.OccurredAt, "budget governor inconsistency")
	}
	m.notify(m.s.Clone())
	m.mu.Unlock()

	if changed {
		m.cancel()
	}
}

// Close completes the session on request.
func (m *Machine) Close(ctx context.Context) (models.DemonstrationSession, error) {
	return m.terminate(ctx, models.StatusComplete, "")
}

// Fail moves the session to error.
func (m *Machine) Fail(ctx context.Context, reason string) (models.DemonstrationSession, error) {
	return m.terminate(ctx, models.StatusError, reason)
}

func (m *Machine) terminate(ctx context.Context, status models.Status, reason string) (models.DemonstrationSession, error) {
	m.mu.Lock()
	if m.s.Status.IsTerminal() {
		snap := m.s.Clone()
		m.mu.Unlock()
		return snap, dErrors.New(dErrors.CodeInvalidState, "session already "+string(snap.Status)).
			WithDetail("session_id", snap.ID)
	}
	m.refreshBudgetLocked()
	m.finishLocked(status, requestcontext.Now(ctx), reason)
	snap := m.s.Clone()
	m.notify(snap.Clone())
	m.mu.Unlock()

	m.cancel()
	return snap, nil
}

// finishLocked applies a terminal transition once.
func (m *Machine) finishLocked(status models.Status, at time.Time, reason string) bool {
	if m.s.Status.IsTerminal() {
		return false
	}
	m.s.Status = status
	m.s.CompletedAt = &at
	m.s.ErrorReason = reason
	return true
}

// SetInfrastructure records the latest health probe.
func (m *Machine) SetInfrastructure(status models.InfrastructureStatus) {
	m.mu.Lock()
	m.s.InfrastructureStatus = status
	m.mu.Unlock()
}
