// Package session coordinates demonstration sessions: it admits claims,
// reserves budget, runs the AI calls, synthesizes results and folds each
// finished claim into the session aggregates.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"claimguard/internal/budget"
	budgetmetrics "claimguard/internal/budget/metrics"
	"claimguard/internal/claims/intake"
	claims "claimguard/internal/claims/models"
	"claimguard/internal/orchestrator"
	orchmetrics "claimguard/internal/orchestrator/metrics"
	"claimguard/internal/platform/logger"
	"claimguard/internal/session/metrics"
	"claimguard/internal/session/models"
	"claimguard/internal/store"
	"claimguard/internal/synthesis"
	dErrors "claimguard/pkg/domain-errors"
	"claimguard/pkg/platform/audit"
	"claimguard/pkg/platform/circuit"
	"claimguard/pkg/platform/sentinel"
	"claimguard/pkg/requestcontext"
)

// maxSessionAttempts bounds the per-day disambiguator in session ids.
const maxSessionAttempts = 99

// fallbackSegment names sessions whose executive id has no usable characters.
const fallbackSegment = "EXEC"

// Config carries the per-session limits and the settings handed to each
// session's governor, orchestrator and synthesizer.
type Config struct {
	HardCapUSD                float64
	WarningUSD                float64
	MaxClaims                 int
	MaxConsecutiveUnavailable int
	BatchConcurrency          int
	Orchestrator              orchestrator.Config
	Synthesis                 synthesis.Config
}

// DefaultConfig returns a $50 cap with a $45 warning and ten claims per session.
func DefaultConfig() Config {
	return Config{
		HardCapUSD:                50,
		WarningUSD:                45,
		MaxClaims:                 10,
		MaxConsecutiveUnavailable: 3,
		BatchConcurrency:          4,
		Orchestrator:              orchestrator.DefaultConfig(),
		Synthesis:                 synthesis.DefaultConfig(),
	}
}

// Estimator returns the amount to reserve for a claim given the maximum
// number of attempts per AI call.
type Estimator func(claim *claims.Claim, attempts int) float64

// Prober reports infrastructure health for session snapshots.
type Prober interface {
	Status(ctx context.Context) models.InfrastructureStatus
}

// ClaimOutcome is the terminal state of one submitted claim together with the
// session snapshot taken when the claim was folded in. Cause explains why a
// claim went to human review without a result.
type ClaimOutcome struct {
	Claim   *claims.Claim               `json:"claim"`
	Result  *claims.ValidationResult    `json:"result,omitempty"`
	Session models.DemonstrationSession `json:"session"`
	Cause   error                       `json:"-"`
}

// BatchItem pairs a batch input with its outcome or rejection.
type BatchItem struct {
	Index   int
	Outcome *ClaimOutcome
	Err     error
}

// Service owns every live session.
type Service struct {
	reasoning  orchestrator.ReasoningService
	compliance orchestrator.ComplianceService
	records    store.RecordStore
	cfg        Config

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	budgetMetrics  *budgetmetrics.Metrics
	orchMetrics    *orchmetrics.Metrics
	estimate       Estimator
	prober         Prober

	mu       sync.RWMutex
	sessions map[models.SessionID]*runtime
}

// runtime is the per-session set of collaborators.
type runtime struct {
	id          models.SessionID
	executiveID string

	machine      *Machine
	governor     *budget.Governor
	orchestrator *orchestrator.Orchestrator
	synth        *synthesis.Synthesizer
	validator    *intake.Validator
	breaker      *circuit.Breaker
	broadcaster  *Broadcaster

	// lastStatus is only touched from the machine's notify callback.
	lastStatus models.Status

	mu      sync.RWMutex
	claims  map[claims.ClaimID]*claims.Claim
	results map[claims.ClaimID]*claims.ValidationResult
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBudgetMetrics is shared by every session's governor.
func WithBudgetMetrics(m *budgetmetrics.Metrics) Option {
	return func(s *Service) {
		s.budgetMetrics = m
	}
}

// WithOrchestratorMetrics is shared by every session's orchestrator.
func WithOrchestratorMetrics(m *orchmetrics.Metrics) Option {
	return func(s *Service) {
		s.orchMetrics = m
	}
}

// WithEstimator replaces budget.EstimateClaimCost.
func WithEstimator(e Estimator) Option {
	return func(s *Service) {
		s.estimate = e
	}
}

func WithProber(p Prober) Option {
	return func(s *Service) {
		s.prober = p
	}
}

// New creates a Service. The AI services and record store are required.
func New(reasoning orchestrator.ReasoningService, compliance orchestrator.ComplianceService, records store.RecordStore, cfg Config, opts ...Option) (*Service, error) {
	if reasoning == nil || compliance == nil {
		return nil, fmt.Errorf("reasoning and compliance services are required")
	}
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}
	if cfg.MaxConsecutiveUnavailable < 1 {
		return nil, fmt.Errorf("consecutive unavailable threshold must be positive")
	}
	s := &Service{
		reasoning:  reasoning,
		compliance: compliance,
		records:    records,
		cfg:        cfg,
		logger:     logger.Discard(),
		estimate:   budget.EstimateClaimCost,
		sessions:   make(map[models.SessionID]*runtime),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StartSession opens a session for the executive in ctx.
func (s *Service) StartSession(ctx context.Context) (models.DemonstrationSession, error) {
	executiveID := requestcontext.ExecutiveID(ctx)
	if executiveID == "" {
		return models.DemonstrationSession{}, dErrors.New(dErrors.CodeUnauthorized, "executive id is required")
	}
	now := requestcontext.Now(ctx)
	segment := models.ExecutiveSegment(executiveID)
	if segment == "" {
		segment = fallbackSegment
	}

	s.mu.Lock()
	id, err := s.nextSessionIDLocked(ctx, now, segment)
	if err != nil {
		s.mu.Unlock()
		return models.DemonstrationSession{}, err
	}
	rt, err := s.newRuntime(id, executiveID, now)
	if err != nil {
		s.mu.Unlock()
		return models.DemonstrationSession{}, err
	}
	s.sessions[id] = rt
	s.mu.Unlock()

	s.refreshInfrastructure(ctx, rt)
	snap := rt.machine.Snapshot()
	s.persist(ctx, sessionEntity{snap})
	s.metrics.SessionStarted()
	logAudit(ctx, s.logger, s.auditPublisher, audit.EventSessionStarted,
		"session_id", string(id),
		"executive_id", executiveID,
		"amount_usd", s.cfg.HardCapUSD,
	)
	return snap, nil
}

// nextSessionIDLocked picks the first id for today not held in memory or in
// the record store.
func (s *Service) nextSessionIDLocked(ctx context.Context, now time.Time, segment string) (models.SessionID, error) {
	for attempt := 1; attempt <= maxSessionAttempts; attempt++ {
		id := models.FormatSessionID(now, segment, attempt)
		if _, live := s.sessions[id]; live {
			continue
		}
		var existing sessionEntity
		err := s.records.Get(ctx, store.KindSession, string(id), &existing)
		if err == nil {
			continue
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to check session id")
		}
		return id, nil
	}
	return "", dErrors.New(dErrors.CodeConflict, "too many sessions today for this executive")
}

func (s *Service) newRuntime(id models.SessionID, executiveID string, now time.Time) (*runtime, error) {
	rt := &runtime{
		id:          id,
		executiveID: executiveID,
		validator:   intake.NewValidator(),
		breaker:     circuit.New("ai-availability", circuit.WithFailureThreshold(s.cfg.MaxConsecutiveUnavailable)),
		broadcaster: NewBroadcaster(),
		lastStatus:  models.StatusReady,
		claims:      make(map[claims.ClaimID]*claims.Claim),
		results:     make(map[claims.ClaimID]*claims.ValidationResult),
	}

	governor, err := budget.New(s.cfg.HardCapUSD, s.cfg.WarningUSD,
		budget.WithEventSink(budget.EventSinkFunc(func(ctx context.Context, ev budget.Event) {
			s.onBudgetEvent(ctx, rt, ev)
		})),
		budget.WithLogger(s.logger.With("session_id", string(id))),
		budget.WithMetrics(s.budgetMetrics),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid budget configuration")
	}
	rt.governor = governor

	rt.orchestrator, err = orchestrator.New(s.reasoning, s.compliance, governor, s.cfg.Orchestrator,
		orchestrator.WithLogger(s.logger.With("session_id", string(id))),
		orchestrator.WithMetrics(s.orchMetrics),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid orchestrator configuration")
	}
	rt.synth, err = synthesis.New(s.cfg.Synthesis)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid synthesis configuration")
	}

	rt.machine = NewMachine(id, executiveID, now, governor, s.cfg.MaxClaims, func(snap models.DemonstrationSession) {
		if snap.Status != rt.lastStatus {
			rt.lastStatus = snap.Status
			s.metrics.ObserveTransition(string(snap.Status), snap.Status.IsTerminal())
		}
		rt.broadcaster.Publish(snap)
	})
	return rt, nil
}

func (s *Service) onBudgetEvent(ctx context.Context, rt *runtime, ev budget.Event) {
	rt.machine.BudgetEvent(ctx, ev)

	attrs := []any{
		"session_id", string(rt.id),
		"executive_id", rt.executiveID,
		"claim_id", ev.ClaimID,
		"amount_usd", ev.Committed,
	}
	switch ev.Kind {
	case budget.EventWarningThresholdCrossed:
		logAudit(ctx, s.logger, s.auditPublisher, audit.EventBudgetWarning, attrs...)
	case budget.EventHardCapReached:
		logAudit(ctx, s.logger, s.auditPublisher, audit.EventBudgetHardCap, attrs...)
	case budget.EventCostOverrun:
		attrs[len(attrs)-1] = ev.Amount
		logAudit(ctx, s.logger, s.auditPublisher, audit.EventBudgetOverrun, attrs...)
	case budget.EventInconsistency:
		logAudit(ctx, s.logger, s.auditPublisher, audit.EventBudgetInconsistency,
			append(attrs, "reason", "settlement without matching reservation")...)
	}
}

// SubmitClaim runs one claim through the pipeline and blocks until it is
// terminal. Rejections at intake or admission are returned as errors; every
// claim that was admitted yields an outcome, including claims routed to human
// review, whose Cause carries the reason.
func (s *Service) SubmitClaim(ctx context.Context, sessionID models.SessionID, in intake.ClaimInput) (*ClaimOutcome, error) {
	rt, err := s.runtimeFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, rt, in)
}

// SubmitBatch submits inputs concurrently, at most BatchConcurrency at a
// time. Items are returned in input order.
func (s *Service) SubmitBatch(ctx context.Context, sessionID models.SessionID, inputs []intake.ClaimInput) ([]BatchItem, error) {
	rt, err := s.runtimeFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	items := make([]BatchItem, len(inputs))
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, in := range inputs {
		g.Go(func() error {
			out, err := s.submit(ctx, rt, in)
			items[i] = BatchItem{Index: i, Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items, nil
}

func (s *Service) submit(ctx context.Context, rt *runtime, in intake.ClaimInput) (*ClaimOutcome, error) {
	if err := rt.machine.Accepting(); err != nil {
		s.reject(ctx, rt, in.ClaimID, err)
		return nil, err
	}
	claim, err := rt.validator.Accept(ctx, in)
	if err != nil {
		s.reject(ctx, rt, in.ClaimID, err)
		return nil, err
	}
	ticket, err := rt.machine.Admit()
	if err != nil {
		s.reject(ctx, rt, string(claim.ID), err)
		return nil, err
	}
	start := time.Now()

	// The claim outlives the request; it stops only when the session does.
	claimCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(rt.machine.Context(), cancel)
	defer stop()

	rt.setClaim(claim)
	s.persist(claimCtx, claimEntity{SessionID: rt.id, Claim: claim.Clone()})
	logAudit(claimCtx, s.logger, s.auditPublisher, audit.EventClaimSubmitted,
		"session_id", string(rt.id),
		"executive_id", rt.executiveID,
		"claim_id", string(claim.ID),
		"patient_ref_hash", audit.HashPatientRef(claim.PatientRef),
		"amount_usd", claim.RequestedAmount,
	)

	rec, result, cause := s.process(claimCtx, rt, claim)
	rec.ProcessingTime = time.Since(start)

	snap, err := rt.machine.Complete(claimCtx, ticket, rec)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveClaimDuration(rec.ProcessingTime)

	entities := []store.Entity{claimEntity{SessionID: rt.id, Claim: claim.Clone()}}
	if result != nil {
		entities = append(entities, resultEntity{SessionID: rt.id, ValidationResult: result.Clone()})
	}
	entities = append(entities, sessionEntity{snap})
	s.persist(claimCtx, entities...)

	out := &ClaimOutcome{Claim: claim.Clone(), Session: snap, Cause: cause}
	if result != nil {
		out.Result = result.Clone()
	}
	return out, nil
}

// process drives claim to a terminal status. It never fails: every problem
// after admission becomes a human review with the error as cause.
func (s *Service) process(ctx context.Context, rt *runtime, claim *claims.Claim) (models.ClaimRecord, *claims.ValidationResult, error) {
	rec := models.ClaimRecord{ClaimID: claim.ID}

	estimate := s.estimate(claim, s.cfg.Orchestrator.MaxAttempts())
	allowance, err := rt.governor.Reserve(ctx, claim.ID, estimate)
	if err != nil {
		reason := claims.ReviewReasonBudgetExhausted
		if !dErrors.HasCode(err, dErrors.CodeBudgetExceeded) {
			reason = claims.ReviewReasonSessionTerminated
		}
		s.routeToReview(ctx, rt, claim, rt.synth.Partial(synthesis.Input{Claim: claim}, reason, err.Error()), err)
		rec.Status, rec.ReviewReason = claim.Status, reason
		rec.AdmissionDenied = true
		return rec, nil, err
	}

	s.transition(ctx, rt, claim, claims.ClaimStatusProcessing)
	s.persist(ctx, claimEntity{SessionID: rt.id, Claim: claim.Clone()})
	s.transition(ctx, rt, claim, claims.ClaimStatusAIReview)

	out, err := rt.orchestrator.Run(ctx, claim, allowance)
	if err != nil {
		// Run fails only on missing inputs; release the reservation
		_, _ = rt.governor.Settle(context.WithoutCancel(ctx), allowance, 0)
		s.routeToReview(ctx, rt, claim, rt.synth.Partial(synthesis.Input{Claim: claim}, claims.ReviewReasonAIUnavailable, err.Error()), err)
		rec.Status, rec.ReviewReason = claim.Status, claims.ReviewReasonAIUnavailable
		return rec, nil, err
	}
	in := synthesis.FromOutcome(claim, out)
	if out.SettleErr != nil {
		// the governor has latched; the session is failing underneath this claim
		s.routeToReview(ctx, rt, claim, rt.synth.Partial(in, claims.ReviewReasonSessionTerminated, out.SettleErr.Error()), out.SettleErr)
		rec.Status, rec.ReviewReason = claim.Status, claims.ReviewReasonSessionTerminated
		return rec, nil, out.SettleErr
	}
	rec.Counted = true
	s.trackAvailability(ctx, rt, out)

	if !out.Complete() {
		reason := claims.ReviewReasonAIUnavailable
		if out.Cancelled {
			reason = claims.ReviewReasonSessionTerminated
		}
		cause := out.Err()
		s.routeToReview(ctx, rt, claim, rt.synth.Partial(in, reason, cause.Error()), cause)
		rec.Status, rec.ReviewReason = claim.Status, reason
		return rec, nil, cause
	}

	result, err := rt.synth.Synthesize(ctx, in)
	if err != nil {
		s.routeToReview(ctx, rt, claim, rt.synth.Partial(in, claims.ReviewReasonSynthesisPartial, err.Error()), err)
		rec.Status, rec.ReviewReason = claim.Status, claims.ReviewReasonSynthesisPartial
		return rec, nil, err
	}
	s.transition(ctx, rt, claim, result.Decision.TerminalStatus(result.RequiresHumanReview))
	rt.setResult(result)
	s.metrics.IncDecision(string(result.Decision))
	logAudit(ctx, s.logger, s.auditPublisher, audit.EventClaimDecided,
		"session_id", string(rt.id),
		"executive_id", rt.executiveID,
		"claim_id", string(claim.ID),
		"patient_ref_hash", audit.HashPatientRef(claim.PatientRef),
		"decision", string(result.Decision),
		"amount_usd", out.CostUSD,
	)
	rec.Status, rec.Result = claim.Status, result
	return rec, result, nil
}

// trackAvailability fails the session once enough consecutive claims found
// both AI services down. Cancelled claims say nothing about availability.
func (s *Service) trackAvailability(ctx context.Context, rt *runtime, out *orchestrator.Outcome) {
	if out.Cancelled {
		return
	}
	if len(out.FailedServices()) < 2 {
		rt.breaker.RecordSuccess()
		return
	}
	_, change := rt.breaker.RecordFailure()
	if !change.Opened {
		return
	}
	reason := fmt.Sprintf("both ai services unavailable for %d consecutive claims", s.cfg.MaxConsecutiveUnavailable)
	if _, err := rt.machine.Fail(ctx, reason); err != nil {
		return
	}
	logAudit(ctx, s.logger, s.auditPublisher, audit.EventSessionFailed,
		"session_id", string(rt.id),
		"executive_id", rt.executiveID,
		"reason", reason,
	)
}

func (s *Service) routeToReview(ctx context.Context, rt *runtime, claim *claims.Claim, packet *claims.ReviewPacket, cause error) {
	s.transition(ctx, rt, claim, claims.ClaimStatusRequiresHumanReview)
	claim.ReviewPacket = packet
	rt.setClaim(claim)
	s.metrics.IncReviewReason(string(packet.Reason))
	logAudit(ctx, s.logger, s.auditPublisher, audit.EventClaimReviewRequired,
		"session_id", string(rt.id),
		"executive_id", rt.executiveID,
		"claim_id", string(claim.ID),
		"patient_ref_hash", audit.HashPatientRef(claim.PatientRef),
		"reason", string(packet.Reason),
		"amount_usd", packet.AICost,
		"error", cause,
	)
}

// transition only fails on a programming error; it is logged and the claim
// keeps its current status.
func (s *Service) transition(ctx context.Context, rt *runtime, claim *claims.Claim, next claims.ClaimStatus) {
	if err := claim.Transition(next, requestcontext.Now(ctx)); err != nil {
		s.logger.ErrorContext(ctx, "claim transition rejected",
			"session_id", rt.id,
			"claim_id", claim.ID,
			"from", claim.Status,
			"to", next,
			"error", err,
		)
		return
	}
	rt.setClaim(claim)
}

func (s *Service) reject(ctx context.Context, rt *runtime, claimID string, err error) {
	code := dErrors.CodeOf(err)
	s.metrics.IncRejection(string(code))
	logAudit(ctx, s.logger, s.auditPublisher, audit.EventClaimRejected,
		"session_id", string(rt.id),
		"executive_id", rt.executiveID,
		"claim_id", claimID,
		"reason", string(code),
	)
}

// persist writes entities atomically where the store allows. Store failures
// do not change claim outcomes; they are logged.
func (s *Service) persist(ctx context.Context, entities ...store.Entity) {
	if err := store.PutAll(ctx, s.records, entities...); err != nil {
		level := slog.LevelError
		if errors.Is(err, sentinel.ErrConflict) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "failed to persist records", "error", err)
	}
}

// CloseSession completes a session. In-flight claims are cancelled and still
// settle what they spent.
func (s *Service) CloseSession(ctx context.Context, sessionID models.SessionID) (models.DemonstrationSession, error) {
	rt, err := s.runtimeFor(ctx, sessionID)
	if err != nil {
		return models.DemonstrationSession{}, err
	}
	snap, err := rt.machine.Close(ctx)
	if err != nil {
		return snap, err
	}
	s.persist(ctx, sessionEntity{snap})
	logAudit(ctx, s.logger, s.auditPublisher, audit.EventSessionClosed,
		"session_id", string(rt.id),
		"executive_id", rt.executiveID,
		"amount_usd", snap.TotalCostUSD,
	)
	return snap, nil
}

// Session returns the current snapshot. Sessions from an earlier process are
// read back from the record store.
func (s *Service) Session(ctx context.Context, sessionID models.SessionID) (models.DemonstrationSession, error) {
	rt, err := s.runtimeFor(ctx, sessionID)
	if err == nil {
		s.refreshInfrastructure(ctx, rt)
		return rt.machine.Snapshot(), nil
	}
	if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return models.DemonstrationSession{}, err
	}
	var stored sessionEntity
	if err := s.load(ctx, store.KindSession, string(sessionID), &stored); err != nil {
		return models.DemonstrationSession{}, err
	}
	if err := authorize(ctx, stored.ExecutiveID); err != nil {
		return models.DemonstrationSession{}, err
	}
	return stored.DemonstrationSession, nil
}

// Claim returns a copy of a claim in its current status.
func (s *Service) Claim(ctx context.Context, sessionID models.SessionID, claimID claims.ClaimID) (*claims.Claim, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	if rt, ok := s.lookup(sessionID); ok {
		if c, ok := rt.claim(claimID); ok {
			return c, nil
		}
	}
	var stored claimEntity
	if err := s.load(ctx, store.KindClaim, scopedID(sessionID, claimID), &stored); err != nil {
		return nil, err
	}
	return stored.Claim, nil
}

// Result returns the validation result for a claim.
func (s *Service) Result(ctx context.Context, sessionID models.SessionID, claimID claims.ClaimID) (*claims.ValidationResult, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	if rt, ok := s.lookup(sessionID); ok {
		if r, ok := rt.result(claimID); ok {
			return r, nil
		}
	}
	var stored resultEntity
	if err := s.load(ctx, store.KindResult, scopedID(sessionID, claimID), &stored); err != nil {
		return nil, err
	}
	return stored.ValidationResult, nil
}

// Summary is the executive dashboard view of a session.
func (s *Service) Summary(ctx context.Context, sessionID models.SessionID) (models.Summary, error) {
	snap, err := s.Session(ctx, sessionID)
	if err != nil {
		return models.Summary{}, err
	}
	return models.Summarize(snap, requestcontext.Now(ctx)), nil
}

// Subscribe streams snapshots of a live session, starting with the current
// one. cancel must be called when the caller is done.
func (s *Service) Subscribe(ctx context.Context, sessionID models.SessionID, buffer int) (<-chan models.DemonstrationSession, func(), error) {
	rt, err := s.runtimeFor(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := rt.broadcaster.Subscribe(buffer)
	rt.broadcaster.Publish(rt.machine.Snapshot())
	return ch, cancel, nil
}

// AuditTrail lists a session's audit events when the publisher can read them.
func (s *Service) AuditTrail(ctx context.Context, sessionID models.SessionID) ([]audit.Event, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	r, ok := s.auditPublisher.(interface {
		List(ctx context.Context, sessionID string) ([]audit.Event, error)
	})
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "audit trail is not readable")
	}
	events, err := r.List(ctx, string(sessionID))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}
	return events, nil
}

// Shutdown closes every live session and ends their subscriptions.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.RLock()
	live := make([]*runtime, 0, len(s.sessions))
	for _, rt := range s.sessions {
		live = append(live, rt)
	}
	s.mu.RUnlock()

	for _, rt := range live {
		if snap, err := rt.machine.Close(ctx); err == nil {
			s.persist(ctx, sessionEntity{snap})
		}
		rt.broadcaster.Close()
	}
}

func (s *Service) refreshInfrastructure(ctx context.Context, rt *runtime) {
	if s.prober == nil {
		return
	}
	rt.machine.SetInfrastructure(s.prober.Status(ctx))
}

func (s *Service) lookup(sessionID models.SessionID) (*runtime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.sessions[sessionID]
	return rt, ok
}

func (s *Service) runtimeFor(ctx context.Context, sessionID models.SessionID) (*runtime, error) {
	rt, ok := s.lookup(sessionID)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found").WithDetail("session_id", sessionID)
	}
	if err := authorize(ctx, rt.executiveID); err != nil {
		return nil, err
	}
	return rt, nil
}

// authorize allows the owning executive, and internal callers that carry no
// executive at all.
func authorize(ctx context.Context, owner string) error {
	caller := requestcontext.ExecutiveID(ctx)
	if caller != "" && caller != owner {
		return dErrors.New(dErrors.CodeForbidden, "session belongs to another executive")
	}
	return nil
}

func (s *Service) load(ctx context.Context, kind store.Kind, id string, dest any) error {
	err := s.records.Get(ctx, kind, id, dest)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, string(kind)+" not found").WithDetail("id", id)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+string(kind))
	}
}

func (rt *runtime) setClaim(c *claims.Claim) {
	rt.mu.Lock()
	rt.claims[c.ID] = c.Clone()
	rt.mu.Unlock()
}

func (rt *runtime) claim(id claims.ClaimID) (*claims.Claim, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	c, ok := rt.claims[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

func (rt *runtime) setResult(r *claims.ValidationResult) {
	rt.mu.Lock()
	rt.results[r.ClaimID] = r.Clone()
	rt.mu.Unlock()
}

func (rt *runtime) result(id claims.ClaimID) (*claims.ValidationResult, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	r, ok := rt.results[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}
