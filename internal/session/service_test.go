package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"claimguard/internal/budget"
	"claimguard/internal/claims/intake"
	claims "claimguard/internal/claims/models"
	"claimguard/internal/orchestrator"
	"claimguard/internal/session/models"
	"claimguard/internal/store"
	dErrors "claimguard/pkg/domain-errors"
	"claimguard/pkg/platform/audit"
	"claimguard/pkg/platform/audit/publisher"
	auditmemory "claimguard/pkg/platform/audit/store/memory"
	"claimguard/pkg/requestcontext"
)

// =============================================================================
// Session Service Test Suite
// =============================================================================
// Justification for unit tests: the service is where budget, orchestration,
// synthesis and the session machine meet. These scenarios pin the end-to-end
// routing of each claim outcome against in-memory collaborators.

type reasonFunc func(ctx context.Context, req orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error)

func (f reasonFunc) Reason(ctx context.Context, req orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
	return f(ctx, req)
}

type checkFunc func(ctx context.Context, req orchestrator.ComplianceRequest) (*orchestrator.ComplianceResponse, error)

func (f checkFunc) Check(ctx context.Context, req orchestrator.ComplianceRequest) (*orchestrator.ComplianceResponse, error) {
	return f(ctx, req)
}

func reasoningAt(confidence, cost float64) reasonFunc {
	return func(context.Context, orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
		return &orchestrator.ReasoningResponse{Confidence: confidence, Reasoning: "consistent with guidelines", CostUSD: cost}, nil
	}
}

func allChecksPass(cost float64) checkFunc {
	return func(context.Context, orchestrator.ComplianceRequest) (*orchestrator.ComplianceResponse, error) {
		return &orchestrator.ComplianceResponse{
			Checks: []claims.ComplianceCheck{
				{CheckType: "HIPAA_PRIVACY", Passed: true, RegulatoryFramework: "HIPAA"},
				{CheckType: "CMS_GUIDELINES", Passed: true, RegulatoryFramework: "CMS"},
			},
			CostUSD: cost,
		}, nil
	}
}

type settleFunc func(ctx context.Context, a *budget.Allowance, usd float64) (*budget.Settlement, error)

func (f settleFunc) Settle(ctx context.Context, a *budget.Allowance, usd float64) (*budget.Settlement, error) {
	return f(ctx, a, usd)
}

func fixedEstimate(usd float64) Estimator {
	return func(*claims.Claim, int) float64 { return usd }
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	cfg     Config
	records *store.InMemoryStore
	audit   *publisher.Publisher
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	ctx := requestcontext.WithTime(context.Background(), time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC))
	s.ctx = requestcontext.WithExecutiveID(ctx, "ceo-001")

	s.cfg = DefaultConfig()
	s.cfg.Orchestrator.CallTimeout = 50 * time.Millisecond
	s.cfg.Orchestrator.MaxRetries = 1
	s.cfg.Orchestrator.BackoffBase = time.Millisecond
	s.records = store.NewInMemoryStore()
	s.audit = publisher.NewPublisher(auditmemory.NewInMemoryStore())
}

func (s *ServiceSuite) newService(r orchestrator.ReasoningService, c orchestrator.ComplianceService, opts ...Option) *Service {
	opts = append([]Option{WithAuditPublisher(s.audit)}, opts...)
	svc, err := New(r, c, s.records, s.cfg, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) start(svc *Service) models.SessionID {
	snap, err := svc.StartSession(s.ctx)
	s.Require().NoError(err)
	return snap.ID
}

func claimInput(id string) intake.ClaimInput {
	return intake.ClaimInput{
		ClaimID:         id,
		PatientRef:      "PAT-1001",
		ProviderRef:     "PRV-77",
		ServiceDate:     "2025-03-01",
		ProcedureCode:   "99213",
		DiagnosisCode:   "E11.9",
		RequestedAmount: 250,
		MedicalContext:  "Follow-up visit for type 2 diabetes management with stable A1C.",
	}
}

// =============================================================================
// Session Lifecycle Tests
// =============================================================================

func (s *ServiceSuite) TestStartSession() {
	svc := s.newService(reasoningAt(90, 0.03), allChecksPass(0.1))

	first, err := svc.StartSession(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.SessionID("DEMO_20250314_CEO001"), first.ID)
	s.Equal(models.StatusReady, first.Status)
	s.Equal(50.0, first.Budget.HardCap)

	second, err := svc.StartSession(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.SessionID("DEMO_20250314_CEO00102"), second.ID)

	s.Run("executive is required", func() {
		_, err := svc.StartSession(context.Background())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unusable executive ids get a fallback segment", func() {
		snap, err := svc.StartSession(requestcontext.WithExecutiveID(s.ctx, "--"))
		s.Require().NoError(err)
		s.Equal(models.SessionID("DEMO_20250314_EXEC"), snap.ID)
	})
}

func (s *ServiceSuite) TestOtherExecutivesAreForbidden() {
	svc := s.newService(reasoningAt(90, 0.03), allChecksPass(0.1))
	id := s.start(svc)

	other := requestcontext.WithExecutiveID(s.ctx, "cfo-002")
	_, err := svc.Session(other, id)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = svc.SubmitClaim(other, id, claimInput(""))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = svc.Session(s.ctx, "DEMO_20250314_NOPE")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Claim Pipeline Tests
// =============================================================================

func (s *ServiceSuite) TestApprovedClaim() {
	svc := s.newService(reasoningAt(90, 0.03), allChecksPass(0.1))
	id := s.start(svc)

	out, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
	s.Require().NoError(err)
	s.NoError(out.Cause)
	s.Equal(claims.ClaimStatusApproved, out.Claim.Status)
	s.Require().NotNil(out.Result)
	s.Equal(claims.DecisionApproved, out.Result.Decision)
	s.False(out.Result.RequiresHumanReview)
	s.Equal(out.Claim.ID, out.Result.ClaimID)

	s.Equal(models.StatusProcessing, out.Session.Status)
	s.Equal(1, out.Session.ClaimsProcessed)
	s.InDelta(0.13, out.Session.TotalCostUSD, 1e-9)

	stored, err := svc.Result(s.ctx, id, out.Claim.ID)
	s.Require().NoError(err)
	s.Equal(out.Result.ID, stored.ID)

	claim, err := svc.Claim(s.ctx, id, out.Claim.ID)
	s.Require().NoError(err)
	s.Equal(claims.ClaimStatusApproved, claim.Status)
}

func (s *ServiceSuite) TestIntakeRejections() {
	s.cfg.MaxClaims = 2
	svc := s.newService(reasoningAt(90, 0.03), allChecksPass(0.1))
	id := s.start(svc)

	s.Run("malformed claims never enter processing", func() {
		in := claimInput("")
		in.ProcedureCode = "ABC"
		_, err := svc.SubmitClaim(s.ctx, id, in)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidClaimFormat))
	})

	s.Run("duplicate claim ids are rejected", func() {
		_, err := svc.SubmitClaim(s.ctx, id, claimInput("CLAIM_20250314_042"))
		s.Require().NoError(err)
		_, err = svc.SubmitClaim(s.ctx, id, claimInput("CLAIM_20250314_042"))
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateClaimID))
	})

	s.Run("session claim limit", func() {
		_, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
		s.Require().NoError(err)
		_, err = svc.SubmitClaim(s.ctx, id, claimInput(""))
		s.True(dErrors.HasCode(err, dErrors.CodeSessionLimitReached))
	})

	snap, err := svc.Session(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(2, snap.ClaimsProcessed)
}

// Ten claims at $5 against a $50 cap with a $45 warning. Reservations are the
// worst case of $5.50, so after nine settlements the tenth cannot be covered.
func (s *ServiceSuite) TestBudgetScenario() {
	var reasoningCalls atomic.Int32
	reasoning := reasonFunc(func(ctx context.Context, req orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
		reasoningCalls.Add(1)
		return reasoningAt(90, 2.5)(ctx, req)
	})
	svc := s.newService(reasoning, allChecksPass(2.5), WithEstimator(fixedEstimate(5.5)))
	id := s.start(svc)

	var last *ClaimOutcome
	for i := 1; i <= 10; i++ {
		out, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
		s.Require().NoError(err)
		if i == 8 {
			s.Empty(out.Session.BudgetAlerts, "no warning before $45")
		}
		if i == 9 {
			s.Require().Len(out.Session.BudgetAlerts, 1)
			s.Equal("warning_threshold_crossed", string(out.Session.BudgetAlerts[0].Kind))
			s.InDelta(45, out.Session.BudgetAlerts[0].Committed, 1e-9)
		}
		last = out
	}

	s.Equal(int32(9), reasoningCalls.Load())
	s.True(dErrors.HasCode(last.Cause, dErrors.CodeBudgetExceeded))
	s.Equal(claims.ClaimStatusRequiresHumanReview, last.Claim.Status)
	s.Nil(last.Result)
	s.Require().NotNil(last.Claim.ReviewPacket)
	s.Equal(claims.ReviewReasonBudgetExhausted, last.Claim.ReviewPacket.Reason)

	s.Equal(9, last.Session.ClaimsProcessed)
	s.Equal(1, last.Session.HumanReviewCount)
	s.InDelta(45, last.Session.TotalCostUSD, 1e-9)
	s.LessOrEqual(last.Session.TotalCostUSD, 50.0)
	s.Equal(models.StatusProcessing, last.Session.Status)
}

func (s *ServiceSuite) TestHardCapCompletesSession() {
	svc := s.newService(reasoningAt(90, 2.5), allChecksPass(2.5), WithEstimator(fixedEstimate(5)))
	id := s.start(svc)

	var last *ClaimOutcome
	for range 10 {
		out, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
		s.Require().NoError(err)
		last = out
	}
	s.Equal(models.StatusComplete, last.Session.Status)
	s.InDelta(50, last.Session.TotalCostUSD, 1e-9)

	_, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
	s.True(dErrors.HasCode(err, dErrors.CodeSessionNotAcceptingNew))
}

func (s *ServiceSuite) TestComplianceTimeoutRoutesToReview() {
	hung := checkFunc(func(ctx context.Context, _ orchestrator.ComplianceRequest) (*orchestrator.ComplianceResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	svc := s.newService(reasoningAt(95, 0.03), hung)
	id := s.start(svc)

	out, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
	s.Require().NoError(err)
	s.True(dErrors.HasCode(out.Cause, dErrors.CodeAIServiceUnavailable))
	s.Equal(claims.ClaimStatusRequiresHumanReview, out.Claim.Status)
	s.Nil(out.Result)

	packet := out.Claim.ReviewPacket
	s.Require().NotNil(packet)
	s.Equal(claims.ReviewReasonAIUnavailable, packet.Reason)
	s.Require().NotNil(packet.Confidence)
	s.Equal(95.0, *packet.Confidence)
	s.Equal([]string{orchestrator.ServiceCompliance}, packet.FailedServices)

	s.Equal(models.StatusProcessing, out.Session.Status)
	s.Zero(out.Session.Budget.Outstanding)
	s.Greater(out.Session.TotalCostUSD, 0.03, "failed attempts are charged")
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func (s *ServiceSuite) TestConcurrentReservationsAgainstTheCap() {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	reasoning := reasonFunc(func(ctx context.Context, req orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
		entered <- struct{}{}
		<-release
		return reasoningAt(90, 1)(ctx, req)
	})
	s.cfg.Orchestrator.CallTimeout = 5 * time.Second
	svc := s.newService(reasoning, allChecksPass(1), WithEstimator(fixedEstimate(30)))
	id := s.start(svc)

	type result struct {
		out *ClaimOutcome
		err error
	}
	first := make(chan result, 1)
	go func() {
		out, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
		first <- result{out, err}
	}()
	<-entered

	second, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
	s.Require().NoError(err)
	s.True(dErrors.HasCode(second.Cause, dErrors.CodeBudgetExceeded))
	s.Equal(claims.ClaimStatusRequiresHumanReview, second.Claim.Status)

	close(release)
	r := <-first
	s.Require().NoError(r.err)
	s.NoError(r.out.Cause)
	s.Equal(claims.ClaimStatusApproved, r.out.Claim.Status)
	s.InDelta(2, r.out.Session.TotalCostUSD, 1e-9)
}

func (s *ServiceSuite) TestSubmitBatch() {
	s.cfg.BatchConcurrency = 3
	svc := s.newService(reasoningAt(90, 0.03), allChecksPass(0.1))
	id := s.start(svc)

	inputs := []intake.ClaimInput{claimInput(""), claimInput(""), claimInput(""), claimInput("")}
	inputs[2].DiagnosisCode = "bogus"

	items, err := svc.SubmitBatch(s.ctx, id, inputs)
	s.Require().NoError(err)
	s.Require().Len(items, 4)
	for i, item := range items {
		s.Equal(i, item.Index)
		if i == 2 {
			s.True(dErrors.HasCode(item.Err, dErrors.CodeInvalidClaimFormat))
			continue
		}
		s.Require().NoError(item.Err)
		s.Equal(claims.ClaimStatusApproved, item.Outcome.Claim.Status)
	}

	snap, err := svc.Session(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(3, snap.ClaimsProcessed)
	s.Equal(0, snap.ClaimsInFlight)
	s.InDelta(0.39, snap.TotalCostUSD, 1e-9)
}

func (s *ServiceSuite) TestCloseCancelsInFlightClaims() {
	entered := make(chan struct{}, 1)
	reasoning := reasonFunc(func(ctx context.Context, _ orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s.cfg.Orchestrator.CallTimeout = 5 * time.Second
	svc := s.newService(reasoning, allChecksPass(0.1))
	id := s.start(svc)

	done := make(chan *ClaimOutcome, 1)
	go func() {
		out, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
		s.NoError(err)
		done <- out
	}()
	<-entered

	closed, err := svc.CloseSession(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusComplete, closed.Status)

	out := <-done
	s.Equal(claims.ClaimStatusRequiresHumanReview, out.Claim.Status)
	s.Equal(claims.ReviewReasonSessionTerminated, out.Claim.ReviewPacket.Reason)
	s.Equal(models.StatusComplete, out.Session.Status)
	s.Zero(out.Session.ClaimsInFlight)
	s.Zero(out.Session.Budget.Outstanding)

	_, err = svc.CloseSession(s.ctx, id)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestCloseReleasesUnmeteredReservations() {
	entered := make(chan struct{}, 2)
	reasoning := reasonFunc(func(ctx context.Context, _ orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	compliance := checkFunc(func(ctx context.Context, _ orchestrator.ComplianceRequest) (*orchestrator.ComplianceResponse, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s.cfg.Orchestrator.CallTimeout = 5 * time.Second
	svc := s.newService(reasoning, compliance)
	id := s.start(svc)

	done := make(chan *ClaimOutcome, 1)
	go func() {
		out, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
		s.NoError(err)
		done <- out
	}()
	<-entered
	<-entered

	_, err := svc.CloseSession(s.ctx, id)
	s.Require().NoError(err)

	out := <-done
	s.Equal(claims.ReviewReasonSessionTerminated, out.Claim.ReviewPacket.Reason)
	s.Zero(out.Session.TotalCostUSD, "nothing was metered so nothing is charged")
	s.Zero(out.Session.Budget.Outstanding)
	s.Zero(out.Claim.ReviewPacket.AICost)
}

func (s *ServiceSuite) TestSettlementInconsistencyRoutesToReview() {
	svc := s.newService(reasoningAt(90, 0.03), allChecksPass(0.1))
	id := s.start(svc)

	svc.mu.RLock()
	rt := svc.sessions[id]
	svc.mu.RUnlock()
	s.Require().NotNil(rt)

	// settle against a token the governor never issued
	unknown := settleFunc(func(ctx context.Context, a *budget.Allowance, usd float64) (*budget.Settlement, error) {
		return rt.governor.Settle(ctx, &budget.Allowance{Token: uuid.New(), ClaimID: a.ClaimID}, usd)
	})
	orch, err := orchestrator.New(reasoningAt(90, 0.03), allChecksPass(0.1), unknown, s.cfg.Orchestrator)
	s.Require().NoError(err)
	rt.orchestrator = orch

	out, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
	s.Require().NoError(err)
	s.True(dErrors.HasCode(out.Cause, dErrors.CodeBudgetInconsistency))
	s.Nil(out.Result)
	s.Equal(claims.ClaimStatusRequiresHumanReview, out.Claim.Status)
	s.Equal(claims.ReviewReasonSessionTerminated, out.Claim.ReviewPacket.Reason)
	s.Equal(models.StatusError, out.Session.Status)
	s.Zero(out.Session.ClaimsProcessed)
	s.Empty(out.Session.Decisions)
}

func (s *ServiceSuite) TestBudgetDeniedClaimsDoNotUseTheClaimLimit() {
	s.cfg.MaxClaims = 2
	svc := s.newService(reasoningAt(90, 0.03), allChecksPass(0.1), WithEstimator(fixedEstimate(60)))
	id := s.start(svc)

	for range 3 {
		out, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
		s.Require().NoError(err, "a refused reservation is not an admission")
		s.True(dErrors.HasCode(out.Cause, dErrors.CodeBudgetExceeded))
		s.Zero(out.Session.ClaimsProcessed)
	}
}

func (s *ServiceSuite) TestRepeatedUnavailabilityFailsSession() {
	s.cfg.MaxConsecutiveUnavailable = 2
	s.cfg.Orchestrator.MaxRetries = 0
	down := reasonFunc(func(context.Context, orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
		return nil, orchestrator.NewServiceError(orchestrator.ErrorOutage, orchestrator.ServiceReasoning, "503", nil)
	})
	checksDown := checkFunc(func(context.Context, orchestrator.ComplianceRequest) (*orchestrator.ComplianceResponse, error) {
		return nil, orchestrator.NewServiceError(orchestrator.ErrorOutage, orchestrator.ServiceCompliance, "503", nil)
	})
	svc := s.newService(down, checksDown)
	id := s.start(svc)

	first, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
	s.Require().NoError(err)
	s.Equal(models.StatusProcessing, first.Session.Status)

	second, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
	s.Require().NoError(err)
	s.True(dErrors.HasCode(second.Cause, dErrors.CodeAIServiceUnavailable))
	s.Equal(models.StatusError, second.Session.Status)
	s.NotEmpty(second.Session.ErrorReason)

	_, err = svc.SubmitClaim(s.ctx, id, claimInput(""))
	s.True(dErrors.HasCode(err, dErrors.CodeSessionNotAcceptingNew))
}

// =============================================================================
// Read Model Tests
// =============================================================================

func (s *ServiceSuite) TestSubscribe() {
	svc := s.newService(reasoningAt(90, 0.03), allChecksPass(0.1))
	id := s.start(svc)

	ch, cancel, err := svc.Subscribe(s.ctx, id, 16)
	s.Require().NoError(err)
	defer cancel()

	initial := <-ch
	s.Equal(models.StatusReady, initial.Status)

	_, err = svc.SubmitClaim(s.ctx, id, claimInput(""))
	s.Require().NoError(err)

	var latest models.DemonstrationSession
	for latest.ClaimsProcessed < 1 {
		select {
		case latest = <-ch:
		case <-time.After(time.Second):
			s.FailNow("no snapshot after claim completion")
		}
	}
	s.Equal(models.StatusProcessing, latest.Status)
}

func (s *ServiceSuite) TestReadsFallBackToTheRecordStore() {
	svc := s.newService(reasoningAt(90, 0.03), allChecksPass(0.1))
	id := s.start(svc)
	out, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
	s.Require().NoError(err)
	_, err = svc.CloseSession(s.ctx, id)
	s.Require().NoError(err)

	restarted := s.newService(reasoningAt(90, 0.03), allChecksPass(0.1))
	snap, err := restarted.Session(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusComplete, snap.Status)
	s.Equal(1, snap.ClaimsProcessed)

	result, err := restarted.Result(s.ctx, id, out.Claim.ID)
	s.Require().NoError(err)
	s.Equal(out.Result.ID, result.ID)

	summary, err := restarted.Summary(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(1, summary.ClaimsProcessed)

	next, err := restarted.StartSession(s.ctx)
	s.Require().NoError(err)
	s.NotEqual(id, next.ID, "stored ids are not reused")
}

func (s *ServiceSuite) TestAuditTrail() {
	svc := s.newService(reasoningAt(90, 0.03), allChecksPass(0.1))
	id := s.start(svc)
	out, err := svc.SubmitClaim(s.ctx, id, claimInput(""))
	s.Require().NoError(err)

	events, err := svc.AuditTrail(s.ctx, id)
	s.Require().NoError(err)

	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
		s.NotContains(e.PatientRefHash, "PAT-1001")
	}
	s.Equal([]string{
		string(audit.EventSessionStarted),
		string(audit.EventClaimSubmitted),
		string(audit.EventClaimDecided),
	}, actions)
	s.Equal(string(out.Claim.ID), events[2].ClaimID)
	s.Equal(string(claims.DecisionApproved), events[2].Decision)
	s.Equal(audit.HashPatientRef("PAT-1001"), events[1].PatientRefHash)
}
