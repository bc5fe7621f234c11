package orchestrator_test

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks ReasoningService,ComplianceService,Settler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"claimguard/internal/budget"
	"claimguard/internal/claims/models"
	"claimguard/internal/orchestrator"
	"claimguard/internal/orchestrator/metrics"
	"claimguard/internal/orchestrator/mocks"
	dErrors "claimguard/pkg/domain-errors"
)

// =============================================================================
// Orchestrator Test Suite
// =============================================================================
// Justification for unit tests: retry classification, per-attempt deadlines
// and the exactly-once settlement side effect depend on failure sequences that
// real AI services cannot be made to produce on demand.

type OrchestratorSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	reasoning  *mocks.MockReasoningService
	compliance *mocks.MockComplianceService
	settler    *mocks.MockSettler
	orch       *orchestrator.Orchestrator
	claim      *models.Claim
	allowance  *budget.Allowance
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.reasoning = mocks.NewMockReasoningService(s.ctrl)
	s.compliance = mocks.NewMockComplianceService(s.ctrl)
	s.settler = mocks.NewMockSettler(s.ctrl)

	cfg := orchestrator.DefaultConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	cfg.BackoffBase = time.Millisecond

	var err error
	s.orch, err = orchestrator.New(s.reasoning, s.compliance, s.settler, cfg,
		orchestrator.WithMetrics(metrics.New(prometheus.NewRegistry())))
	s.Require().NoError(err)

	s.claim = &models.Claim{
		ID:              "CLAIM_20250314_001",
		ProcedureCode:   "99213",
		DiagnosisCode:   "E11.9",
		RequestedAmount: 250,
		Priority:        models.PriorityRoutine,
		MedicalContext:  "Routine follow-up.",
	}
	s.allowance = &budget.Allowance{Token: uuid.New(), ClaimID: s.claim.ID, Reserved: budget.FromUSD(1)}
}

func (s *OrchestratorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func passingChecks() []models.ComplianceCheck {
	return []models.ComplianceCheck{
		{CheckType: "HIPAA_PRIVACY", Passed: true, RegulatoryFramework: "HIPAA"},
		{CheckType: "CMS_GUIDELINES", Passed: true, RegulatoryFramework: "CMS"},
	}
}

// expectSettle asserts exactly one settlement and captures the charged amount.
func (s *OrchestratorSuite) expectSettle(charged *float64) {
	s.settler.EXPECT().Settle(gomock.Any(), s.allowance, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ *budget.Allowance, usd float64) (*budget.Settlement, error) {
			s.NoError(ctx.Err(), "settlement must not inherit cancellation")
			*charged = usd
			return &budget.Settlement{Charged: budget.FromUSD(usd)}, nil
		}).Times(1)
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *OrchestratorSuite) TestNew() {
	cfg := orchestrator.DefaultConfig()

	s.Run("nil reasoning service returns error", func() {
		_, err := orchestrator.New(nil, s.compliance, s.settler, cfg)
		s.ErrorContains(err, "reasoning service is required")
	})

	s.Run("nil settler returns error", func() {
		_, err := orchestrator.New(s.reasoning, s.compliance, nil, cfg)
		s.ErrorContains(err, "budget settler is required")
	})

	s.Run("zero timeout returns error", func() {
		cfg.CallTimeout = 0
		_, err := orchestrator.New(s.reasoning, s.compliance, s.settler, cfg)
		s.Error(err)
	})
}

// =============================================================================
// Run Tests
// =============================================================================

func (s *OrchestratorSuite) TestRunBothSucceed() {
	s.reasoning.EXPECT().Reason(gomock.Any(), gomock.Any()).
		Return(&orchestrator.ReasoningResponse{Confidence: 92, Reasoning: "consistent", CostUSD: 0.03}, nil)
	s.compliance.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(&orchestrator.ComplianceResponse{Checks: passingChecks(), CostUSD: 0.10}, nil)
	var charged float64
	s.expectSettle(&charged)

	out, err := s.orch.Run(context.Background(), s.claim, s.allowance)
	s.Require().NoError(err)
	s.True(out.Complete())
	s.NoError(out.Err())
	s.Equal(1, out.ReasoningAttempts)
	s.InDelta(0.13, out.CostUSD, 1e-9)
	s.InDelta(0.13, charged, 1e-9)
	s.NotNil(out.Settlement)
}

func (s *OrchestratorSuite) TestComplianceTimesOutOnEveryAttempt() {
	s.reasoning.EXPECT().Reason(gomock.Any(), gomock.Any()).
		Return(&orchestrator.ReasoningResponse{Confidence: 95, CostUSD: 0.03}, nil)
	var calls atomic.Int32
	s.compliance.EXPECT().Check(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ orchestrator.ComplianceRequest) (*orchestrator.ComplianceResponse, error) {
			calls.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		}).Times(4)
	var charged float64
	s.expectSettle(&charged)

	out, err := s.orch.Run(context.Background(), s.claim, s.allowance)
	s.Require().NoError(err)

	s.Equal(int32(4), calls.Load())
	s.Equal(4, out.ComplianceAttempts)
	s.Require().NotNil(out.ComplianceErr)
	s.Equal(orchestrator.ErrorTimeout, out.ComplianceErr.Category)
	s.NotNil(out.Reasoning, "reasoning result survives the compliance failure")
	s.False(out.Cancelled)

	runErr := out.Err()
	s.True(dErrors.HasCode(runErr, dErrors.CodeAIServiceUnavailable))
	de, _ := dErrors.As(runErr)
	s.Equal(orchestrator.ServiceCompliance, de.Details["service"])

	// 0.03 for reasoning, four failed compliance attempts at the flat charge
	s.InDelta(0.03+4*0.05, charged, 1e-9)
}

func (s *OrchestratorSuite) TestRejectionIsNotRetried() {
	s.reasoning.EXPECT().Reason(gomock.Any(), gomock.Any()).
		Return(nil, orchestrator.NewServiceError(orchestrator.ErrorRejected, orchestrator.ServiceReasoning, "policy refusal", nil).WithCost(0.02)).
		Times(1)
	s.compliance.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(&orchestrator.ComplianceResponse{Checks: passingChecks(), CostUSD: 0.10}, nil)
	var charged float64
	s.expectSettle(&charged)

	out, err := s.orch.Run(context.Background(), s.claim, s.allowance)
	s.Require().NoError(err)
	s.Equal(1, out.ReasoningAttempts)
	s.Equal(orchestrator.ErrorRejected, out.ReasoningErr.Category)
	s.InDelta(0.12, charged, 1e-9)
}

func (s *OrchestratorSuite) TestTransientFailureThenSuccess() {
	gomock.InOrder(
		s.reasoning.EXPECT().Reason(gomock.Any(), gomock.Any()).
			Return(nil, orchestrator.NewServiceError(orchestrator.ErrorOutage, orchestrator.ServiceReasoning, "502", nil)),
		s.reasoning.EXPECT().Reason(gomock.Any(), gomock.Any()).
			Return(nil, orchestrator.NewServiceError(orchestrator.ErrorRateLimited, orchestrator.ServiceReasoning, "429", nil)),
		s.reasoning.EXPECT().Reason(gomock.Any(), gomock.Any()).
			Return(&orchestrator.ReasoningResponse{Confidence: 88, CostUSD: 0.03}, nil),
	)
	s.compliance.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(&orchestrator.ComplianceResponse{Checks: passingChecks(), CostUSD: 0.10}, nil)
	var charged float64
	s.expectSettle(&charged)

	out, err := s.orch.Run(context.Background(), s.claim, s.allowance)
	s.Require().NoError(err)
	s.True(out.Complete())
	s.Equal(3, out.ReasoningAttempts)
	s.InDelta(2*0.01+0.03+0.10, charged, 1e-9)
}

func (s *OrchestratorSuite) TestUnusableResponsesAreBadData() {
	s.reasoning.EXPECT().Reason(gomock.Any(), gomock.Any()).
		Return(&orchestrator.ReasoningResponse{Confidence: 140, CostUSD: 0.03}, nil).Times(1)
	s.compliance.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(&orchestrator.ComplianceResponse{CostUSD: 0.10}, nil).Times(1)
	var charged float64
	s.expectSettle(&charged)

	out, err := s.orch.Run(context.Background(), s.claim, s.allowance)
	s.Require().NoError(err)
	s.Equal(orchestrator.ErrorBadData, out.ReasoningErr.Category)
	s.Equal(orchestrator.ErrorBadData, out.ComplianceErr.Category)
	s.ElementsMatch([]string{orchestrator.ServiceReasoning, orchestrator.ServiceCompliance}, out.FailedServices())

	de, ok := dErrors.As(out.Err())
	s.Require().True(ok)
	s.Equal("both", de.Details["service"])
	s.InDelta(0.13, charged, 1e-9)
}

func (s *OrchestratorSuite) TestCancellationStopsRetries() {
	ctx, cancel := context.WithCancel(context.Background())

	s.reasoning.EXPECT().Reason(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
			cancel()
			return nil, orchestrator.NewServiceError(orchestrator.ErrorOutage, orchestrator.ServiceReasoning, "503", nil).WithCost(0.02)
		}).Times(1)
	s.compliance.EXPECT().Check(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ orchestrator.ComplianceRequest) (*orchestrator.ComplianceResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).MaxTimes(1)
	var charged float64
	s.expectSettle(&charged)

	out, err := s.orch.Run(ctx, s.claim, s.allowance)
	s.Require().NoError(err)
	s.True(out.Cancelled)
	s.Equal(orchestrator.ErrorCancelled, out.ReasoningErr.Category)
	s.InDelta(0.02, charged, 1e-9, "metered cost of a cancelled attempt is still charged")
}

func (s *OrchestratorSuite) TestCancelledCallsWithoutMeteredCostAreFree() {
	ctx, cancel := context.WithCancel(context.Background())
	var waiting atomic.Int32
	block := func(ctx context.Context) {
		if waiting.Add(1) == 2 {
			cancel()
		}
		<-ctx.Done()
	}
	s.reasoning.EXPECT().Reason(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
			block(ctx)
			return nil, ctx.Err()
		}).Times(1)
	s.compliance.EXPECT().Check(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ orchestrator.ComplianceRequest) (*orchestrator.ComplianceResponse, error) {
			block(ctx)
			return nil, ctx.Err()
		}).Times(1)
	charged := -1.0
	s.expectSettle(&charged)

	out, err := s.orch.Run(ctx, s.claim, s.allowance)
	s.Require().NoError(err)
	s.True(out.Cancelled)
	s.Equal(orchestrator.ErrorCancelled, out.ReasoningErr.Category)
	s.Equal(orchestrator.ErrorCancelled, out.ComplianceErr.Category)
	s.Zero(out.CostUSD)
	s.Zero(charged, "settling zero releases the reservation")
}

func (s *OrchestratorSuite) TestCancellationDuringBackoff() {
	cfg := orchestrator.DefaultConfig()
	cfg.CallTimeout = time.Second
	cfg.BackoffBase = 10 * time.Second
	orch, err := orchestrator.New(s.reasoning, s.compliance, s.settler, cfg)
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.reasoning.EXPECT().Reason(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
			time.AfterFunc(20*time.Millisecond, cancel)
			return nil, orchestrator.NewServiceError(orchestrator.ErrorOutage, orchestrator.ServiceReasoning, "503", nil)
		}).Times(1)
	s.compliance.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(&orchestrator.ComplianceResponse{Checks: passingChecks(), CostUSD: 0.10}, nil)
	var charged float64
	s.expectSettle(&charged)

	start := time.Now()
	out, err := orch.Run(ctx, s.claim, s.allowance)
	s.Require().NoError(err)
	s.Less(time.Since(start), 5*time.Second, "backoff sleep is interrupted")
	s.True(out.Cancelled)
	s.Equal(orchestrator.ErrorCancelled, out.ReasoningErr.Category)
	s.Equal(1, out.ReasoningAttempts, "no attempt starts after cancellation")
	s.InDelta(0.11, charged, 1e-9, "the outage before cancellation keeps its flat charge")
}

func (s *OrchestratorSuite) TestSettleErrorIsReported() {
	s.reasoning.EXPECT().Reason(gomock.Any(), gomock.Any()).
		Return(&orchestrator.ReasoningResponse{Confidence: 90, CostUSD: 0.03}, nil)
	s.compliance.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(&orchestrator.ComplianceResponse{Checks: passingChecks(), CostUSD: 0.10}, nil)
	s.settler.EXPECT().Settle(gomock.Any(), s.allowance, gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeBudgetInconsistency, "unknown allowance"))

	out, err := s.orch.Run(context.Background(), s.claim, s.allowance)
	s.Require().NoError(err)
	s.True(dErrors.HasCode(out.SettleErr, dErrors.CodeBudgetInconsistency))
}

func (s *OrchestratorSuite) TestRunRequiresAllowance() {
	_, err := s.orch.Run(context.Background(), s.claim, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

// =============================================================================
// Error Classification Tests
// =============================================================================

func (s *OrchestratorSuite) TestErrorClassification() {
	s.True(orchestrator.IsRetryable(orchestrator.NewServiceError(orchestrator.ErrorTimeout, "x", "", nil)))
	s.True(orchestrator.IsRetryable(orchestrator.NewServiceError(orchestrator.ErrorOutage, "x", "", nil)))
	s.False(orchestrator.IsRetryable(orchestrator.NewServiceError(orchestrator.ErrorRejected, "x", "", nil)))
	s.False(orchestrator.IsRetryable(orchestrator.NewServiceError(orchestrator.ErrorAuthentication, "x", "", nil)))
	s.True(orchestrator.IsRetryable(context.DeadlineExceeded))
	s.Equal(orchestrator.ErrorCancelled, orchestrator.GetCategory(context.Canceled))
	s.Equal(orchestrator.ErrorInternal, orchestrator.GetCategory(errors.New("boom")))
}
