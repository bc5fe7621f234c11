// Package orchestrator issues the reasoning and compliance calls for one claim
// in parallel, retries transient failures, and settles the claim's actual cost
// with the budget governor exactly once.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"claimguard/internal/budget"
	"claimguard/internal/claims/models"
	"claimguard/internal/orchestrator/metrics"
	"claimguard/internal/platform/logger"
	dErrors "claimguard/pkg/domain-errors"
)

// Config bounds each AI call.
type Config struct {
	CallTimeout time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	// FailedCallCost is charged for a failed attempt whose error does not
	// carry a metered cost.
	FailedCallCost map[string]float64
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		CallTimeout: 90 * time.Second,
		MaxRetries:  3,
		BackoffBase: 500 * time.Millisecond,
		FailedCallCost: map[string]float64{
			ServiceReasoning:  0.01,
			ServiceCompliance: 0.05,
		},
	}
}

// MaxAttempts is the number of tries per call.
func (c Config) MaxAttempts() int {
	return 1 + c.MaxRetries
}

// Orchestrator runs the two AI calls for a claim.
type Orchestrator struct {
	reasoning  ReasoningService
	compliance ComplianceService
	settler    Settler
	cfg        Config

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// New creates an orchestrator. All three collaborators are required.
func New(reasoning ReasoningService, compliance ComplianceService, settler Settler, cfg Config, opts ...Option) (*Orchestrator, error) {
	if reasoning == nil {
		return nil, fmt.Errorf("reasoning service is required")
	}
	if compliance == nil {
		return nil, fmt.Errorf("compliance service is required")
	}
	if settler == nil {
		return nil, fmt.Errorf("budget settler is required")
	}
	if cfg.CallTimeout <= 0 {
		return nil, fmt.Errorf("call timeout must be positive")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative")
	}
	o := &Orchestrator{
		reasoning:  reasoning,
		compliance: compliance,
		settler:    settler,
		cfg:        cfg,
		logger:     logger.Discard(),
		tracer:     otel.Tracer("claimguard/internal/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Outcome is everything the AI calls produced for one claim, including
// partial results when one side failed.
type Outcome struct {
	ClaimID models.ClaimID

	Reasoning         *ReasoningResponse
	ReasoningErr      *ServiceError
	ReasoningAttempts int

	Compliance         *ComplianceResponse
	ComplianceErr      *ServiceError
	ComplianceAttempts int

	// CostUSD is the metered cost of every attempt on both sides.
	CostUSD   float64
	Elapsed   time.Duration
	Cancelled bool

	Settlement *budget.Settlement
	SettleErr  error
}

// Complete reports whether both calls succeeded.
func (o *Outcome) Complete() bool {
	return o.Reasoning != nil && o.Compliance != nil
}

// FailedServices lists the services that never succeeded.
func (o *Outcome) FailedServices() []string {
	var failed []string
	if o.Reasoning == nil {
		failed = append(failed, ServiceReasoning)
	}
	if o.Compliance == nil {
		failed = append(failed, ServiceCompliance)
	}
	return failed
}

// Err returns CodeAIServiceUnavailable tagged with the failing service, or nil.
func (o *Outcome) Err() error {
	failed := o.FailedServices()
	if len(failed) == 0 {
		return nil
	}
	service := failed[0]
	cause := o.ReasoningErr
	if len(failed) == 2 {
		service = "both"
	} else if service == ServiceCompliance {
		cause = o.ComplianceErr
	}
	var wrapped error
	if cause != nil {
		wrapped = cause
	}
	return dErrors.Wrap(wrapped, dErrors.CodeAIServiceUnavailable, service+" service unavailable").
		WithDetail("service", service).
		WithDetail("claim_id", o.ClaimID)
}

// Run issues both calls in parallel and settles the total cost with the
// governor once both have finished. The returned error is non-nil only for
// missing inputs; AI failures are reported through the Outcome.
func (o *Orchestrator) Run(ctx context.Context, claim *models.Claim, allowance *budget.Allowance) (*Outcome, error) {
	if claim == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "claim is required")
	}
	if allowance == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "budget allowance is required before AI calls")
	}

	start := time.Now()
	out := &Outcome{ClaimID: claim.ID}

	var (
		reasoning  callResult[*ReasoningResponse]
		compliance callResult[*ComplianceResponse]
		g          errgroup.Group
	)
	g.Go(func() error {
		reasoning = runWithRetry(ctx, o, ServiceReasoning, claim.ID, o.callReasoning(reasoningRequest(claim)))
		return nil
	})
	g.Go(func() error {
		compliance = runWithRetry(ctx, o, ServiceCompliance, claim.ID, o.callCompliance(complianceRequest(claim)))
		return nil
	})
	_ = g.Wait()

	out.Reasoning, out.ReasoningErr, out.ReasoningAttempts = reasoning.value, reasoning.err, reasoning.attempts
	out.Compliance, out.ComplianceErr, out.ComplianceAttempts = compliance.value, compliance.err, compliance.attempts
	out.CostUSD = reasoning.costUSD + compliance.costUSD
	out.Elapsed = time.Since(start)
	out.Cancelled = !out.Complete() && ctx.Err() != nil

	// Settlement must happen even when the session cancelled the calls.
	out.Settlement, out.SettleErr = o.settler.Settle(context.WithoutCancel(ctx), allowance, out.CostUSD)

	o.recordOutcome(ctx, out)
	return out, nil
}

func (o *Orchestrator) callReasoning(req ReasoningRequest) attemptFunc[*ReasoningResponse] {
	return func(ctx context.Context) (*ReasoningResponse, float64, error) {
		resp, err := o.reasoning.Reason(ctx, req)
		if err != nil {
			return nil, 0, err
		}
		if resp.Confidence < 0 || resp.Confidence > 100 {
			return nil, resp.CostUSD, NewServiceError(ErrorBadData, ServiceReasoning,
				fmt.Sprintf("confidence %.2f outside 0..100", resp.Confidence), nil)
		}
		return resp, resp.CostUSD, nil
	}
}

func (o *Orchestrator) callCompliance(req ComplianceRequest) attemptFunc[*ComplianceResponse] {
	return func(ctx context.Context) (*ComplianceResponse, float64, error) {
		resp, err := o.compliance.Check(ctx, req)
		if err != nil {
			return nil, 0, err
		}
		if len(resp.Checks) == 0 {
			return nil, resp.CostUSD, NewServiceError(ErrorBadData, ServiceCompliance, "no compliance checks returned", nil)
		}
		resp.Checks = append([]models.ComplianceCheck(nil), resp.Checks...)
		return resp, resp.CostUSD, nil
	}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, out *Outcome) {
	outcome := "complete"
	switch {
	case out.Cancelled:
		outcome = "cancelled"
	case len(out.FailedServices()) == 2:
		outcome = "unavailable"
	case !out.Complete():
		outcome = "partial"
	}
	o.metrics.IncOutcome(outcome)

	attrs := []any{
		"claim_id", out.ClaimID,
		"outcome", outcome,
		"cost_usd", out.CostUSD,
		"reasoning_attempts", out.ReasoningAttempts,
		"compliance_attempts", out.ComplianceAttempts,
		"elapsed_ms", out.Elapsed.Milliseconds(),
	}
	if out.SettleErr != nil {
		o.logger.ErrorContext(ctx, "budget settlement failed", append(attrs, "error", out.SettleErr)...)
		return
	}
	if outcome != "complete" {
		o.logger.WarnContext(ctx, "ai orchestration incomplete", attrs...)
		return
	}
	o.logger.InfoContext(ctx, "ai orchestration complete", attrs...)
}
