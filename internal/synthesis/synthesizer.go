// Package synthesis turns the reasoning and compliance outputs for a claim into
// a single ValidationResult.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"claimguard/internal/claims/models"
	"claimguard/internal/orchestrator"
	dErrors "claimguard/pkg/domain-errors"
	pkgstrings "claimguard/pkg/platform/strings"
	"claimguard/pkg/requestcontext"
)

// Config holds the decision thresholds.
type Config struct {
	LowConfidence       float64
	HighConfidence      float64
	MandatoryFrameworks []string
	Benchmarks          Benchmarks
}

// DefaultConfig returns thresholds 70/85 and HIPAA, CMS and FDA as mandatory.
func DefaultConfig() Config {
	return Config{
		LowConfidence:       70,
		HighConfidence:      85,
		MandatoryFrameworks: []string{"HIPAA", "CMS", "FDA"},
		Benchmarks:          DefaultBenchmarks(),
	}
}

// Input is what the synthesizer needs for one claim. Either AI side may be nil.
type Input struct {
	Claim      *models.Claim
	Reasoning  *orchestrator.ReasoningResponse
	Compliance *orchestrator.ComplianceResponse
	AICostUSD  float64
	Elapsed    time.Duration
}

// FromOutcome builds an Input from an orchestration outcome.
func FromOutcome(claim *models.Claim, out *orchestrator.Outcome) Input {
	return Input{
		Claim:      claim,
		Reasoning:  out.Reasoning,
		Compliance: out.Compliance,
		AICostUSD:  out.CostUSD,
		Elapsed:    out.Elapsed,
	}
}

// Synthesizer produces results for one session. Result identifiers come from
// a session-local daily sequence.
type Synthesizer struct {
	cfg       Config
	mandatory map[string]struct{}

	mu  sync.Mutex
	seq int
}

// New validates cfg and returns a Synthesizer.
func New(cfg Config) (*Synthesizer, error) {
	if cfg.LowConfidence < 0 || cfg.HighConfidence > 100 || cfg.LowConfidence >= cfg.HighConfidence {
		return nil, fmt.Errorf("invalid confidence thresholds %.1f/%.1f", cfg.LowConfidence, cfg.HighConfidence)
	}
	if cfg.Benchmarks.ManualReviewCostUSD <= 0 || cfg.Benchmarks.ManualReviewTime <= 0 {
		return nil, fmt.Errorf("benchmarks must be positive")
	}
	frameworks := pkgstrings.DedupeAndTrimUpper(cfg.MandatoryFrameworks)
	mandatory := make(map[string]struct{}, len(frameworks))
	for _, f := range frameworks {
		mandatory[f] = struct{}{}
	}
	return &Synthesizer{cfg: cfg, mandatory: mandatory}, nil
}

// Synthesize applies the decision table. It fails with CodeSynthesisIncomplete
// when either AI output is missing; use Partial for those claims.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (*models.ValidationResult, error) {
	if in.Claim == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "claim is required for synthesis")
	}
	if missing := missingSides(in); len(missing) > 0 {
		return nil, dErrors.New(dErrors.CodeSynthesisIncomplete, "missing "+strings.Join(missing, " and ")+" output").
			WithDetail("claim_id", in.Claim.ID).
			WithDetail("missing", missing)
	}

	checks := append([]models.ComplianceCheck(nil), in.Compliance.Checks...)
	f := s.facts(in.Reasoning.Confidence, checks)
	rule := decide(f)
	metrics, costReduction := s.cfg.Benchmarks.businessMetrics(
		in.Claim.RequestedAmount, in.Reasoning.Confidence, in.AICostUSD, in.Elapsed, rule.review)

	id, err := s.nextID(ctx)
	if err != nil {
		return nil, err
	}
	return &models.ValidationResult{
		ID:                    id,
		ClaimID:               in.Claim.ID,
		Decision:              rule.decision,
		ConfidenceScore:       in.Reasoning.Confidence,
		CostReductionEstimate: costReduction,
		ProcessingTime:        in.Elapsed,
		AIReasoning:           in.Reasoning.Reasoning,
		ComplianceChecks:      checks,
		RequiresHumanReview:   rule.review,
		BusinessMetrics:       metrics,
		AICost:                in.AICostUSD,
		CreatedAt:             requestcontext.Now(ctx),
	}, nil
}

// Revise produces a correcting result that supersedes prev. prev is unchanged.
func (s *Synthesizer) Revise(ctx context.Context, prev *models.ValidationResult, in Input) (*models.ValidationResult, error) {
	if prev == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "previous result is required")
	}
	if in.Claim == nil || in.Claim.ID != prev.ClaimID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "revision must target the same claim")
	}
	next, err := s.Synthesize(ctx, in)
	if err != nil {
		return nil, err
	}
	next.Supersedes = prev.ID
	return next, nil
}

// Partial builds a review packet from whatever AI output exists. It never fails.
func (s *Synthesizer) Partial(in Input, reason models.ReviewReason, detail string) *models.ReviewPacket {
	p := &models.ReviewPacket{
		Reason:         reason,
		Detail:         detail,
		AICost:         in.AICostUSD,
		FailedServices: missingSides(in),
	}
	if in.Reasoning != nil {
		c := in.Reasoning.Confidence
		p.Confidence = &c
		p.AIReasoning = in.Reasoning.Reasoning
	}
	if in.Compliance != nil {
		p.ComplianceChecks = append([]models.ComplianceCheck(nil), in.Compliance.Checks...)
	}
	return p
}

func (s *Synthesizer) facts(confidence float64, checks []models.ComplianceCheck) facts {
	f := facts{
		confidence: confidence,
		total:      len(checks),
		low:        s.cfg.LowConfidence,
		high:       s.cfg.HighConfidence,
	}
	for _, c := range checks {
		if c.Passed {
			f.passed++
			continue
		}
		if _, ok := s.mandatory[strings.ToUpper(c.RegulatoryFramework)]; ok {
			f.mandatoryFailed = true
		}
	}
	return f
}

func (s *Synthesizer) nextID(ctx context.Context) (models.ResultID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq >= models.MaxDailySequence {
		return "", dErrors.New(dErrors.CodeInternal, "result id sequence exhausted for this session")
	}
	s.seq++
	return models.FormatResultID(requestcontext.Now(ctx), s.seq), nil
}

func missingSides(in Input) []string {
	var missing []string
	if in.Reasoning == nil {
		missing = append(missing, orchestrator.ServiceReasoning)
	}
	if in.Compliance == nil {
		missing = append(missing, orchestrator.ServiceCompliance)
	}
	return missing
}
