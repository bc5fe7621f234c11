// Package simulated provides deterministic stand-ins for the reasoning and
// compliance services. They drive the demo command and pipeline tests.
package simulated

import (
	"context"
	"fmt"
	"strings"
	"time"

	"claimguard/internal/budget"
	"claimguard/internal/orchestrator"
)

type scenario struct {
	name       string
	confidence float64
	verdict    string
	findings   []string
}

var (
	preventive = scenario{
		name:       "preventive care",
		confidence: 88,
		verdict:    "APPROVED",
		findings: []string{
			"Procedure aligns with preventive screening recommendations",
			"Cost-effective approach to disease prevention",
		},
	}
	standard = scenario{
		name:       "standard treatment",
		confidence: 82.5,
		verdict:    "APPROVED",
		findings: []string{
			"Procedure directly addresses the diagnosed condition",
			"Cost aligns with typical reimbursement patterns",
		},
	}
	complexCase = scenario{
		name:       "complex case",
		confidence: 65.8,
		verdict:    "REQUIRES_REVIEW",
		findings: []string{
			"Diagnosis and procedure alignment needs verification",
			"Cost exceeds the typical range for this procedure",
		},
	}
)

// selectScenario picks the scenario from the procedure code and amount:
// E/M codes (99xxx) are standard under $500 and complex above, codes starting
// with 0 are preventive, and anything else over $1000 is complex.
func selectScenario(procedure string, amount float64) scenario {
	switch {
	case strings.HasPrefix(procedure, "99"):
		if amount < 500 {
			return standard
		}
		return complexCase
	case strings.HasPrefix(procedure, "0"):
		return preventive
	case amount > 1000:
		return complexCase
	default:
		return standard
	}
}

// Reasoner implements orchestrator.ReasoningService.
type Reasoner struct {
	latency time.Duration
	faults  *Faults
}

type Option func(*options)

type options struct {
	latency time.Duration
	faults  *Faults
}

// WithLatency delays every successful call.
func WithLatency(d time.Duration) Option {
	return func(o *options) {
		o.latency = d
	}
}

// WithFaults attaches a failure script.
func WithFaults(f *Faults) Option {
	return func(o *options) {
		o.faults = f
	}
}

func apply(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewReasoner(opts ...Option) *Reasoner {
	o := apply(opts)
	return &Reasoner{latency: o.latency, faults: o.faults}
}

func (r *Reasoner) Reason(ctx context.Context, req orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
	if err := r.faults.next(ctx, orchestrator.ServiceReasoning, req.ClaimID); err != nil {
		return nil, err
	}
	if err := wait(ctx, r.latency); err != nil {
		return nil, err
	}

	s := selectScenario(req.ProcedureCode, req.RequestedAmount)
	var b strings.Builder
	fmt.Fprintf(&b, "%s: procedure %s for diagnosis %s ($%.2f).\n",
		strings.ToUpper(s.name), req.ProcedureCode, req.DiagnosisCode, req.RequestedAmount)
	for _, f := range s.findings {
		b.WriteString("- " + f + "\n")
	}
	fmt.Fprintf(&b, "Recommendation: %s\nConfidence: %.1f", s.verdict, s.confidence)

	return &orchestrator.ReasoningResponse{
		Confidence: s.confidence,
		Reasoning:  b.String(),
		Model:      "simulated",
		CostUSD:    budget.ReasoningBaseCost + float64(len(req.MedicalContext))/1000*budget.ReasoningPerKChar,
		Latency:    r.latency,
	}, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Ping always succeeds.
func (r *Reasoner) Ping(context.Context) error { return nil }
