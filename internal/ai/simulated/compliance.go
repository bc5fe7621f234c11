package simulated

import (
	"context"
	"time"

	"claimguard/internal/budget"
	"claimguard/internal/claims/models"
	"claimguard/internal/orchestrator"
)

// minNecessityContext is the clinical context length that establishes
// medical necessity.
const minNecessityContext = 50

// Compliance implements orchestrator.ComplianceService.
type Compliance struct {
	latency time.Duration
	faults  *Faults
}

func NewCompliance(opts ...Option) *Compliance {
	o := apply(opts)
	return &Compliance{latency: o.latency, faults: o.faults}
}

// Check reports HIPAA privacy, medical necessity and CMS guideline checks.
// Medical necessity passes only with more than 50 characters of context.
func (c *Compliance) Check(ctx context.Context, req orchestrator.ComplianceRequest) (*orchestrator.ComplianceResponse, error) {
	if err := c.faults.next(ctx, orchestrator.ServiceCompliance, req.ClaimID); err != nil {
		return nil, err
	}
	if err := wait(ctx, c.latency); err != nil {
		return nil, err
	}

	necessary := len(req.MedicalContext) > minNecessityContext
	necessity := "Medical necessity requires additional documentation"
	if necessary {
		necessity = "Medical necessity established from clinical context"
	}

	return &orchestrator.ComplianceResponse{
		Checks: []models.ComplianceCheck{
			{
				CheckType:           "HIPAA_PRIVACY",
				Passed:              true,
				Details:             "Patient identifiers de-identified under Safe Harbor",
				RegulatoryFramework: "HIPAA",
			},
			{
				CheckType:           "MEDICAL_NECESSITY",
				Passed:              necessary,
				Details:             necessity,
				RegulatoryFramework: "CMS",
			},
			{
				CheckType:           "CMS_GUIDELINES",
				Passed:              true,
				Details:             "Procedure and diagnosis codes valid and matched",
				RegulatoryFramework: "CMS",
			},
		},
		CostUSD: budget.ComplianceCostPerCheck,
		Latency: c.latency,
	}, nil
}

// Ping always succeeds.
func (c *Compliance) Ping(context.Context) error { return nil }
