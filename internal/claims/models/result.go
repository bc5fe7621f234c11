package models

import "time"

// ResultID has the form RESULT_YYYYMMDD_NNN.
type ResultID string

func (id ResultID) String() string { return string(id) }

// ComplianceCheck is one regulatory check reported by the compliance service.
type ComplianceCheck struct {
	CheckType           string `json:"check_type"`
	Passed              bool   `json:"passed"`
	Details             string `json:"details"`
	RegulatoryFramework string `json:"regulatory_framework"`
}

// BusinessMetrics quantifies the automation benefit of a single claim.
type BusinessMetrics struct {
	ManualReviewCostAvoided    float64 `json:"manual_review_cost_avoided"`
	ProcessingTimeReductionPct float64 `json:"processing_time_reduction_pct"`
	AccuracyImprovementPct     float64 `json:"accuracy_improvement_pct"`
}

// ValidationResult is the synthesized review of one claim. It is never mutated
// after creation; a correction is a new result naming the one it supersedes.
type ValidationResult struct {
	ID                    ResultID          `json:"result_id"`
	ClaimID               ClaimID           `json:"claim_id"`
	Decision              Decision          `json:"decision"`
	ConfidenceScore       float64           `json:"confidence_score"`
	CostReductionEstimate float64           `json:"cost_reduction_estimate"`
	ProcessingTime        time.Duration     `json:"processing_time"`
	AIReasoning           string            `json:"ai_reasoning"`
	ComplianceChecks      []ComplianceCheck `json:"compliance_checks"`
	RequiresHumanReview   bool              `json:"requires_human_review"`
	BusinessMetrics       BusinessMetrics   `json:"business_metrics"`
	AICost                float64           `json:"ai_cost"`
	CreatedAt             time.Time         `json:"created_at"`
	Supersedes            ResultID          `json:"supersedes,omitempty"`
}

// Checks returns a copy of the attached compliance checks.
func (r *ValidationResult) Checks() []ComplianceCheck {
	return append([]ComplianceCheck(nil), r.ComplianceChecks...)
}

// PassedChecks counts passing checks.
func (r *ValidationResult) PassedChecks() int {
	n := 0
	for _, c := range r.ComplianceChecks {
		if c.Passed {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (r *ValidationResult) Clone() *ValidationResult {
	if r == nil {
		return nil
	}
	cp := *r
	cp.ComplianceChecks = r.Checks()
	return &cp
}

// ReviewReason explains why a claim went to a human without a result.
type ReviewReason string

const (
	ReviewReasonBudgetExhausted   ReviewReason = "budget_exhausted"
	ReviewReasonAIUnavailable     ReviewReason = "ai_service_unavailable"
	ReviewReasonSynthesisPartial  ReviewReason = "synthesis_incomplete"
	ReviewReasonSessionTerminated ReviewReason = "session_terminated"
)

// ReviewPacket carries whatever partial AI output exists for a human reviewer.
type ReviewPacket struct {
	Reason           ReviewReason      `json:"reason"`
	Detail           string            `json:"detail"`
	Confidence       *float64          `json:"confidence,omitempty"`
	AIReasoning      string            `json:"ai_reasoning,omitempty"`
	ComplianceChecks []ComplianceCheck `json:"compliance_checks,omitempty"`
	FailedServices   []string          `json:"failed_services,omitempty"`
	AICost           float64           `json:"ai_cost"`
}

func (p ReviewPacket) clone() ReviewPacket {
	cp := p
	cp.ComplianceChecks = append([]ComplianceCheck(nil), p.ComplianceChecks...)
	cp.FailedServices = append([]string(nil), p.FailedServices...)
	if p.Confidence != nil {
		v := *p.Confidence
		cp.Confidence = &v
	}
	return cp
}
