package models

import (
	"time"

	claims "claimguard/internal/claims/models"
)

// ClaimRecord is what a finished claim contributes to the session aggregates.
type ClaimRecord struct {
	ClaimID        claims.ClaimID
	Status         claims.ClaimStatus
	Result         *claims.ValidationResult
	ReviewReason   claims.ReviewReason
	ProcessingTime time.Duration
	// Counted is false for claims that never reached the AI services.
	Counted bool
	// AdmissionDenied marks a claim whose budget reservation was refused. It
	// does not count toward the session claim limit.
	AdmissionDenied bool
}

// Summary is the executive dashboard view of a session.
type Summary struct {
	SessionID          SessionID `json:"session_id"`
	Status             Status    `json:"status"`
	DurationMinutes    float64   `json:"duration_minutes"`
	ClaimsProcessed    int       `json:"claims_processed"`
	HumanReviewCount   int       `json:"human_review_count"`
	TotalCostUSD       float64   `json:"total_cost_usd"`
	CostPerClaimUSD    float64   `json:"cost_per_claim_usd"`
	BudgetRemainingUSD float64   `json:"budget_remaining_usd"`
	CostReductionPct   float64   `json:"cost_reduction_pct"`
	TimeSavingsPct     float64   `json:"time_savings_pct"`
	ComplianceScore    float64   `json:"compliance_score"`
	SystemHealth       string    `json:"system_health"`
}

const (
	HealthHealthy        = "healthy"
	HealthIssuesDetected = "issues_detected"
)

// Summarize derives the dashboard summary as of now.
func Summarize(s DemonstrationSession, now time.Time) Summary {
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	perClaim := 0.0
	if s.ClaimsProcessed > 0 {
		perClaim = round(s.TotalCostUSD/float64(s.ClaimsProcessed), 3)
	}
	health := HealthIssuesDetected
	if s.InfrastructureStatus.Healthy() {
		health = HealthHealthy
	}
	return Summary{
		SessionID:          s.ID,
		Status:             s.Status,
		DurationMinutes:    round(end.Sub(s.StartedAt).Minutes(), 1),
		ClaimsProcessed:    s.ClaimsProcessed,
		HumanReviewCount:   s.HumanReviewCount,
		TotalCostUSD:       round(s.TotalCostUSD, 2),
		CostPerClaimUSD:    perClaim,
		BudgetRemainingUSD: round(s.Budget.HardCap-s.TotalCostUSD, 2),
		CostReductionPct:   round(s.PresentationMetrics.CostReductionPct, 1),
		TimeSavingsPct:     round(s.PresentationMetrics.TimeReductionPct, 1),
		ComplianceScore:    round(s.PresentationMetrics.ComplianceScore, 1),
		SystemHealth:       health,
	}
}

func round(v float64, places int) float64 {
	p := 1.0
	for range places {
		p *= 10
	}
	if v < 0 {
		return -float64(int64(-v*p+0.5)) / p
	}
	return float64(int64(v*p+0.5)) / p
}
