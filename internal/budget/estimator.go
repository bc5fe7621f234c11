package budget

import "claimguard/internal/claims/models"

// Per-claim AI cost model, in USD.
const (
	PlatformCostPerClaim    = 0.05
	ReasoningBaseCost       = 0.03
	ReasoningPerKChar       = 0.01
	ComplianceCostPerCheck  = 0.10
	UrgentCostMultiplier    = 1.2
	EmergencyCostMultiplier = 1.5
)

// EstimateClaimCost returns the worst-case spend for a claim when each AI call
// may be attempted up to attempts times.
func EstimateClaimCost(claim *models.Claim, attempts int) float64 {
	if attempts < 1 {
		attempts = 1
	}
	reasoning := ReasoningBaseCost + float64(len(claim.MedicalContext))/1000*ReasoningPerKChar
	perAttempt := reasoning + ComplianceCostPerCheck
	return (PlatformCostPerClaim + perAttempt*float64(attempts)) * priorityMultiplier(claim.Priority)
}

func priorityMultiplier(p models.Priority) float64 {
	switch p {
	case models.PriorityUrgent:
		return UrgentCostMultiplier
	case models.PriorityEmergency:
		return EmergencyCostMultiplier
	default:
		return 1.0
	}
}
