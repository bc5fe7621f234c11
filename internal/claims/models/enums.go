package models

// Priority drives cost estimation multipliers.
type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityRoutine, PriorityUrgent, PriorityEmergency:
		return true
	}
	return false
}

// ClaimStatus is the claim lifecycle position.
//
//	submitted -> processing -> ai_review -> {approved | denied | requires_human_review}
//
// processing may also go straight to requires_human_review when the budget
// denies the reservation, and submitted may go to denied when the session
// ends before the claim was admitted.
type ClaimStatus string

const (
	ClaimStatusSubmitted           ClaimStatus = "submitted"
	ClaimStatusProcessing          ClaimStatus = "processing"
	ClaimStatusAIReview            ClaimStatus = "ai_review"
	ClaimStatusApproved            ClaimStatus = "approved"
	ClaimStatusDenied              ClaimStatus = "denied"
	ClaimStatusRequiresHumanReview ClaimStatus = "requires_human_review"
)

var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimStatusSubmitted:  {ClaimStatusProcessing, ClaimStatusRequiresHumanReview, ClaimStatusDenied},
	ClaimStatusProcessing: {ClaimStatusAIReview, ClaimStatusRequiresHumanReview},
	ClaimStatusAIReview:   {ClaimStatusApproved, ClaimStatusDenied, ClaimStatusRequiresHumanReview},
}

// IsTerminal reports whether no further transition is allowed.
func (s ClaimStatus) IsTerminal() bool {
	switch s {
	case ClaimStatusApproved, ClaimStatusDenied, ClaimStatusRequiresHumanReview:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ClaimStatus) CanTransitionTo(next ClaimStatus) bool {
	for _, allowed := range claimTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Decision is the synthesized outcome of a claim review.
type Decision string

const (
	DecisionApproved            Decision = "approved"
	DecisionDenied              Decision = "denied"
	DecisionPartialApproval     Decision = "partial_approval"
	DecisionComplianceViolation Decision = "compliance_violation"
	DecisionInsufficientData    Decision = "insufficient_data"
)

// TerminalStatus maps a decision onto the claim's final status.
// requiresHumanReview takes precedence over the decision itself.
func (d Decision) TerminalStatus(requiresHumanReview bool) ClaimStatus {
	if requiresHumanReview {
		return ClaimStatusRequiresHumanReview
	}
	switch d {
	case DecisionApproved, DecisionPartialApproval:
		return ClaimStatusApproved
	default:
		return ClaimStatusDenied
	}
}
