package models

import (
	"time"

	dErrors "claimguard/pkg/domain-errors"
)

// ClaimID has the form CLAIM_YYYYMMDD_NNN.
type ClaimID string

func (id ClaimID) String() string { return string(id) }

// Claim is a healthcare insurance claim moving through validation.
//
// Invariants:
//   - ProcedureCode matches ^\d{5}$ and DiagnosisCode matches ^[A-Z]\d{2}\.\d$
//   - RequestedAmount is positive
//   - Status changes only through Transition and never leaves a terminal status
type Claim struct {
	ID                  ClaimID     `json:"claim_id"`
	PatientRef          string      `json:"patient_ref"`
	ProviderRef         string      `json:"provider_ref"`
	ServiceDate         time.Time   `json:"service_date"`
	ProcedureCode       string      `json:"procedure_code"`
	DiagnosisCode       string      `json:"diagnosis_code"`
	RequestedAmount     float64     `json:"requested_amount"`
	Priority            Priority    `json:"priority"`
	MedicalContext      string      `json:"medical_context,omitempty"`
	SupportingDocuments []string    `json:"supporting_documents,omitempty"`
	Status              ClaimStatus `json:"status"`
	SubmittedAt         time.Time   `json:"submitted_at"`
	UpdatedAt           time.Time   `json:"updated_at"`

	// ReviewPacket is set when the claim was routed to a human without a
	// synthesized result (budget denial or AI unavailability).
	ReviewPacket *ReviewPacket `json:"review_packet,omitempty"`
}

// Transition moves the claim to next. Once terminal, every call fails.
func (c *Claim) Transition(next ClaimStatus, now time.Time) error {
	if c.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "claim already reached terminal status "+string(c.Status)).
			WithDetail("claim_id", c.ID)
	}
	if !c.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation, "illegal claim transition "+string(c.Status)+" -> "+string(next)).
			WithDetail("claim_id", c.ID)
	}
	c.Status = next
	c.UpdatedAt = now
	return nil
}

// Clone returns a deep copy safe to hand outside the owning goroutine.
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	cp := *c
	cp.SupportingDocuments = append([]string(nil), c.SupportingDocuments...)
	if c.ReviewPacket != nil {
		rp := c.ReviewPacket.clone()
		cp.ReviewPacket = &rp
	}
	return &cp
}

// FieldViolation is one failed intake rule.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}
