package orchestrator

import (
	"context"
	"time"

	"claimguard/internal/budget"
	"claimguard/internal/claims/models"
)

// Service names used in errors, metrics and review packets.
const (
	ServiceReasoning  = "reasoning"
	ServiceCompliance = "compliance"
)

// ReasoningRequest is the claim view sent to the medical reasoning model.
type ReasoningRequest struct {
	ClaimID         models.ClaimID
	ProcedureCode   string
	DiagnosisCode   string
	RequestedAmount float64
	Priority        models.Priority
	MedicalContext  string
}

// ReasoningResponse is a successful reasoning call.
type ReasoningResponse struct {
	Confidence float64
	Reasoning  string
	Model      string
	CostUSD    float64
	Latency    time.Duration
}

// ComplianceRequest is the claim view sent to the compliance service.
type ComplianceRequest struct {
	ClaimID         models.ClaimID
	PatientRef      string
	ProviderRef     string
	ProcedureCode   string
	DiagnosisCode   string
	RequestedAmount float64
	MedicalContext  string
	Documents       []string
}

// ComplianceResponse is a successful compliance call.
type ComplianceResponse struct {
	Checks  []models.ComplianceCheck
	CostUSD float64
	Latency time.Duration
}

// ReasoningService is the medical reasoning model.
type ReasoningService interface {
	Reason(ctx context.Context, req ReasoningRequest) (*ReasoningResponse, error)
}

// ComplianceService is the regulatory compliance checker.
type ComplianceService interface {
	Check(ctx context.Context, req ComplianceRequest) (*ComplianceResponse, error)
}

// Settler receives the claim's actual cost exactly once.
type Settler interface {
	Settle(ctx context.Context, allowance *budget.Allowance, actualUSD float64) (*budget.Settlement, error)
}

func reasoningRequest(c *models.Claim) ReasoningRequest {
	return ReasoningRequest{
		ClaimID:         c.ID,
		ProcedureCode:   c.ProcedureCode,
		DiagnosisCode:   c.DiagnosisCode,
		RequestedAmount: c.RequestedAmount,
		Priority:        c.Priority,
		MedicalContext:  c.MedicalContext,
	}
}

func complianceRequest(c *models.Claim) ComplianceRequest {
	return ComplianceRequest{
		ClaimID:         c.ID,
		PatientRef:      c.PatientRef,
		ProviderRef:     c.ProviderRef,
		ProcedureCode:   c.ProcedureCode,
		DiagnosisCode:   c.DiagnosisCode,
		RequestedAmount: c.RequestedAmount,
		MedicalContext:  c.MedicalContext,
		Documents:       append([]string(nil), c.SupportingDocuments...),
	}
}
