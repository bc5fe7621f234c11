// Package intake validates and normalizes raw claim submissions for one session.
package intake

import (
	"context"
	"strings"
	"sync"
	"time"

	"claimguard/internal/claims/models"
	dErrors "claimguard/pkg/domain-errors"
	"claimguard/pkg/requestcontext"
)

// ClaimInput is a raw claim submission.
type ClaimInput struct {
	ClaimID             string   `json:"claim_id,omitempty"        yaml:"claim_id"`
	PatientRef          string   `json:"patient_ref"               yaml:"patient_ref"`
	ProviderRef         string   `json:"provider_ref"              yaml:"provider_ref"`
	ServiceDate         string   `json:"service_date"              yaml:"service_date"`
	ProcedureCode       string   `json:"procedure_code"            yaml:"procedure_code"`
	DiagnosisCode       string   `json:"diagnosis_code"            yaml:"diagnosis_code"`
	RequestedAmount     float64  `json:"requested_amount"          yaml:"requested_amount"`
	Priority            string   `json:"priority,omitempty"        yaml:"priority"`
	MedicalContext      string   `json:"medical_context,omitempty" yaml:"medical_context"`
	SupportingDocuments []string `json:"supporting_documents,omitempty" yaml:"supporting_documents"`
}

// Validator accepts claims for a single session and remembers every
// identifier it has handed out or seen.
type Validator struct {
	mu    sync.Mutex
	seen  map[models.ClaimID]struct{}
	next  int
	rules []Rule
}

// Option configures a Validator.
type Option func(*Validator)

// WithRules replaces the default rule list.
func WithRules(rules ...Rule) Option {
	return func(v *Validator) {
		v.rules = rules
	}
}

// NewValidator creates a validator with the default rules.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		seen:  make(map[models.ClaimID]struct{}),
		next:  1,
		rules: DefaultRules(DefaultMaxAmount),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Accept validates in and returns a submitted claim. The identifier is
// registered only on success, so a rejected claim can be resubmitted.
func (v *Validator) Accept(ctx context.Context, in ClaimInput) (*models.Claim, error) {
	now := requestcontext.Now(ctx)
	normalize(&in)

	var violations []models.FieldViolation
	for _, rule := range v.rules {
		if fv := rule(&in, now); fv != nil {
			violations = append(violations, *fv)
		}
	}
	if len(violations) > 0 {
		return nil, dErrors.New(dErrors.CodeInvalidClaimFormat, formatViolations(violations)).
			WithDetail("violations", violations)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	claimID := models.ClaimID(in.ClaimID)
	if claimID == "" {
		generated, err := v.generateLocked(now)
		if err != nil {
			return nil, err
		}
		claimID = generated
	} else if _, dup := v.seen[claimID]; dup {
		return nil, dErrors.New(dErrors.CodeDuplicateClaimID, "claim id already submitted in this session").
			WithDetail("claim_id", claimID)
	}
	v.seen[claimID] = struct{}{}

	serviceDate, _ := time.Parse(time.DateOnly, in.ServiceDate)
	return &models.Claim{
		ID:                  claimID,
		PatientRef:          in.PatientRef,
		ProviderRef:         in.ProviderRef,
		ServiceDate:         serviceDate,
		ProcedureCode:       in.ProcedureCode,
		DiagnosisCode:       in.DiagnosisCode,
		RequestedAmount:     in.RequestedAmount,
		Priority:            models.Priority(in.Priority),
		MedicalContext:      in.MedicalContext,
		SupportingDocuments: append([]string(nil), in.SupportingDocuments...),
		Status:              models.ClaimStatusSubmitted,
		SubmittedAt:         now,
		UpdatedAt:           now,
	}, nil
}

// Seen reports whether id has been registered.
func (v *Validator) Seen(id models.ClaimID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[id]
	return ok
}

// generateLocked returns the next unused identifier for today's date,
// skipping any the caller already supplied.
func (v *Validator) generateLocked(now time.Time) (models.ClaimID, error) {
	for ; v.next <= models.MaxDailySequence; v.next++ {
		id := models.FormatClaimID(now, v.next)
		if _, taken := v.seen[id]; !taken {
			v.next++
			return id, nil
		}
	}
	return "", dErrors.New(dErrors.CodeInvalidClaimFormat, "claim id sequence exhausted for this session")
}

func normalize(in *ClaimInput) {
	in.ClaimID = strings.TrimSpace(in.ClaimID)
	in.PatientRef = strings.TrimSpace(in.PatientRef)
	in.ProviderRef = strings.TrimSpace(in.ProviderRef)
	in.ServiceDate = strings.TrimSpace(in.ServiceDate)
	in.ProcedureCode = strings.TrimSpace(in.ProcedureCode)
	in.DiagnosisCode = strings.ToUpper(strings.TrimSpace(in.DiagnosisCode))
	in.Priority = strings.ToLower(strings.TrimSpace(in.Priority))
	if in.Priority == "" {
		in.Priority = string(models.PriorityRoutine)
	}
	in.MedicalContext = strings.TrimSpace(in.MedicalContext)
}

func formatViolations(vs []models.FieldViolation) string {
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		parts = append(parts, v.Field+" "+v.Reason)
	}
	return "invalid claim: " + strings.Join(parts, "; ")
}
