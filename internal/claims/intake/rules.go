package intake

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"claimguard/internal/claims/models"
)

var (
	procedureCodePattern = regexp.MustCompile(`^\d{5}$`)
	diagnosisCodePattern = regexp.MustCompile(`^[A-Z]\d{2}\.\d$`)
	claimIDPattern       = regexp.MustCompile(`^CLAIM_\d{8}_\d{3}$`)
)

// Rule inspects a normalized input and returns a violation or nil.
type Rule func(in *ClaimInput, now time.Time) *models.FieldViolation

// DefaultMaxAmount is the largest claim amount accepted for automated review.
const DefaultMaxAmount = 50000.0

// DefaultRules returns the intake rules in evaluation order.
func DefaultRules(maxAmount float64) []Rule {
	return []Rule{
		requireClaimIDFormat,
		requireNonEmpty("patient_ref", func(in *ClaimInput) string { return in.PatientRef }),
		requireNonEmpty("provider_ref", func(in *ClaimInput) string { return in.ProviderRef }),
		requireServiceDate,
		requirePattern("procedure_code", procedureCodePattern, "must be 5 digits",
			func(in *ClaimInput) string { return in.ProcedureCode }),
		requirePattern("diagnosis_code", diagnosisCodePattern, "must look like A12.3",
			func(in *ClaimInput) string { return in.DiagnosisCode }),
		requireAmount(maxAmount),
		requirePriority,
	}
}

func requireClaimIDFormat(in *ClaimInput, _ time.Time) *models.FieldViolation {
	if in.ClaimID == "" || claimIDPattern.MatchString(in.ClaimID) {
		return nil
	}
	return &models.FieldViolation{Field: "claim_id", Reason: "must match CLAIM_YYYYMMDD_NNN"}
}

func requireNonEmpty(field string, get func(*ClaimInput) string) Rule {
	return func(in *ClaimInput, _ time.Time) *models.FieldViolation {
		if strings.TrimSpace(get(in)) == "" {
			return &models.FieldViolation{Field: field, Reason: "is required"}
		}
		return nil
	}
}

func requirePattern(field string, re *regexp.Regexp, reason string, get func(*ClaimInput) string) Rule {
	return func(in *ClaimInput, _ time.Time) *models.FieldViolation {
		if !re.MatchString(get(in)) {
			return &models.FieldViolation{Field: field, Reason: reason}
		}
		return nil
	}
}

func requireServiceDate(in *ClaimInput, now time.Time) *models.FieldViolation {
	if in.ServiceDate == "" {
		return &models.FieldViolation{Field: "service_date", Reason: "is required"}
	}
	d, err := time.Parse(time.DateOnly, in.ServiceDate)
	if err != nil {
		return &models.FieldViolation{Field: "service_date", Reason: "must be YYYY-MM-DD"}
	}
	if d.After(now) {
		return &models.FieldViolation{Field: "service_date", Reason: "must not be in the future"}
	}
	return nil
}

func requireAmount(maxAmount float64) Rule {
	return func(in *ClaimInput, _ time.Time) *models.FieldViolation {
		switch {
		case in.RequestedAmount <= 0:
			return &models.FieldViolation{Field: "requested_amount", Reason: "must be positive"}
		case in.RequestedAmount > maxAmount:
			return &models.FieldViolation{Field: "requested_amount", Reason: fmt.Sprintf("must not exceed %.2f", maxAmount)}
		}
		return nil
	}
}

func requirePriority(in *ClaimInput, _ time.Time) *models.FieldViolation {
	if !models.Priority(in.Priority).IsValid() {
		return &models.FieldViolation{Field: "priority", Reason: "must be routine, urgent or emergency"}
	}
	return nil
}
