// Package audit records what happened to sessions and claims so every decision
// can be traced after the fact. Events never carry raw patient identifiers.
package audit

import (
	"context"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// EventCategory classifies audit events by retention and routing needs.
type EventCategory string

const (
	// CategoryCompliance covers claim decisions and budget stops. These are kept
	// for regulatory review.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers integrity failures and auth problems.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine session activity.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	// Session events
	EventSessionStarted AuditEvent = "session_started"
	EventSessionClosed  AuditEvent = "session_closed"
	EventSessionFailed  AuditEvent = "session_failed"

	// Claim events
	EventClaimSubmitted      AuditEvent = "claim_submitted"
	EventClaimRejected       AuditEvent = "claim_rejected"
	EventClaimDecided        AuditEvent = "claim_decided"
	EventClaimReviewRequired AuditEvent = "claim_review_required"

	// Budget events
	EventBudgetWarning       AuditEvent = "budget_warning"
	EventBudgetHardCap       AuditEvent = "budget_hard_cap"
	EventBudgetOverrun       AuditEvent = "budget_overrun"
	EventBudgetInconsistency AuditEvent = "budget_inconsistency"

	// Access events
	EventAuthFailed AuditEvent = "auth_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventClaimDecided:        CategoryCompliance,
	EventClaimReviewRequired: CategoryCompliance,
	EventBudgetHardCap:       CategoryCompliance,
	EventBudgetOverrun:       CategoryCompliance,

	EventBudgetInconsistency: CategorySecurity,
	EventSessionFailed:       CategorySecurity,
	EventAuthFailed:          CategorySecurity,

	EventSessionStarted: CategoryOperations,
	EventSessionClosed:  CategoryOperations,
	EventClaimSubmitted: CategoryOperations,
	EventClaimRejected:  CategoryOperations,
	EventBudgetWarning:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from the pipeline at each audit-worthy step. It is
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID          string        `json:"id"`
	Category    EventCategory `json:"category"`
	Timestamp   time.Time     `json:"timestamp"`
	SessionID   string        `json:"session_id"`
	ExecutiveID string        `json:"executive_id,omitempty"`
	Action      string        `json:"action"`
	ClaimID     string        `json:"claim_id,omitempty"`
	// PatientRefHash is HashPatientRef of the claim's patient id.
	PatientRefHash string  `json:"patient_ref_hash,omitempty"`
	Decision       string  `json:"decision,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	AmountUSD      float64 `json:"amount_usd,omitempty"`
	RequestID      string  `json:"request_id,omitempty"`
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader lists a session's events in emission order.
type Reader interface {
	ListBySession(ctx context.Context, sessionID string) ([]Event, error)
}

// HashPatientRef returns the hex BLAKE2b-256 digest of a patient reference.
func HashPatientRef(ref string) string {
	if ref == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:])
}
