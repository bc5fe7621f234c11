package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"claimguard/internal/budget"
)

// SessionID has the form DEMO_YYYYMMDD_<EXEC>.
type SessionID string

func (id SessionID) String() string { return string(id) }

// Status is the session lifecycle position.
//
//	ready -> processing -> complete
//	ready | processing -> error
type Status string

const (
	StatusReady      Status = "ready"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// IsTerminal reports whether the session admits no more claims.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// PresentationMetrics are rolling aggregates over every result in the session.
type PresentationMetrics struct {
	CostReductionPct       float64 `json:"cost_reduction_pct"`
	TimeReductionPct       float64 `json:"time_reduction_pct"`
	AccuracyImprovementPct float64 `json:"accuracy_improvement_pct"`
	// ComplianceScore is the percentage of compliance checks passed across all results.
	ComplianceScore float64 `json:"compliance_score"`
}

// InfrastructureStatus is the last health probe of the session's dependencies.
type InfrastructureStatus struct {
	StoreOnline         bool      `json:"store_online"`
	ReasoningConnected  bool      `json:"reasoning_connected"`
	ComplianceConnected bool      `json:"compliance_connected"`
	AuditOnline         bool      `json:"audit_online"`
	LastHealthCheck     time.Time `json:"last_health_check"`
}

// Healthy reports whether every dependency answered.
func (s InfrastructureStatus) Healthy() bool {
	return s.StoreOnline && s.ReasoningConnected && s.ComplianceConnected && s.AuditOnline
}

// DemonstrationSession is a read-only snapshot of one session. Only the
// session machine produces these.
type DemonstrationSession struct {
	ID                SessionID     `json:"session_id"`
	ExecutiveID       string        `json:"executive_id"`
	Status            Status        `json:"status"`
	StartedAt         time.Time     `json:"started_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	TotalCostUSD      float64       `json:"total_cost_usd"`
	ClaimsProcessed   int           `json:"claims_processed"`
	ClaimsInFlight    int           `json:"claims_in_flight"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
	// HumanReviewCount counts claims routed to a person for any reason.
	HumanReviewCount int            `json:"human_review_count"`
	Decisions        map[string]int `json:"decisions"`

	PresentationMetrics  PresentationMetrics  `json:"presentation_metrics"`
	InfrastructureStatus InfrastructureStatus `json:"infrastructure_status"`
	Budget               budget.Snapshot      `json:"budget"`
	BudgetAlerts         []budget.Event       `json:"budget_alerts,omitempty"`
	ErrorReason          string               `json:"error_reason,omitempty"`
}

// Clone returns a deep copy.
func (s DemonstrationSession) Clone() DemonstrationSession {
	cp := s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Decisions = make(map[string]int, len(s.Decisions))
	for k, v := range s.Decisions {
		cp.Decisions[k] = v
	}
	cp.BudgetAlerts = append([]budget.Event(nil), s.BudgetAlerts...)
	return cp
}

var execCleaner = regexp.MustCompile(`[^A-Z0-9]`)

// maxExecLen caps the executive segment of a session id.
const maxExecLen = 6

// ExecutiveSegment upper-cases executiveID, strips everything but A-Z and
// 0-9, and keeps the first six characters. It returns "" when nothing is left.
func ExecutiveSegment(executiveID string) string {
	seg := execCleaner.ReplaceAllString(strings.ToUpper(executiveID), "")
	if len(seg) > maxExecLen {
		seg = seg[:maxExecLen]
	}
	return seg
}

// FormatSessionID builds DEMO_<yyyymmdd>_<segment>. attempt > 1 appends a
// two-digit disambiguator so repeated sessions on one day stay unique.
func FormatSessionID(day time.Time, segment string, attempt int) SessionID {
	id := fmt.Sprintf("DEMO_%s_%s", day.Format("20060102"), segment)
	if attempt > 1 {
		id += fmt.Sprintf("%02d", attempt)
	}
	return SessionID(id)
}
