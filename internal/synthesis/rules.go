package synthesis

import "claimguard/internal/claims/models"

// facts are the inputs every decision rule sees.
type facts struct {
	confidence      float64
	total           int
	passed          int
	mandatoryFailed bool
	low             float64
	high            float64
}

func (f facts) allPassed() bool  { return f.total > 0 && f.passed == f.total }
func (f facts) somePassed() bool { return f.passed > 0 && f.passed < f.total }

// decisionRule is one row of the decision table. Rows are evaluated in order
// and the first match wins.
type decisionRule struct {
	name     string
	matches  func(f facts) bool
	decision models.Decision
	review   bool
}

var decisionTable = []decisionRule{
	{
		name:     "mandatory_framework_failed",
		matches:  func(f facts) bool { return f.mandatoryFailed },
		decision: models.DecisionComplianceViolation,
		review:   true,
	},
	{
		name:     "low_confidence",
		matches:  func(f facts) bool { return f.confidence <= f.low },
		decision: models.DecisionInsufficientData,
		review:   true,
	},
	{
		name:     "clean_high_confidence",
		matches:  func(f facts) bool { return f.allPassed() && f.confidence >= f.high },
		decision: models.DecisionApproved,
	},
	{
		name:     "clean_moderate_confidence",
		matches:  func(f facts) bool { return f.allPassed() },
		decision: models.DecisionApproved,
		review:   true,
	},
	{
		name:     "partial_compliance",
		matches:  func(f facts) bool { return f.somePassed() },
		decision: models.DecisionPartialApproval,
	},
	{
		name:     "fallthrough",
		matches:  func(facts) bool { return true },
		decision: models.DecisionDenied,
	},
}

func decide(f facts) decisionRule {
	for _, r := range decisionTable {
		if r.matches(f) {
			return r
		}
	}
	return decisionTable[len(decisionTable)-1]
}
