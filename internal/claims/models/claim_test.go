package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "claimguard/pkg/domain-errors"
)

// =============================================================================
// Claim Lifecycle Test Suite
// =============================================================================
// Justification for unit tests: the terminal-once invariant is enforced only
// here, and the pipeline relies on Transition rejecting a second outcome.

type ClaimSuite struct {
	suite.Suite
	now time.Time
}

func TestClaimSuite(t *testing.T) {
	suite.Run(t, new(ClaimSuite))
}

func (s *ClaimSuite) SetupTest() {
	s.now = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
}

func (s *ClaimSuite) newClaim() *Claim {
	return &Claim{ID: FormatClaimID(s.now, 1), Status: ClaimStatusSubmitted, Priority: PriorityRoutine}
}

func (s *ClaimSuite) TestTransition() {
	s.Run("happy path reaches approved", func() {
		c := s.newClaim()
		s.Require().NoError(c.Transition(ClaimStatusProcessing, s.now))
		s.Require().NoError(c.Transition(ClaimStatusAIReview, s.now))
		s.Require().NoError(c.Transition(ClaimStatusApproved, s.now))
		s.Equal(ClaimStatusApproved, c.Status)
	})

	s.Run("second terminal transition fails", func() {
		c := s.newClaim()
		s.Require().NoError(c.Transition(ClaimStatusProcessing, s.now))
		s.Require().NoError(c.Transition(ClaimStatusRequiresHumanReview, s.now))

		err := c.Transition(ClaimStatusApproved, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		s.Equal(ClaimStatusRequiresHumanReview, c.Status)
	})

	s.Run("skipping ai_review to approved is illegal", func() {
		c := s.newClaim()
		s.Require().NoError(c.Transition(ClaimStatusProcessing, s.now))
		s.Error(c.Transition(ClaimStatusApproved, s.now))
	})
}

func (s *ClaimSuite) TestTerminalStatus() {
	s.Equal(ClaimStatusApproved, DecisionApproved.TerminalStatus(false))
	s.Equal(ClaimStatusApproved, DecisionPartialApproval.TerminalStatus(false))
	s.Equal(ClaimStatusDenied, DecisionDenied.TerminalStatus(false))
	s.Equal(ClaimStatusRequiresHumanReview, DecisionApproved.TerminalStatus(true))
	s.Equal(ClaimStatusRequiresHumanReview, DecisionComplianceViolation.TerminalStatus(true))
}

func (s *ClaimSuite) TestCloneIsolatesChecks() {
	r := &ValidationResult{ComplianceChecks: []ComplianceCheck{{CheckType: "HIPAA_PRIVACY", Passed: true}}}
	cp := r.Clone()
	cp.ComplianceChecks[0].Passed = false
	s.True(r.ComplianceChecks[0].Passed)
}

func (s *ClaimSuite) TestFormatIDs() {
	s.Equal(ClaimID("CLAIM_20250314_007"), FormatClaimID(s.now, 7))
	s.Equal(ResultID("RESULT_20250314_123"), FormatResultID(s.now, 123))
}
