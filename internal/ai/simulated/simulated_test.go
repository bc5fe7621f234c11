package simulated

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimguard/internal/orchestrator"
)

const longContext = "Persistent lumbar pain radiating to left leg after eight weeks of conservative care."

func TestReasoner_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		procedure  string
		amount     float64
		confidence float64
	}{
		{"office visit under 500", "99213", 250, 82.5},
		{"office visit over 500", "99215", 800, 65.8},
		{"preventive code", "00100", 300, 88},
		{"expensive procedure", "27447", 15000, 65.8},
		{"ordinary procedure", "27447", 900, 82.5},
	}
	r := NewReasoner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := r.Reason(context.Background(), orchestrator.ReasoningRequest{
				ClaimID:         "CLAIM_20250314_001",
				ProcedureCode:   tt.procedure,
				DiagnosisCode:   "M54.5",
				RequestedAmount: tt.amount,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.confidence, resp.Confidence)
			assert.Contains(t, resp.Reasoning, "Confidence:")
			assert.InDelta(t, 0.03, resp.CostUSD, 1e-9)
		})
	}
}

func TestCompliance_MedicalNecessityNeedsContext(t *testing.T) {
	c := NewCompliance()

	resp, err := c.Check(context.Background(), orchestrator.ComplianceRequest{ClaimID: "C1", MedicalContext: longContext})
	require.NoError(t, err)
	require.Len(t, resp.Checks, 3)
	for _, check := range resp.Checks {
		assert.True(t, check.Passed, check.CheckType)
	}

	resp, err = c.Check(context.Background(), orchestrator.ComplianceRequest{ClaimID: "C2", MedicalContext: "short"})
	require.NoError(t, err)
	assert.False(t, resp.Checks[1].Passed)
	assert.Equal(t, "CMS", resp.Checks[1].RegulatoryFramework)
}

func TestFaults(t *testing.T) {
	faults := NewFaults()
	faults.Inject("C1", orchestrator.ErrorOutage, 2)
	c := NewCompliance(WithFaults(faults))
	req := orchestrator.ComplianceRequest{ClaimID: "C1", MedicalContext: longContext}

	for range 2 {
		_, err := c.Check(context.Background(), req)
		assert.Equal(t, orchestrator.ErrorOutage, orchestrator.GetCategory(err))
	}
	_, err := c.Check(context.Background(), req)
	assert.NoError(t, err)
	assert.Zero(t, faults.Pending("C1"))

	t.Run("timeout blocks until the deadline", func(t *testing.T) {
		faults.Inject("C2", orchestrator.ErrorTimeout, 1)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := c.Check(ctx, orchestrator.ComplianceRequest{ClaimID: "C2"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
