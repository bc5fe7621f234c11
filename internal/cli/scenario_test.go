package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimguard/internal/orchestrator"
	"claimguard/internal/platform/config"
)

func TestParseScenario(t *testing.T) {
	raw := []byte(`
name: smoke
executive_id: cfo-007
latency: 250ms
budget:
  hard_cap_usd: 20
  warning_usd: 15
pipeline:
  max_retries: 0
  retry_backoff: 10ms
claims:
  - claim_id: CLAIM_20250314_001
    patient_ref: PAT-1
    provider_ref: PRV-1
    service_date: "2025-03-10"
    procedure_code: "99213"
    diagnosis_code: J45.9
    requested_amount: 300
faults:
  - claim_id: CLAIM_20250314_001
    category: timeout
    count: 2
`)
	sc, err := ParseScenario(raw)
	require.NoError(t, err)
	assert.Equal(t, "cfo-007", sc.ExecutiveID)
	assert.Equal(t, 250*time.Millisecond, sc.Latency)
	require.Len(t, sc.Claims, 1)
	assert.Equal(t, "99213", sc.Claims[0].ProcedureCode)
	assert.Equal(t, orchestrator.ErrorTimeout, sc.Faults[0].Category)

	cfg := config.Default()
	sc.apply(&cfg)
	assert.Equal(t, 20.0, cfg.Budget.HardCapUSD)
	assert.Equal(t, 15.0, cfg.Budget.WarningUSD)
	assert.Equal(t, 0, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, cfg.Pipeline.RetryBackoff)
	assert.Equal(t, config.Default().Pipeline.CallTimeout, cfg.Pipeline.CallTimeout, "unset overrides keep defaults")
}

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"missing executive", "claims: [{patient_ref: P}]", "executive_id is required"},
		{"no claims", "executive_id: ceo", "at least one claim is required"},
		{
			"fault on unknown claim",
			"executive_id: ceo\nclaims: [{claim_id: CLAIM_20250314_001}]\nfaults: [{claim_id: CLAIM_20250314_002, category: timeout}]",
			`does not name a scenario claim`,
		},
		{
			"unknown category",
			"executive_id: ceo\nclaims: [{claim_id: CLAIM_20250314_001}]\nfaults: [{claim_id: CLAIM_20250314_001, category: gremlins}]",
			`unknown category "gremlins"`,
		},
		{"bad yaml", "executive_id: [", "decode scenario"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExampleScenarioLoads(t *testing.T) {
	sc, err := LoadScenario("../../examples/scenario.yaml")
	require.NoError(t, err)
	assert.Len(t, sc.Claims, 4)
	assert.NotEmpty(t, sc.Faults)
}
