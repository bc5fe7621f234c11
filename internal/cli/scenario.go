package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"claimguard/internal/claims/intake"
	"claimguard/internal/orchestrator"
	"claimguard/internal/platform/config"
)

// Scenario is a scripted demonstration: one executive, a list of claims and
// optional AI failures to inject.
type Scenario struct {
	Name        string              `yaml:"name"`
	ExecutiveID string              `yaml:"executive_id"`
	Latency     time.Duration       `yaml:"latency"`
	Batch       bool                `yaml:"batch"`
	Budget      ScenarioBudget      `yaml:"budget"`
	Pipeline    ScenarioPipeline    `yaml:"pipeline"`
	Claims      []intake.ClaimInput `yaml:"claims"`
	Faults      []ScenarioFault     `yaml:"faults"`
}

// ScenarioBudget overrides the session budget. Zero keeps the default.
type ScenarioBudget struct {
	HardCapUSD float64 `yaml:"hard_cap_usd"`
	WarningUSD float64 `yaml:"warning_usd"`
}

// ScenarioPipeline overrides retry behaviour. Nil or zero keeps the default.
type ScenarioPipeline struct {
	MaxRetries   *int          `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	MaxClaims    int           `yaml:"max_claims"`
}

// ScenarioFault fails the next Count AI calls for a claim. Count 0 fails all.
type ScenarioFault struct {
	ClaimID  string                     `yaml:"claim_id"`
	Category orchestrator.ErrorCategory `yaml:"category"`
	Count    int                        `yaml:"count"`
}

var faultCategories = map[orchestrator.ErrorCategory]struct{}{
	orchestrator.ErrorTimeout:        {},
	orchestrator.ErrorOutage:         {},
	orchestrator.ErrorRateLimited:    {},
	orchestrator.ErrorBadData:        {},
	orchestrator.ErrorRejected:       {},
	orchestrator.ErrorAuthentication: {},
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(raw)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(raw []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the scenario is runnable. Claim fields are left to intake.
func (s *Scenario) Validate() error {
	var errs []error
	if s.ExecutiveID == "" {
		errs = append(errs, errors.New("executive_id is required"))
	}
	if len(s.Claims) == 0 {
		errs = append(errs, errors.New("at least one claim is required"))
	}
	if s.Latency < 0 {
		errs = append(errs, errors.New("latency must not be negative"))
	}
	ids := make(map[string]struct{}, len(s.Claims))
	for _, c := range s.Claims {
		if c.ClaimID != "" {
			ids[c.ClaimID] = struct{}{}
		}
	}
	for i, f := range s.Faults {
		if _, ok := ids[f.ClaimID]; !ok {
			errs = append(errs, fmt.Errorf("fault %d: claim_id %q does not name a scenario claim", i, f.ClaimID))
		}
		if _, ok := faultCategories[f.Category]; !ok {
			errs = append(errs, fmt.Errorf("fault %d: unknown category %q", i, f.Category))
		}
		if f.Count < 0 {
			errs = append(errs, fmt.Errorf("fault %d: count must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

// apply layers the scenario overrides on cfg.
func (s *Scenario) apply(cfg *config.Config) {
	if s.Budget.HardCapUSD > 0 {
		cfg.Budget.HardCapUSD = s.Budget.HardCapUSD
	}
	if s.Budget.WarningUSD > 0 {
		cfg.Budget.WarningUSD = s.Budget.WarningUSD
	}
	if s.Pipeline.MaxRetries != nil {
		cfg.Pipeline.MaxRetries = *s.Pipeline.MaxRetries
	}
	if s.Pipeline.RetryBackoff > 0 {
		cfg.Pipeline.RetryBackoff = s.Pipeline.RetryBackoff
	}
	if s.Pipeline.CallTimeout > 0 {
		cfg.Pipeline.CallTimeout = s.Pipeline.CallTimeout
	}
	if s.Pipeline.MaxClaims > 0 {
		cfg.Pipeline.MaxClaimsPerSession = s.Pipeline.MaxClaims
	}
}
