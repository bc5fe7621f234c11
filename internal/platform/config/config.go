package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the complete runtime configuration, parsed from CLAIMGUARD_* variables.
type Config struct {
	Server   Server
	Budget   Budget
	Pipeline Pipeline
	Store    Store
	Audit    Audit
	AI       AI
	Log      Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"CLAIMGUARD_ADDR"             envDefault:":8080"`
	JWTSigningKey   string        `env:"CLAIMGUARD_JWT_SIGNING_KEY"  envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer       string        `env:"CLAIMGUARD_JWT_ISSUER"       envDefault:"claimguard"`
	JWTAudience     string        `env:"CLAIMGUARD_JWT_AUDIENCE"     envDefault:"claimguard-dashboard"`
	TokenTTL        time.Duration `env:"CLAIMGUARD_TOKEN_TTL"        envDefault:"8h"`
	RequestTimeout  time.Duration `env:"CLAIMGUARD_REQUEST_TIMEOUT"  envDefault:"10m"`
	ShutdownTimeout time.Duration `env:"CLAIMGUARD_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HealthCacheTTL  time.Duration `env:"CLAIMGUARD_HEALTH_CACHE_TTL" envDefault:"15s"`
}

// Budget holds per-session spend limits in USD.
type Budget struct {
	HardCapUSD float64 `env:"CLAIMGUARD_BUDGET_HARD_CAP_USD" envDefault:"50"`
	WarningUSD float64 `env:"CLAIMGUARD_BUDGET_WARNING_USD"  envDefault:"45"`
}

// Pipeline configures decisioning, retries and session limits.
type Pipeline struct {
	LowConfidence             float64       `env:"CLAIMGUARD_LOW_CONFIDENCE"               envDefault:"70"`
	HighConfidence            float64       `env:"CLAIMGUARD_HIGH_CONFIDENCE"              envDefault:"85"`
	MandatoryFrameworks       []string      `env:"CLAIMGUARD_MANDATORY_FRAMEWORKS"         envDefault:"HIPAA,CMS,FDA" envSeparator:","`
	CallTimeout               time.Duration `env:"CLAIMGUARD_AI_CALL_TIMEOUT"              envDefault:"90s"`
	MaxRetries                int           `env:"CLAIMGUARD_AI_MAX_RETRIES"               envDefault:"3"`
	RetryBackoff              time.Duration `env:"CLAIMGUARD_AI_RETRY_BACKOFF"             envDefault:"500ms"`
	MaxConsecutiveUnavailable int           `env:"CLAIMGUARD_MAX_CONSECUTIVE_UNAVAILABLE"  envDefault:"3"`
	MaxClaimsPerSession       int           `env:"CLAIMGUARD_MAX_CLAIMS_PER_SESSION"       envDefault:"10"`
	BatchConcurrency          int           `env:"CLAIMGUARD_BATCH_CONCURRENCY"            envDefault:"4"`
}

// Store selects the record store backend.
type Store struct {
	Backend     string `env:"CLAIMGUARD_STORE_BACKEND" envDefault:"memory"`
	RedisURL    string `env:"CLAIMGUARD_REDIS_URL"     envDefault:"redis://localhost:6379/0"`
	PostgresDSN string `env:"CLAIMGUARD_POSTGRES_DSN"`
}

// Audit configures where audit events go. Empty brokers keep them in memory.
type Audit struct {
	KafkaBrokers []string `env:"CLAIMGUARD_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"CLAIMGUARD_KAFKA_TOPIC"   envDefault:"claimguard.audit"`
	AsyncBuffer  int      `env:"CLAIMGUARD_AUDIT_BUFFER"  envDefault:"256"`
}

// AI configures the two external services.
type AI struct {
	Simulated         bool    `env:"CLAIMGUARD_AI_SIMULATED"          envDefault:"true"`
	OpenAIKey         string  `env:"CLAIMGUARD_OPENAI_API_KEY"`
	OpenAIBaseURL     string  `env:"CLAIMGUARD_OPENAI_BASE_URL"`
	OpenAIModel       string  `env:"CLAIMGUARD_OPENAI_MODEL"          envDefault:"gpt-4o-mini"`
	ComplianceURL     string  `env:"CLAIMGUARD_COMPLIANCE_URL"`
	ComplianceKey     string  `env:"CLAIMGUARD_COMPLIANCE_API_KEY"`
	RequestsPerSecond float64 `env:"CLAIMGUARD_AI_REQUESTS_PER_SECOND" envDefault:"5"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `env:"CLAIMGUARD_LOG_LEVEL"  envDefault:"info"`
	Format string `env:"CLAIMGUARD_LOG_FORMAT" envDefault:"json"`
}

// FromEnv builds a validated Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration a fresh environment would produce.
func Default() Config {
	var cfg Config
	// envDefault tags are the single source of defaults
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// Validate checks cross-field rules.
func (c Config) Validate() error {
	var errs []error
	if len(c.Server.JWTSigningKey) < 16 {
		errs = append(errs, errors.New("JWT signing key must be at least 16 bytes"))
	}
	if c.Budget.HardCapUSD <= 0 || c.Budget.HardCapUSD > 100 {
		errs = append(errs, fmt.Errorf("budget hard cap must be in (0, 100], got %.2f", c.Budget.HardCapUSD))
	}
	if c.Budget.WarningUSD <= 0 || c.Budget.WarningUSD >= c.Budget.HardCapUSD {
		errs = append(errs, fmt.Errorf("budget warning threshold must be positive and below the hard cap, got %.2f", c.Budget.WarningUSD))
	}
	if c.Pipeline.LowConfidence < 0 || c.Pipeline.HighConfidence > 100 || c.Pipeline.LowConfidence >= c.Pipeline.HighConfidence {
		errs = append(errs, fmt.Errorf("confidence thresholds must satisfy 0 <= low < high <= 100, got %.1f/%.1f",
			c.Pipeline.LowConfidence, c.Pipeline.HighConfidence))
	}
	if c.Pipeline.CallTimeout <= 0 {
		errs = append(errs, errors.New("AI call timeout must be positive"))
	}
	if c.Pipeline.MaxRetries < 0 {
		errs = append(errs, errors.New("AI max retries must not be negative"))
	}
	if c.Pipeline.MaxClaimsPerSession <= 0 {
		errs = append(errs, errors.New("max claims per session must be positive"))
	}
	switch c.Store.Backend {
	case "memory", "redis":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres store requires CLAIMGUARD_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if !c.AI.Simulated {
		if c.AI.OpenAIKey == "" {
			errs = append(errs, errors.New("live AI mode requires CLAIMGUARD_OPENAI_API_KEY"))
		}
		if c.AI.ComplianceURL == "" {
			errs = append(errs, errors.New("live AI mode requires CLAIMGUARD_COMPLIANCE_URL"))
		}
	}
	return errors.Join(errs...)
}
