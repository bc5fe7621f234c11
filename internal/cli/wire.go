package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"claimguard/internal/ai/compliance"
	"claimguard/internal/ai/openai"
	"claimguard/internal/ai/simulated"
	budgetmetrics "claimguard/internal/budget/metrics"
	"claimguard/internal/health"
	"claimguard/internal/orchestrator"
	orchmetrics "claimguard/internal/orchestrator/metrics"
	"claimguard/internal/platform/config"
	platformredis "claimguard/internal/platform/redis"
	"claimguard/internal/session"
	sessionmetrics "claimguard/internal/session/metrics"
	"claimguard/internal/store"
	"claimguard/pkg/platform/audit"
	"claimguard/pkg/platform/audit/publisher"
	kafkastore "claimguard/pkg/platform/audit/store/kafka"
	auditmemory "claimguard/pkg/platform/audit/store/memory"
	pkgstrings "claimguard/pkg/platform/strings"
	"claimguard/pkg/requestcontext"
)

// pingableStore is a record store the health prober can check.
type pingableStore interface {
	store.RecordStore
	Ping(ctx context.Context) error
}

// aiServices are the two external collaborators, live or simulated.
type aiServices struct {
	reasoning interface {
		orchestrator.ReasoningService
		health.Pinger
	}
	compliance interface {
		orchestrator.ComplianceService
		health.Pinger
	}
}

func simulatedAI(latency time.Duration, faults *simulated.Faults) aiServices {
	opts := []simulated.Option{simulated.WithLatency(latency), simulated.WithFaults(faults)}
	return aiServices{
		reasoning:  simulated.NewReasoner(opts...),
		compliance: simulated.NewCompliance(opts...),
	}
}

func liveAI(cfg config.AI) (aiServices, error) {
	burst := max(1, int(math.Ceil(cfg.RequestsPerSecond)))

	rcfg := openai.DefaultConfig(cfg.OpenAIKey)
	rcfg.BaseURL = cfg.OpenAIBaseURL
	if cfg.OpenAIModel != "" {
		rcfg.Model = cfg.OpenAIModel
	}
	reasoner, err := openai.New(rcfg, openai.WithRateLimit(cfg.RequestsPerSecond, burst))
	if err != nil {
		return aiServices{}, fmt.Errorf("create reasoning client: %w", err)
	}
	checker, err := compliance.NewClient(cfg.ComplianceURL, cfg.ComplianceKey, compliance.WithRateLimit(cfg.RequestsPerSecond, burst))
	if err != nil {
		return aiServices{}, fmt.Errorf("create compliance client: %w", err)
	}
	return aiServices{reasoning: reasoner, compliance: checker}, nil
}

func aiFromConfig(cfg config.AI) (aiServices, error) {
	if cfg.Simulated {
		return simulatedAI(0, nil), nil
	}
	return liveAI(cfg)
}

// sessionConfig maps the environment configuration onto session limits.
func sessionConfig(cfg config.Config) session.Config {
	sc := session.DefaultConfig()
	sc.HardCapUSD = cfg.Budget.HardCapUSD
	sc.WarningUSD = cfg.Budget.WarningUSD
	sc.MaxClaims = cfg.Pipeline.MaxClaimsPerSession
	sc.MaxConsecutiveUnavailable = cfg.Pipeline.MaxConsecutiveUnavailable
	sc.BatchConcurrency = cfg.Pipeline.BatchConcurrency
	sc.Orchestrator.CallTimeout = cfg.Pipeline.CallTimeout
	sc.Orchestrator.MaxRetries = cfg.Pipeline.MaxRetries
	sc.Orchestrator.BackoffBase = cfg.Pipeline.RetryBackoff
	sc.Synthesis.LowConfidence = cfg.Pipeline.LowConfidence
	sc.Synthesis.HighConfidence = cfg.Pipeline.HighConfidence
	sc.Synthesis.MandatoryFrameworks = pkgstrings.DedupeAndTrimUpper(cfg.Pipeline.MandatoryFrameworks)
	return sc
}

// stack is every long-lived component behind the service.
type stack struct {
	service   *session.Service
	prober    *health.Prober
	publisher *publisher.Publisher
	logger    *slog.Logger
	closers   []func()
}

// Close releases resources in reverse order of acquisition.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// recordAuthFailure audits a rejected dashboard request.
func (s *stack) recordAuthFailure(ctx context.Context, reason string) {
	err := s.publisher.Emit(ctx, audit.Event{
		Action:    string(audit.EventAuthFailed),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "event", string(audit.EventAuthFailed), "error", err)
	}
}

func buildStack(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer, ai aiServices) (_ *stack, err error) {
	st := &stack{logger: logger}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	records, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, closeStore)

	auditStore, auditPinger, closeAudit, err := openAudit(ctx, cfg.Audit, logger)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, closeAudit)

	st.publisher = publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
		publisher.WithLogger(logger),
	)
	st.closers = append(st.closers, st.publisher.Close)

	proberOpts := []health.Option{
		health.WithStore(records),
		health.WithReasoning(ai.reasoning),
		health.WithCompliance(ai.compliance),
		health.WithLogger(logger),
	}
	if auditPinger != nil {
		proberOpts = append(proberOpts, health.WithAudit(auditPinger))
	}
	st.prober = health.New(cfg.Server.HealthCacheTTL, proberOpts...)

	st.service, err = session.New(ai.reasoning, ai.compliance, records, sessionConfig(cfg),
		session.WithLogger(logger),
		session.WithAuditPublisher(st.publisher),
		session.WithMetrics(sessionmetrics.New(reg)),
		session.WithBudgetMetrics(budgetmetrics.New(reg)),
		session.WithOrchestratorMetrics(orchmetrics.New(reg)),
		session.WithProber(st.prober),
	)
	if err != nil {
		return nil, fmt.Errorf("create session service: %w", err)
	}
	return st, nil
}

func openStore(ctx context.Context, cfg config.Store, logger *slog.Logger) (pingableStore, func(), error) {
	switch cfg.Backend {
	case "redis":
		client, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, fmt.Errorf("redis store requires CLAIMGUARD_REDIS_URL")
		}
		logger.Info("record store ready", "backend", "redis")
		return store.NewRedisStore(client.Client), func() { _ = client.Close() }, nil
	case "postgres":
		db, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("record store ready", "backend", "postgres")
		return store.NewPostgresStore(db), func() { _ = db.Close() }, nil
	default:
		logger.Info("record store ready", "backend", "memory")
		return store.NewInMemoryStore(), func() {}, nil
	}
}

func openAudit(ctx context.Context, cfg config.Audit, logger *slog.Logger) (audit.Store, health.Pinger, func(), error) {
	brokers := pkgstrings.DedupeAndTrim(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		logger.Info("audit store ready", "backend", "memory")
		return auditmemory.NewInMemoryStore(), nil, func() {}, nil
	}
	ks, err := kafkastore.New(ctx, brokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("audit store ready", "backend", "kafka", "topic", cfg.KafkaTopic)
	return ks, ks, ks.Close, nil
}
