// Package health probes the record store, AI services and audit sink and
// caches the combined result so dashboard polling does not hammer them.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"claimguard/internal/platform/logger"
	"claimguard/internal/session/models"
	"claimguard/pkg/requestcontext"
)

const statusKey = "infrastructure"

// Pinger is anything that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Prober implements session.Prober.
type Prober struct {
	store      Pinger
	reasoning  Pinger
	compliance Pinger
	audit      Pinger

	timeout time.Duration
	cache   *gocache.Cache
	logger  *slog.Logger

	// serializes probes so concurrent misses share one round
	mu sync.Mutex
}

type Option func(*Prober)

func WithStore(p Pinger) Option      { return func(pr *Prober) { pr.store = p } }
func WithReasoning(p Pinger) Option  { return func(pr *Prober) { pr.reasoning = p } }
func WithCompliance(p Pinger) Option { return func(pr *Prober) { pr.compliance = p } }
func WithAudit(p Pinger) Option      { return func(pr *Prober) { pr.audit = p } }

func WithLogger(l *slog.Logger) Option {
	return func(pr *Prober) {
		pr.logger = l
	}
}

// WithTimeout bounds each individual ping.
func WithTimeout(d time.Duration) Option {
	return func(pr *Prober) {
		pr.timeout = d
	}
}

// New creates a prober whose results live for ttl. A component without a
// Pinger is reported as online.
func New(ttl time.Duration, opts ...Option) *Prober {
	p := &Prober{
		timeout: 2 * time.Second,
		cache:   gocache.New(ttl, 2*ttl),
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Status returns the cached status or probes every component in parallel.
func (p *Prober) Status(ctx context.Context) models.InfrastructureStatus {
	if v, ok := p.cache.Get(statusKey); ok {
		return v.(models.InfrastructureStatus)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.cache.Get(statusKey); ok {
		return v.(models.InfrastructureStatus)
	}

	var (
		wg     sync.WaitGroup
		status = models.InfrastructureStatus{LastHealthCheck: requestcontext.Now(ctx)}
	)
	probe := func(name string, target Pinger, dest *bool) {
		defer wg.Done()
		*dest = p.ping(ctx, name, target)
	}
	wg.Add(4)
	go probe("store", p.store, &status.StoreOnline)
	go probe("reasoning", p.reasoning, &status.ReasoningConnected)
	go probe("compliance", p.compliance, &status.ComplianceConnected)
	go probe("audit", p.audit, &status.AuditOnline)
	wg.Wait()

	p.cache.SetDefault(statusKey, status)
	return status
}

// Invalidate drops the cached status so the next call probes again.
func (p *Prober) Invalidate() {
	p.cache.Delete(statusKey)
}

func (p *Prober) ping(ctx context.Context, name string, target Pinger) bool {
	if target == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := target.Ping(ctx); err != nil {
		p.logger.WarnContext(ctx, "health probe failed", "component", name, "error", err)
		return false
	}
	return true
}
