// Package publisher fronts an audit store. In sync mode Emit writes through;
// with WithAsyncBuffer events are queued and written by a background worker.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "claimguard/pkg/platform/audit"
	"claimguard/pkg/platform/audit/worker"
)

// ErrBufferFull is returned by Emit when the async queue has no room.
var ErrBufferFull = errors.New("audit buffer full")

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("audit publisher closed")

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	bufferSize int
	queue      chan audit.Event
	worker     *worker.Worker
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer queues up to n events and persists them in the background.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.queue = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		p.worker = worker.NewWorker(store, p.queue, p.logger)
		go func() {
			defer close(p.done)
			_ = p.worker.Run(context.Background())
		}()
	}
	return p
}

// Emit fills in ID, Category and Timestamp when they are unset and hands the
// event to the store.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if p.queue == nil {
		return p.store.Append(ctx, event)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.queue <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "audit event dropped",
			"action", event.Action,
			"session_id", event.SessionID,
		)
		return ErrBufferFull
	}
}

// List returns a session's events when the store can read them back.
func (p *Publisher) List(ctx context.Context, sessionID string) ([]audit.Event, error) {
	r, ok := p.store.(audit.Reader)
	if !ok {
		return nil, errors.New("audit store does not support reads")
	}
	return r.ListBySession(ctx, sessionID)
}

// Close stops accepting events and waits for queued ones to be written.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if p.queue != nil {
		close(p.queue)
		<-p.done
	}
}

// FailedWrites reports async appends that failed.
func (p *Publisher) FailedWrites() int64 {
	if p.worker == nil {
		return 0
	}
	return p.worker.Failed()
}
