package worker

import (
	"context"
	"log/slog"
	"sync/atomic"

	audit "claimguard/pkg/platform/audit"
)

// Worker drains an event channel into a store. A failed append is logged and
// counted; the worker keeps going so one bad write cannot stall the pipeline.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
	failed atomic.Int64
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run returns nil once inbox is closed and drained, or ctx.Err() if ctx ends first.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil {
				w.failed.Add(1)
				w.logger.ErrorContext(ctx, "audit append failed",
					"action", event.Action,
					"session_id", event.SessionID,
					"error", err,
				)
			}
		}
	}
}

// Failed reports how many appends have failed.
func (w *Worker) Failed() int64 {
	return w.failed.Load()
}
