package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"claimguard/internal/claims/models"
)

// attemptFunc performs one call. The float is the metered cost of the attempt,
// which may be non-zero even when err is set.
type attemptFunc[T any] func(ctx context.Context) (T, float64, error)

type callResult[T any] struct {
	value    T
	err      *ServiceError
	attempts int
	costUSD  float64
}

// runWithRetry calls fn up to cfg.MaxAttempts times. Each attempt gets its own
// deadline. Only retryable failures are retried, with exponential backoff
// between attempts. Cancellation of ctx stops the loop at the next check.
func runWithRetry[T any](ctx context.Context, o *Orchestrator, service string, claimID models.ClaimID, fn attemptFunc[T]) callResult[T] {
	var res callResult[T]
	maxAttempts := o.cfg.MaxAttempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			res.err = NewServiceError(ErrorCancelled, service, "session stopped before attempt", ctx.Err())
			return res
		}

		value, cost, err := attemptOnce(ctx, o, service, claimID, attempt, fn)
		res.attempts = attempt
		if err == nil {
			res.value = value
			res.err = nil
			res.costUSD += cost
			return res
		}
		res.costUSD += o.failedAttemptCost(service, cost, err)
		res.err = err

		if !err.Retryable || attempt == maxAttempts {
			return res
		}
		o.logger.WarnContext(ctx, "retrying ai call",
			"service", service,
			"claim_id", claimID,
			"attempt", attempt,
			"category", err.Category,
			"error", err,
		)
		if !sleep(ctx, o.backoff(attempt)) {
			res.err = NewServiceError(ErrorCancelled, service, "session stopped during backoff", ctx.Err())
			return res
		}
	}
	return res
}

func attemptOnce[T any](ctx context.Context, o *Orchestrator, service string, claimID models.ClaimID, n int, fn attemptFunc[T]) (T, float64, *ServiceError) {
	ctx, span := o.tracer.Start(ctx, "ai."+service,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("claim.id", string(claimID)),
			attribute.Int("ai.attempt", n),
		))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	value, cost, err := fn(attemptCtx)
	elapsed := time.Since(start)

	if err == nil {
		o.metrics.ObserveAttempt(service, "success", elapsed, cost)
		span.SetAttributes(attribute.Float64("ai.cost_usd", cost))
		return value, cost, nil
	}

	se := classify(service, err)
	switch {
	case ctx.Err() != nil:
		// parent cancelled: never retry
		se = NewServiceError(ErrorCancelled, service, "call cancelled", err).WithCost(se.CostUSD)
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && se.Category != ErrorTimeout:
		se = NewServiceError(ErrorTimeout, service, "call exceeded "+o.cfg.CallTimeout.String(), err).WithCost(se.CostUSD)
	}
	o.metrics.ObserveAttempt(service, string(se.Category), elapsed, o.failedAttemptCost(service, cost, se))
	span.RecordError(se)
	span.SetStatus(codes.Error, string(se.Category))

	var zero T
	return zero, cost, se
}

// failedAttemptCost prefers the cost the service metered, then the reported
// cost, then the configured flat charge. Cancelled attempts are charged only
// what was metered.
func (o *Orchestrator) failedAttemptCost(service string, reported float64, err *ServiceError) float64 {
	if err.CostUSD > 0 {
		return err.CostUSD
	}
	if reported > 0 {
		return reported
	}
	if err.Category == ErrorCancelled {
		return 0
	}
	return o.cfg.FailedCallCost[service]
}

// backoff returns base * 2^(attempt-1).
func (o *Orchestrator) backoff(attempt int) time.Duration {
	return o.cfg.BackoffBase << (attempt - 1)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
