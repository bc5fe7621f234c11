package budget

import (
	"context"
	"time"
)

// EventKind names a governor threshold notification.
type EventKind string

const (
	EventWarningThresholdCrossed EventKind = "warning_threshold_crossed"
	EventHardCapReached          EventKind = "hard_cap_reached"
	EventCostOverrun             EventKind = "cost_overrun"
	EventInconsistency           EventKind = "budget_inconsistency"
)

// Event is delivered to the EventSink after the governor lock is released.
type Event struct {
	Kind       EventKind `json:"kind"`
	Committed  float64   `json:"committed_usd"`
	Threshold  float64   `json:"threshold_usd"`
	Amount     float64   `json:"amount_usd,omitempty"`
	ClaimID    string    `json:"claim_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventSink receives governor events. Implementations may read the governor
// but must not block.
type EventSink interface {
	BudgetEvent(ctx context.Context, event Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event Event)

func (f EventSinkFunc) BudgetEvent(ctx context.Context, event Event) { f(ctx, event) }
