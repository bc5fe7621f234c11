package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesPerAttempt(t *testing.T) {
	base := 250 * time.Millisecond
	o := &Orchestrator{cfg: Config{BackoffBase: base}}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, base},
		{2, 2 * base},
		{3, 4 * base},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, o.backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestFailedAttemptCost(t *testing.T) {
	o := &Orchestrator{cfg: Config{FailedCallCost: map[string]float64{ServiceReasoning: 0.01}}}

	t.Run("metered cost wins", func(t *testing.T) {
		err := NewServiceError(ErrorOutage, ServiceReasoning, "503", nil).WithCost(0.04)
		assert.InDelta(t, 0.04, o.failedAttemptCost(ServiceReasoning, 0.02, err), 1e-9)
	})
	t.Run("flat charge for unmetered failures", func(t *testing.T) {
		err := NewServiceError(ErrorTimeout, ServiceReasoning, "slow", nil)
		assert.InDelta(t, 0.01, o.failedAttemptCost(ServiceReasoning, 0, err), 1e-9)
	})
	t.Run("unmetered cancellation is free", func(t *testing.T) {
		err := NewServiceError(ErrorCancelled, ServiceReasoning, "stopped", nil)
		assert.Zero(t, o.failedAttemptCost(ServiceReasoning, 0, err))
	})
}
