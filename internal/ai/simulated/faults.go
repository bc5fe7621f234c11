package simulated

import (
	"context"
	"sync"

	"claimguard/internal/claims/models"
	"claimguard/internal/orchestrator"
)

// Faults scripts failures per claim. Each Inject queues n failures of one
// category; calls for that claim consume them in order before succeeding.
type Faults struct {
	mu     sync.Mutex
	queued map[models.ClaimID][]orchestrator.ErrorCategory
}

func NewFaults() *Faults {
	return &Faults{queued: make(map[models.ClaimID][]orchestrator.ErrorCategory)}
}

// Inject queues n failures of category for claimID.
func (f *Faults) Inject(claimID models.ClaimID, category orchestrator.ErrorCategory, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for range n {
		f.queued[claimID] = append(f.queued[claimID], category)
	}
}

// InjectAlways makes every call for claimID fail with category.
func (f *Faults) InjectAlways(claimID models.ClaimID, category orchestrator.ErrorCategory) {
	f.Inject(claimID, category, 1<<20)
}

// Pending reports how many injected failures remain for claimID.
func (f *Faults) Pending(claimID models.ClaimID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queued[claimID])
}

// next pops a failure for claimID. A timeout blocks until ctx is done so the
// caller's deadline fires the way it would against a hung service.
func (f *Faults) next(ctx context.Context, service string, claimID models.ClaimID) error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	q := f.queued[claimID]
	if len(q) == 0 {
		f.mu.Unlock()
		return nil
	}
	category := q[0]
	f.queued[claimID] = q[1:]
	f.mu.Unlock()

	if category == orchestrator.ErrorTimeout {
		<-ctx.Done()
		return ctx.Err()
	}
	return orchestrator.NewServiceError(category, service, "injected failure", nil)
}
