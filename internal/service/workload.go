package service

import (
	"context"
	"time"

	"github.com/spec-kit/concern-service/internal/domain"
	"github.com/spec-kit/concern-service/internal/repository"
)

// WorkloadTracker is a read-only view over the concern store. Workload is
// always derived from concern records on demand; no counter is maintained,
// so it cannot drift.
type WorkloadTracker struct {
	concerns repository.ConcernRepository
}

// NewWorkloadTracker constructs the tracker.
func NewWorkloadTracker(concerns repository.ConcernRepository) *WorkloadTracker {
	return &WorkloadTracker{concerns: concerns}
}

// HandlerWorkload counts open, non-archived concerns assigned to the handler.
func (t *WorkloadTracker) HandlerWorkload(ctx context.Context, handlerID string) (int, error) {
	return t.concerns.CountOpenByAssignee(ctx, handlerID)
}

// Overloaded reports whether the handler's workload has reached the cap.
func (t *WorkloadTracker) Overloaded(ctx context.Context, handlerID string, capacity int) (bool, error) {
	count, err := t.concerns.CountOpenByAssignee(ctx, handlerID)
	if err != nil {
		return false, err
	}
	return count >= capacity, nil
}

// Snapshot gathers per-handler workloads and historical average resolution
// times for the given pool. The snapshot may be slightly stale under
// concurrency; callers re-check the cap at commit time.
func (t *WorkloadTracker) Snapshot(ctx context.Context, handlers []domain.Handler) (map[string]int, map[string]time.Duration, error) {
	workloads := make(map[string]int, len(handlers))
	for i := range handlers {
		count, err := t.concerns.CountOpenByAssignee(ctx, handlers[i].ID)
		if err != nil {
			return nil, nil, err
		}
		workloads[handlers[i].ID] = count
	}
	stats, err := t.concerns.ResolutionStats(ctx)
	if err != nil {
		return nil, nil, err
	}
	return workloads, stats, nil
}

// DepartmentOpenCount counts open concerns owned by the department.
func (t *WorkloadTracker) DepartmentOpenCount(ctx context.Context, departmentID string) (int, error) {
	return t.concerns.CountOpenByDepartment(ctx, departmentID)
}
