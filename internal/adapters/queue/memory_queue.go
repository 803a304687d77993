package queue

import (
	"context"
	"time"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

var _ domain.JobQueue = (*MemoryJobQueue)(nil)

// MemoryJobQueue serves single-process deployments where API and worker share memory.
type MemoryJobQueue struct {
	jobs chan domain.SyncJob
}

func NewMemoryJobQueue(capacity int) *MemoryJobQueue {
	if capacity < 1 {
		capacity = 100
	}
	return &MemoryJobQueue{jobs: make(chan domain.SyncJob, capacity)}
}

func (q *MemoryJobQueue) Enqueue(ctx context.Context, job domain.SyncJob) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

func (q *MemoryJobQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.SyncJob, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job := <-q.jobs:
		return &job, nil
	case <-timer.C:
		return nil, domain.ErrQueueEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryJobQueue) Len() int {
	return len(q.jobs)
}
