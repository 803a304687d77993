package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrQueueEmpty = errors.New("job queue empty")
	ErrQueueFull  = errors.New("job queue full")
)

type SyncJob struct {
	JobID string `json:"job_id"`
}

type JobQueue interface {
	Enqueue(ctx context.Context, job SyncJob) error

	// Dequeue blocks up to timeout and returns ErrQueueEmpty when nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*SyncJob, error)
}
