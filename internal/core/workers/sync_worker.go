package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

type SyncRunner interface {
	RunByID(ctx context.Context, id string) (*domain.Synchronization, error)
}

// SyncWorker pulls jobs off the queue and runs them, one per goroutine.
type SyncWorker struct {
	queue       domain.JobQueue
	runner      SyncRunner
	lease       Lease
	logger      zerolog.Logger
	concurrency int
	pollTimeout time.Duration
	wg          sync.WaitGroup
}

// NewSyncWorker builds a worker. lease may be nil when nothing schedules
// through a Lease.
func NewSyncWorker(queue domain.JobQueue, runner SyncRunner, lease Lease, concurrency int, logger zerolog.Logger) *SyncWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SyncWorker{
		queue:       queue,
		runner:      runner,
		lease:       lease,
		logger:      logger.With().Str("component", "sync_worker").Logger(),
		concurrency: concurrency,
		pollTimeout: 5 * time.Second,
	}
}

func (w *SyncWorker) Start(ctx context.Context) {
	w.logger.Info().Int("concurrency", w.concurrency).Msg("sync worker started")
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func(slot int) {
			defer w.wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
}

// Wait blocks until every worker goroutine has returned.
func (w *SyncWorker) Wait() {
	w.wg.Wait()
}

func (w *SyncWorker) loop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			w.logger.Info().Int("slot", slot).Msg("sync worker shutting down")
			return
		}

		job, err := w.queue.Dequeue(ctx, w.pollTimeout)
		switch {
		case errors.Is(err, domain.ErrQueueEmpty):
			continue
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error().Err(err).Msg("failed to dequeue job")
			w.sleep(ctx, time.Second)
			continue
		}

		w.processJob(ctx, *job)
	}
}

func (w *SyncWorker) processJob(ctx context.Context, job domain.SyncJob) {
	defer w.release(job.JobID)

	result, err := w.runner.RunByID(ctx, job.JobID)
	if err != nil {
		w.logger.Error().Err(err).Str("sync_id", job.JobID).Msg("failed to load synchronization")
		return
	}

	ev := w.logger.Info()
	if result.State == domain.StateFailure {
		ev = w.logger.Warn()
	}
	ev.Str("sync_id", result.ID).
		Str("state", string(result.State)).
		Int("retried_times", result.RetriedTimes).
		Msg("synchronization finished")
}

func (w *SyncWorker) release(id string) {
	if w.lease == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.lease.Release(ctx, id); err != nil {
		w.logger.Warn().Err(err).Str("sync_id", id).Msg("failed to release enqueue lease")
	}
}

func (w *SyncWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
