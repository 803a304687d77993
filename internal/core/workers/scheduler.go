package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

type DueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Synchronization, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, sync *domain.Synchronization) error
}

// Lease keeps at most one queued job per synchronization id. The worker
// releases it once the job has run.
type Lease interface {
	Acquire(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, id string) error
}

const DefaultLeaseTTL = 15 * time.Minute

// Scheduler periodically enqueues synchronizations whose run_at has passed.
type Scheduler struct {
	repo     DueLister
	enqueuer Enqueuer
	lease    Lease
	leaseTTL time.Duration
	interval time.Duration
	batch    int
	logger   zerolog.Logger
	now      func() time.Time
}

func NewScheduler(repo DueLister, enqueuer Enqueuer, lease Lease, leaseTTL, interval time.Duration, batch int, logger zerolog.Logger) *Scheduler {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	return &Scheduler{
		repo:     repo,
		enqueuer: enqueuer,
		lease:    lease,
		leaseTTL: leaseTTL,
		interval: interval,
		batch:    batch,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			s.Tick(ctx)
			select {
			case <-ticker.C:
			case <-ctx.Done():
				s.logger.Info().Msg("scheduler shutting down")
				return
			}
		}
	}()
}

// Tick enqueues one batch of due synchronizations and returns how many were
// queued. Ids still holding a lease from an earlier tick are skipped.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now()
	due, err := s.repo.ListDue(ctx, now, s.batch)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list due synchronizations")
		return 0
	}

	queued := 0
	for _, sync := range due {
		if !sync.ShouldAutoSync(now) {
			continue
		}
		acquired, err := s.lease.Acquire(ctx, sync.ID, s.leaseTTL)
		if err != nil {
			s.logger.Error().Err(err).Str("sync_id", sync.ID).Msg("failed to acquire enqueue lease")
			continue
		}
		if !acquired {
			continue
		}
		if err := s.enqueuer.Enqueue(ctx, sync); err != nil {
			s.logger.Error().Err(err).Str("sync_id", sync.ID).Msg("failed to enqueue synchronization")
			if err := s.lease.Release(ctx, sync.ID); err != nil {
				s.logger.Warn().Err(err).Str("sync_id", sync.ID).Msg("failed to release enqueue lease")
			}
			continue
		}
		queued++
	}
	if queued > 0 {
		s.logger.Debug().Int("queued", queued).Msg("scheduled synchronizations")
	}
	return queued
}
