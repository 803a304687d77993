package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

// RunRecorder receives run and queue measurements.
type RunRecorder interface {
	ObserveRun(outcome string, elapsed time.Duration)
	IncEnqueued()
}

// UsageRecorder tracks the staged bytes counted against an account quota.
type UsageRecorder interface {
	AddUsedBytes(ctx context.Context, userID string, delta int64) error
}

type SynchronizationDependencies struct {
	Repo     domain.SynchronizationRepository
	Users    domain.UserRepository
	Logs     domain.LogStore
	Queue    domain.JobQueue
	Resolver *DownloaderResolver
	Runner   domain.ImportRunner
	OAuth    domain.OAuthRepository

	// Geocoder and Usage are optional.
	Geocoder domain.PostProcessor
	Usage    UsageRecorder
	Metrics  RunRecorder
	Logger   zerolog.Logger

	// DefaultCredentials fill the fields a user has no database settings for.
	DefaultCredentials domain.DatabaseCredentials
	Clock              func() time.Time
}

type SynchronizationService struct {
	repo         domain.SynchronizationRepository
	users        domain.UserRepository
	logs         domain.LogStore
	queue        domain.JobQueue
	resolver     *DownloaderResolver
	runner       domain.ImportRunner
	oauth        domain.OAuthRepository
	geocoder     domain.PostProcessor
	usage        UsageRecorder
	metrics      RunRecorder
	logger       zerolog.Logger
	defaultCreds domain.DatabaseCredentials
	now          func() time.Time
}

func NewSynchronizationService(deps SynchronizationDependencies) *SynchronizationService {
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &SynchronizationService{
		repo:         deps.Repo,
		users:        deps.Users,
		logs:         deps.Logs,
		queue:        deps.Queue,
		resolver:     deps.Resolver,
		runner:       deps.Runner,
		oauth:        deps.OAuth,
		geocoder:     deps.Geocoder,
		usage:        deps.Usage,
		metrics:      deps.Metrics,
		logger:       deps.Logger.With().Str("component", "synchronization").Logger(),
		defaultCreds: deps.DefaultCredentials,
		now:          clock,
	}
}

type CreateSynchronizationInput struct {
	UserID        string
	Name          string
	URL           string
	Interval      int
	ServiceName   string
	ServiceItemID string
}

func (s *SynchronizationService) Create(ctx context.Context, input CreateSynchronizationInput) (*domain.Synchronization, error) {
	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if !user.SyncTablesEnabled {
		return nil, domain.ErrSyncForbidden
	}

	id, err := s.repo.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("synchronization service: failed to allocate id: %w", err)
	}

	now := s.now()
	sync, err := domain.NewSynchronization(domain.NewSynchronizationInput{
		ID:            id,
		UserID:        input.UserID,
		Name:          input.Name,
		URL:           input.URL,
		Interval:      input.Interval,
		ServiceName:   input.ServiceName,
		ServiceItemID: input.ServiceItemID,
	}, now)
	if err != nil {
		return nil, err
	}
	sync.Touch(now)

	if err := s.repo.Store(ctx, sync); err != nil {
		return nil, err
	}

	if err := s.Enqueue(ctx, sync); err != nil {
		s.logger.Error().Err(err).Str("sync_id", sync.ID).Msg("failed to enqueue first run")
	}

	return sync, nil
}

// Get returns ErrSynchronizationNotFound for records of other users.
func (s *SynchronizationService) Get(ctx context.Context, id, userID string) (*domain.Synchronization, error) {
	sync, err := s.repo.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if sync.UserID != userID {
		return nil, domain.ErrSynchronizationNotFound
	}
	return sync, nil
}

func (s *SynchronizationService) ListByUserID(ctx context.Context, userID string) ([]*domain.Synchronization, error) {
	return s.repo.ListByUserID(ctx, userID)
}

func (s *SynchronizationService) UpdateInterval(ctx context.Context, id, userID string, interval int) (*domain.Synchronization, error) {
	sync, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := sync.SetInterval(interval, now); err != nil {
		return nil, err
	}
	sync.Touch(now)

	if err := s.repo.Store(ctx, sync); err != nil {
		return nil, err
	}
	return sync, nil
}

func (s *SynchronizationService) Delete(ctx context.Context, id, userID string) error {
	sync, err := s.Get(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	sync.Clear()
	return nil
}

// SyncNow queues a user triggered run.
func (s *SynchronizationService) SyncNow(ctx context.Context, id, userID string) (*domain.Synchronization, error) {
	sync, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sync.Authorize(user) {
		return nil, domain.ErrSyncForbidden
	}

	if !sync.CanManuallySync(s.now()) {
		return nil, domain.ErrSyncTooSoon
	}

	if err := s.Enqueue(ctx, sync); err != nil {
		return nil, err
	}
	return sync, nil
}

func (s *SynchronizationService) Enqueue(ctx context.Context, sync *domain.Synchronization) error {
	if err := s.queue.Enqueue(ctx, domain.SyncJob{JobID: sync.ID}); err != nil {
		return fmt.Errorf("synchronization service: failed to enqueue %s: %w", sync.ID, err)
	}
	if s.metrics != nil {
		s.metrics.IncEnqueued()
	}
	return nil
}

func (s *SynchronizationService) GetLog(ctx context.Context, id, userID string) (*domain.Log, error) {
	sync, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if sync.LogID == "" {
		return nil, domain.ErrLogNotFound
	}
	return s.logs.Fetch(ctx, sync.LogID)
}

// RunByID loads a synchronization and runs it. Errors only come from the load.
func (s *SynchronizationService) RunByID(ctx context.Context, id string) (*domain.Synchronization, error) {
	sync, err := s.repo.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, sync), nil
}

// Run executes one attempt and persists the resulting state. It never fails:
// every error ends up in the run log and in the error fields of sync.
func (s *SynchronizationService) Run(ctx context.Context, sync *domain.Synchronization) *domain.Synchronization {
	start := s.now()
	attempt := &runAttempt{}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.handleRunError(ctx, sync, attempt, fmt.Errorf("panic during synchronization: %v", rec), debug.Stack())
			}
		}()
		if err := s.run(ctx, sync, attempt); err != nil {
			s.handleRunError(ctx, sync, attempt, err, debug.Stack())
		}
	}()

	s.observe(sync, start)
	return sync
}

type runAttempt struct {
	log     *domain.RunLog
	outcome *domain.ImportOutcome
	owner   *domain.User
}

func (s *SynchronizationService) run(ctx context.Context, sync *domain.Synchronization, attempt *runAttempt) error {
	if sync.ID == "" {
		return fmt.Errorf("%w: missing id", domain.ErrInvalidSynchronization)
	}

	log, err := s.logs.Create(ctx, domain.LogKeyPrefix, domain.LogExpiration)
	if err != nil {
		return fmt.Errorf("synchronization service: failed to create log: %w", err)
	}
	attempt.log = domain.NewRunLog(s.logs, log)

	sync.MarkSyncing(log.ID)
	sync.Touch(s.now())
	if err := s.repo.Store(ctx, sync); err != nil {
		return err
	}

	owner, err := s.users.GetByID(ctx, sync.UserID)
	if err != nil {
		return fmt.Errorf("synchronization service: failed to load owner: %w", err)
	}
	attempt.owner = owner

	downloader, err := s.resolver.Resolve(ctx, sync, owner, attempt.log)
	if err != nil {
		return err
	}

	outcome, err := s.runner.Run(ctx, domain.ImportJob{
		SynchronizationID: sync.ID,
		TableName:         sync.Name,
		Credentials:       owner.Credentials(s.defaultCreds),
		Downloader:        downloader,
		Log:               attempt.log,
		QuotaLimit:        owner.RemainingQuota(),
		ErrorCodes:        domain.ErrorCodes(),
	})
	attempt.outcome = outcome
	if err != nil {
		return err
	}
	if outcome == nil {
		return errors.New("import runner returned no outcome")
	}

	now := s.now()
	sync.MarkRan(now)
	lines := sync.ApplyOutcome(outcome, now)
	s.appendLog(ctx, attempt.log, lines...)

	if outcome.Success {
		s.recordUsage(ctx, owner, outcome.UsedBytesDelta, attempt.log)
		s.geocode(ctx, sync, attempt.log)
	}

	sync.Touch(now)
	if err := s.repo.Store(ctx, sync); err != nil {
		s.logger.Error().Err(err).Str("sync_id", sync.ID).Msg("failed to store synchronization result")
		s.appendLog(ctx, attempt.log, fmt.Sprintf("failed to store synchronization: %v", err))
	}
	return nil
}

func (s *SynchronizationService) handleRunError(ctx context.Context, sync *domain.Synchronization, attempt *runAttempt, runErr error, stack []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Str("sync_id", sync.ID).Msg("failed to record synchronization error")
		}
	}()

	s.logger.Error().Err(runErr).Str("sync_id", sync.ID).Bytes("stack", stack).Msg("synchronization failed")
	s.appendLog(ctx, attempt.log, runErr.Error(), string(stack))

	outcome := attempt.outcome
	if outcome == nil || outcome.Success {
		outcome = domain.OutcomeFromError(runErr, "")
	}
	lines := sync.ApplyFailure(outcome)
	s.appendLog(ctx, attempt.log, lines...)

	sync.Touch(s.now())
	if err := s.repo.Store(ctx, sync); err != nil {
		s.logger.Error().Err(err).Str("sync_id", sync.ID).Msg("failed to store failed synchronization")
	}

	if service, ok := domain.TokenExpiredService(runErr); ok {
		s.revokeOAuth(ctx, sync, attempt.log, service)
	}
}

func (s *SynchronizationService) revokeOAuth(ctx context.Context, sync *domain.Synchronization, runLog *domain.RunLog, service string) {
	defer func() {
		if rec := recover(); rec != nil {
			s.appendLog(ctx, runLog, fmt.Sprintf("Exception removing OAuth: %v", rec), string(debug.Stack()))
		}
	}()
	if s.oauth == nil {
		return
	}
	if err := s.oauth.Revoke(ctx, sync.UserID, service); err != nil {
		s.appendLog(ctx, runLog, fmt.Sprintf("Exception removing OAuth: %v", err))
	}
}

func (s *SynchronizationService) recordUsage(ctx context.Context, owner *domain.User, delta int64, runLog *domain.RunLog) {
	if s.usage == nil || delta == 0 {
		return
	}
	if err := s.usage.AddUsedBytes(ctx, owner.ID, delta); err != nil {
		s.logger.Error().Err(err).Str("user_id", owner.ID).Int64("delta", delta).Msg("failed to record quota usage")
		s.appendLog(ctx, runLog, fmt.Sprintf("failed to record quota usage: %v", err))
	}
}

func (s *SynchronizationService) geocode(ctx context.Context, sync *domain.Synchronization, runLog *domain.RunLog) {
	if s.geocoder == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.appendLog(ctx, runLog, fmt.Sprintf("geocoding failed: %v", rec))
		}
	}()
	if err := s.geocoder.Process(ctx, sync, runLog); err != nil {
		s.logger.Warn().Err(err).Str("sync_id", sync.ID).Msg("geocoding failed")
		s.appendLog(ctx, runLog, fmt.Sprintf("geocoding failed: %v", err))
	}
}

func (s *SynchronizationService) appendLog(ctx context.Context, runLog *domain.RunLog, lines ...string) {
	if err := runLog.Append(ctx, lines...); err != nil {
		s.logger.Warn().Err(err).Str("log_id", runLog.ID()).Msg("failed to append to run log")
	}
}

func (s *SynchronizationService) observe(sync *domain.Synchronization, start time.Time) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case sync.State == domain.StateFailure:
		outcome = "failure"
	case sync.ErrorCode != nil:
		outcome = "retry"
	}
	s.metrics.ObserveRun(outcome, s.now().Sub(start))
}
