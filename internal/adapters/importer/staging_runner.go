// Package importer stages downloaded synchronization payloads in the owner's
// database, where the table pipeline picks them up.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

var ErrQuotaExceeded = errors.New("import exceeds remaining quota")

type Payload struct {
	SynchronizationID string    `db:"synchronization_id"`
	TableName         string    `db:"table_name"`
	Checksum          string    `db:"checksum"`
	SizeBytes         int64     `db:"size_bytes"`
	Data              []byte    `db:"payload"`
	ImportedAt        time.Time `db:"imported_at"`
}

type PayloadStore interface {
	Save(ctx context.Context, creds domain.DatabaseCredentials, payload *Payload) error
	// StoredSize is zero when nothing is staged for the synchronization.
	StoredSize(ctx context.Context, creds domain.DatabaseCredentials, syncID string) (int64, error)
}

var _ domain.ImportRunner = (*StagingRunner)(nil)

type StagingRunner struct {
	store  PayloadStore
	logger zerolog.Logger
	now    func() time.Time
}

func NewStagingRunner(store PayloadStore, logger zerolog.Logger) *StagingRunner {
	return &StagingRunner{
		store:  store,
		logger: logger.With().Str("component", "importer").Logger(),
		now:    time.Now,
	}
}

// Run reports import failures through the outcome so the caller can apply its
// retry policy. An expired data source token is also returned as the error,
// with the failed outcome, so the caller can revoke the credential.
func (r *StagingRunner) Run(ctx context.Context, job domain.ImportJob) (*domain.ImportOutcome, error) {
	if job.Downloader == nil {
		return nil, errors.New("importer: job has no downloader")
	}

	trace := &traceLog{ctx: ctx, log: job.Log, logger: r.logger}
	trace.add("Importing %s into table %s", job.Downloader.Source(), job.TableName)

	dl, err := job.Downloader.Fetch(ctx)
	if err != nil {
		return r.fail(job, trace, err)
	}

	outcome := &domain.ImportOutcome{
		Success:      true,
		ETag:         dl.ETag,
		Checksum:     dl.Checksum,
		LastModified: dl.LastModified,
	}

	if dl.NotModified {
		trace.add("Source not modified, nothing to import")
		outcome.LogTrace = trace.String()
		return outcome, nil
	}

	previous, err := r.store.StoredSize(ctx, job.Credentials, job.SynchronizationID)
	if err != nil {
		return r.fail(job, trace, fmt.Errorf("failed to read staged payload size: %w", err))
	}

	// The new payload replaces the previous one, so only the growth counts.
	size := int64(len(dl.Data))
	if size-previous > job.QuotaLimit {
		return r.fail(job, trace, fmt.Errorf("%w: %d bytes, %d available", ErrQuotaExceeded, size, job.QuotaLimit+previous))
	}

	payload := &Payload{
		SynchronizationID: job.SynchronizationID,
		TableName:         job.TableName,
		Checksum:          dl.Checksum,
		SizeBytes:         size,
		Data:              dl.Data,
		ImportedAt:        r.now().UTC(),
	}
	if err := r.store.Save(ctx, job.Credentials, payload); err != nil {
		return r.fail(job, trace, fmt.Errorf("failed to stage payload: %w", err))
	}

	trace.add("Staged %d bytes (checksum %s)", size, dl.Checksum)
	r.logger.Info().
		Str("sync_id", job.SynchronizationID).
		Int64("bytes", size).
		Msg("payload staged")

	outcome.UsedBytesDelta = size - previous
	outcome.LogTrace = trace.String()
	return outcome, nil
}

func (r *StagingRunner) fail(job domain.ImportJob, trace *traceLog, err error) (*domain.ImportOutcome, error) {
	code, msg := domain.Classify(err, job.ErrorCodes)
	trace.add("Import failed (%d): %s", code, msg)
	r.logger.Warn().Err(err).Str("sync_id", job.SynchronizationID).Int("error_code", code).Msg("import failed")
	outcome := &domain.ImportOutcome{
		Success:      false,
		ErrorCode:    code,
		ErrorMessage: msg,
		LogTrace:     trace.String(),
	}
	if _, expired := domain.TokenExpiredService(err); expired {
		return outcome, err
	}
	return outcome, nil
}

// traceLog mirrors runner lines into the run log and keeps them for the
// outcome trace.
type traceLog struct {
	ctx    context.Context
	log    *domain.RunLog
	logger zerolog.Logger
	lines  []string
}

func (t *traceLog) add(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	t.lines = append(t.lines, line)
	if err := t.log.Append(t.ctx, line); err != nil {
		t.logger.Warn().Err(err).Str("log_id", t.log.ID()).Msg("failed to append to run log")
	}
}

func (t *traceLog) String() string {
	return strings.Join(t.lines, "\n")
}
