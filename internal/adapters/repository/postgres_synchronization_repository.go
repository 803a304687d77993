package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ domain.SynchronizationRepository = (*PostgresSynchronizationRepository)(nil)

const synchronizationColumns = `
	id, user_id, name, url, interval, state, run_at, ran_at, modified_at,
	etag, checksum, retried_times, error_code, error_message, log_id,
	service_name, service_item_id, created_at, updated_at`

type PostgresSynchronizationRepository struct {
	db *sqlx.DB
}

func NewPostgresSynchronizationRepository(db *sqlx.DB) *PostgresSynchronizationRepository {
	return &PostgresSynchronizationRepository{db: db}
}

func (r *PostgresSynchronizationRepository) NextID(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

// Store inserts or overwrites the full attribute set.
func (r *PostgresSynchronizationRepository) Store(ctx context.Context, s *domain.Synchronization) error {
	if err := s.Validate(); err != nil {
		return err
	}

	query := `
        INSERT INTO synchronizations (` + synchronizationColumns + `)
        VALUES (
            :id, :user_id, :name, :url, :interval, :state, :run_at, :ran_at, :modified_at,
            :etag, :checksum, :retried_times, :error_code, :error_message, :log_id,
            :service_name, :service_item_id, :created_at, :updated_at
        )
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            url = EXCLUDED.url,
            interval = EXCLUDED.interval,
            state = EXCLUDED.state,
            run_at = EXCLUDED.run_at,
            ran_at = EXCLUDED.ran_at,
            modified_at = EXCLUDED.modified_at,
            etag = EXCLUDED.etag,
            checksum = EXCLUDED.checksum,
            retried_times = EXCLUDED.retried_times,
            error_code = EXCLUDED.error_code,
            error_message = EXCLUDED.error_message,
            log_id = EXCLUDED.log_id,
            service_name = EXCLUDED.service_name,
            service_item_id = EXCLUDED.service_item_id,
            updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("failed to store synchronization: %w", err)
	}
	return nil
}

func (r *PostgresSynchronizationRepository) Fetch(ctx context.Context, id string) (*domain.Synchronization, error) {
	query := `SELECT ` + synchronizationColumns + ` FROM synchronizations WHERE id = $1`

	var s domain.Synchronization
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSynchronizationNotFound
		}
		return nil, fmt.Errorf("database scan error: %w", err)
	}
	return &s, nil
}

func (r *PostgresSynchronizationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM synchronizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete synchronization: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrSynchronizationNotFound
	}
	return nil
}

func (r *PostgresSynchronizationRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.Synchronization, error) {
	query := `
        SELECT ` + synchronizationColumns + ` FROM synchronizations
        WHERE user_id = $1
        ORDER BY created_at DESC`

	var list []*domain.Synchronization
	if err := r.db.SelectContext(ctx, &list, query, userID); err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return list, nil
}

func (r *PostgresSynchronizationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Synchronization, error) {
	query := `
        SELECT ` + synchronizationColumns + ` FROM synchronizations
        WHERE state = $1 AND run_at <= $2
        ORDER BY run_at ASC
        LIMIT $3`

	var list []*domain.Synchronization
	if err := r.db.SelectContext(ctx, &list, query, domain.StateSuccess, now, limit); err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return list, nil
}
