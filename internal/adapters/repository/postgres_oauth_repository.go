package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
	"github.com/jmoiron/sqlx"
)

var _ domain.OAuthRepository = (*PostgresOAuthRepository)(nil)

type PostgresOAuthRepository struct {
	db *sqlx.DB
}

func NewPostgresOAuthRepository(db *sqlx.DB) *PostgresOAuthRepository {
	return &PostgresOAuthRepository{db: db}
}

func (r *PostgresOAuthRepository) Token(ctx context.Context, userID, service string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var token string
	err := r.db.GetContext(ctx, &token,
		`SELECT token FROM oauth_tokens WHERE user_id = $1 AND service = $2`, userID, service)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrOAuthNotFound
	}
	if err != nil {
		return "", fmt.Errorf("repository: get oauth token failed: %w", err)
	}
	return token, nil
}

func (r *PostgresOAuthRepository) Save(ctx context.Context, userID, service, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (user_id, service, token, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, service) DO UPDATE SET token = EXCLUDED.token, updated_at = NOW()`,
		userID, service, token)
	if err != nil {
		return fmt.Errorf("repository: save oauth token failed: %w", err)
	}
	return nil
}

func (r *PostgresOAuthRepository) Revoke(ctx context.Context, userID, service string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE user_id = $1 AND service = $2`, userID, service)
	if err != nil {
		return fmt.Errorf("repository: revoke oauth token failed: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domain.ErrOAuthNotFound
	}
	return nil
}
