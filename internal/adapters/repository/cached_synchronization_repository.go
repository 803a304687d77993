package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var _ domain.SynchronizationRepository = (*CachedSynchronizationRepository)(nil)

const listCacheTTL = 10 * time.Minute

// CachedSynchronizationRepository caches per-user listings. Run state changes
// on every store, so single records always go to the backing repository.
type CachedSynchronizationRepository struct {
	next   domain.SynchronizationRepository
	cache  *redis.Client
	logger zerolog.Logger
}

func NewCachedSynchronizationRepository(next domain.SynchronizationRepository, cache *redis.Client, logger zerolog.Logger) *CachedSynchronizationRepository {
	return &CachedSynchronizationRepository{
		next:   next,
		cache:  cache,
		logger: logger.With().Str("component", "sync_cache").Logger(),
	}
}

func (r *CachedSynchronizationRepository) cacheKey(userID string) string {
	return fmt.Sprintf("synchronizations:%s", userID)
}

func (r *CachedSynchronizationRepository) invalidate(ctx context.Context, userID string) {
	if err := r.cache.Del(ctx, r.cacheKey(userID)).Err(); err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to invalidate cache")
	}
}

func (r *CachedSynchronizationRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.Synchronization, error) {
	key := r.cacheKey(userID)

	val, err := r.cache.Get(ctx, key).Bytes()
	if err == nil {
		var list []*domain.Synchronization
		if err := json.Unmarshal(val, &list); err == nil {
			return list, nil
		}

		r.logger.Warn().Str("user_id", userID).Msg("corrupted cache entry, cleaning up key")
		r.cache.Del(ctx, key)
	} else if err != redis.Nil {
		r.logger.Warn().Err(err).Msg("redis read error")
	}

	list, err := r.next.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(list); err == nil {
		if setErr := r.cache.Set(ctx, key, data, listCacheTTL).Err(); setErr != nil {
			r.logger.Warn().Err(setErr).Msg("redis set error")
		}
	}

	return list, nil
}

func (r *CachedSynchronizationRepository) NextID(ctx context.Context) (string, error) {
	return r.next.NextID(ctx)
}

func (r *CachedSynchronizationRepository) Fetch(ctx context.Context, id string) (*domain.Synchronization, error) {
	return r.next.Fetch(ctx, id)
}

func (r *CachedSynchronizationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Synchronization, error) {
	return r.next.ListDue(ctx, now, limit)
}

func (r *CachedSynchronizationRepository) Store(ctx context.Context, s *domain.Synchronization) error {
	if err := r.next.Store(ctx, s); err != nil {
		return err
	}
	r.invalidate(ctx, s.UserID)
	return nil
}

func (r *CachedSynchronizationRepository) Delete(ctx context.Context, id string) error {
	s, err := r.next.Fetch(ctx, id)
	if err == nil && s != nil {
		defer r.invalidate(ctx, s.UserID)
	}

	return r.next.Delete(ctx, id)
}
