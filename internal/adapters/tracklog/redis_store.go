// Package tracklog stores the per-run synchronization logs.
package tracklog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

var _ domain.LogStore = (*RedisLogStore)(nil)

const (
	metaKeyPrefix = "tracklog"
	fieldPrefix   = "prefix"
	fieldCreated  = "created_at"
	fieldExpiry   = "expiration"
)

// RedisLogStore keeps entries in a list at <prefix>:<id> and a small hash with
// the list's prefix so a log can be found by id alone. Both keys expire.
type RedisLogStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisLogStore(client *redis.Client) *RedisLogStore {
	return &RedisLogStore{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func entriesKey(prefix, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

func metaKey(id string) string {
	return fmt.Sprintf("%s:%s", metaKeyPrefix, id)
}

func (s *RedisLogStore) Create(ctx context.Context, prefix string, expiration time.Duration) (*domain.Log, error) {
	log := &domain.Log{
		ID:         uuid.NewString(),
		Prefix:     prefix,
		Expiration: expiration,
		CreatedAt:  s.now(),
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, metaKey(log.ID),
			fieldPrefix, prefix,
			fieldCreated, log.CreatedAt.Format(time.RFC3339Nano),
			fieldExpiry, int64(expiration.Seconds()),
		)
		pipe.Expire(ctx, metaKey(log.ID), expiration)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tracklog: failed to create log: %w", err)
	}
	return log, nil
}

func (s *RedisLogStore) Fetch(ctx context.Context, id string) (*domain.Log, error) {
	meta, err := s.client.HGetAll(ctx, metaKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("tracklog: failed to read log: %w", err)
	}
	if len(meta) == 0 {
		return nil, domain.ErrLogNotFound
	}

	log := &domain.Log{ID: id, Prefix: meta[fieldPrefix]}
	if created, err := time.Parse(time.RFC3339Nano, meta[fieldCreated]); err == nil {
		log.CreatedAt = created
	}
	if secs, err := strconv.ParseInt(meta[fieldExpiry], 10, 64); err == nil {
		log.Expiration = time.Duration(secs) * time.Second
	}

	entries, err := s.client.LRange(ctx, entriesKey(log.Prefix, id), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("tracklog: failed to read entries: %w", err)
	}
	log.Entries = entries
	return log, nil
}

func (s *RedisLogStore) Append(ctx context.Context, log *domain.Log, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	values := make([]interface{}, len(lines))
	for i, line := range lines {
		values[i] = line
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := entriesKey(log.Prefix, log.ID)
		pipe.RPush(ctx, key, values...)
		if log.Expiration > 0 {
			pipe.Expire(ctx, key, log.Expiration)
			pipe.Expire(ctx, metaKey(log.ID), log.Expiration)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tracklog: failed to append: %w", err)
	}
	return nil
}
