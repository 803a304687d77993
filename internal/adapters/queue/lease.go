package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLease marks a synchronization as queued with SET NX, so only one job
// per id waits in the queue until the worker releases it or the ttl lapses.
type RedisLease struct {
	client *redis.Client
	prefix string
}

func NewRedisLease(client *redis.Client, prefix string) *RedisLease {
	return &RedisLease{client: client, prefix: prefix}
}

func (l *RedisLease) key(id string) string {
	return l.prefix + ":" + id
}

func (l *RedisLease) Acquire(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(id), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("queue: failed to acquire lease for %s: %w", id, err)
	}
	return ok, nil
}

func (l *RedisLease) Release(ctx context.Context, id string) error {
	if err := l.client.Del(ctx, l.key(id)).Err(); err != nil {
		return fmt.Errorf("queue: failed to release lease for %s: %w", id, err)
	}
	return nil
}

// MemoryLease is the single-process counterpart of RedisLease.
type MemoryLease struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryLease() *MemoryLease {
	return &MemoryLease{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (l *MemoryLease) Acquire(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if until, ok := l.expires[id]; ok && now.Before(until) {
		return false, nil
	}
	l.expires[id] = now.Add(ttl)
	return true, nil
}

func (l *MemoryLease) Release(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expires, id)
	return nil
}
