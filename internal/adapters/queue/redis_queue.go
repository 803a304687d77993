// Package queue carries synchronization jobs from producers to workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

var _ domain.JobQueue = (*RedisJobQueue)(nil)

// RedisJobQueue is a FIFO list: LPUSH to enqueue, BRPOP to dequeue.
type RedisJobQueue struct {
	client *redis.Client
	key    string
}

func NewRedisJobQueue(client *redis.Client, key string) *RedisJobQueue {
	return &RedisJobQueue{client: client, key: key}
}

func (q *RedisJobQueue) Enqueue(ctx context.Context, job domain.SyncJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: failed to encode job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("queue: failed to push job: %w", err)
	}
	return nil
}

func (q *RedisJobQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.SyncJob, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("queue: failed to pop job: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("queue: unexpected reply %v", res)
	}

	var job domain.SyncJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("queue: malformed job %q: %w", res[1], err)
	}
	return &job, nil
}

// Len reports how many jobs are waiting.
func (q *RedisJobQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
