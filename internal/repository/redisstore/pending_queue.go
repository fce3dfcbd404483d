// Package redisstore keeps the offline pending-operation queue in Redis so
// queued mutations survive a restart.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"campusattend/internal/domain"
)

// DefaultQueueKey is the list holding pending operations, oldest at the head.
const DefaultQueueKey = "campusattend:pending"

type pendingQueue struct {
	rdb *redis.Client
	key string
}

// NewPendingQueue returns a queue backed by the Redis list at key.
func NewPendingQueue(rdb *redis.Client, key string) domain.PendingQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &pendingQueue{rdb: rdb, key: key}
}

func (q *pendingQueue) Enqueue(ctx context.Context, op *domain.PendingOperation) error {
	raw, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("encode pending operation: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, raw).Err()
}

func (q *pendingQueue) Dequeue(ctx context.Context) (*domain.PendingOperation, error) {
	raw, err := q.rdb.LPop(ctx, q.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var op domain.PendingOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, fmt.Errorf("decode pending operation: %w", err)
	}
	return &op, nil
}

func (q *pendingQueue) Requeue(ctx context.Context, op *domain.PendingOperation) error {
	raw, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("encode pending operation: %w", err)
	}
	return q.rdb.LPush(ctx, q.key, raw).Err()
}

func (q *pendingQueue) Len(ctx context.Context) (int, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	return int(n), err
}
