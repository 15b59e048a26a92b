package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ViolationQueue is the Redis list between the attempt lifecycle, which pushes
// violation records, and worker.ViolationWorker, which drains them.
type ViolationQueue struct {
	rdb *redis.Client
	key string
}

// NewViolationQueue creates a new ViolationQueue.
func NewViolationQueue(rdb *redis.Client) *ViolationQueue {
	return &ViolationQueue{rdb: rdb, key: config.WorkerKey.PersistViolationsQueue}
}

// Enqueue appends rec to the persist queue.
func (q *ViolationQueue) Enqueue(ctx context.Context, rec model.ViolationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode violation: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, data).Err()
}

// Pop blocks up to timeout for the next raw record. Timeout must be at least
// one second for Redis. Returns ErrQueueEmpty when nothing arrived.
func (q *ViolationQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, ErrQueueEmpty
	}
	return []byte(result[1]), nil
}

// Requeue pushes records back in one pipeline.
func (q *ViolationQueue) Requeue(ctx context.Context, recs []model.ViolationRecord) error {
	pipe := q.rdb.Pipeline()
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode violation: %w", err)
		}
		pipe.RPush(ctx, q.key, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}
