// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fablemint/storyforge/internal/platform/constants"
)

// Queue is the Redis-backed dispatch mechanism between the orchestrator and
// the worker.
//
// # Layout
//
//   - jobs:queue         list of job IDs ready for submission (LPUSH / BRPOP)
//   - jobs:delayed       sorted set of job IDs scored by due unix-millis —
//     covers both poll backoff and delayed retry requeue
//   - jobs:cancelled:<id> best-effort cancellation flag for in-flight work
//
// The ledger (PostgreSQL) remains the source of truth; Redis only carries
// scheduling signals. A lost Redis entry is recovered from ListPending at
// worker startup.
type Queue struct {
	rdb *redis.Client
}

// NewQueue wraps a connected Redis client.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Push enqueues a job ID for immediate submission.
func (q *Queue) Push(ctx context.Context, jobID string) error {
	if err := q.rdb.LPush(ctx, constants.RedisKeyJobQueue, jobID).Err(); err != nil {
		return fmt.Errorf("job_queue_push_failed: %w", err)
	}
	return nil
}

// PopBlocking waits up to timeout for the next submittable job ID.
// It returns an empty string when the timeout elapses with no work.
func (q *Queue) PopBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.rdb.BRPop(ctx, timeout, constants.RedisKeyJobQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("job_queue_pop_failed: %w", err)
	}

	// result[0] is the queue name, result[1] the job ID.
	return result[1], nil
}

// Schedule registers a job to become due at the given time (poll backoff or
// delayed retry). Re-scheduling an already-scheduled job overwrites its due
// time, which keeps the operation idempotent.
func (q *Queue) Schedule(ctx context.Context, jobID string, due time.Time) error {
	member := redis.Z{Score: float64(due.UnixMilli()), Member: jobID}
	if err := q.rdb.ZAdd(ctx, constants.RedisKeyJobDelayed, member).Err(); err != nil {
		return fmt.Errorf("job_queue_schedule_failed: %w", err)
	}
	return nil
}

// Due pops every job whose due time has passed.
func (q *Queue) Due(ctx context.Context, now time.Time) ([]string, error) {
	max := fmt.Sprintf("%d", now.UnixMilli())

	ids, err := q.rdb.ZRangeByScore(ctx, constants.RedisKeyJobDelayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("job_queue_due_failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// Remove claimed members so no other worker picks them up.
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := q.rdb.ZRem(ctx, constants.RedisKeyJobDelayed, members...).Err(); err != nil {
		return nil, fmt.Errorf("job_queue_claim_failed: %w", err)
	}

	return ids, nil
}

// MarkCancelled flags a job so the worker discards any in-flight provider
// result that arrives after the owning entity was deleted.
func (q *Queue) MarkCancelled(ctx context.Context, jobID string) error {
	key := constants.RedisPrefixJobCancelled + jobID
	if err := q.rdb.Set(ctx, key, "1", constants.JobCancelFlagTTL).Err(); err != nil {
		return fmt.Errorf("job_queue_cancel_flag_failed: %w", err)
	}
	return nil
}

// IsCancelled reports whether a cancellation flag exists for the job.
func (q *Queue) IsCancelled(ctx context.Context, jobID string) bool {
	n, err := q.rdb.Exists(ctx, constants.RedisPrefixJobCancelled+jobID).Result()
	return err == nil && n > 0
}
