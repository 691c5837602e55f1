// Package queue implements the Job Queue (C7): a durable, Redis-backed
// FIFO of jobs keyed by workflow, per spec.md §4.7. It decouples the
// Scheduler (C6), which appends jobs, from the Executor (C8), which pulls
// them with retry/backoff semantics.
//
// The queue models three job states as three Redis keys: waiting (a
// list), delayed (a sorted set scored by ready-at unix time, for jobs
// between retry attempts), and failed (a list of terminal jobs retained
// for inspection). There is no separate "active" list: a job popped by
// Dequeue lives only in the calling worker's memory until it calls Retry
// or Fail, a deliberate simplification over the spec's notion of
// independently queryable in-flight jobs.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/pkg/config"
)

const (
	waitingKey = "workflowd:queue:waiting"
	delayedKey = "workflowd:queue:delayed"
	failedKey  = "workflowd:queue:failed"

	// MaxAttempts is the fixed retry budget per spec.md §4.7.
	MaxAttempts = 3
	backoffBase = time.Second
)

// Job is one unit of work: the scheduler's trigger hit, plus the
// delivery-count the executor needs to decide retry-vs-terminal.
type Job struct {
	ID           string         `json:"id"`
	WorkflowID   core.ID        `json:"workflow_id"`
	UserID       core.ID        `json:"user_id"`
	TriggerData  map[string]any `json:"trigger_data"`
	AttemptsMade int            `json:"attempts_made"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Queue is the C7 Job Queue.
type Queue struct {
	rdb *redis.Client
}

// New connects to Redis per cfg. A URL, if set, takes precedence over the
// discrete host/port/password/db fields.
func New(cfg config.QueueConfig) (*Queue, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("queue: parsing redis url: %w", err)
		}
		return &Queue{rdb: redis.NewClient(opts)}, nil
	}
	return &Queue{rdb: redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password.Value(),
		DB:       cfg.DB,
	})}, nil
}

func (q *Queue) Close() error { return q.rdb.Close() }

// Enqueue appends job to the waiting list, per the scheduler's "append one
// job per due, unprocessed trigger" rule (spec.md §4.6 step 5).
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshaling job: %w", err)
	}
	return q.rdb.LPush(ctx, waitingKey, raw).Err()
}

// Dequeue promotes any delayed job whose backoff has elapsed, then blocks
// up to timeout for the next waiting job. A nil, nil return means the
// wait timed out with nothing available.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		return nil, err
	}
	res, err := q.rdb.BRPop(ctx, timeout, waitingKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshaling job: %w", err)
	}
	return &job, nil
}

// Retry bumps job's attempt count and reschedules it into the delayed set
// with exponential backoff (base=1s: 1s, 2s, 4s), per spec.md §4.7.
// Callers must check Terminal(job) first — Retry does not itself enforce
// the attempt ceiling.
func (q *Queue) Retry(ctx context.Context, job Job, failErr error) error {
	job.AttemptsMade++
	if failErr != nil {
		job.LastError = failErr.Error()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshaling job: %w", err)
	}
	readyAt := time.Now().Add(backoffFor(job.AttemptsMade)).Unix()
	return q.rdb.ZAdd(ctx, delayedKey, redis.Z{Score: float64(readyAt), Member: raw}).Err()
}

// Fail records job as terminal: no further retries, retained on the
// failed list for inspection per spec.md §4.7.
func (q *Queue) Fail(ctx context.Context, job Job, failErr error) error {
	if failErr != nil {
		job.LastError = failErr.Error()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshaling job: %w", err)
	}
	return q.rdb.LPush(ctx, failedKey, raw).Err()
}

// Terminal reports whether job has exhausted its retry budget.
func Terminal(job Job) bool {
	return job.AttemptsMade >= MaxAttempts
}

// RemoveJobsFor scans the waiting and delayed sets for jobs belonging to
// workflowID and removes them, used when a workflow is deactivated
// (spec.md §4.7).
func (q *Queue) RemoveJobsFor(ctx context.Context, workflowID core.ID) (int, error) {
	removed := 0
	n, err := q.filterList(ctx, waitingKey, workflowID)
	if err != nil {
		return removed, err
	}
	removed += n
	n, err = q.filterDelayed(ctx, workflowID)
	if err != nil {
		return removed, err
	}
	removed += n
	return removed, nil
}

func (q *Queue) filterList(ctx context.Context, key string, workflowID core.ID) (int, error) {
	raws, err := q.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: scanning %s: %w", key, err)
	}
	kept := make([]any, 0, len(raws))
	removed := 0
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		if job.WorkflowID == workflowID {
			removed++
			continue
		}
		kept = append(kept, raw)
	}
	if removed == 0 {
		return 0, nil
	}
	pipe := q.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(kept) > 0 {
		pipe.RPush(ctx, key, kept...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("queue: rewriting %s: %w", key, err)
	}
	return removed, nil
}

func (q *Queue) filterDelayed(ctx context.Context, workflowID core.ID) (int, error) {
	members, err := q.rdb.ZRangeWithScores(ctx, delayedKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: scanning delayed: %w", err)
	}
	removed := 0
	for _, m := range members {
		s, ok := m.Member.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			continue
		}
		if job.WorkflowID != workflowID {
			continue
		}
		if err := q.rdb.ZRem(ctx, delayedKey, m.Member).Err(); err != nil {
			return removed, fmt.Errorf("queue: removing delayed job: %w", err)
		}
		removed++
	}
	return removed, nil
}

// promoteDelayed moves every delayed job whose ready-at has elapsed back
// onto the waiting list.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := float64(time.Now().Unix())
	ready, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return fmt.Errorf("queue: scanning delayed: %w", err)
	}
	for _, raw := range ready {
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, delayedKey, raw)
		pipe.LPush(ctx, waitingKey, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("queue: promoting delayed job: %w", err)
		}
	}
	return nil
}

// backoffFor returns the delay before retry attempt n, computed from
// go-retry's exponential backoff primitive seeded at a 1s base so attempts
// 1, 2, 3 land at 1s, 2s, 4s.
func backoffFor(attempt int) time.Duration {
	b := retry.NewExponential(backoffBase)
	var d time.Duration
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		d = next
	}
	return d
}
