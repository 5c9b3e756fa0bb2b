// Package queue implements named Redis job queues with delayed delivery,
// per-job retry budgets and a dead-letter list. Ready jobs live in a list,
// delayed jobs in a sorted set scored by their due time. A job being handled
// sits on a processing list until it is acked or redelivered, so neither a
// crash nor a shutdown mid-job can lose it.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job is the envelope stored in Redis. Payload is left opaque so each queue
// can carry its own message type.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     int64           `json:"backoff_ms"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// BackoffDuration returns the delay before the next redelivery, doubling per
// attempt from the job's base backoff.
func (j *Job) BackoffDuration() time.Duration {
	d := time.Duration(j.Backoff) * time.Millisecond
	for i := 1; i < j.Attempt; i++ {
		d *= 2
	}
	return d
}

func readyKey(queue string) string      { return "queue:" + queue }
func delayedKey(queue string) string    { return "queue:" + queue + ":delayed" }
func deadKey(queue string) string       { return "queue:" + queue + ":dead" }
func processingKey(queue string) string { return "queue:" + queue + ":processing" }

// Option customizes a single enqueue.
type Option func(*Job, *time.Duration)

// WithDelay holds the job back for d before it becomes deliverable.
func WithDelay(d time.Duration) Option {
	return func(_ *Job, delay *time.Duration) { *delay = d }
}

// WithRetry sets the delivery budget and base backoff between redeliveries.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(j *Job, _ *time.Duration) {
		j.MaxAttempts = maxAttempts
		j.Backoff = backoff.Milliseconds()
	}
}

// WithJobID fixes the job id, letting callers dedupe or trace a job.
func WithJobID(id string) Option {
	return func(j *Job, _ *time.Duration) { j.ID = id }
}

// Client enqueues jobs.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a queue client on the given Redis connection.
func NewClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Enqueue marshals payload and pushes a job onto the named queue. With a
// delay the job lands in the delayed set and is promoted once due.
func (c *Client) Enqueue(ctx context.Context, queue string, payload interface{}, opts ...Option) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", queue, err)
	}

	job := &Job{
		ID:          uuid.NewString(),
		Queue:       queue,
		Payload:     data,
		Attempt:     1,
		MaxAttempts: 1,
		Backoff:     time.Minute.Milliseconds(),
		EnqueuedAt:  time.Now().UTC(),
	}
	var delay time.Duration
	for _, opt := range opts {
		opt(job, &delay)
	}

	if err := c.push(ctx, job, delay); err != nil {
		return nil, err
	}
	return job, nil
}

func (c *Client) push(ctx context.Context, job *Job, delay time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if delay > 0 {
		due := float64(time.Now().Add(delay).UnixMilli())
		if err := c.rdb.ZAdd(ctx, delayedKey(job.Queue), redis.Z{Score: due, Member: raw}).Err(); err != nil {
			return fmt.Errorf("delay job %s on %s: %w", job.ID, job.Queue, err)
		}
		return nil
	}
	if err := c.rdb.LPush(ctx, readyKey(job.Queue), raw).Err(); err != nil {
		return fmt.Errorf("enqueue job %s on %s: %w", job.ID, job.Queue, err)
	}
	return nil
}

// DeadLetters returns up to limit jobs parked on the queue's dead-letter list.
func (c *Client) DeadLetters(ctx context.Context, queue string, limit int64) ([]Job, error) {
	raws, err := c.rdb.LRange(ctx, deadKey(queue), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters for %s: %w", queue, err)
	}
	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var j Job
		if err := json.Unmarshal([]byte(raw), &j); err != nil {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
