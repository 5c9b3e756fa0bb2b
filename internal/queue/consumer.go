package queue

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// promoteScript moves due jobs from the delayed set to the ready list in one
// round trip so no job is lost between the read and the push.
var promoteScript = redis.NewScript(`
	local due = redis.call("zrangebyscore", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
	for _, raw in ipairs(due) do
		redis.call("zrem", KEYS[1], raw)
		redis.call("lpush", KEYS[2], raw)
	end
	return #due
`)

// Handler processes one job. Returning an error redelivers the job with
// backoff until its attempt budget runs out, then parks it as a dead letter.
type Handler func(ctx context.Context, job *Job) error

// Stats counts consumer activity since start.
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
	Dead      int64 `json:"dead"`
}

// Consumer drains one named queue with a fixed worker pool.
type Consumer struct {
	rdb     *redis.Client
	client  *Client
	queue   string
	handler Handler
	workers int
	poll    time.Duration
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stats   struct{ processed, failed, retried, dead int64 }
}

// NewConsumer creates a consumer for queue with the given worker count.
func NewConsumer(rdb *redis.Client, queue string, workers int, handler Handler) *Consumer {
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		rdb:     rdb,
		client:  NewClient(rdb),
		queue:   queue,
		handler: handler,
		workers: workers,
		poll:    time.Second,
	}
}

// Start launches the promotion loop and the worker pool.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true

	ctx, c.cancel = context.WithCancel(ctx)

	c.recoverProcessing(ctx)

	c.wg.Add(1)
	go c.promoteLoop(ctx)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.workLoop(ctx, i)
	}
	log.Printf("[Queue:%s] Started %d workers", c.queue, c.workers)
}

// Stop signals the loops and waits for in-flight jobs to finish.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	log.Printf("[Queue:%s] Stopped", c.queue)
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Processed: atomic.LoadInt64(&c.stats.processed),
		Failed:    atomic.LoadInt64(&c.stats.failed),
		Retried:   atomic.LoadInt64(&c.stats.retried),
		Dead:      atomic.LoadInt64(&c.stats.dead),
	}
}

func (c *Consumer) promoteLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UnixMilli()
			keys := []string{delayedKey(c.queue), readyKey(c.queue)}
			if _, err := promoteScript.Run(ctx, c.rdb, keys, now, 100).Result(); err != nil && ctx.Err() == nil {
				log.Printf("[Queue:%s] Promote delayed jobs: %v", c.queue, err)
			}
		}
	}
}

// recoverProcessing moves jobs a previous run left on the processing list
// back onto the ready list. Handlers are replay-safe, so redelivering a job
// that was in flight during a crash is the correct recovery.
func (c *Consumer) recoverProcessing(ctx context.Context) {
	n := 0
	for {
		_, err := c.rdb.LMove(ctx, processingKey(c.queue), readyKey(c.queue), "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			log.Printf("[Queue:%s] Recover processing list: %v", c.queue, err)
			break
		}
		n++
	}
	if n > 0 {
		log.Printf("[Queue:%s] Recovered %d in-flight jobs from a previous run", c.queue, n)
	}
}

func (c *Consumer) workLoop(ctx context.Context, id int) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		// The claim moves the job onto the processing list in the same
		// command, so a crash between pop and handle cannot lose it.
		raw, err := c.rdb.LMove(ctx, readyKey(c.queue), processingKey(c.queue), "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.poll):
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Queue:%s] Worker %d claim: %v", c.queue, id, err)
			time.Sleep(c.poll)
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			log.Printf("[Queue:%s] Worker %d discarding malformed job: %v", c.queue, id, err)
			atomic.AddInt64(&c.stats.failed, 1)
			c.ack(raw)
			continue
		}

		if err := c.handler(ctx, &job); err != nil {
			atomic.AddInt64(&c.stats.failed, 1)
			c.redeliver(&job, err)
		} else {
			atomic.AddInt64(&c.stats.processed, 1)
		}
		c.ack(raw)
	}
}

// ack drops the claimed entry from the processing list. It runs on its own
// context: during a drain the worker context is already cancelled and the
// entry must still come off.
func (c *Consumer) ack(raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.rdb.LRem(ctx, processingKey(c.queue), 1, raw).Err(); err != nil {
		log.Printf("[Queue:%s] Ack job: %v", c.queue, err)
	}
}

// redeliver runs on its own context for the same reason as ack: a handler
// failing because the consumer is stopping must still get its job requeued.
func (c *Consumer) redeliver(job *Job, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if job.Attempt >= job.MaxAttempts {
		atomic.AddInt64(&c.stats.dead, 1)
		log.Printf("[Queue:%s] Job %s exhausted %d attempts, moving to dead letters: %v",
			c.queue, job.ID, job.Attempt, cause)
		raw, err := json.Marshal(job)
		if err == nil {
			err = c.rdb.LPush(ctx, deadKey(c.queue), raw).Err()
		}
		if err != nil {
			log.Printf("[Queue:%s] Dead-letter job %s: %v", c.queue, job.ID, err)
		}
		return
	}

	delay := job.BackoffDuration()
	job.Attempt++
	atomic.AddInt64(&c.stats.retried, 1)
	log.Printf("[Queue:%s] Job %s failed (attempt %d/%d), retrying in %s: %v",
		c.queue, job.ID, job.Attempt-1, job.MaxAttempts, delay, cause)
	if err := c.client.push(ctx, job, delay); err != nil {
		log.Printf("[Queue:%s] Requeue job %s: %v", c.queue, job.ID, err)
	}
}
