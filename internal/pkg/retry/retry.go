// Package retry executes operations under a provider-declared retry
// strategy, classifying failures so that requests that can never succeed
// (4xx, validation) fail fast while transient failures back off and retry.
package retry

import (
	"context"
	"log"
	"time"
)

// Strategy is declared by each provider adapter: how many retries to make
// after the initial attempt, and how long to sleep before each one. When
// attempts outnumber Delays, the last delay is reused.
type Strategy struct {
	MaxRetries int
	Delays     []time.Duration
}

// DefaultStrategy matches what most provider APIs tolerate.
func DefaultStrategy() Strategy {
	return Strategy{MaxRetries: 3, Delays: []time.Duration{time.Second, 2 * time.Second, 5 * time.Second}}
}

// delay returns the sleep before retry attempt n (1-based).
func (s Strategy) delay(attempt int) time.Duration {
	if len(s.Delays) == 0 {
		return time.Second
	}
	if attempt > len(s.Delays) {
		return s.Delays[len(s.Delays)-1]
	}
	return s.Delays[attempt-1]
}

// Executor runs operations with retry. The sleep function is injectable so
// tests can observe backoff without waiting.
type Executor struct {
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an Executor using a context-aware real sleep.
func New() *Executor {
	return &Executor{sleep: func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
}

// NewWithSleep returns an Executor with a custom sleep function.
func NewWithSleep(sleep func(ctx context.Context, d time.Duration) error) *Executor {
	return &Executor{sleep: sleep}
}

// Do runs op, retrying per strategy. 4xx and validation failures propagate
// immediately; network, timeout and 5xx failures are retried with the
// strategy's delays. Exhausting retries returns the last error; the caller
// (a provider adapter) converts it into a structured failure.
func (e *Executor) Do(ctx context.Context, strategy Strategy, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= strategy.MaxRetries; attempt++ {
		if attempt > 0 {
			d := strategy.delay(attempt)
			log.Printf("[Retry] attempt %d/%d after %s (last error: %v)", attempt, strategy.MaxRetries, d, lastErr)
			if err := e.sleep(ctx, d); err != nil {
				return lastErr
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Classify(err).Retryable() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}

	return lastErr
}
