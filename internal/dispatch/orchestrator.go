package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/queue"
)

// DispatchResult is what the API returns for a dispatch request.
type DispatchResult struct {
	Accepted   bool
	CampaignID string
	Status     domain.CampaignStatus
	Message    string
}

type locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Orchestrator accepts dispatch requests. It only looks up existing state
// and enqueues intake jobs; it never touches a provider, so the API request
// returns fast regardless of vendor latency.
type Orchestrator struct {
	repo    Repository
	queue   Enqueuer
	newLock func(key string) locker
}

// NewOrchestrator creates an orchestrator whose dedup lock lives in Redis.
func NewOrchestrator(repo Repository, q Enqueuer, rdb *redis.Client) *Orchestrator {
	return &Orchestrator{
		repo:  repo,
		queue: q,
		newLock: func(key string) locker {
			return distlock.New(rdb, key, 30*time.Second)
		},
	}
}

// NewOrchestratorWithLock creates an orchestrator with a custom lock factory.
func NewOrchestratorWithLock(repo Repository, q Enqueuer, newLock func(key string) locker) *Orchestrator {
	return &Orchestrator{repo: repo, queue: q, newLock: newLock}
}

// Dispatch accepts an agendamento id. A second dispatch of an id that
// already has a campaign returns the campaign's current state without
// enqueuing anything.
func (o *Orchestrator) Dispatch(ctx context.Context, agendamentoID string) (*DispatchResult, error) {
	if agendamentoID == "" {
		return nil, fmt.Errorf("%w: agendamento_id is required", domain.ErrValidation)
	}

	if c, err := o.repo.GetByAgendamentoID(ctx, agendamentoID); err == nil {
		return &DispatchResult{
			Accepted:   true,
			CampaignID: c.ID,
			Status:     c.Status,
			Message:    "campaign already dispatched",
		}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// The lock closes the lookup-then-enqueue race between API replicas.
	lock := o.newLock("dispatch:" + agendamentoID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return &DispatchResult{Accepted: true, Message: "dispatch already in progress"}, nil
	}
	defer lock.Release(ctx)

	// Re-check under the lock.
	if c, err := o.repo.GetByAgendamentoID(ctx, agendamentoID); err == nil {
		return &DispatchResult{
			Accepted:   true,
			CampaignID: c.ID,
			Status:     c.Status,
			Message:    "campaign already dispatched",
		}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	_, err = o.queue.Enqueue(ctx, QueueIntake, IntakeJob{AgendamentoID: agendamentoID},
		queue.WithRetry(5, 30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("enqueue intake for %s: %w", agendamentoID, err)
	}

	log.Printf("[Orchestrator] Accepted dispatch %s", agendamentoID)
	return &DispatchResult{Accepted: true, Status: domain.CampaignQueued, Message: "campaign queued"}, nil
}
