package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/provider"
	"github.com/ignite/campaign-dispatch/internal/queue"
)

// FollowUpStage runs the delayed second step some providers need after the
// initial send (chat-platform activation, CRM automation trigger).
// Activation calls are idempotent on the vendor side, so failures are
// returned and the queue redelivers; only a job on its last attempt is
// finalized as a failure.
type FollowUpStage struct {
	repo     Repository
	crm      RecordSystem
	notifier Notifier
	registry *provider.Registry
}

// NewFollowUpStage creates the follow-up handler.
func NewFollowUpStage(repo Repository, rs RecordSystem, n Notifier, reg *provider.Registry) *FollowUpStage {
	return &FollowUpStage{repo: repo, crm: rs, notifier: n, registry: reg}
}

// Handle processes one follow-up job.
func (s *FollowUpStage) Handle(ctx context.Context, job *queue.Job) error {
	var payload FollowUpJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode follow-up job %s: %w", job.ID, err)
	}

	campaign, err := s.repo.GetByID(ctx, payload.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign %s: %w", payload.CampaignID, err)
	}
	if campaign.Status.Terminal() && !payload.CompletesCampaign {
		// Activation of an already-finished campaign still runs; the vendor
		// needs the nudge even though our bookkeeping is closed.
		log.Printf("[FollowUp] Campaign %s already %s, activating anyway", campaign.ID, campaign.Status)
	}

	sender, err := s.registry.ByName(payload.Provider)
	if err != nil {
		return err
	}
	activator, ok := sender.(provider.Activator)
	if !ok {
		log.Printf("[FollowUp] Provider %s has no activation step, dropping job %s", payload.Provider, job.ID)
		return nil
	}

	raw, err := s.crm.FetchCredentials(ctx, payload.Provider, payload.WalletID)
	if err != nil {
		err = fmt.Errorf("fetch credentials %s/%s: %w", payload.Provider, payload.WalletID, err)
		if job.Attempt >= job.MaxAttempts {
			s.finishFailed(ctx, campaign, payload, err)
			return nil
		}
		return err
	}
	creds := provider.MapCredentials(payload.Provider, raw)

	if err := activator.Activate(ctx, payload.ProviderCampaignID, creds); err != nil {
		if job.Attempt >= job.MaxAttempts {
			s.finishFailed(ctx, campaign, payload, err)
			return nil
		}
		return fmt.Errorf("activate %s campaign %s: %w", payload.Provider, payload.ProviderCampaignID, err)
	}

	if payload.CompletesCampaign {
		if _, err := s.repo.UpdateMessagesStatus(ctx, campaign.ID, domain.MessageSent, ""); err != nil {
			log.Printf("[FollowUp] Update messages for %s: %v", campaign.ID, err)
		}
		if err := s.repo.MarkCompleted(ctx, campaign.ID, campaign.TotalMessages); err != nil {
			log.Printf("[FollowUp] Mark campaign %s completed: %v", campaign.ID, err)
		}
	}

	s.notifier.Notify(ctx, statusPayload(payload.AgendamentoID, payload.Provider,
		payload.SuccessStatus, "", campaign.TotalMessages, 0))
	log.Printf("[FollowUp] Campaign %s activated via %s", campaign.ID, payload.Provider)
	return nil
}

// finishFailed closes the campaign after the last activation attempt.
func (s *FollowUpStage) finishFailed(ctx context.Context, campaign *domain.Campaign, payload FollowUpJob, cause error) {
	reason := cause.Error()
	if payload.CompletesCampaign {
		if _, err := s.repo.UpdateMessagesStatus(ctx, campaign.ID, domain.MessageFailed, reason); err != nil {
			log.Printf("[FollowUp] Update messages for %s: %v", campaign.ID, err)
		}
		if err := s.repo.MarkFailed(ctx, campaign.ID, reason, campaign.TotalMessages); err != nil {
			log.Printf("[FollowUp] Mark campaign %s failed: %v", campaign.ID, err)
		}
	}
	s.notifier.Notify(ctx, statusPayload(payload.AgendamentoID, payload.Provider,
		payload.FailureStatus, reason, 0, campaign.TotalMessages))
	log.Printf("[FollowUp] Campaign %s activation failed via %s: %s", campaign.ID, payload.Provider, reason)
}
