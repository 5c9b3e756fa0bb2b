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

// SendStage executes the provider send for a campaign. Once the adapter has
// reported an outcome the business result is final: both success and failure
// are persisted and webhooked, and the job is consumed either way. Only
// failures BEFORE the send (CRM fetches, campaign lookup) are returned so
// the queue can redeliver; on the job's last attempt even those finalize the
// campaign, so it cannot strand in a non-terminal state.
type SendStage struct {
	repo     Repository
	crm      RecordSystem
	queue    Enqueuer
	notifier Notifier
	registry *provider.Registry
}

// NewSendStage creates the send handler.
func NewSendStage(repo Repository, rs RecordSystem, q Enqueuer, n Notifier, reg *provider.Registry) *SendStage {
	return &SendStage{repo: repo, crm: rs, queue: q, notifier: n, registry: reg}
}

// Handle processes one send job.
func (s *SendStage) Handle(ctx context.Context, job *queue.Job) error {
	var payload SendJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode send job %s: %w", job.ID, err)
	}

	campaign, err := s.repo.GetByID(ctx, payload.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign %s: %w", payload.CampaignID, err)
	}
	if campaign.Status.Terminal() {
		log.Printf("[Send] Campaign %s already %s, skipping replay", campaign.ID, campaign.Status)
		return nil
	}

	sender, err := s.registry.ByName(payload.Provider)
	if err != nil {
		s.finishFailed(ctx, campaign, payload, err.Error())
		return nil
	}

	recipients, err := s.crm.FetchRecipients(ctx, payload.AgendamentoID)
	if err != nil {
		return s.retryOrFail(ctx, job, campaign, payload,
			fmt.Errorf("fetch recipients for %s: %w", payload.AgendamentoID, err))
	}
	raw, err := s.crm.FetchCredentials(ctx, payload.Provider, payload.WalletID)
	if err != nil {
		return s.retryOrFail(ctx, job, campaign, payload,
			fmt.Errorf("fetch credentials %s/%s: %w", payload.Provider, payload.WalletID, err))
	}
	creds := provider.MapCredentials(payload.Provider, raw)

	// Replay defense: a crash between intake's inserts and the first send
	// leaves the campaign without message rows.
	if err := s.repo.CreateMessages(ctx, campaign.ID, recipients); err != nil {
		return s.retryOrFail(ctx, job, campaign, payload, err)
	}
	if err := s.repo.MarkProcessing(ctx, campaign.ID); err != nil {
		return s.retryOrFail(ctx, job, campaign, payload, err)
	}

	result, err := sender.Send(ctx, recipients, creds)
	if err != nil {
		result = &provider.SendResult{Success: false, ErrorMessage: err.Error()}
	}

	if !result.Success {
		s.finishFailed(ctx, campaign, payload, result.ErrorMessage)
		return nil
	}

	if result.FollowUp != nil {
		s.enqueueFollowUp(ctx, campaign, payload, result.FollowUp)
	}

	// When a follow-up owns completion the campaign stays PROCESSING and
	// the messages stay PENDING until it reports.
	if result.FollowUp == nil || !result.FollowUp.CompletesCampaign {
		if _, err := s.repo.UpdateMessagesStatus(ctx, campaign.ID, domain.MessageSent, ""); err != nil {
			log.Printf("[Send] Update messages for %s: %v", campaign.ID, err)
		}
		if err := s.repo.MarkCompleted(ctx, campaign.ID, campaign.TotalMessages); err != nil {
			log.Printf("[Send] Mark campaign %s completed: %v", campaign.ID, err)
		}
	}

	s.notifier.Notify(ctx, statusPayload(payload.AgendamentoID, payload.Provider,
		StatusSent, result.ResponseBody, campaign.TotalMessages, 0))
	log.Printf("[Send] Campaign %s sent via %s (%d messages)", campaign.ID, payload.Provider, campaign.TotalMessages)
	return nil
}

// retryOrFail returns a pre-send failure for queue redelivery. On the job's
// last attempt the campaign is finalized instead, so a dead-lettered job
// never strands it in a non-terminal state with no webhook.
func (s *SendStage) retryOrFail(ctx context.Context, job *queue.Job, campaign *domain.Campaign, payload SendJob, cause error) error {
	if job.Attempt >= job.MaxAttempts {
		s.finishFailed(ctx, campaign, payload, cause.Error())
		return nil
	}
	return cause
}

func (s *SendStage) enqueueFollowUp(ctx context.Context, campaign *domain.Campaign, payload SendJob, fu *provider.FollowUp) {
	_, err := s.queue.Enqueue(ctx, FollowUpQueue(payload.Provider), FollowUpJob{
		CampaignID:         campaign.ID,
		AgendamentoID:      payload.AgendamentoID,
		Provider:           payload.Provider,
		WalletID:           payload.WalletID,
		ProviderCampaignID: fu.ProviderCampaignID,
		SuccessStatus:      fu.SuccessStatus,
		FailureStatus:      fu.FailureStatus,
		CompletesCampaign:  fu.CompletesCampaign,
	}, queue.WithDelay(fu.Delay), queue.WithRetry(3, fu.Delay))
	if err != nil {
		log.Printf("[Send] Enqueue follow-up for %s: %v", campaign.ID, err)
	}
}

// finishFailed records the terminal failure and reports it. Persistence
// errors are logged but never block the webhook.
func (s *SendStage) finishFailed(ctx context.Context, campaign *domain.Campaign, payload SendJob, reason string) {
	if _, err := s.repo.UpdateMessagesStatus(ctx, campaign.ID, domain.MessageFailed, reason); err != nil {
		log.Printf("[Send] Update messages for %s: %v", campaign.ID, err)
	}
	if err := s.repo.MarkFailed(ctx, campaign.ID, reason, campaign.TotalMessages); err != nil {
		log.Printf("[Send] Mark campaign %s failed: %v", campaign.ID, err)
	}
	s.notifier.Notify(ctx, statusPayload(payload.AgendamentoID, payload.Provider,
		StatusSendFailed, reason, 0, campaign.TotalMessages))
	log.Printf("[Send] Campaign %s failed via %s: %s", campaign.ID, payload.Provider, reason)
}
