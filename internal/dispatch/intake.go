package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/provider"
	"github.com/ignite/campaign-dispatch/internal/queue"
)

// IntakeStage turns an accepted agendamento id into a QUEUED campaign with
// PENDING messages and hands it to the provider's send queue.
//
// Failure handling splits two ways: business failures (unknown prefix, empty
// recipient list, missing wallet id) are terminal, reported by webhook and
// consumed; infrastructure failures (CRM unreachable, credential record not
// yet available) are returned so the queue redelivers the job.
type IntakeStage struct {
	repo     Repository
	crm      RecordSystem
	queue    Enqueuer
	notifier Notifier
}

// NewIntakeStage creates the intake handler.
func NewIntakeStage(repo Repository, rs RecordSystem, q Enqueuer, n Notifier) *IntakeStage {
	return &IntakeStage{repo: repo, crm: rs, queue: q, notifier: n}
}

// Handle processes one intake job.
func (s *IntakeStage) Handle(ctx context.Context, job *queue.Job) error {
	var payload IntakeJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode intake job %s: %w", job.ID, err)
	}
	id := payload.AgendamentoID

	providerName, err := provider.ResolveName(id)
	if err != nil {
		s.fail(ctx, id, "", err)
		return nil
	}

	recipients, err := s.crm.FetchRecipients(ctx, id)
	if err != nil {
		if domain.Terminal(err) {
			s.fail(ctx, id, providerName, err)
			return nil
		}
		return fmt.Errorf("fetch recipients for %s: %w", id, err)
	}

	walletID := recipients[0].WalletID
	if walletID == "" {
		s.fail(ctx, id, providerName, fmt.Errorf("%w: %s", domain.ErrMissingWallet, id))
		return nil
	}

	// Credentials are verified to exist here so a missing record surfaces
	// before any rows are written. Fetch failures, 404 included, are
	// redelivered: the record may simply not be provisioned yet.
	if _, err := s.crm.FetchCredentials(ctx, providerName, walletID); err != nil {
		return fmt.Errorf("fetch credentials %s/%s: %w", providerName, walletID, err)
	}

	campaign, err := s.repo.CreateCampaign(ctx, id, providerName, len(recipients))
	if err != nil {
		return err
	}
	if campaign.Status.Terminal() {
		log.Printf("[Intake] Campaign %s already %s, skipping", campaign.ID, campaign.Status)
		return nil
	}
	if err := s.repo.CreateMessages(ctx, campaign.ID, recipients); err != nil {
		return err
	}

	_, err = s.queue.Enqueue(ctx, SendQueue(providerName), SendJob{
		CampaignID:    campaign.ID,
		AgendamentoID: id,
		Provider:      providerName,
		WalletID:      walletID,
	}, queue.WithRetry(5, time.Minute))
	if err != nil {
		return fmt.Errorf("enqueue send for campaign %s: %w", campaign.ID, err)
	}

	log.Printf("[Intake] Campaign %s queued for %s (%d recipients)", campaign.ID, providerName, len(recipients))
	return nil
}

// fail reports a terminal intake failure. No campaign row exists yet, so the
// webhook is the only record the caller gets.
func (s *IntakeStage) fail(ctx context.Context, agendamentoID, providerName string, cause error) {
	log.Printf("[Intake] Terminal failure for %s: %v", agendamentoID, cause)
	s.notifier.Notify(ctx, statusPayload(agendamentoID, providerName, StatusSendFailed, cause.Error(), 0, 0))
}
