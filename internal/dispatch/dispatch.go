// Package dispatch contains the campaign pipeline: the orchestrator that
// accepts dispatch requests and the queue stages (intake, send, follow-up)
// that carry a campaign from QUEUED to a terminal state.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/ignite/campaign-dispatch/internal/crm"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/queue"
)

// Queue names. Send and follow-up queues are split per provider so one slow
// or failing vendor cannot starve the rest.
const QueueIntake = "intake"

// SendQueue returns the send queue name for a provider.
func SendQueue(provider string) string { return "send:" + strings.ToLower(provider) }

// FollowUpQueue returns the follow-up queue name for a provider.
func FollowUpQueue(provider string) string { return "followup:" + strings.ToLower(provider) }

// Webhook status values reported back to the system of record.
const (
	StatusSent       = "enviado"
	StatusSendFailed = "erro_envio"
)

// IntakeJob is the payload on the intake queue.
type IntakeJob struct {
	AgendamentoID string `json:"agendamento_id"`
}

// SendJob is the payload on a send:{provider} queue.
type SendJob struct {
	CampaignID    string `json:"campaign_id"`
	AgendamentoID string `json:"agendamento_id"`
	Provider      string `json:"provider"`
	WalletID      string `json:"wallet_id"`
}

// FollowUpJob is the payload on a followup:{provider} queue.
type FollowUpJob struct {
	CampaignID         string `json:"campaign_id"`
	AgendamentoID      string `json:"agendamento_id"`
	Provider           string `json:"provider"`
	WalletID           string `json:"wallet_id"`
	ProviderCampaignID string `json:"provider_campaign_id"`
	SuccessStatus      string `json:"success_status"`
	FailureStatus      string `json:"failure_status"`
	CompletesCampaign  bool   `json:"completes_campaign"`
}

// Repository is the persistence surface the pipeline needs.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	GetByAgendamentoID(ctx context.Context, agendamentoID string) (*domain.Campaign, error)
	CreateCampaign(ctx context.Context, agendamentoID, provider string, totalMessages int) (*domain.Campaign, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, sentMessages int) error
	MarkFailed(ctx context.Context, id, reason string, failedMessages int) error
	CreateMessages(ctx context.Context, campaignID string, recipients []domain.Recipient) error
	UpdateMessagesStatus(ctx context.Context, campaignID string, status domain.MessageStatus, errMsg string) (int, error)
}

// Enqueuer pushes jobs onto named queues.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...queue.Option) (*queue.Job, error)
}

// RecordSystem is the CRM surface the pipeline needs.
type RecordSystem interface {
	FetchRecipients(ctx context.Context, agendamentoID string) ([]domain.Recipient, error)
	FetchCredentials(ctx context.Context, providerName, walletID string) (domain.Credentials, error)
}

// Notifier reports status back to the system of record.
type Notifier interface {
	Notify(ctx context.Context, payload crm.StatusPayload) bool
}

func statusPayload(agendamentoID, provider, status, body string, sent, failed int) crm.StatusPayload {
	return crm.StatusPayload{
		AgendamentoID: agendamentoID,
		Provider:      provider,
		Status:        status,
		ResponseBody:  body,
		DispatchedAt:  time.Now().UTC(),
		SentCount:     sent,
		FailedCount:   failed,
	}
}
