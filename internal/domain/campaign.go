package domain

import "time"

// CampaignStatus is the lifecycle state of a dispatch campaign.
type CampaignStatus string

const (
	CampaignQueued     CampaignStatus = "QUEUED"
	CampaignProcessing CampaignStatus = "PROCESSING"
	CampaignCompleted  CampaignStatus = "COMPLETED"
	CampaignFailed     CampaignStatus = "FAILED"
)

// Terminal reports whether the status may never be re-opened.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignFailed
}

// Campaign is one accepted dispatch request. AgendamentoID is the external
// correlation id and the idempotency key: at most one campaign exists per id.
type Campaign struct {
	ID             string
	AgendamentoID  string
	Provider       string
	Status         CampaignStatus
	TotalMessages  int
	SentMessages   int
	FailedMessages int
	ErrorMessage   string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MessageStatus is the delivery state of a single recipient message.
type MessageStatus string

const (
	MessagePending MessageStatus = "PENDING"
	MessageSent    MessageStatus = "SENT"
	MessageFailed  MessageStatus = "FAILED"
)

// CampaignMessage is one recipient within a campaign. Messages are
// bulk-created at intake and bulk-updated after the provider send; there is
// no per-message retry (providers accept the whole payload or none of it).
type CampaignMessage struct {
	ID         string
	CampaignID string
	Phone      string
	Name       string
	Status     MessageStatus
	Attempts   int
	LastError  string
	SentAt     *time.Time
}

// MessageError is a failed message as exposed by the status endpoint.
type MessageError struct {
	Phone    string `json:"phone"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// CampaignStatusView is the aggregate returned by the status query.
type CampaignStatusView struct {
	CampaignID     string         `json:"campaign_id"`
	AgendamentoID  string         `json:"agendamento_id"`
	Status         CampaignStatus `json:"status"`
	Provider       string         `json:"provider"`
	TotalMessages  int            `json:"total_messages"`
	SentMessages   int            `json:"sent_messages"`
	FailedMessages int            `json:"failed_messages"`
	Progress       float64        `json:"progress_percentage"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	Errors         []MessageError `json:"errors,omitempty"`
}
