// Package postgres holds the SQL repositories.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// DispatchRepo persists campaigns and their per-recipient messages.
type DispatchRepo struct{ db *sql.DB }

// NewDispatchRepo creates a Postgres-backed dispatch repository.
func NewDispatchRepo(db *sql.DB) *DispatchRepo { return &DispatchRepo{db: db} }

const campaignColumns = `
	id, agendamento_id, provider, status, total_messages, sent_messages,
	failed_messages, COALESCE(error_message,''), started_at, completed_at,
	created_at, updated_at`

func scanCampaign(row *sql.Row) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.AgendamentoID, &c.Provider, &c.Status, &c.TotalMessages,
		&c.SentMessages, &c.FailedMessages, &c.ErrorMessage,
		&c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan campaign: %w", err)
	}
	return c, nil
}

// GetByID fetches a campaign by its internal id.
func (r *DispatchRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM dispatch_campaigns
		WHERE id = $1
	`, id)
	return scanCampaign(row)
}

// GetByAgendamentoID fetches a campaign by its external correlation id.
func (r *DispatchRepo) GetByAgendamentoID(ctx context.Context, agendamentoID string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM dispatch_campaigns
		WHERE agendamento_id = $1
	`, agendamentoID)
	return scanCampaign(row)
}

// CreateCampaign inserts a campaign in QUEUED state. The unique constraint on
// agendamento_id makes intake idempotent: a second insert for the same id is
// a no-op and the existing row is returned.
func (r *DispatchRepo) CreateCampaign(ctx context.Context, agendamentoID, provider string, totalMessages int) (*domain.Campaign, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dispatch_campaigns
			(id, agendamento_id, provider, status, total_messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (agendamento_id) DO NOTHING
	`, id, agendamentoID, provider, domain.CampaignQueued, totalMessages)
	if err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	return r.GetByAgendamentoID(ctx, agendamentoID)
}

// MarkProcessing moves a non-terminal campaign into PROCESSING and stamps
// started_at on the first transition.
func (r *DispatchRepo) MarkProcessing(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_campaigns
		SET status = $2, started_at = COALESCE(started_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($3, $4)
	`, id, domain.CampaignProcessing, domain.CampaignCompleted, domain.CampaignFailed)
	if err != nil {
		return fmt.Errorf("mark campaign processing: %w", err)
	}
	return nil
}

// MarkCompleted finalizes a campaign as COMPLETED with its sent count.
// Terminal rows are never rewritten.
func (r *DispatchRepo) MarkCompleted(ctx context.Context, id string, sentMessages int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_campaigns
		SET status = $2, sent_messages = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($4, $5)
	`, id, domain.CampaignCompleted, sentMessages, domain.CampaignCompleted, domain.CampaignFailed)
	if err != nil {
		return fmt.Errorf("mark campaign completed: %w", err)
	}
	return nil
}

// MarkFailed finalizes a campaign as FAILED with the failure reason and the
// failed count. Terminal rows are never rewritten.
func (r *DispatchRepo) MarkFailed(ctx context.Context, id, reason string, failedMessages int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_campaigns
		SET status = $2, error_message = $3, failed_messages = $4,
		    completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($5, $6)
	`, id, domain.CampaignFailed, reason, failedMessages, domain.CampaignCompleted, domain.CampaignFailed)
	if err != nil {
		return fmt.Errorf("mark campaign failed: %w", err)
	}
	return nil
}

// CreateMessages inserts the campaign's PENDING message rows. The whole set
// goes in as one statement guarded on the campaign having no rows yet, so
// two overlapping redeliveries of the same job cannot double-insert.
func (r *DispatchRepo) CreateMessages(ctx context.Context, campaignID string, recipients []domain.Recipient) error {
	if len(recipients) == 0 {
		return nil
	}

	ids := make([]string, len(recipients))
	phones := make([]string, len(recipients))
	names := make([]string, len(recipients))
	for i, rec := range recipients {
		ids[i] = uuid.New().String()
		phones[i] = rec.Phone
		names[i] = rec.Name
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dispatch_campaign_messages
			(id, campaign_id, phone, name, status, attempts, created_at)
		SELECT unnest($2::uuid[]), $1, unnest($3::text[]), unnest($4::text[]), $5, 0, NOW()
		WHERE NOT EXISTS (
			SELECT 1 FROM dispatch_campaign_messages WHERE campaign_id = $1
		)
	`, campaignID, pq.Array(ids), pq.Array(phones), pq.Array(names), domain.MessagePending)
	if err != nil {
		return fmt.Errorf("create messages: %w", err)
	}
	return nil
}

// UpdateMessagesStatus moves every non-terminal message of the campaign to
// the given status, bumping attempts and recording the error if any.
func (r *DispatchRepo) UpdateMessagesStatus(ctx context.Context, campaignID string, status domain.MessageStatus, errMsg string) (int, error) {
	var res sql.Result
	var err error
	if status == domain.MessageSent {
		res, err = r.db.ExecContext(ctx, `
			UPDATE dispatch_campaign_messages
			SET status = $2, attempts = attempts + 1, last_error = $3, sent_at = NOW()
			WHERE campaign_id = $1 AND status = $4
		`, campaignID, status, errMsg, domain.MessagePending)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE dispatch_campaign_messages
			SET status = $2, attempts = attempts + 1, last_error = $3
			WHERE campaign_id = $1 AND status = $4
		`, campaignID, status, errMsg, domain.MessagePending)
	}
	if err != nil {
		return 0, fmt.Errorf("update messages status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update messages status: %w", err)
	}
	return int(n), nil
}

// Status assembles the aggregate view served by the status endpoint,
// including the error detail of failed messages.
func (r *DispatchRepo) Status(ctx context.Context, id string) (*domain.CampaignStatusView, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &domain.CampaignStatusView{
		CampaignID:     c.ID,
		AgendamentoID:  c.AgendamentoID,
		Status:         c.Status,
		Provider:       c.Provider,
		TotalMessages:  c.TotalMessages,
		SentMessages:   c.SentMessages,
		FailedMessages: c.FailedMessages,
		StartedAt:      c.StartedAt,
		CompletedAt:    c.CompletedAt,
	}
	if c.TotalMessages > 0 {
		done := c.SentMessages + c.FailedMessages
		view.Progress = float64(done) / float64(c.TotalMessages) * 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT phone, COALESCE(last_error,''), attempts
		FROM dispatch_campaign_messages
		WHERE campaign_id = $1 AND status = $2
		ORDER BY phone
	`, id, domain.MessageFailed)
	if err != nil {
		return nil, fmt.Errorf("list failed messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.MessageError
		if err := rows.Scan(&e.Phone, &e.Error, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scan failed message: %w", err)
		}
		view.Errors = append(view.Errors, e)
	}
	return view, nil
}
