package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/campaign-dispatch/internal/crm"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/queue"
)

// memRepo is an in-memory Repository for stage tests.
type memRepo struct {
	mu       sync.Mutex
	nextID   int
	byAgenda map[string]*domain.Campaign
	byID     map[string]*domain.Campaign
	messages map[string][]domain.CampaignMessage
	failErr  error
}

func newMemRepo() *memRepo {
	return &memRepo{
		byAgenda: map[string]*domain.Campaign{},
		byID:     map[string]*domain.Campaign{},
		messages: map[string][]domain.CampaignMessage{},
	}
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) GetByAgendamentoID(ctx context.Context, agendamentoID string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byAgenda[agendamentoID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) CreateCampaign(ctx context.Context, agendamentoID, provider string, total int) (*domain.Campaign, error) {
	if r.failErr != nil {
		return nil, r.failErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byAgenda[agendamentoID]; ok {
		cp := *c
		return &cp, nil
	}
	r.nextID++
	c := &domain.Campaign{
		ID:            fmt.Sprintf("camp-%d", r.nextID),
		AgendamentoID: agendamentoID,
		Provider:      provider,
		Status:        domain.CampaignQueued,
		TotalMessages: total,
		CreatedAt:     time.Now(),
	}
	r.byAgenda[agendamentoID] = c
	r.byID[c.ID] = c
	cp := *c
	return &cp, nil
}

func (r *memRepo) MarkProcessing(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[id]; ok && !c.Status.Terminal() {
		c.Status = domain.CampaignProcessing
		now := time.Now()
		if c.StartedAt == nil {
			c.StartedAt = &now
		}
	}
	return nil
}

func (r *memRepo) MarkCompleted(ctx context.Context, id string, sent int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[id]; ok && !c.Status.Terminal() {
		c.Status = domain.CampaignCompleted
		c.SentMessages = sent
	}
	return nil
}

func (r *memRepo) MarkFailed(ctx context.Context, id, reason string, failed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[id]; ok && !c.Status.Terminal() {
		c.Status = domain.CampaignFailed
		c.ErrorMessage = reason
		c.FailedMessages = failed
	}
	return nil
}

func (r *memRepo) CreateMessages(ctx context.Context, campaignID string, recipients []domain.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages[campaignID]) > 0 {
		return nil
	}
	msgs := make([]domain.CampaignMessage, len(recipients))
	for i, rec := range recipients {
		msgs[i] = domain.CampaignMessage{
			ID:         fmt.Sprintf("%s-msg-%d", campaignID, i),
			CampaignID: campaignID,
			Phone:      rec.Phone,
			Name:       rec.Name,
			Status:     domain.MessagePending,
		}
	}
	r.messages[campaignID] = msgs
	return nil
}

func (r *memRepo) UpdateMessagesStatus(ctx context.Context, campaignID string, status domain.MessageStatus, errMsg string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	msgs := r.messages[campaignID]
	for i := range msgs {
		if msgs[i].Status == domain.MessagePending {
			msgs[i].Status = status
			msgs[i].LastError = errMsg
			msgs[i].Attempts++
			n++
		}
	}
	return n, nil
}

// fakeQueue records enqueued jobs.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []fakeJob
	err  error
}

type fakeJob struct {
	queue   string
	payload json.RawMessage
	delay   time.Duration
	job     queue.Job
}

func (q *fakeQueue) Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...queue.Option) (*queue.Job, error) {
	if q.err != nil {
		return nil, q.err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job := queue.Job{ID: "job", Queue: queueName, Payload: data, Attempt: 1, MaxAttempts: 1}
	var delay time.Duration
	for _, opt := range opts {
		opt(&job, &delay)
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, fakeJob{queue: queueName, payload: data, delay: delay, job: job})
	q.mu.Unlock()
	return &job, nil
}

func (q *fakeQueue) byQueue(name string) []fakeJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []fakeJob
	for _, j := range q.jobs {
		if j.queue == name {
			out = append(out, j)
		}
	}
	return out
}

// fakeCRM serves canned recipients and credentials.
type fakeCRM struct {
	recipients []domain.Recipient
	recErr     error
	creds      domain.Credentials
	credErr    error
}

func (c *fakeCRM) FetchRecipients(ctx context.Context, agendamentoID string) ([]domain.Recipient, error) {
	if c.recErr != nil {
		return nil, c.recErr
	}
	if len(c.recipients) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoData, agendamentoID)
	}
	return c.recipients, nil
}

func (c *fakeCRM) FetchCredentials(ctx context.Context, providerName, walletID string) (domain.Credentials, error) {
	if c.credErr != nil {
		return nil, c.credErr
	}
	return c.creds, nil
}

// fakeNotifier records webhook payloads.
type fakeNotifier struct {
	mu       sync.Mutex
	payloads []crm.StatusPayload
}

func (n *fakeNotifier) Notify(ctx context.Context, payload crm.StatusPayload) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
	return true
}

func (n *fakeNotifier) statuses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.payloads))
	for i, p := range n.payloads {
		out[i] = p.Status
	}
	return out
}

func mustJob(t interface{ Fatalf(string, ...interface{}) }, queueName string, payload interface{}) *queue.Job {
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Job{ID: "job", Queue: queueName, Payload: data, Attempt: 1, MaxAttempts: 3}
}
