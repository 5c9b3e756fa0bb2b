package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
)

// GosacSender sends campaigns through the chat-platform vendor. The POST
// creates a scheduled send on the vendor side and returns a provider
// campaign id; a delayed follow-up then flips it to "started".
type GosacSender struct {
	exec   *retry.Executor
	client *http.Client
}

// NewGosacSender creates the GOSAC adapter.
func NewGosacSender(exec *retry.Executor) *GosacSender {
	return &GosacSender{
		exec:   exec,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *GosacSender) Name() string { return GOSAC }

func (s *GosacSender) ValidateCredentials(creds domain.Credentials) bool {
	return creds.Has("url", "token")
}

func (s *GosacSender) RetryStrategy() retry.Strategy { return retry.DefaultStrategy() }

// gosacCampaignID tolerates both numeric and string ids in the response.
func gosacCampaignID(body string) string {
	var resp struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return ""
	}
	return resp.ID.String()
}

func (s *GosacSender) Send(ctx context.Context, recipients []domain.Recipient, creds domain.Credentials) (*SendResult, error) {
	if !s.ValidateCredentials(creds) {
		return failure("GOSAC credentials missing url or token"), nil
	}

	contacts := make([]map[string]string, len(recipients))
	for i, r := range recipients {
		contacts[i] = map[string]string{
			"number":  NormalizePhone(r.Phone),
			"name":    r.Name,
			"message": r.Message,
		}
	}
	payload := map[string]interface{}{"contacts": contacts}
	headers := map[string]string{"Authorization": creds.Get("token")}

	var body string
	err := s.exec.Do(ctx, s.RetryStrategy(), func(ctx context.Context) error {
		var opErr error
		body, opErr = httpJSON(ctx, s.client, http.MethodPost, creds.Get("url"), headers, payload)
		return opErr
	})
	if err != nil {
		return failure(fmt.Sprintf("GOSAC send failed: %v", err)), nil
	}

	id := gosacCampaignID(body)
	if id == "" {
		return failure(fmt.Sprintf("GOSAC response has no campaign id: %s", body)), nil
	}

	log.Printf("[GOSAC] Campaign created (provider id: %s, %d contacts)", id, len(contacts))
	return &SendResult{
		Success:            true,
		ResponseBody:       body,
		ProviderCampaignID: id,
		FollowUp: &FollowUp{
			ProviderCampaignID: id,
			Delay:              2 * time.Minute,
			SuccessStatus:      "started",
			FailureStatus:      "erro_inicio",
		},
	}, nil
}

// Activate flips the created campaign to started on the vendor side.
// Idempotent; safe for the queue to repeat.
func (s *GosacSender) Activate(ctx context.Context, providerCampaignID string, creds domain.Credentials) error {
	url := fmt.Sprintf("%s/%s/status/started", creds.Get("url"), providerCampaignID)
	headers := map[string]string{"Authorization": creds.Get("token")}

	return s.exec.Do(ctx, s.RetryStrategy(), func(ctx context.Context) error {
		_, opErr := httpJSON(ctx, s.client, http.MethodPut, url, headers, nil)
		return opErr
	})
}
