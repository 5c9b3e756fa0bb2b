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

// GosacOficialSender targets the same vendor's official WhatsApp API.
// Message bodies may be JSON-encoded template descriptors; when they are,
// the template id is lifted into the request.
type GosacOficialSender struct {
	exec   *retry.Executor
	client *http.Client
}

// NewGosacOficialSender creates the official-API variant of the GOSAC adapter.
func NewGosacOficialSender(exec *retry.Executor) *GosacOficialSender {
	return &GosacOficialSender{
		exec:   exec,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *GosacOficialSender) Name() string { return GOSACOficial }

func (s *GosacOficialSender) ValidateCredentials(creds domain.Credentials) bool {
	return creds.Has("url", "token")
}

func (s *GosacOficialSender) RetryStrategy() retry.Strategy { return retry.DefaultStrategy() }

// templateID extracts a template id from a JSON-encoded message body.
// Plain-text bodies yield "".
func templateID(message string) string {
	var tpl struct {
		TemplateID string `json:"templateId"`
	}
	if err := json.Unmarshal([]byte(message), &tpl); err != nil {
		return ""
	}
	return tpl.TemplateID
}

func (s *GosacOficialSender) Send(ctx context.Context, recipients []domain.Recipient, creds domain.Credentials) (*SendResult, error) {
	if !s.ValidateCredentials(creds) {
		return failure("GOSAC_OFICIAL credentials missing url or token"), nil
	}

	contacts := make([]map[string]string, len(recipients))
	for i, r := range recipients {
		contacts[i] = map[string]string{
			"number":  NormalizePhone(r.Phone),
			"name":    r.Name,
			"message": r.Message,
		}
	}

	payload := map[string]interface{}{"contacts": contacts, "official": true}
	if len(recipients) > 0 {
		if id := templateID(recipients[0].Message); id != "" {
			payload["templateId"] = id
		}
	}
	headers := map[string]string{"Authorization": creds.Get("token")}

	var body string
	err := s.exec.Do(ctx, s.RetryStrategy(), func(ctx context.Context) error {
		var opErr error
		body, opErr = httpJSON(ctx, s.client, http.MethodPost, creds.Get("url"), headers, payload)
		return opErr
	})
	if err != nil {
		return failure(fmt.Sprintf("GOSAC_OFICIAL send failed: %v", err)), nil
	}

	id := gosacCampaignID(body)
	if id == "" {
		return failure(fmt.Sprintf("GOSAC_OFICIAL response has no campaign id: %s", body)), nil
	}

	log.Printf("[GosacOficial] Campaign created (provider id: %s, %d contacts)", id, len(contacts))
	return &SendResult{
		Success:            true,
		ResponseBody:       body,
		ProviderCampaignID: id,
		FollowUp: &FollowUp{
			ProviderCampaignID: id,
			Delay:              5 * time.Second,
			SuccessStatus:      "started",
			FailureStatus:      "erro_inicio",
		},
	}, nil
}

// Activate starts the created campaign, same call shape as the base API.
func (s *GosacOficialSender) Activate(ctx context.Context, providerCampaignID string, creds domain.Credentials) error {
	url := fmt.Sprintf("%s/%s/status/started", creds.Get("url"), providerCampaignID)
	headers := map[string]string{"Authorization": creds.Get("token")}

	return s.exec.Do(ctx, s.RetryStrategy(), func(ctx context.Context) error {
		_, opErr := httpJSON(ctx, s.client, http.MethodPut, url, headers, nil)
		return opErr
	})
}
