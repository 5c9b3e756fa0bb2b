package provider

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
)

// SalesforceSender pushes the recipient list into the CRM as bulk record
// creates behind an OAuth2 password-grant token. The send alone does not
// finish the campaign: a delayed follow-up triggers the marketing-automation
// run that actually delivers the messages, so completion is deferred to it.
type SalesforceSender struct {
	exec   *retry.Executor
	client *http.Client
}

// NewSalesforceSender creates the Salesforce adapter.
func NewSalesforceSender(exec *retry.Executor) *SalesforceSender {
	return &SalesforceSender{
		exec:   exec,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *SalesforceSender) Name() string { return Salesforce }

func (s *SalesforceSender) ValidateCredentials(creds domain.Credentials) bool {
	return creds.Has("client_id", "client_secret", "username", "password",
		"token_url", "rest_url", "operacao", "automation_id")
}

// RetryStrategy uses longer delays; the CRM throttles aggressively.
func (s *SalesforceSender) RetryStrategy() retry.Strategy {
	return retry.Strategy{MaxRetries: 3, Delays: []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}}
}

// fetchToken runs the password-grant flow through our own HTTP client so
// the adapter's timeout applies.
func (s *SalesforceSender) fetchToken(ctx context.Context, creds domain.Credentials) (*oauth2.Token, error) {
	conf := &oauth2.Config{
		ClientID:     creds.Get("client_id"),
		ClientSecret: creds.Get("client_secret"),
		Endpoint:     oauth2.Endpoint{TokenURL: creds.Get("token_url")},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	return conf.PasswordCredentialsToken(ctx, creds.Get("username"), creds.Get("password"))
}

func (s *SalesforceSender) Send(ctx context.Context, recipients []domain.Recipient, creds domain.Credentials) (*SendResult, error) {
	if !s.ValidateCredentials(creds) {
		return failure("SALESFORCE credentials incomplete"), nil
	}

	records := make([]map[string]interface{}, len(recipients))
	for i, r := range recipients {
		records[i] = map[string]interface{}{
			"attributes": map[string]string{
				"type":        creds.Get("operacao"),
				"referenceId": fmt.Sprintf("rec%d", i+1),
			},
			"Telefone__c": NormalizePhone(r.Phone),
			"Nome__c":     r.Name,
			"Contrato__c": r.Contract,
			"CPF__c":      r.TaxID,
			"Mensagem__c": r.Message,
		}
	}
	payload := map[string]interface{}{"records": records}
	endpoint := fmt.Sprintf("%s/services/data/v58.0/composite/tree/%s",
		creds.Get("rest_url"), creds.Get("operacao"))

	var body string
	err := s.exec.Do(ctx, s.RetryStrategy(), func(ctx context.Context) error {
		token, tokErr := s.fetchToken(ctx, creds)
		if tokErr != nil {
			return fmt.Errorf("salesforce token: %w", tokErr)
		}
		headers := map[string]string{"Authorization": "Bearer " + token.AccessToken}
		var opErr error
		body, opErr = httpJSON(ctx, s.client, http.MethodPost, endpoint, headers, payload)
		return opErr
	})
	if err != nil {
		return failure(fmt.Sprintf("SALESFORCE send failed: %v", err)), nil
	}

	log.Printf("[Salesforce] Created %d records (%s); automation %s scheduled",
		len(records), creds.Get("operacao"), creds.Get("automation_id"))
	return &SendResult{
		Success:            true,
		ResponseBody:       body,
		ProviderCampaignID: creds.Get("automation_id"),
		FollowUp: &FollowUp{
			ProviderCampaignID: creds.Get("automation_id"),
			Delay:              20 * time.Minute,
			SuccessStatus:      "mkc_executado",
			FailureStatus:      "mkc_erro",
			CompletesCampaign:  true,
		},
	}, nil
}

// Activate runs the downstream automation against the separate
// marketing-automation API with its own client-credentials grant.
// Idempotent on the vendor side; safe for the queue to repeat.
func (s *SalesforceSender) Activate(ctx context.Context, providerCampaignID string, creds domain.Credentials) error {
	conf := &clientcredentials.Config{
		ClientID:     creds.Get("mkc_client_id"),
		ClientSecret: creds.Get("mkc_client_secret"),
		TokenURL:     creds.Get("mkc_token_url"),
	}

	endpoint := fmt.Sprintf("%s/automation/v1/automations/%s/actions/runOnce",
		creds.Get("mkc_api_url"), providerCampaignID)

	return s.exec.Do(ctx, s.RetryStrategy(), func(ctx context.Context) error {
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, s.client)
		token, tokErr := conf.Token(tokenCtx)
		if tokErr != nil {
			return fmt.Errorf("automation token: %w", tokErr)
		}
		headers := map[string]string{"Authorization": "Bearer " + token.AccessToken}
		_, opErr := httpJSON(ctx, s.client, http.MethodPost, endpoint, headers, map[string]string{})
		return opErr
	})
}
