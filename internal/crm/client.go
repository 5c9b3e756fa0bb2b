// Package crm talks to the host content-management system: the system of
// record for recipient lists, provider credentials and status callbacks.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
)

// Client fetches recipient lists and provider credentials.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a CRM client for the given base URL and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, url)
	}
	if resp.StatusCode >= 400 {
		return &retry.HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// FetchRecipients returns the recipient list for an agendamento. An empty
// list is an error condition, not an empty campaign.
func (c *Client) FetchRecipients(ctx context.Context, agendamentoID string) ([]domain.Recipient, error) {
	var recipients []domain.Recipient
	url := fmt.Sprintf("%s/data/%s", c.baseURL, agendamentoID)
	if err := c.get(ctx, url, &recipients); err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoData, agendamentoID)
	}
	return recipients, nil
}

// FetchCredentials returns the raw credential bag for (provider, wallet).
// The caller remaps field names before handing it to an adapter.
func (c *Client) FetchCredentials(ctx context.Context, providerName, walletID string) (domain.Credentials, error) {
	var creds domain.Credentials
	url := fmt.Sprintf("%s/credentials/%s/%s", c.baseURL, providerName, walletID)
	if err := c.get(ctx, url, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}
