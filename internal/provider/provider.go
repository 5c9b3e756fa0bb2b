// Package provider contains the delivery-provider adapters. Each adapter
// translates a generic recipient list into its vendor's wire format, sends
// it over HTTP under the shared retry executor, and classifies the outcome.
//
// Adapters are split into individual files:
//   - cda.go:           bulk-file vendor, semicolon-delimited rows
//   - gosac.go:         chat-platform vendor (plus "official" API variant)
//   - rcs.go:           SMS/RCS vendor, CSV-style rows
//   - omni.go:          second vendor, RCS and WhatsApp template messages
//   - salesforce.go:    CRM vendor, OAuth2 + marketing-automation trigger
//   - noah.go:          automation vendor, single bearer-token POST
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
)

// Provider names as stored on campaigns and used for queue routing.
const (
	CDA          = "CDA"
	GOSAC        = "GOSAC"
	GOSACOficial = "GOSAC_OFICIAL"
	RCS          = "RCS"
	OmniRCS      = "OMNI_RCS"
	OmniWhatsApp = "OMNI_WHATSAPP"
	Salesforce   = "SALESFORCE"
	Noah         = "NOAH"
)

// prefixes maps the first character of an agendamento id to a provider.
var prefixes = map[byte]string{
	'C': CDA,
	'G': GOSAC,
	'B': GOSACOficial,
	'R': RCS,
	'O': OmniRCS,
	'W': OmniWhatsApp,
	'S': Salesforce,
	'N': Noah,
}

// Sender is the capability set every provider adapter implements.
type Sender interface {
	Name() string

	// ValidateCredentials is a pure check for required fields. Send calls it
	// first and returns a structured failure (no error) when it fails.
	ValidateCredentials(creds domain.Credentials) bool

	// RetryStrategy declares the adapter's in-call HTTP retry policy.
	RetryStrategy() retry.Strategy

	Send(ctx context.Context, recipients []domain.Recipient, creds domain.Credentials) (*SendResult, error)
}

// Activator is implemented by adapters whose providers require a second,
// delayed activation step after the initial send.
type Activator interface {
	Activate(ctx context.Context, providerCampaignID string, creds domain.Credentials) error
}

// FollowUp describes the delayed second stage an adapter wants enqueued
// after a successful send.
type FollowUp struct {
	ProviderCampaignID string        `json:"provider_campaign_id"`
	Delay              time.Duration `json:"delay"`
	SuccessStatus      string        `json:"success_status"`
	FailureStatus      string        `json:"failure_status"`

	// CompletesCampaign is false when the campaign must stay PROCESSING
	// until the follow-up reports (Salesforce automation trigger).
	CompletesCampaign bool `json:"completes_campaign"`
}

// SendResult is the structured outcome of a provider send. A send that
// exhausts its retries yields Success=false with ErrorMessage set rather
// than an error; the error return is reserved for local failures such as
// payload marshalling.
type SendResult struct {
	Success            bool
	ResponseBody       string
	ProviderCampaignID string
	ErrorMessage       string
	FollowUp           *FollowUp
}

// failure builds a structured failed result.
func failure(msg string) *SendResult {
	return &SendResult{Success: false, ErrorMessage: msg}
}

// ResolveName returns the provider for an agendamento id, keying on its
// first character. Unmapped characters are a terminal bad-request error,
// never a silent default.
func ResolveName(agendamentoID string) (string, error) {
	if agendamentoID == "" {
		return "", fmt.Errorf("%w: empty agendamento id", domain.ErrUnknownProvider)
	}
	name, ok := prefixes[agendamentoID[0]]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownProvider, agendamentoID[:1])
	}
	return name, nil
}

// Registry holds the concrete adapters keyed by provider name.
type Registry struct {
	senders map[string]Sender
}

// NewRegistry builds all eight adapters over the shared retry executor.
func NewRegistry(exec *retry.Executor) *Registry {
	senders := map[string]Sender{}
	for _, s := range []Sender{
		NewCDASender(exec),
		NewGosacSender(exec),
		NewGosacOficialSender(exec),
		NewRCSSender(exec),
		NewOmniRCSSender(exec),
		NewOmniWhatsAppSender(exec),
		NewSalesforceSender(exec),
		NewNoahSender(exec),
	} {
		senders[s.Name()] = s
	}
	return &Registry{senders: senders}
}

// ByName returns the adapter for a provider name.
func (r *Registry) ByName(name string) (Sender, error) {
	s, ok := r.senders[name]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for provider %q", domain.ErrUnknownProvider, name)
	}
	return s, nil
}

// FromAgendamentoID resolves the prefix and returns the matching adapter.
func (r *Registry) FromAgendamentoID(id string) (Sender, error) {
	name, err := ResolveName(id)
	if err != nil {
		return nil, err
	}
	return r.ByName(name)
}

// httpJSON executes one JSON request and returns the response body.
// Non-2xx responses become *retry.HTTPError so the executor can classify
// them; transport errors pass through for network/timeout classification.
func httpJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload interface{}) (string, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", &retry.HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return string(respBody), nil
}
