package provider

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
)

const defaultOmniBaseURL = "https://api.omnimensageria.com.br/v1/messages"

// omniMessages builds the vendor's per-recipient template-message array.
// The vendor expects local-format numbers, so the country code is stripped
// after normalization.
func omniMessages(recipients []domain.Recipient, channel string) []map[string]interface{} {
	msgs := make([]map[string]interface{}, len(recipients))
	for i, r := range recipients {
		msgs[i] = map[string]interface{}{
			"telefone": LocalPhone(r.Phone),
			"canal":    channel,
			"template": r.Message,
			"variaveis": map[string]string{
				"nome":     r.Name,
				"contrato": r.Contract,
			},
			"extras": map[string]string{
				"cpf":         r.TaxID,
				"id_carteira": r.WalletID,
			},
		}
	}
	return msgs
}

func omniURL(creds domain.Credentials) string {
	if u := creds.Get("base_url"); u != "" {
		return u
	}
	return defaultOmniBaseURL
}

// OmniRCSSender sends RCS campaigns through the Omni vendor.
type OmniRCSSender struct {
	exec   *retry.Executor
	client *http.Client
}

// NewOmniRCSSender creates the Omni RCS adapter.
func NewOmniRCSSender(exec *retry.Executor) *OmniRCSSender {
	return &OmniRCSSender{
		exec:   exec,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *OmniRCSSender) Name() string { return OmniRCS }

func (s *OmniRCSSender) ValidateCredentials(creds domain.Credentials) bool {
	return creds.Has("token")
}

func (s *OmniRCSSender) RetryStrategy() retry.Strategy { return retry.DefaultStrategy() }

func (s *OmniRCSSender) Send(ctx context.Context, recipients []domain.Recipient, creds domain.Credentials) (*SendResult, error) {
	if !s.ValidateCredentials(creds) {
		return failure("OMNI_RCS credentials missing token"), nil
	}

	payload := map[string]interface{}{"mensagens": omniMessages(recipients, "rcs")}
	headers := map[string]string{"Authorization": "Bearer " + creds.Get("token")}

	var body string
	err := s.exec.Do(ctx, s.RetryStrategy(), func(ctx context.Context) error {
		var opErr error
		body, opErr = httpJSON(ctx, s.client, http.MethodPost, omniURL(creds), headers, payload)
		return opErr
	})
	if err != nil {
		return failure(fmt.Sprintf("OMNI_RCS send failed: %v", err)), nil
	}

	log.Printf("[OmniRCS] Sent %d messages", len(recipients))
	return &SendResult{Success: true, ResponseBody: body}, nil
}

// OmniWhatsAppSender sends WhatsApp campaigns through the Omni vendor.
// Same array shape as RCS plus the broker and customer routing codes.
type OmniWhatsAppSender struct {
	exec   *retry.Executor
	client *http.Client
}

// NewOmniWhatsAppSender creates the Omni WhatsApp adapter.
func NewOmniWhatsAppSender(exec *retry.Executor) *OmniWhatsAppSender {
	return &OmniWhatsAppSender{
		exec:   exec,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *OmniWhatsAppSender) Name() string { return OmniWhatsApp }

func (s *OmniWhatsAppSender) ValidateCredentials(creds domain.Credentials) bool {
	return creds.Has("token", "broker", "customer")
}

func (s *OmniWhatsAppSender) RetryStrategy() retry.Strategy { return retry.DefaultStrategy() }

func (s *OmniWhatsAppSender) Send(ctx context.Context, recipients []domain.Recipient, creds domain.Credentials) (*SendResult, error) {
	if !s.ValidateCredentials(creds) {
		return failure("OMNI_WHATSAPP credentials missing token, broker or customer"), nil
	}

	payload := map[string]interface{}{
		"mensagens":      omniMessages(recipients, "whatsapp"),
		"codigo_broker":  creds.Get("broker"),
		"codigo_cliente": creds.Get("customer"),
	}
	headers := map[string]string{"Authorization": "Bearer " + creds.Get("token")}

	var body string
	err := s.exec.Do(ctx, s.RetryStrategy(), func(ctx context.Context) error {
		var opErr error
		body, opErr = httpJSON(ctx, s.client, http.MethodPost, omniURL(creds), headers, payload)
		return opErr
	})
	if err != nil {
		return failure(fmt.Sprintf("OMNI_WHATSAPP send failed: %v", err)), nil
	}

	log.Printf("[OmniWhatsApp] Sent %d messages (broker %s)", len(recipients), creds.Get("broker"))
	return &SendResult{Success: true, ResponseBody: body}, nil
}
