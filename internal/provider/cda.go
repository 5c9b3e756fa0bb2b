package provider

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
)

// CDASender sends campaigns through the bulk-file vendor. The whole
// recipient list goes out as one POST with semicolon-delimited rows inside
// a JSON envelope.
type CDASender struct {
	exec   *retry.Executor
	client *http.Client
}

// NewCDASender creates the CDA adapter.
func NewCDASender(exec *retry.Executor) *CDASender {
	return &CDASender{
		exec:   exec,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *CDASender) Name() string { return CDA }

// ValidateCredentials requires the endpoint URL and the API key.
func (s *CDASender) ValidateCredentials(creds domain.Credentials) bool {
	return creds.Has("url", "api_key")
}

func (s *CDASender) RetryStrategy() retry.Strategy { return retry.DefaultStrategy() }

// Send posts all recipients in a single request. Rows are
// "phone;name;message" with phones in country-code-prefixed form.
func (s *CDASender) Send(ctx context.Context, recipients []domain.Recipient, creds domain.Credentials) (*SendResult, error) {
	if !s.ValidateCredentials(creds) {
		return failure("CDA credentials missing url or api_key"), nil
	}

	rows := make([]string, len(recipients))
	for i, r := range recipients {
		rows[i] = strings.Join([]string{NormalizePhone(r.Phone), r.Name, r.Message}, ";")
	}

	payload := map[string]interface{}{
		"registros": rows,
		"total":     len(rows),
	}
	headers := map[string]string{"api-key": creds.Get("api_key")}

	var body string
	err := s.exec.Do(ctx, s.RetryStrategy(), func(ctx context.Context) error {
		var opErr error
		body, opErr = httpJSON(ctx, s.client, http.MethodPost, creds.Get("url"), headers, payload)
		return opErr
	})
	if err != nil {
		return failure(fmt.Sprintf("CDA send failed: %v", err)), nil
	}

	log.Printf("[CDA] Sent %d recipients", len(recipients))
	return &SendResult{Success: true, ResponseBody: body}, nil
}
