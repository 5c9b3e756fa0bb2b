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

// NoahSender sends through the NOAH automation vendor: a single POST with
// the recipient array under the vendor's INTEGRATION auth scheme.
type NoahSender struct {
	exec   *retry.Executor
	client *http.Client
}

// NewNoahSender creates the NOAH adapter.
func NewNoahSender(exec *retry.Executor) *NoahSender {
	return &NoahSender{
		exec:   exec,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *NoahSender) Name() string { return Noah }

func (s *NoahSender) ValidateCredentials(creds domain.Credentials) bool {
	return creds.Has("url", "token")
}

func (s *NoahSender) RetryStrategy() retry.Strategy { return retry.DefaultStrategy() }

func (s *NoahSender) Send(ctx context.Context, recipients []domain.Recipient, creds domain.Credentials) (*SendResult, error) {
	if !s.ValidateCredentials(creds) {
		return failure("NOAH credentials missing url or token"), nil
	}

	msgs := make([]map[string]string, len(recipients))
	for i, r := range recipients {
		msgs[i] = map[string]string{
			"telefone": NormalizePhone(r.Phone),
			"nome":     r.Name,
			"texto":    r.Message,
		}
	}
	payload := map[string]interface{}{"mensagens": msgs}
	headers := map[string]string{"Authorization": "INTEGRATION " + creds.Get("token")}

	var body string
	err := s.exec.Do(ctx, s.RetryStrategy(), func(ctx context.Context) error {
		var opErr error
		body, opErr = httpJSON(ctx, s.client, http.MethodPost, creds.Get("url"), headers, payload)
		return opErr
	})
	if err != nil {
		return failure(fmt.Sprintf("NOAH send failed: %v", err)), nil
	}

	log.Printf("[NOAH] Sent %d messages", len(recipients))
	return &SendResult{Success: true, ResponseBody: body}, nil
}
