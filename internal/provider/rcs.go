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

const defaultRCSBaseURL = "https://api.rcsbrasil.com.br/v2/campanhas"

// RCSSender sends through the SMS/RCS vendor. Recipients go out as
// CSV-style rows inside a JSON envelope; the wallet id doubles as the
// vendor's team code.
type RCSSender struct {
	exec   *retry.Executor
	client *http.Client
}

// NewRCSSender creates the RCS adapter.
func NewRCSSender(exec *retry.Executor) *RCSSender {
	return &RCSSender{
		exec:   exec,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *RCSSender) Name() string { return RCS }

func (s *RCSSender) ValidateCredentials(creds domain.Credentials) bool {
	return creds.Has("chave_api")
}

func (s *RCSSender) RetryStrategy() retry.Strategy { return retry.DefaultStrategy() }

func (s *RCSSender) Send(ctx context.Context, recipients []domain.Recipient, creds domain.Credentials) (*SendResult, error) {
	if !s.ValidateCredentials(creds) {
		return failure("RCS credentials missing chave_api"), nil
	}

	rows := make([]string, len(recipients))
	teamCode := ""
	for i, r := range recipients {
		rows[i] = fmt.Sprintf("1;%s;%s;%s;%s", NormalizePhone(r.Phone), r.Name, r.Contract, r.TaxID)
		if teamCode == "" {
			teamCode = r.WalletID
		}
	}

	tag := creds.Get("tag")
	if tag == "" {
		tag = "campanha"
	}
	payload := map[string]interface{}{
		"codigo_equipe": teamCode,
		"tag":           tag,
		"linhas":        rows,
	}

	baseURL := creds.Get("base_url")
	if baseURL == "" {
		baseURL = defaultRCSBaseURL
	}
	headers := map[string]string{"chave-api": creds.Get("chave_api")}

	var body string
	err := s.exec.Do(ctx, s.RetryStrategy(), func(ctx context.Context) error {
		var opErr error
		body, opErr = httpJSON(ctx, s.client, http.MethodPost, baseURL, headers, payload)
		return opErr
	})
	if err != nil {
		return failure(fmt.Sprintf("RCS send failed: %v", err)), nil
	}

	log.Printf("[RCS] Sent %d rows (team %s)", len(rows), teamCode)
	return &SendResult{Success: true, ResponseBody: body}, nil
}
