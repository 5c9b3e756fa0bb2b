package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

// StatusPayload is the callback body posted back to the system of record.
type StatusPayload struct {
	AgendamentoID string    `json:"agendamento_id"`
	Status        string    `json:"status"`
	ResponseBody  string    `json:"response_body,omitempty"`
	DispatchedAt  time.Time `json:"dispatched_at"`
	SentCount     int       `json:"sent_count"`
	FailedCount   int       `json:"failed_count"`
	Provider      string    `json:"provider"`
}

// Notifier posts status callbacks. Delivery is best effort: Notify never
// returns an error and callers must never treat a false result as fatal.
type Notifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewNotifier creates a webhook notifier against the CRM base URL.
func NewNotifier(baseURL, apiKey string) *Notifier {
	return &Notifier{
		endpoint: baseURL + "/webhook-status/update",
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts the payload and reports whether it was accepted.
func (n *Notifier) Notify(ctx context.Context, payload StatusPayload) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WebhookNotifier] marshal payload for %s: %v", payload.AgendamentoID, err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(data))
	if err != nil {
		log.Printf("[WebhookNotifier] create request for %s: %v", payload.AgendamentoID, err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("[WebhookNotifier] post %s status %q: %v", payload.AgendamentoID, payload.Status, err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Printf("[WebhookNotifier] post %s status %q: HTTP %d", payload.AgendamentoID, payload.Status, resp.StatusCode)
		return false
	}
	return true
}
