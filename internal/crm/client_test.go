package crm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
)

func TestFetchRecipients(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/C123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-API-KEY") != "key" {
			t.Errorf("X-API-KEY = %q", r.Header.Get("X-API-KEY"))
		}
		w.Write([]byte(`[
			{"telefone":"11987654321","nome":"Ana","id_carteira":"w1","contrato":"c1","cpf":"123","mensagem":"ola"},
			{"telefone":"21912345678","nome":"Bruno","id_carteira":"w1","contrato":"c2","cpf":"456","mensagem":"ola"}
		]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key")
	recipients, err := client.FetchRecipients(context.Background(), "C123")
	if err != nil {
		t.Fatalf("FetchRecipients() error: %v", err)
	}
	if len(recipients) != 2 {
		t.Fatalf("recipients = %d, want 2", len(recipients))
	}
	r := recipients[0]
	if r.Phone != "11987654321" || r.Name != "Ana" || r.WalletID != "w1" || r.Message != "ola" {
		t.Errorf("recipient = %+v", r)
	}
}

func TestFetchRecipients_EmptyIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key").FetchRecipients(context.Background(), "C123")
	if !errors.Is(err, domain.ErrNoData) {
		t.Errorf("error = %v, want ErrNoData", err)
	}
}

func TestFetchRecipients_404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key").FetchRecipients(context.Background(), "C123")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFetchCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/credentials/CDA/w1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"api_url":"https://vendor.example","api_key":"secret"}`))
	}))
	defer srv.Close()

	creds, err := NewClient(srv.URL, "key").FetchCredentials(context.Background(), "CDA", "w1")
	if err != nil {
		t.Fatalf("FetchCredentials() error: %v", err)
	}
	if creds.Get("api_key") != "secret" {
		t.Errorf("creds = %v", creds)
	}
}

func TestFetchCredentials_ServerErrorIsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key").FetchCredentials(context.Background(), "CDA", "w1")
	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 500 {
		t.Errorf("error = %v, want *retry.HTTPError with 500", err)
	}
}

func TestNotifier_Notify(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-KEY")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "key")
	ok := n.Notify(context.Background(), StatusPayload{AgendamentoID: "C123", Status: "enviado"})
	if !ok {
		t.Error("Notify() = false, want true")
	}
	if gotPath != "/webhook-status/update" {
		t.Errorf("path = %s", gotPath)
	}
	if gotKey != "key" {
		t.Errorf("X-API-KEY = %q", gotKey)
	}
}

func TestNotifier_FailureNeverPanics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	if ok := NewNotifier(srv.URL, "key").Notify(context.Background(), StatusPayload{}); ok {
		t.Error("Notify() = true on a 502 response")
	}

	// Unreachable endpoint: still just false.
	if ok := NewNotifier("http://127.0.0.1:1", "key").Notify(context.Background(), StatusPayload{}); ok {
		t.Error("Notify() = true on a connection error")
	}
}
