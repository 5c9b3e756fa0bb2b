package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
)

type fakeDispatcher struct {
	result *dispatch.DispatchResult
	err    error
	gotID  string
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, agendamentoID string) (*dispatch.DispatchResult, error) {
	d.gotID = agendamentoID
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

type fakeStatusReader struct {
	view *domain.CampaignStatusView
	err  error
}

func (s *fakeStatusReader) Status(ctx context.Context, id string) (*domain.CampaignStatusView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.view, nil
}

func testServer(d Dispatcher, s StatusReader) *Server {
	return NewServer(NewHandlers(d, s, "test-key"), nil, nil)
}

func TestDispatch_RequiresAPIKey(t *testing.T) {
	srv := testServer(&fakeDispatcher{}, &fakeStatusReader{})

	req := httptest.NewRequest(http.MethodPost, "/campaigns/dispatch",
		strings.NewReader(`{"agendamento_id":"C123"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/campaigns/dispatch",
		strings.NewReader(`{"agendamento_id":"C123"}`))
	req.Header.Set("X-API-KEY", "wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 on wrong key", rec.Code)
	}
}

func TestDispatch_Accepted(t *testing.T) {
	d := &fakeDispatcher{result: &dispatch.DispatchResult{
		Accepted: true,
		Status:   domain.CampaignQueued,
		Message:  "campaign queued",
	}}
	srv := testServer(d, &fakeStatusReader{})

	req := httptest.NewRequest(http.MethodPost, "/campaigns/dispatch",
		strings.NewReader(`{"agendamento_id":"C123"}`))
	req.Header.Set("X-API-KEY", "test-key")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body: %s)", rec.Code, rec.Body.String())
	}
	if d.gotID != "C123" {
		t.Errorf("dispatched id = %q", d.gotID)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != true {
		t.Errorf("body = %v", body)
	}
	if body["status"] != "QUEUED" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestDispatch_EmptyID(t *testing.T) {
	d := &fakeDispatcher{err: domain.ErrValidation}
	srv := testServer(d, &fakeStatusReader{})

	req := httptest.NewRequest(http.MethodPost, "/campaigns/dispatch",
		strings.NewReader(`{"agendamento_id":""}`))
	req.Header.Set("X-API-KEY", "test-key")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDispatch_MalformedBody(t *testing.T) {
	srv := testServer(&fakeDispatcher{}, &fakeStatusReader{})

	req := httptest.NewRequest(http.MethodPost, "/campaigns/dispatch",
		strings.NewReader(`{not json`))
	req.Header.Set("X-API-KEY", "test-key")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStatus_Found(t *testing.T) {
	s := &fakeStatusReader{view: &domain.CampaignStatusView{
		CampaignID:    "camp-1",
		AgendamentoID: "C123",
		Status:        domain.CampaignCompleted,
		Provider:      "CDA",
		TotalMessages: 10,
		SentMessages:  10,
		Progress:      100,
	}}
	srv := testServer(&fakeDispatcher{}, s)

	req := httptest.NewRequest(http.MethodGet, "/campaigns/camp-1/status", nil)
	req.Header.Set("X-API-KEY", "test-key")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var view domain.CampaignStatusView
	json.Unmarshal(rec.Body.Bytes(), &view)
	if view.CampaignID != "camp-1" || view.Progress != 100 {
		t.Errorf("view = %+v", view)
	}
}

func TestStatus_NotFound(t *testing.T) {
	srv := testServer(&fakeDispatcher{}, &fakeStatusReader{err: domain.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/campaigns/nope/status", nil)
	req.Header.Set("X-API-KEY", "test-key")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv := testServer(&fakeDispatcher{}, &fakeStatusReader{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
