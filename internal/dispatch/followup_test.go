package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/provider"
	"github.com/ignite/campaign-dispatch/internal/queue"
)

func followUpJob(c *domain.Campaign, providerName, providerCampaignID string, completes bool) FollowUpJob {
	success, fail := "started", "erro_inicio"
	if completes {
		success, fail = "mkc_executado", "mkc_erro"
	}
	return FollowUpJob{
		CampaignID:         c.ID,
		AgendamentoID:      c.AgendamentoID,
		Provider:           providerName,
		WalletID:           "w1",
		ProviderCampaignID: providerCampaignID,
		SuccessStatus:      success,
		FailureStatus:      fail,
		CompletesCampaign:  completes,
	}
}

func jobWithAttempt(t *testing.T, payload FollowUpJob, attempt, max int) *queue.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Job{ID: "job", Queue: FollowUpQueue(payload.Provider), Payload: data, Attempt: attempt, MaxAttempts: max}
}

func TestFollowUp_GosacActivation(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	repo := newMemRepo()
	c, _ := repo.CreateCampaign(context.Background(), "G123", provider.GOSAC, 2)
	repo.MarkCompleted(context.Background(), c.ID, 2)
	n := &fakeNotifier{}
	crmFake := &fakeCRM{creds: domain.Credentials{"url": srv.URL, "token": "t"}}
	stage := NewFollowUpStage(repo, crmFake, n, fastRegistry())

	err := stage.Handle(context.Background(),
		jobWithAttempt(t, followUpJob(c, provider.GOSAC, "99", false), 1, 3))
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if gotPath != "/99/status/started" {
		t.Errorf("activation path = %s", gotPath)
	}
	if s := n.statuses(); len(s) != 1 || s[0] != "started" {
		t.Errorf("webhook statuses = %v, want [started]", s)
	}
}

func TestFollowUp_SalesforceCompletesCampaign(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mkc/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"mkc-tok","token_type":"Bearer"}`))
	})
	var gotPath string
	mux.HandleFunc("/automation/", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := newMemRepo()
	c, _ := repo.CreateCampaign(context.Background(), "S123", provider.Salesforce, 2)
	repo.CreateMessages(context.Background(), c.ID, testRecipients())
	repo.MarkProcessing(context.Background(), c.ID)

	n := &fakeNotifier{}
	crmFake := &fakeCRM{creds: domain.Credentials{
		"mkc_client_id": "c", "mkc_client_secret": "s",
		"mkc_token_url": srv.URL + "/mkc/token", "mkc_api_url": srv.URL,
	}}
	stage := NewFollowUpStage(repo, crmFake, n, fastRegistry())

	err := stage.Handle(context.Background(),
		jobWithAttempt(t, followUpJob(c, provider.Salesforce, "auto-1", true), 1, 3))
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if gotPath != "/automation/v1/automations/auto-1/actions/runOnce" {
		t.Errorf("automation path = %s", gotPath)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.Status != domain.CampaignCompleted {
		t.Errorf("status = %s, want COMPLETED after the follow-up", got.Status)
	}
	for _, m := range repo.messages[c.ID] {
		if m.Status != domain.MessageSent {
			t.Errorf("message %s status = %s, want SENT", m.Phone, m.Status)
		}
	}
	if s := n.statuses(); len(s) != 1 || s[0] != "mkc_executado" {
		t.Errorf("webhook statuses = %v", s)
	}
}

func TestFollowUp_FailureReturnedForRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := newMemRepo()
	c, _ := repo.CreateCampaign(context.Background(), "G123", provider.GOSAC, 2)
	repo.MarkCompleted(context.Background(), c.ID, 2)
	n := &fakeNotifier{}
	crmFake := &fakeCRM{creds: domain.Credentials{"url": srv.URL, "token": "t"}}
	stage := NewFollowUpStage(repo, crmFake, n, fastRegistry())

	err := stage.Handle(context.Background(),
		jobWithAttempt(t, followUpJob(c, provider.GOSAC, "99", false), 1, 3))
	if err == nil {
		t.Fatal("activation failure before the last attempt must be returned")
	}
	if len(n.payloads) != 0 {
		t.Error("no webhook until the last attempt fails")
	}
}

func TestFollowUp_LastAttemptFailureFinalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := newMemRepo()
	c, _ := repo.CreateCampaign(context.Background(), "S123", provider.Salesforce, 2)
	repo.CreateMessages(context.Background(), c.ID, testRecipients())
	repo.MarkProcessing(context.Background(), c.ID)
	n := &fakeNotifier{}
	crmFake := &fakeCRM{creds: domain.Credentials{
		"mkc_client_id": "c", "mkc_client_secret": "s",
		"mkc_token_url": srv.URL + "/token", "mkc_api_url": srv.URL,
	}}
	stage := NewFollowUpStage(repo, crmFake, n, fastRegistry())

	err := stage.Handle(context.Background(),
		jobWithAttempt(t, followUpJob(c, provider.Salesforce, "auto-1", true), 3, 3))
	if err != nil {
		t.Fatalf("last attempt must consume the job, got: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.Status != domain.CampaignFailed {
		t.Errorf("status = %s, want FAILED", got.Status)
	}
	if s := n.statuses(); len(s) != 1 || s[0] != "mkc_erro" {
		t.Errorf("webhook statuses = %v", s)
	}
}

func TestFollowUp_LastAttemptCredentialFailureFinalizes(t *testing.T) {
	repo := newMemRepo()
	c, _ := repo.CreateCampaign(context.Background(), "S123", provider.Salesforce, 2)
	repo.CreateMessages(context.Background(), c.ID, testRecipients())
	repo.MarkProcessing(context.Background(), c.ID)
	n := &fakeNotifier{}
	stage := NewFollowUpStage(repo, &fakeCRM{credErr: context.DeadlineExceeded}, n, fastRegistry())

	err := stage.Handle(context.Background(),
		jobWithAttempt(t, followUpJob(c, provider.Salesforce, "auto-1", true), 3, 3))
	if err != nil {
		t.Fatalf("last attempt must consume the job, got: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.Status != domain.CampaignFailed {
		t.Errorf("status = %s, want FAILED", got.Status)
	}
	if s := n.statuses(); len(s) != 1 || s[0] != "mkc_erro" {
		t.Errorf("webhook statuses = %v", s)
	}
}

func TestFollowUp_ProviderWithoutActivationDropsJob(t *testing.T) {
	repo := newMemRepo()
	c, _ := repo.CreateCampaign(context.Background(), "C123", provider.CDA, 2)
	n := &fakeNotifier{}
	stage := NewFollowUpStage(repo, &fakeCRM{creds: domain.Credentials{}}, n, fastRegistry())

	err := stage.Handle(context.Background(),
		jobWithAttempt(t, followUpJob(c, provider.CDA, "x", false), 1, 3))
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(n.payloads) != 0 {
		t.Error("no webhook for a provider without an activation step")
	}
}
