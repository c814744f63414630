package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leadflowhq/leadflow/internal/metrics"
	"github.com/leadflowhq/leadflow/internal/scrape"
	"github.com/leadflowhq/leadflow/internal/senders"
	"github.com/leadflowhq/leadflow/internal/tasks"
)

type fakeService struct {
	scrapeCombos []scrape.Combination
	maxResults   int
	proxyGroup   string
	campaignCh   senders.Channel
	campaignErr  error
	tasks        map[string]tasks.Task
	active       int
}

func (f *fakeService) StartScrape(combos []scrape.Combination, maxResults int, proxyGroup string) (string, error) {
	f.scrapeCombos = combos
	f.maxResults = maxResults
	f.proxyGroup = proxyGroup
	return "scrape-task", nil
}

func (f *fakeService) StartCampaign(channel senders.Channel) (string, error) {
	if f.campaignErr != nil {
		return "", f.campaignErr
	}
	f.campaignCh = channel
	return "campaign-task", nil
}

func (f *fakeService) Task(id string) (tasks.Task, bool) {
	t, ok := f.tasks[id]
	return t, ok
}

func (f *fakeService) ActiveTasks() int {
	return f.active
}

func newTestServer(service *fakeService, apiKey string) *Server {
	cfg := Config{
		ListenAddr:   "127.0.0.1:0",
		APIKey:       apiKey,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, service, metrics.New(), logger)
}

func doRequest(t *testing.T, s *Server, method, path, apiKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthNoAuth(t *testing.T) {
	s := newTestServer(&fakeService{active: 2}, "secret")
	rec := doRequest(t, s, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	var health healthResponse
	json.NewDecoder(rec.Body).Decode(&health)
	if health.Status != "ok" || health.ActiveTasks != 2 {
		t.Errorf("health = %+v", health)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(&fakeService{}, "secret")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/campaigns/email", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/campaigns/email", "wrong", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d", rec.Code)
	}
}

func TestStartScrape(t *testing.T) {
	service := &fakeService{}
	s := newTestServer(service, "secret")

	body := `{"country": ["Germany", "France"], "job": "Engineer"}`
	rec := doRequest(t, s, http.MethodPost, "/api/v1/scrape", "secret", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["task_id"] != "scrape-task" {
		t.Errorf("task_id = %q", resp["task_id"])
	}

	if len(service.scrapeCombos) != 2 {
		t.Fatalf("combos = %v", service.scrapeCombos)
	}
	if service.scrapeCombos[0] != (scrape.Combination{Job: "Engineer", Country: "Germany"}) {
		t.Errorf("combos = %v", service.scrapeCombos)
	}
	if service.maxResults != 30 {
		t.Errorf("maxResults = %d, want default 30", service.maxResults)
	}
	if service.proxyGroup != "RESIDENTIAL" {
		t.Errorf("proxyGroup = %q, want default RESIDENTIAL", service.proxyGroup)
	}
}

func TestStartScrapeValidation(t *testing.T) {
	s := newTestServer(&fakeService{}, "secret")

	tests := []struct {
		name string
		body string
	}{
		{"missing fields", `{"country": "Germany"}`},
		{"empty values", `{"country": [""], "job": [""]}`},
		{"bad json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/v1/scrape", "secret", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d", rec.Code)
			}
		})
	}
}

func TestStartCampaign(t *testing.T) {
	service := &fakeService{}
	s := newTestServer(service, "secret")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/campaigns/whatsapp", "secret", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if service.campaignCh != senders.ChannelWhatsApp {
		t.Errorf("channel = %q", service.campaignCh)
	}
}

func TestStartCampaignBusy(t *testing.T) {
	service := &fakeService{campaignErr: &tasks.ErrBusy{Gate: "campaign:email", TaskID: "other"}}
	s := newTestServer(service, "secret")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/campaigns/email", "secret", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestGetTask(t *testing.T) {
	service := &fakeService{tasks: map[string]tasks.Task{
		"abc": {ID: "abc", Type: "campaign", Status: tasks.StatusRunning, Progress: "Processing target 1/3"},
	}}
	s := newTestServer(service, "secret")

	rec := doRequest(t, s, http.MethodGet, "/api/v1/tasks/abc", "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var task tasks.Task
	json.NewDecoder(rec.Body).Decode(&task)
	if task.Status != tasks.StatusRunning {
		t.Errorf("status = %q", task.Status)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/tasks/nope", "secret", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown task status = %d", rec.Code)
	}
}
