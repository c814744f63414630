package apify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(srv.URL, "test-token", time.Minute, 3, testLogger())
	c.backoff = func(int) time.Duration { return 0 }
	return c
}

func TestRunActor(t *testing.T) {
	var gotPath, gotToken string
	var gotInput map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
		json.NewDecoder(r.Body).Decode(&gotInput)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"job_url":"https://example.com/j/1","title":"Engineer"}]`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	items, err := c.RunActor(context.Background(), "acme~job-scraper", map[string]string{"search_url": "x"})
	if err != nil {
		t.Fatalf("RunActor failed: %v", err)
	}

	if gotPath != "/acts/acme~job-scraper/run-sync-get-dataset-items" {
		t.Errorf("path = %q", gotPath)
	}
	if gotToken != "test-token" {
		t.Errorf("token = %q", gotToken)
	}
	if gotInput["search_url"] != "x" {
		t.Errorf("input = %v", gotInput)
	}
	if len(items) != 1 || items[0].String("title") != "Engineer" {
		t.Errorf("items = %v", items)
	}
}

func TestRunActorRetriesTransient(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"title":"ok"}]`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	items, err := c.RunActor(context.Background(), "actor", nil)
	if err != nil {
		t.Fatalf("RunActor failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(items) != 1 {
		t.Errorf("items = %v", items)
	}
}

func TestRunActorGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.RunActor(context.Background(), "actor", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunActorPermanentFailureNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "no such actor", http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.RunActor(context.Background(), "actor", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &statusError{Code: 429}, true},
		{"502", &statusError{Code: 502}, true},
		{"503", &statusError{Code: 503}, true},
		{"404", &statusError{Code: 404}, false},
		{"400", &statusError{Code: 400}, false},
		{"timeout message", errString("i/o timeout"), true},
		{"connection message", errString("connection refused"), true},
		{"other message", errString("invalid input"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestScrapeJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var input JobScraperInput
		json.NewDecoder(r.Body).Decode(&input)
		if input.SearchURL != "https://example.com/search" {
			t.Errorf("search_url = %q", input.SearchURL)
		}
		if !input.IncludeCompanyDetails || input.MaxConcurrency != 1 {
			t.Errorf("unexpected input %+v", input)
		}
		if input.ProxyGroup != "RESIDENTIAL" {
			t.Errorf("proxy_group = %q", input.ProxyGroup)
		}
		w.Write([]byte(`[{"job_url":"u","title":"t","company_name":"c","company_website":"w"}]`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	jobs, err := c.ScrapeJobs(context.Background(), "actor", "https://example.com/search", 30, "residential")
	if err != nil {
		t.Fatalf("ScrapeJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %v", jobs)
	}
	if jobs[0].CompanyWebsite != "w" || jobs[0].CompanyName != "c" {
		t.Errorf("job = %+v", jobs[0])
	}
}
