package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

type recordedRequest struct {
	method string
	path   string
	query  url.Values
	body   valueRange
}

func fakeSheetsServer(t *testing.T, respond map[string][][]string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}

		rec := recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.Query()}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&rec.body)
		}
		requests = append(requests, rec)

		w.Header().Set("Content-Type", "application/json")
		if values, ok := respond[r.URL.Path]; ok {
			json.NewEncoder(w).Encode(valueRange{Values: values})
			return
		}
		w.Write([]byte(`{}`))
	}))

	return srv, &requests
}

func TestHeaderMap(t *testing.T) {
	srv, _ := fakeSheetsServer(t, map[string][][]string{
		"/spreadsheets/sheet-1/values/Sheet1!1:1": {{" emails ", "phones", "email_status"}},
	})
	defer srv.Close()

	w := NewClient(srv.URL, "test-token", "sheet-1").Worksheet("Sheet1")
	headers, err := w.HeaderMap(context.Background())
	if err != nil {
		t.Fatalf("HeaderMap failed: %v", err)
	}

	want := map[string]int{"emails": 1, "phones": 2, "email_status": 3}
	if !reflect.DeepEqual(headers, want) {
		t.Errorf("headers = %v, want %v", headers, want)
	}
}

func TestRecords(t *testing.T) {
	srv, _ := fakeSheetsServer(t, map[string][][]string{
		"/spreadsheets/sheet-1/values/'Senders Pool'": {
			{"id", "type", "is_active"},
			{"a@x.com", "email", "true"},
			{"wa-1", "whatsapp"},
		},
	})
	defer srv.Close()

	w := NewClient(srv.URL, "test-token", "sheet-1").Worksheet("Senders Pool")
	records, err := w.Records(context.Background())
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("records = %v", records)
	}
	if records[0]["id"] != "a@x.com" || records[0]["is_active"] != "true" {
		t.Errorf("record 0 = %v", records[0])
	}
	// short rows are padded with empty strings
	if records[1]["is_active"] != "" {
		t.Errorf("record 1 = %v", records[1])
	}
}

func TestColumnValues(t *testing.T) {
	srv, requests := fakeSheetsServer(t, map[string][][]string{
		"/spreadsheets/sheet-1/values/Sheet1!F2:F": {{"https://jobs/1"}, {""}, {"https://jobs/2"}},
	})
	defer srv.Close()

	w := NewClient(srv.URL, "test-token", "sheet-1").Worksheet("Sheet1")
	values, err := w.ColumnValues(context.Background(), 6)
	if err != nil {
		t.Fatalf("ColumnValues failed: %v", err)
	}

	if len(values) != 2 {
		t.Errorf("values = %v", values)
	}
	if _, ok := values["https://jobs/1"]; !ok {
		t.Errorf("missing link, values = %v", values)
	}
	if (*requests)[0].method != http.MethodGet {
		t.Errorf("method = %q", (*requests)[0].method)
	}
}

func TestAppendRow(t *testing.T) {
	srv, requests := fakeSheetsServer(t, nil)
	defer srv.Close()

	w := NewClient(srv.URL, "test-token", "sheet-1").Worksheet("Senders Log")
	row := []string{"a@x.com", "email", "x@t.com", "2026-08-30 12:00:00"}
	if err := w.AppendRow(context.Background(), row); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}

	req := (*requests)[0]
	if req.method != http.MethodPost {
		t.Errorf("method = %q", req.method)
	}
	if req.path != "/spreadsheets/sheet-1/values/'Senders Log':append" {
		t.Errorf("path = %q", req.path)
	}
	if req.query.Get("valueInputOption") != "USER_ENTERED" {
		t.Errorf("query = %v", req.query)
	}
	if !reflect.DeepEqual(req.body.Values, [][]string{row}) {
		t.Errorf("body = %v", req.body.Values)
	}
}

func TestUpdateCell(t *testing.T) {
	srv, requests := fakeSheetsServer(t, nil)
	defer srv.Close()

	w := NewClient(srv.URL, "test-token", "sheet-1").Worksheet("Sheet1")
	if err := w.UpdateCell(context.Background(), 4, 3, "Completed"); err != nil {
		t.Fatalf("UpdateCell failed: %v", err)
	}

	req := (*requests)[0]
	if req.method != http.MethodPut {
		t.Errorf("method = %q", req.method)
	}
	if req.path != "/spreadsheets/sheet-1/values/Sheet1!C4" {
		t.Errorf("path = %q", req.path)
	}
	if !reflect.DeepEqual(req.body.Values, [][]string{{"Completed"}}) {
		t.Errorf("body = %v", req.body.Values)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"The caller does not have permission"}}`))
	}))
	defer srv.Close()

	w := NewClient(srv.URL, "test-token", "sheet-1").Worksheet("Sheet1")
	_, err := w.AllValues(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "does not have permission") {
		t.Errorf("error = %q", got)
	}
}

func TestColLetter(t *testing.T) {
	tests := []struct {
		col  int
		want string
	}{
		{1, "A"}, {2, "B"}, {26, "Z"}, {27, "AA"}, {28, "AB"}, {52, "AZ"}, {53, "BA"}, {703, "AAA"},
	}
	for _, tt := range tests {
		if got := colLetter(tt.col); got != tt.want {
			t.Errorf("colLetter(%d) = %q, want %q", tt.col, got, tt.want)
		}
	}
}

func TestQuoteSheet(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Sheet1", "Sheet1"},
		{"Senders Pool", "'Senders Pool'"},
		{"Bob's Sheet", "'Bob''s Sheet'"},
	}
	for _, tt := range tests {
		if got := quoteSheet(tt.name); got != tt.want {
			t.Errorf("quoteSheet(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
