package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leadflowhq/leadflow/internal/senders"
)

func whatsappSender() senders.Sender {
	return senders.Sender{
		ID:      "wa-main",
		Channel: senders.ChannelWhatsApp,
		APIKey:  "token-123",
	}
}

func TestWhatsAppSendWithAttachment(t *testing.T) {
	var uploadAuth string
	var sendPayload sendRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		uploadAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("bad multipart form: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file field: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"path":"uploads/resume.pdf"}}`))
	})
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&sendPayload); err != nil {
			t.Errorf("bad send payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewWhatsAppSender(srv.URL+"/send", srv.URL+"/upload", 5*time.Second, testLogger())
	msg := WhatsAppMessage{
		Recipients: []string{"+15550001111", "+15550002222"},
		Text:       "Hello",
		Attachment: &Attachment{
			Filename: "resume.pdf",
			Content:  []byte("%PDF-1.4 fake"),
		},
	}
	if err := s.Send(context.Background(), whatsappSender(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if uploadAuth != "Bearer token-123" {
		t.Errorf("upload auth = %q", uploadAuth)
	}
	if len(sendPayload.Messages) != 1 {
		t.Fatalf("messages = %v", sendPayload.Messages)
	}
	if m := sendPayload.Messages[0]; m.MessageType != "file" || m.AttachmentFile != "uploads/resume.pdf" || m.OriginFileName != "resume.pdf" {
		t.Errorf("message = %+v", m)
	}
	if sendPayload.Type != "notification" {
		t.Errorf("type = %q", sendPayload.Type)
	}
	if len(sendPayload.Recipients) != 2 || sendPayload.Recipients[0] != "+15550001111" {
		t.Errorf("recipients = %v", sendPayload.Recipients)
	}
	if len(sendPayload.Platforms) != 1 || sendPayload.Platforms[0] != "whatsapp" {
		t.Errorf("platforms = %v", sendPayload.Platforms)
	}
	if sendPayload.WithCountryCode != "0" {
		t.Errorf("with_country_code = %q", sendPayload.WithCountryCode)
	}
}

func TestWhatsAppSendTextOnly(t *testing.T) {
	var sendPayload sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/upload") {
			t.Error("upload called for text-only message")
		}
		json.NewDecoder(r.Body).Decode(&sendPayload)
	}))
	defer srv.Close()

	s := NewWhatsAppSender(srv.URL+"/send", srv.URL+"/upload", 5*time.Second, testLogger())
	if err := s.Send(context.Background(), whatsappSender(), WhatsAppMessage{Recipients: []string{"+15550001111"}, Text: "Hi"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(sendPayload.Messages) != 1 || sendPayload.Messages[0].MessageType != "text" {
		t.Errorf("messages = %+v", sendPayload.Messages)
	}
	if sendPayload.Messages[0].AttachmentFile != "" {
		t.Errorf("unexpected attachment %q", sendPayload.Messages[0].AttachmentFile)
	}
}

func TestWhatsAppUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewWhatsAppSender(srv.URL+"/send", srv.URL+"/upload", 5*time.Second, testLogger())
	msg := WhatsAppMessage{
		Recipients: []string{"+15550001111"},
		Text:       "Hi",
		Attachment: &Attachment{Filename: "resume.pdf", Content: []byte("x")},
	}
	err := s.Send(context.Background(), whatsappSender(), msg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrUploadFailed) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWhatsAppSendGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewWhatsAppSender(srv.URL+"/send", srv.URL+"/upload", 5*time.Second, testLogger())
	err := s.Send(context.Background(), whatsappSender(), WhatsAppMessage{Recipients: []string{"+15550001111"}, Text: "Hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 429") {
		t.Errorf("unexpected error: %v", err)
	}
}
