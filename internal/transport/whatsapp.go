package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/leadflowhq/leadflow/internal/senders"
)

// ErrUploadFailed marks a delivery that failed before the send call
// because the attachment could not be uploaded to the gateway.
var ErrUploadFailed = errors.New("attachment upload failed")

// WhatsAppMessage is one outbound WhatsApp message, delivered to all
// recipients in a single gateway call
type WhatsAppMessage struct {
	Recipients []string
	Text       string
	Attachment *Attachment
}

// WhatsAppSender delivers messages through the WhatsApp messaging
// gateway. Delivery is two requests: a multipart upload of the
// attachment, then a send referencing the uploaded path.
type WhatsAppSender struct {
	sendURL    string
	uploadURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWhatsAppSender creates a WhatsApp transport against the gateway
func NewWhatsAppSender(sendURL, uploadURL string, timeout time.Duration, logger *slog.Logger) *WhatsAppSender {
	return &WhatsAppSender{
		sendURL:   sendURL,
		uploadURL: uploadURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type uploadResponse struct {
	Data struct {
		Path string `json:"path"`
	} `json:"data"`
	Message string `json:"message"`
}

type sendMessage struct {
	MessageType    string `json:"message_type"`
	AttachmentFile string `json:"attachment_file,omitempty"`
	OriginFileName string `json:"origin_file_name,omitempty"`
	Message        string `json:"message"`
}

type sendRequest struct {
	Messages        []sendMessage `json:"messages"`
	Type            string        `json:"type"`
	Recipients      []string      `json:"recipients"`
	Platforms       []string      `json:"platforms"`
	WithCountryCode string        `json:"with_country_code"`
}

// Send delivers one message through the given sender identity, whose
// API key authenticates against the gateway
func (s *WhatsAppSender) Send(ctx context.Context, sender senders.Sender, msg WhatsAppMessage) error {
	m := sendMessage{
		MessageType: "text",
		Message:     msg.Text,
	}
	if msg.Attachment != nil {
		path, err := s.upload(ctx, sender, msg.Attachment)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUploadFailed, err)
		}
		m.MessageType = "file"
		m.AttachmentFile = path
		m.OriginFileName = msg.Attachment.Filename
	}

	req := sendRequest{
		Messages:        []sendMessage{m},
		Type:            "notification",
		Recipients:      msg.Recipients,
		Platforms:       []string{"whatsapp"},
		WithCountryCode: "0",
	}

	start := time.Now()
	if err := s.post(ctx, sender, req); err != nil {
		return err
	}

	s.logger.Info("whatsapp message delivered",
		"sender", sender.ID,
		"recipients", len(msg.Recipients),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *WhatsAppSender) upload(ctx context.Context, sender senders.Sender, att *Attachment) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", att.Filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(att.Content); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.uploadURL, &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+sender.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if uploaded.Data.Path == "" {
		return "", fmt.Errorf("gateway returned no attachment path")
	}
	return uploaded.Data.Path, nil
}

func (s *WhatsAppSender) post(ctx context.Context, sender senders.Sender, req sendRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+sender.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
