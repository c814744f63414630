// Package transport delivers outreach messages over the supported
// channels: SMTP email and WhatsApp via the messaging gateway.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/textproto"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/leadflowhq/leadflow/internal/senders"
)

// Attachment is a file sent along with a message
type Attachment struct {
	Filename string
	Content  []byte
}

// EmailMessage is one outbound email
type EmailMessage struct {
	To         string
	Subject    string
	HTMLBody   string
	TextBody   string
	Attachment *Attachment
}

// EmailSender delivers email through a sender identity's own SMTP
// submission server
type EmailSender struct {
	fromName string
	useTLS   bool
	useSSL   bool
	logger   *slog.Logger

	// sendMail is swapped in tests
	sendMail func(addr string, a sasl.Client, from string, to []string, r *bytes.Reader) error
}

// NewEmailSender creates an email transport. useTLS selects STARTTLS on
// the submission port, useSSL selects implicit TLS; they are mutually
// exclusive. With both false the message is submitted over plaintext.
func NewEmailSender(fromName string, useTLS, useSSL bool, logger *slog.Logger) *EmailSender {
	s := &EmailSender{
		fromName: fromName,
		useTLS:   useTLS,
		useSSL:   useSSL,
		logger:   logger,
	}
	s.sendMail = s.dial
	return s
}

// Send delivers one message through the given sender identity. The
// sender's ID is both the SMTP username and the from address.
func (s *EmailSender) Send(ctx context.Context, sender senders.Sender, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := buildMIME(s.fromName, sender.ID, msg)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	addr := net.JoinHostPort(sender.Host, strconv.Itoa(sender.Port))
	auth := sasl.NewPlainClient("", sender.ID, sender.Password)

	start := time.Now()
	if err := s.sendMail(addr, auth, sender.ID, []string{msg.To}, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("smtp delivery via %s failed: %w", addr, err)
	}

	s.logger.Info("email delivered",
		"sender", sender.ID,
		"to", msg.To,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *EmailSender) dial(addr string, a sasl.Client, from string, to []string, r *bytes.Reader) error {
	switch {
	case s.useSSL:
		return smtp.SendMailTLS(addr, a, from, to, r)
	case s.useTLS:
		return smtp.SendMail(addr, a, from, to, r)
	}

	// plaintext submission; the server need not offer STARTTLS
	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Auth(a); err != nil {
		return err
	}
	if err := c.SendMail(from, to, r); err != nil {
		return err
	}
	return c.Quit()
}

// buildMIME assembles a multipart/mixed message: a multipart/alternative
// part with the plain-text and HTML bodies, then the attachment if any.
func buildMIME(fromName, from string, msg EmailMessage) ([]byte, error) {
	var buf bytes.Buffer

	mixed := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", formatAddress(fromName, from))
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@leadflow>\r\n", uuid.New().String())
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	altBuf := &bytes.Buffer{}
	alt := multipart.NewWriter(altBuf)
	if err := writeTextPart(alt, "text/plain", msg.TextBody); err != nil {
		return nil, err
	}
	if err := writeTextPart(alt, "text/html", msg.HTMLBody); err != nil {
		return nil, err
	}
	if err := alt.Close(); err != nil {
		return nil, err
	}

	altHeader := textproto.MIMEHeader{}
	altHeader.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary()))
	part, err := mixed.CreatePart(altHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(altBuf.Bytes()); err != nil {
		return nil, err
	}

	if msg.Attachment != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/pdf; name="+strconv.Quote(msg.Attachment.Filename))
		header.Set("Content-Disposition", "attachment; filename="+strconv.Quote(msg.Attachment.Filename))
		header.Set("Content-Transfer-Encoding", "base64")

		part, err := mixed.CreatePart(header)
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(msg.Attachment.Content)
		for len(encoded) > 0 {
			n := min(76, len(encoded))
			if _, err := fmt.Fprintf(part, "%s\r\n", encoded[:n]); err != nil {
				return nil, err
			}
			encoded = encoded[n:]
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTextPart(w *multipart.Writer, contentType, body string) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType+"; charset=utf-8")
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write([]byte(body))
	return err
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), addr)
}
