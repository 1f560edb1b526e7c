// Package dispatch sends replies and manual mail over SMTP or SendGrid.
package dispatch

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Message is a composed email, transport independent
type Message struct {
	From       string
	To         string
	Subject    string
	TextBody   string
	HTMLBody   string
	MessageID  string
	InReplyTo  string
	References []string
	AutoReply  bool
	Date       time.Time
}

// NewMessageID returns a unique id in the sender's domain, without angle brackets
func NewMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return uuid.NewString() + "@" + domain
}

// ValidateAddress checks a single recipient address
func ValidateAddress(addr string) (string, error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(addr))
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return strings.ToLower(parsed.Address), nil
}

// Compose renders msg as multipart/alternative RFC 5322 bytes
func Compose(msg Message) ([]byte, error) {
	var h mail.Header
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: msg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	if msg.MessageID != "" {
		h.SetMessageID(msg.MessageID)
	}
	if msg.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{msg.InReplyTo})
	}
	if len(msg.References) > 0 {
		h.SetMsgIDList("References", msg.References)
	}
	if msg.AutoReply {
		h.Set("Auto-Submitted", "auto-replied")
	}

	var buf bytes.Buffer
	tw, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if err := writeTextPart(tw, "text/plain", msg.TextBody); err != nil {
		return nil, err
	}
	if msg.HTMLBody != "" {
		if err := writeTextPart(tw, "text/html", msg.HTMLBody); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTextPart(tw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")

	w, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("writing %s part: %w", contentType, err)
	}
	return w.Close()
}
