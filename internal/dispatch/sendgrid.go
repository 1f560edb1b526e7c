package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

// SystemMailer sends mail that is not tied to a tenant mailbox
type SystemMailer interface {
	From() string
	SendSystem(ctx context.Context, msg Message) (string, error)
}

// StatusError is a non-2xx answer from an HTTP mail API
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("SendGrid API error: status %d, body: %s", e.Code, e.Body)
}

// Temporary reports whether the request may succeed later
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}

// SendGridTransport sends system mail through the SendGrid v3 API
type SendGridTransport struct {
	apiKey   string
	from     string
	fromName string
	host     string
}

// NewSendGridTransport creates a SendGrid transport sending as from
func NewSendGridTransport(apiKey, from string) *SendGridTransport {
	return &SendGridTransport{
		apiKey:   apiKey,
		from:     from,
		fromName: "Mailpilot",
		host:     sendGridHost,
	}
}

// From returns the sender address
func (s *SendGridTransport) From() string {
	return s.from
}

// SendSystem sends msg and returns the provider's message id, if any
func (s *SendGridTransport) SendSystem(ctx context.Context, msg Message) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("SendGrid API key not configured")
	}

	from := sgmail.NewEmail(s.fromName, s.from)
	to := sgmail.NewEmail("", msg.To)
	message := sgmail.NewSingleEmail(from, msg.Subject, to, msg.TextBody, msg.HTMLBody)
	if msg.InReplyTo != "" {
		message.SetHeader("In-Reply-To", "<"+msg.InReplyTo+">")
	}
	if len(msg.References) > 0 {
		message.SetHeader("References", "<"+strings.Join(msg.References, "> <")+">")
	}

	request := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	request.Method = "POST"
	request.Body = sgmail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return "", &StatusError{Code: response.StatusCode, Body: response.Body}
	}

	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}
