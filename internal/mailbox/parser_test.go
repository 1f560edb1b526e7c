package mailbox

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpilot/internal/apperr"
	"mailpilot/internal/models"
)

var testAccount = &models.MailAccount{ID: "a1", TenantID: "t1", Email: "support@acme.test", IMAPHost: "imap.acme.test", IMAPPort: 993}

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParseMessage(t *testing.T) {
	received := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		raw   RawMessage
		check func(t *testing.T, msg *models.IncomingMessage)
	}{
		{
			name: "plain text",
			raw: RawMessage{UID: 4, InternalDate: received, Body: crlf(
				"Message-ID: <abc@mail.example.com>",
				"From: Jane Doe <Jane@Example.com>",
				"To: support@acme.test",
				"Subject: Where is my order?",
				"Content-Type: text/plain; charset=utf-8",
				"",
				"Order 4411 has not arrived.",
			)},
			check: func(t *testing.T, msg *models.IncomingMessage) {
				assert.Equal(t, "abc@mail.example.com", msg.ProviderMessageID)
				assert.Equal(t, "jane@example.com", msg.FromAddress)
				assert.Equal(t, "support@acme.test", msg.ToAddress)
				assert.Equal(t, "Where is my order?", msg.Subject)
				assert.Equal(t, "Order 4411 has not arrived.", msg.BodyText)
				assert.Equal(t, int64(4), msg.IMAPUID)
				assert.Equal(t, received, msg.ReceivedAt)
				assert.Equal(t, "a1", msg.MailAccountID)
				assert.False(t, msg.HasAttachments)
				assert.False(t, msg.Seen)
			},
		},
		{
			name: "multipart alternative with unsafe html",
			raw: RawMessage{UID: 5, Flags: []string{`\Seen`}, InternalDate: received, Body: crlf(
				"Message-ID: <alt@example.com>",
				"From: bob@example.com",
				"Subject: Hello",
				"MIME-Version: 1.0",
				`Content-Type: multipart/alternative; boundary="b1"`,
				"",
				"--b1",
				"Content-Type: text/plain; charset=utf-8",
				"",
				"plain part",
				"--b1",
				"Content-Type: text/html; charset=utf-8",
				"",
				`<p>html part</p><script>alert(1)</script>`,
				"--b1--",
				"",
			)},
			check: func(t *testing.T, msg *models.IncomingMessage) {
				assert.Equal(t, "plain part", msg.BodyText)
				assert.Contains(t, msg.BodyHTML, "<p>html part</p>")
				assert.NotContains(t, msg.BodyHTML, "script")
				assert.True(t, msg.Seen)
				assert.Equal(t, "support@acme.test", msg.ToAddress)
			},
		},
		{
			name: "html only falls back to converted text",
			raw: RawMessage{UID: 6, InternalDate: received, Body: crlf(
				"Message-ID: <html@example.com>",
				"From: carol@example.com",
				"Subject: Invoice",
				"Content-Type: text/html; charset=utf-8",
				"",
				"<p>Please send the <strong>invoice</strong></p>",
			)},
			check: func(t *testing.T, msg *models.IncomingMessage) {
				assert.Contains(t, msg.BodyText, "**invoice**")
				assert.NotContains(t, msg.BodyText, "<p>")
			},
		},
		{
			name: "missing message id gets a synthetic one",
			raw: RawMessage{UID: 42, InternalDate: received, Body: crlf(
				"From: dave@example.com",
				"Subject: no id",
				"",
				"hi",
			)},
			check: func(t *testing.T, msg *models.IncomingMessage) {
				assert.Equal(t, "uid-7-42@imap.acme.test", msg.ProviderMessageID)
			},
		},
		{
			name: "threading and auto submitted headers",
			raw: RawMessage{UID: 8, InternalDate: received, Body: crlf(
				"Message-ID: <reply@example.com>",
				"From: erin@example.com",
				"Subject: Re: Hello",
				"In-Reply-To: <orig@acme.test>",
				"References: <first@acme.test> <orig@acme.test>",
				"Auto-Submitted: Auto-Replied",
				"",
				"I am out of office",
			)},
			check: func(t *testing.T, msg *models.IncomingMessage) {
				assert.Equal(t, "orig@acme.test", msg.InReplyTo)
				assert.Equal(t, "first@acme.test orig@acme.test", msg.References)
				assert.Equal(t, "auto-replied", msg.AutoSubmitted)
			},
		},
		{
			name: "bulk precedence counts as automated",
			raw: RawMessage{UID: 9, InternalDate: received, Body: crlf(
				"Message-ID: <news@example.com>",
				"From: news@example.com",
				"Precedence: bulk",
				"",
				"newsletter",
			)},
			check: func(t *testing.T, msg *models.IncomingMessage) {
				assert.Equal(t, "auto-generated", msg.AutoSubmitted)
			},
		},
		{
			name: "attachment detected",
			raw: RawMessage{UID: 10, InternalDate: received, Body: crlf(
				"Message-ID: <att@example.com>",
				"From: frank@example.com",
				"Subject: contract",
				"MIME-Version: 1.0",
				`Content-Type: multipart/mixed; boundary="m1"`,
				"",
				"--m1",
				"Content-Type: text/plain; charset=utf-8",
				"",
				"see attached",
				"--m1",
				"Content-Type: application/pdf",
				`Content-Disposition: attachment; filename="contract.pdf"`,
				"Content-Transfer-Encoding: base64",
				"",
				"JVBERi0xLjQK",
				"--m1--",
				"",
			)},
			check: func(t *testing.T, msg *models.IncomingMessage) {
				assert.True(t, msg.HasAttachments)
				assert.Equal(t, "see attached", msg.BodyText)
			},
		},
		{
			name: "legacy charset decoded",
			raw: RawMessage{UID: 11, InternalDate: received, Body: append(crlf(
				"Message-ID: <latin@example.com>",
				"From: gina@example.com",
				"Content-Type: text/plain; charset=iso-8859-1",
				"",
				"",
			), []byte("caf\xe9")...)},
			check: func(t *testing.T, msg *models.IncomingMessage) {
				assert.Equal(t, "café", msg.BodyText)
			},
		},
		{
			name: "date header used without internal date",
			raw: RawMessage{UID: 12, Body: crlf(
				"Message-ID: <dated@example.com>",
				"From: hank@example.com",
				"Date: Mon, 02 Feb 2026 10:00:00 +0200",
				"",
				"hi",
			)},
			check: func(t *testing.T, msg *models.IncomingMessage) {
				assert.Equal(t, time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC), msg.ReceivedAt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage(testAccount, 7, tt.raw)
			require.NoError(t, err)
			tt.check(t, msg)
		})
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{name: "empty", body: nil},
		{name: "whitespace", body: []byte("  \r\n")},
		{name: "broken header", body: crlf("this is not a header", "", "body")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage(testAccount, 7, RawMessage{UID: 3, Body: tt.body})
			require.Error(t, err)
			var parseErr *apperr.ParseError
			assert.True(t, errors.As(err, &parseErr))
		})
	}
}
