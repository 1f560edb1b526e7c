package dispatch

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	msg := Message{
		From:       "support@acme.test",
		To:         "customer@example.com",
		Subject:    "Re: Größe der Bestellung",
		TextBody:   "Danke für Ihre Nachricht.",
		HTMLBody:   "<p>Danke für Ihre Nachricht.</p>",
		MessageID:  "reply-1@acme.test",
		InReplyTo:  "orig@example.com",
		References: []string{"first@example.com", "orig@example.com"},
		AutoReply:  true,
		Date:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	data, err := Compose(msg)
	require.NoError(t, err)

	r, err := mail.CreateReader(bytes.NewReader(data))
	require.NoError(t, err)

	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, msg.Subject, subject)

	id, err := r.Header.MessageID()
	require.NoError(t, err)
	assert.Equal(t, "reply-1@acme.test", id)

	inReplyTo, err := r.Header.MsgIDList("In-Reply-To")
	require.NoError(t, err)
	assert.Equal(t, []string{"orig@example.com"}, inReplyTo)

	refs, err := r.Header.MsgIDList("References")
	require.NoError(t, err)
	assert.Equal(t, msg.References, refs)

	assert.Equal(t, "auto-replied", r.Header.Get("Auto-Submitted"))
	mediaType, _, err := r.Header.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	bodies := map[string]string{}
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		h, ok := p.Header.(*mail.InlineHeader)
		require.True(t, ok)
		ct, _, err := h.ContentType()
		require.NoError(t, err)
		b, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		bodies[ct] = string(b)
	}
	assert.Equal(t, msg.TextBody, bodies["text/plain"])
	assert.Equal(t, msg.HTMLBody, bodies["text/html"])
}

func TestCompose_ManualSendHasNoThreadingHeaders(t *testing.T) {
	data, err := Compose(Message{From: "a@acme.test", To: "b@example.com", Subject: "Hello", TextBody: "Hi"})
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "In-Reply-To")
	assert.NotContains(t, raw, "References")
	assert.NotContains(t, raw, "Auto-Submitted")
	assert.NotContains(t, raw, "text/html")
	assert.True(t, strings.Contains(raw, "Date: "))
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Customer@Example.com", want: "customer@example.com"},
		{in: "  Jane Doe <jane@example.com> ", want: "jane@example.com"},
		{in: "bad-email", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateAddress(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID("support@acme.test")
	assert.True(t, strings.HasSuffix(id, "@acme.test"))
	assert.NotEqual(t, id, NewMessageID("support@acme.test"))
	assert.True(t, strings.HasSuffix(NewMessageID("nobody"), "@localhost"))
}
