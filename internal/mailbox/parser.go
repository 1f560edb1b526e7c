package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"mailpilot/internal/apperr"
	"mailpilot/internal/models"
	"mailpilot/internal/utils"
)

const flagSeen = `\Seen`

// ParseMessage turns a fetched message into a ledger row for acc.
// A message whose header cannot be read is reported as *apperr.ParseError.
func ParseMessage(acc *models.MailAccount, uidValidity uint32, raw RawMessage) (*models.IncomingMessage, error) {
	ref := fmt.Sprintf("uid %d", raw.UID)
	if len(bytes.TrimSpace(raw.Body)) == 0 {
		return nil, &apperr.ParseError{Ref: ref, Err: errors.New("empty message")}
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw.Body))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, &apperr.ParseError{Ref: ref, Err: err}
	}
	defer mr.Close()

	msg := &models.IncomingMessage{
		MailAccountID: acc.ID,
		IMAPUID:       int64(raw.UID),
		Seen:          hasFlag(raw.Flags, flagSeen),
	}

	h := mr.Header
	msg.ProviderMessageID, _ = h.MessageID()
	if msg.ProviderMessageID == "" {
		msg.ProviderMessageID = fmt.Sprintf("uid-%d-%d@%s", uidValidity, raw.UID, acc.IMAPHost)
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromAddress = strings.ToLower(from[0].Address)
	}
	if to, err := h.AddressList("To"); err == nil && len(to) > 0 {
		msg.ToAddress = strings.ToLower(to[0].Address)
	} else {
		msg.ToAddress = acc.Email
	}
	if subject, err := h.Subject(); err == nil {
		msg.Subject = strings.TrimSpace(subject)
	} else {
		msg.Subject = strings.TrimSpace(h.Get("Subject"))
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		msg.InReplyTo = ids[0]
	}
	if ids, err := h.MsgIDList("References"); err == nil {
		msg.References = strings.Join(ids, " ")
	}
	msg.AutoSubmitted = autoSubmitted(h)

	msg.ReceivedAt = raw.InternalDate
	if msg.ReceivedAt.IsZero() {
		if date, err := h.Date(); err == nil {
			msg.ReceivedAt = date
		} else {
			msg.ReceivedAt = time.Now()
		}
	}
	msg.ReceivedAt = msg.ReceivedAt.UTC()

	text, html, attachments, err := readBodies(mr)
	if err != nil && text == "" && html == "" {
		return nil, &apperr.ParseError{Ref: msg.ProviderMessageID, Err: err}
	}
	msg.HasAttachments = attachments
	msg.BodyHTML = utils.SanitizeHTML(html)
	msg.BodyText = strings.TrimSpace(text)
	if msg.BodyText == "" {
		msg.BodyText = utils.HTMLToText(html)
	}

	return msg, nil
}

// readBodies walks the MIME tree keeping the first text/plain and text/html parts.
// A broken part ends the walk; whatever was read before it is kept.
func readBodies(mr *mail.Reader) (text, html string, attachments bool, err error) {
	for {
		part, perr := mr.NextPart()
		if perr == io.EOF {
			return text, html, attachments, nil
		}
		if perr != nil && !message.IsUnknownCharset(perr) {
			return text, html, attachments, perr
		}
		if part == nil {
			continue
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			switch {
			case strings.HasPrefix(contentType, "text/plain") && text == "":
				body, readErr := io.ReadAll(part.Body)
				if readErr != nil {
					return text, html, attachments, readErr
				}
				text = string(body)
			case strings.HasPrefix(contentType, "text/html") && html == "":
				body, readErr := io.ReadAll(part.Body)
				if readErr != nil {
					return text, html, attachments, readErr
				}
				html = string(body)
			case !strings.HasPrefix(contentType, "text/"):
				// inline images and the like
				attachments = true
			}
		case *mail.AttachmentHeader:
			attachments = true
		}
	}
}

// autoSubmitted returns the Auto-Submitted value, deriving one from the
// older Precedence and X-Autoreply conventions when it is missing
func autoSubmitted(h mail.Header) string {
	if v := strings.ToLower(strings.TrimSpace(h.Get("Auto-Submitted"))); v != "" {
		return v
	}
	switch strings.ToLower(strings.TrimSpace(h.Get("Precedence"))) {
	case "bulk", "junk", "list", "auto_reply":
		return "auto-generated"
	}
	if h.Get("X-Autoreply") != "" || h.Get("X-Autorespond") != "" {
		return "auto-replied"
	}
	return ""
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}
