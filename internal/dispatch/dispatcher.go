package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"mailpilot/internal/accounts"
	"mailpilot/internal/apperr"
	"mailpilot/internal/ledger"
	"mailpilot/internal/models"
	"mailpilot/internal/utils"
)

const maxBackoff = 30 * time.Second

// Config tunes retries
type Config struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Dispatcher records outgoing mail in the ledger and delivers it
type Dispatcher struct {
	mailer   Mailer
	system   SystemMailer
	accounts *accounts.Service
	ledger   ledger.Ledger
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher. system may be nil, which disables sends without an account.
func NewDispatcher(mailer Mailer, system SystemMailer, svc *accounts.Service, l ledger.Ledger, cfg Config, logger zerolog.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Dispatcher{
		mailer:   mailer,
		system:   system,
		accounts: svc,
		ledger:   l,
		cfg:      cfg,
		logger:   logger.With().Str("component", "dispatch").Logger(),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Send stores draft as a PENDING outgoing message and delivers it.
// A nil account sends through the system transport.
func (d *Dispatcher) Send(ctx context.Context, acc *models.MailAccount, draft models.OutgoingDraft) (models.OutgoingMessage, error) {
	to, err := ValidateAddress(draft.To)
	if err != nil {
		return models.OutgoingMessage{}, &apperr.DispatchError{Err: err}
	}
	from, err := d.sender(acc)
	if err != nil {
		return models.OutgoingMessage{}, err
	}

	out := models.OutgoingMessage{
		IncomingMessageID: draft.IncomingMessageID,
		ToAddress:         to,
		Subject:           draft.Subject,
		BodyText:          strings.TrimSpace(draft.BodyText),
		BodyHTML:          utils.SanitizeHTML(draft.BodyHTML),
		MessageID:         NewMessageID(from),
		InReplyTo:         draft.InReplyTo,
		References:        draft.References,
		Provider:          draft.Provider,
		Model:             draft.Model,
		SendState:         models.SendPending,
	}
	if acc != nil {
		out.MailAccountID = acc.ID
	}
	if out.BodyText == "" {
		out.BodyText = utils.HTMLToText(out.BodyHTML)
	}
	if out.BodyHTML == "" {
		out.BodyHTML = utils.TextToHTML(out.BodyText)
	}

	if err := d.ledger.CreateOutgoing(ctx, &out); err != nil {
		return out, fmt.Errorf("failed to store outgoing message: %w", err)
	}
	return d.Deliver(ctx, acc, out)
}

// Deliver sends a stored PENDING message and records the outcome on it.
// Ledger writes use a detached context so a finished send is never lost to shutdown.
// A reply interrupted by ctx is left PENDING.
func (d *Dispatcher) Deliver(ctx context.Context, acc *models.MailAccount, out models.OutgoingMessage) (models.OutgoingMessage, error) {
	log := d.logger.With().Str("outgoing_id", out.ID).Str("to", out.ToAddress).Logger()
	from, err := d.sender(acc)
	if err != nil {
		return out, err
	}

	msg := Message{
		From:       from,
		To:         out.ToAddress,
		Subject:    out.Subject,
		TextBody:   out.BodyText,
		HTMLBody:   out.BodyHTML,
		MessageID:  out.MessageID,
		InReplyTo:  out.InReplyTo,
		References: strings.Fields(out.References),
		AutoReply:  out.Provider != "",
		Date:       d.now(),
	}

	messageID, attempts, err := d.deliver(ctx, acc, msg)
	store := context.WithoutCancel(ctx)
	if err != nil {
		code, temporary := classify(err)
		derr := &apperr.DispatchError{Code: code, Temporary: temporary, Attempts: attempts, Err: err}
		if ctx.Err() != nil && out.IncomingMessageID != nil {
			// the reply stays PENDING and is re-sent once its message is reclaimed
			log.Warn().Err(err).Int("attempts", attempts).Msg("Send interrupted")
			return out, derr
		}
		out.SendState = models.SendFailed
		out.SMTPError = derr.Error()
		if merr := d.ledger.MarkOutgoingFailed(store, out.ID, out.SMTPError); merr != nil {
			log.Error().Err(merr).Msg("Failed to record send failure")
		}
		log.Error().Err(err).Int("attempts", attempts).Bool("temporary", temporary).Msg("Send failed")
		return out, derr
	}

	if messageID != "" {
		out.MessageID = messageID
	}
	at := d.now().UTC()
	out.SendState = models.SendSent
	out.SentAt = &at
	if merr := d.ledger.MarkOutgoingSent(store, out.ID, out.MessageID, at); merr != nil {
		log.Error().Err(merr).Msg("Failed to record sent message")
	}
	log.Info().Int("attempts", attempts).Str("message_id", out.MessageID).Msg("Message sent")
	return out, nil
}

// SendBulk sends the same message to every address. Each recipient succeeds
// or fails on its own.
func (d *Dispatcher) SendBulk(ctx context.Context, acc *models.MailAccount, emails []string, subject, html string) models.BulkSendResponse {
	resp := models.BulkSendResponse{Results: make([]models.BulkSendResult, 0, len(emails))}
	for _, email := range emails {
		draft := models.OutgoingDraft{To: email, Subject: subject, BodyHTML: html}
		out, err := d.Send(ctx, acc, draft)
		if err != nil {
			resp.Failed++
			resp.Results = append(resp.Results, models.BulkSendResult{Email: email, Status: "failed", Message: apperr.Describe(err)})
			continue
		}
		resp.Sent++
		resp.Results = append(resp.Results, models.BulkSendResult{Email: email, Status: "sent", Message: out.MessageID})
	}
	resp.Success = resp.Failed == 0
	return resp
}

// deliver retries transient failures with exponential backoff
func (d *Dispatcher) deliver(ctx context.Context, acc *models.MailAccount, msg Message) (string, int, error) {
	send, err := d.prepare(ctx, acc, msg)
	if err != nil {
		return "", 0, err
	}

	delay := d.cfg.Backoff
	for attempt := 1; ; attempt++ {
		messageID, err := send(ctx)
		if err == nil {
			return messageID, attempt, nil
		}
		if _, temporary := classify(err); !temporary || attempt >= d.cfg.MaxAttempts || ctx.Err() != nil {
			return "", attempt, err
		}

		d.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Transient send failure")
		if serr := d.sleep(ctx, delay); serr != nil {
			return "", attempt, err
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

// prepare resolves credentials and renders the message once for all attempts
func (d *Dispatcher) prepare(ctx context.Context, acc *models.MailAccount, msg Message) (func(context.Context) (string, error), error) {
	if acc == nil {
		return func(ctx context.Context) (string, error) {
			return d.system.SendSystem(ctx, msg)
		}, nil
	}

	password, err := d.accounts.SMTPPassword(ctx, acc)
	if err != nil {
		return nil, err
	}
	if acc.SMTPHost == "" || acc.SMTPPort <= 0 {
		return nil, apperr.NewConfigError("smtpHost", "account %s has no SMTP server configured", acc.Email)
	}
	data, err := Compose(msg)
	if err != nil {
		return nil, err
	}

	server := ServerConfig{Host: acc.SMTPHost, Port: acc.SMTPPort, User: acc.SMTPUser, Password: password}
	return func(ctx context.Context) (string, error) {
		return msg.MessageID, d.mailer.Send(ctx, server, msg.From, []string{msg.To}, data)
	}, nil
}

func (d *Dispatcher) sender(acc *models.MailAccount) (string, error) {
	if acc != nil {
		return acc.Email, nil
	}
	if d.system == nil {
		return "", apperr.NewConfigError("accountId", "no mail account given and no system transport configured")
	}
	return d.system.From(), nil
}

// classify returns the protocol code of a send error and whether a retry may help
func classify(err error) (int, bool) {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Code, smtpErr.Code >= 400 && smtpErr.Code < 500
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code, statusErr.Temporary()
	}
	var connErr *apperr.ConnectionError
	if errors.As(err, &connErr) {
		return 0, !connErr.Auth
	}
	if apperr.IsConfig(err) || errors.Is(err, context.Canceled) {
		return 0, false
	}
	return 0, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
