package models

import "time"

// MessageState is the processing state of an incoming message
type MessageState string

const (
	StateNew        MessageState = "NEW"
	StateProcessing MessageState = "PROCESSING"
	StateReplied    MessageState = "REPLIED"
	StateFailed     MessageState = "FAILED"
	StateSkipped    MessageState = "SKIPPED"
)

// Terminal reports whether no further automatic transition leaves s
func (s MessageState) Terminal() bool {
	return s == StateReplied || s == StateFailed || s == StateSkipped
}

// Skip reasons recorded in IncomingMessage.StateReason
const (
	ReasonAutoReplyDisabled = "auto_reply_disabled"
	ReasonOwnMessage        = "own_message"
	ReasonAutoSubmitted     = "auto_submitted"
	ReasonNoReplySender     = "no_reply_sender"
	ReasonNoRecipient       = "no_recipient"
)

// IncomingMessage is one email received on a MailAccount
type IncomingMessage struct {
	ID                string       `db:"id" json:"id"`
	MailAccountID     string       `db:"mail_account_id" json:"mailAccountId"`
	FromAddress       string       `db:"from_address" json:"fromAddress"`
	ToAddress         string       `db:"to_address" json:"toAddress"`
	Subject           string       `db:"subject" json:"subject"`
	BodyText          string       `db:"body_text" json:"bodyText"`
	BodyHTML          string       `db:"body_html" json:"bodyHtml"`
	ProviderMessageID string       `db:"provider_message_id" json:"providerMessageId"`
	InReplyTo         string       `db:"in_reply_to" json:"inReplyTo,omitempty"`
	References        string       `db:"message_references" json:"references,omitempty"`
	ReceivedAt        time.Time    `db:"received_at" json:"receivedAt"`
	IMAPUID           int64        `db:"imap_uid" json:"imapUid"`
	Seen              bool         `db:"seen" json:"seen"`
	HasAttachments    bool         `db:"has_attachments" json:"hasAttachments"`
	AutoSubmitted     string       `db:"auto_submitted" json:"autoSubmitted,omitempty"`
	State             MessageState `db:"state" json:"state"`
	StateReason       string       `db:"state_reason" json:"stateReason,omitempty"`
	OutgoingID        string       `db:"outgoing_id" json:"outgoingId,omitempty"`
	ClaimedAt         *time.Time   `db:"claimed_at" json:"claimedAt,omitempty"`
	CreatedAt         time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updatedAt"`
}

// Outcome classifies one provider call
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeError       Outcome = "error"
)

// ReplyAttempt records a single AI generation call
type ReplyAttempt struct {
	ID                string    `db:"id" json:"id"`
	IncomingMessageID string    `db:"incoming_message_id" json:"incomingMessageId"`
	Provider          string    `db:"provider" json:"provider"`
	Model             string    `db:"model" json:"model"`
	StartedAt         time.Time `db:"started_at" json:"startedAt"`
	FinishedAt        time.Time `db:"finished_at" json:"finishedAt"`
	Outcome           Outcome   `db:"outcome" json:"outcome"`
	CostEstimate      float64   `db:"cost_estimate" json:"costEstimate"`
	PromptTokens      int       `db:"prompt_tokens" json:"promptTokens"`
	CompletionTokens  int       `db:"completion_tokens" json:"completionTokens"`
	ErrorDetail       string    `db:"error_detail" json:"errorDetail,omitempty"`
}

// SendState is the delivery state of an outgoing message
type SendState string

const (
	SendPending SendState = "PENDING"
	SendSent    SendState = "SENT"
	SendFailed  SendState = "FAILED"
)

// OutgoingMessage is a reply or a manual/bulk send.
// IncomingMessageID is nil for sends not tied to an incoming message,
// MailAccountID is empty when the system transport sent it.
type OutgoingMessage struct {
	ID                string     `db:"id" json:"id"`
	IncomingMessageID *string    `db:"incoming_message_id" json:"incomingMessageId,omitempty"`
	MailAccountID     string     `db:"mail_account_id" json:"mailAccountId,omitempty"`
	ToAddress         string     `db:"to_address" json:"toAddress"`
	Subject           string     `db:"subject" json:"subject"`
	BodyText          string     `db:"body_text" json:"bodyText"`
	BodyHTML          string     `db:"body_html" json:"bodyHtml"`
	MessageID         string     `db:"message_id" json:"messageId,omitempty"`
	InReplyTo         string     `db:"in_reply_to" json:"inReplyTo,omitempty"`
	References        string     `db:"message_references" json:"references,omitempty"`
	Provider          string     `db:"provider" json:"provider,omitempty"`
	Model             string     `db:"model" json:"model,omitempty"`
	SendState         SendState  `db:"send_state" json:"sendState"`
	SentAt            *time.Time `db:"sent_at" json:"sentAt,omitempty"`
	SMTPError         string     `db:"smtp_error" json:"smtpError,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
}

// OutgoingDraft is a reply ready for dispatch
type OutgoingDraft struct {
	IncomingMessageID *string
	To                string
	Subject           string
	BodyText          string
	BodyHTML          string
	InReplyTo         string
	References        string
	Provider          string
	Model             string
}

// DraftFromOutgoing rebuilds a draft from a stored PENDING outgoing row
func DraftFromOutgoing(out OutgoingMessage) OutgoingDraft {
	return OutgoingDraft{
		IncomingMessageID: out.IncomingMessageID,
		To:                out.ToAddress,
		Subject:           out.Subject,
		BodyText:          out.BodyText,
		BodyHTML:          out.BodyHTML,
		InReplyTo:         out.InReplyTo,
		References:        out.References,
		Provider:          out.Provider,
		Model:             out.Model,
	}
}

// Contact is a per-counterparty projection over a mailbox's traffic
type Contact struct {
	MailAccountID string    `db:"mail_account_id" json:"mailAccountId"`
	Address       string    `db:"address" json:"email"`
	LastMessageAt time.Time `db:"last_message_at" json:"lastMessageAt"`
	MessageCount  int       `db:"message_count" json:"messageCount"`
	UnreadCount   int       `db:"unread_count" json:"unreadCount"`
}

// ConversationEntry is one message, in either direction, exchanged with a contact
type ConversationEntry struct {
	ID        string    `db:"id" json:"id"`
	Direction string    `db:"direction" json:"direction"` // incoming or outgoing
	Address   string    `db:"address" json:"address"`
	Subject   string    `db:"subject" json:"subject"`
	BodyText  string    `db:"body_text" json:"bodyText"`
	BodyHTML  string    `db:"body_html" json:"bodyHtml"`
	State     string    `db:"state" json:"state"`
	At        time.Time `db:"at" json:"at"`
}

// ProviderUsage aggregates reply attempts for one provider
type ProviderUsage struct {
	Provider         string  `db:"provider" json:"provider"`
	Attempts         int     `db:"attempts" json:"attempts"`
	Successes        int     `db:"successes" json:"successes"`
	Cost             float64 `db:"cost" json:"cost"`
	PromptTokens     int     `db:"prompt_tokens" json:"promptTokens"`
	CompletionTokens int     `db:"completion_tokens" json:"completionTokens"`
}
