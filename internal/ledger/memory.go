package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mailpilot/internal/models"
)

// MemoryLedger implements Ledger in process. Claims are serialized by a
// single mutex, which gives the same no-double-claim guarantee as SKIP LOCKED.
type MemoryLedger struct {
	mu       sync.Mutex
	incoming map[string]*models.IncomingMessage
	byKey    map[string]string // mailAccountId|providerMessageId -> id
	attempts []models.ReplyAttempt
	outgoing map[string]*models.OutgoingMessage
	now      func() time.Time
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		incoming: make(map[string]*models.IncomingMessage),
		byKey:    make(map[string]string),
		outgoing: make(map[string]*models.OutgoingMessage),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func dedupKey(accountID, providerMessageID string) string {
	return accountID + "|" + providerMessageID
}

// Insert stores msg unless it already exists
func (l *MemoryLedger) Insert(_ context.Context, msg *models.IncomingMessage) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := dedupKey(msg.MailAccountID, msg.ProviderMessageID)
	if _, exists := l.byKey[key]; exists {
		return false, nil
	}

	prepareIncoming(msg, l.now())
	stored := *msg
	l.incoming[stored.ID] = &stored
	l.byKey[key] = stored.ID
	return true, nil
}

// ClaimNext claims the account's oldest NEW message
func (l *MemoryLedger) ClaimNext(_ context.Context, accountID string) (*models.IncomingMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var oldest *models.IncomingMessage
	for _, m := range l.incoming {
		if m.MailAccountID != accountID || m.State != models.StateNew {
			continue
		}
		if oldest == nil || older(m, oldest) {
			oldest = m
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := l.now()
	oldest.State = models.StateProcessing
	oldest.ClaimedAt = &now
	oldest.UpdatedAt = now

	out := *oldest
	return &out, nil
}

func older(a, b *models.IncomingMessage) bool {
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	if a.IMAPUID != b.IMAPUID {
		return a.IMAPUID < b.IMAPUID
	}
	return a.ID < b.ID
}

// Get loads an incoming message by id
func (l *MemoryLedger) Get(_ context.Context, id string) (*models.IncomingMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.incoming[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *m
	return &out, nil
}

// RecordAttempt stores one provider call. A second success for the same message is rejected.
func (l *MemoryLedger) RecordAttempt(_ context.Context, attempt *models.ReplyAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if attempt.Outcome == models.OutcomeSuccess {
		for _, a := range l.attempts {
			if a.IncomingMessageID == attempt.IncomingMessageID && a.Outcome == models.OutcomeSuccess {
				return ErrDuplicateSuccess
			}
		}
	}
	if attempt.ID == "" {
		attempt.ID = fmt.Sprintf("att-%d", len(l.attempts)+1)
	}
	l.attempts = append(l.attempts, *attempt)
	return nil
}

// MarkReplied finishes a PROCESSING message with the outgoing reply that answered it
func (l *MemoryLedger) MarkReplied(_ context.Context, id, outgoingID string) error {
	return l.finish(id, models.StateReplied, "", outgoingID)
}

// MarkFailed finishes a PROCESSING message as failed
func (l *MemoryLedger) MarkFailed(_ context.Context, id, reason string) error {
	return l.finish(id, models.StateFailed, reason, "")
}

// MarkSkipped finishes a PROCESSING message without replying
func (l *MemoryLedger) MarkSkipped(_ context.Context, id, reason string) error {
	return l.finish(id, models.StateSkipped, reason, "")
}

func (l *MemoryLedger) finish(id string, state models.MessageState, reason, outgoingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.incoming[id]
	if !ok {
		return ErrNotFound
	}
	if m.State != models.StateProcessing {
		return fmt.Errorf("%w: message %s is %s", ErrInvalidTransition, id, m.State)
	}

	m.State = state
	m.StateReason = reason
	m.OutgoingID = outgoingID
	m.ClaimedAt = nil
	m.UpdatedAt = l.now()
	return nil
}

// ReclaimStale returns stuck PROCESSING messages to NEW
func (l *MemoryLedger) ReclaimStale(_ context.Context, olderThan time.Duration) ([]models.IncomingMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-olderThan)
	var out []models.IncomingMessage
	for _, m := range l.incoming {
		if m.State != models.StateProcessing || m.ClaimedAt == nil || !m.ClaimedAt.Before(cutoff) {
			continue
		}
		m.State = models.StateNew
		m.ClaimedAt = nil
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

// Retry moves a FAILED message back to NEW and re-arms its failed draft
func (l *MemoryLedger) Retry(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.incoming[id]
	if !ok {
		return ErrNotFound
	}
	if m.State != models.StateFailed {
		return fmt.Errorf("%w: message %s is %s", ErrInvalidTransition, id, m.State)
	}
	m.State = models.StateNew
	m.StateReason = ""
	m.UpdatedAt = l.now()

	var latest *models.OutgoingMessage
	for _, o := range l.outgoing {
		if o.IncomingMessageID == nil || *o.IncomingMessageID != id || o.SendState != models.SendFailed {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest != nil {
		latest.SendState = models.SendPending
		latest.SMTPError = ""
	}
	return nil
}

// CreateOutgoing stores a new outgoing message
func (l *MemoryLedger) CreateOutgoing(_ context.Context, out *models.OutgoingMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prepareOutgoing(out, l.now())
	stored := *out
	l.outgoing[stored.ID] = &stored
	return nil
}

// MarkOutgoingSent records a delivered message
func (l *MemoryLedger) MarkOutgoingSent(_ context.Context, id, messageID string, at time.Time) error {
	return l.finishOutgoing(id, func(o *models.OutgoingMessage) {
		o.SendState = models.SendSent
		o.SentAt = &at
		o.MessageID = messageID
		o.SMTPError = ""
	})
}

// MarkOutgoingFailed records a send that exhausted its retries
func (l *MemoryLedger) MarkOutgoingFailed(_ context.Context, id, reason string) error {
	return l.finishOutgoing(id, func(o *models.OutgoingMessage) {
		o.SendState = models.SendFailed
		o.SMTPError = reason
	})
}

func (l *MemoryLedger) finishOutgoing(id string, fn func(o *models.OutgoingMessage)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.outgoing[id]
	if !ok {
		return ErrNotFound
	}
	if o.SendState != models.SendPending {
		return fmt.Errorf("%w: outgoing %s is %s", ErrInvalidTransition, id, o.SendState)
	}
	fn(o)
	return nil
}

// PendingOutgoing returns the newest unsent draft for an incoming message
func (l *MemoryLedger) PendingOutgoing(_ context.Context, incomingID string) (*models.OutgoingMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var latest *models.OutgoingMessage
	for _, o := range l.outgoing {
		if o.IncomingMessageID == nil || *o.IncomingMessageID != incomingID || o.SendState != models.SendPending {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

// Outgoing returns every outgoing message, oldest first
func (l *MemoryLedger) Outgoing() []models.OutgoingMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.OutgoingMessage, 0, len(l.outgoing))
	for _, o := range l.outgoing {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListInbox pages through incoming messages, newest first
func (l *MemoryLedger) ListInbox(_ context.Context, accountIDs []string, limit, offset int) ([]models.IncomingMessage, int, error) {
	limit, offset = NormalizePage(limit, offset)
	allowed := toSet(accountIDs)

	l.mu.Lock()
	var all []models.IncomingMessage
	for _, m := range l.incoming {
		if allowed[m.MailAccountID] {
			all = append(all, *m)
		}
	}
	l.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return older(&all[j], &all[i]) })

	total := len(all)
	if offset >= total {
		return []models.IncomingMessage{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// Contacts projects counterparties from both directions of traffic
func (l *MemoryLedger) Contacts(_ context.Context, accountIDs []string) ([]models.Contact, error) {
	allowed := toSet(accountIDs)
	byKey := make(map[string]*models.Contact)

	touch := func(accountID, address string, at time.Time, unread bool) {
		address = strings.ToLower(address)
		key := accountID + "|" + address
		c, ok := byKey[key]
		if !ok {
			c = &models.Contact{MailAccountID: accountID, Address: address}
			byKey[key] = c
		}
		c.MessageCount++
		if unread {
			c.UnreadCount++
		}
		if at.After(c.LastMessageAt) {
			c.LastMessageAt = at
		}
	}

	l.mu.Lock()
	for _, m := range l.incoming {
		if allowed[m.MailAccountID] && m.FromAddress != "" {
			touch(m.MailAccountID, m.FromAddress, m.ReceivedAt, !m.Seen)
		}
	}
	for _, o := range l.outgoing {
		if allowed[o.MailAccountID] {
			touch(o.MailAccountID, o.ToAddress, sentOrCreated(o), false)
		}
	}
	l.mu.Unlock()

	contacts := make([]models.Contact, 0, len(byKey))
	for _, c := range byKey {
		contacts = append(contacts, *c)
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].LastMessageAt.After(contacts[j].LastMessageAt) })
	return contacts, nil
}

// Conversation returns every message exchanged with address, oldest first
func (l *MemoryLedger) Conversation(_ context.Context, accountIDs []string, address string) ([]models.ConversationEntry, error) {
	allowed := toSet(accountIDs)
	entries := []models.ConversationEntry{}

	l.mu.Lock()
	for _, m := range l.incoming {
		if allowed[m.MailAccountID] && strings.EqualFold(m.FromAddress, address) {
			entries = append(entries, models.ConversationEntry{
				ID: m.ID, Direction: "incoming", Address: m.FromAddress, Subject: m.Subject,
				BodyText: m.BodyText, BodyHTML: m.BodyHTML, State: string(m.State), At: m.ReceivedAt,
			})
		}
	}
	for _, o := range l.outgoing {
		if allowed[o.MailAccountID] && strings.EqualFold(o.ToAddress, address) {
			entries = append(entries, models.ConversationEntry{
				ID: o.ID, Direction: "outgoing", Address: o.ToAddress, Subject: o.Subject,
				BodyText: o.BodyText, BodyHTML: o.BodyHTML, State: string(o.SendState), At: sentOrCreated(o),
			})
		}
	}
	l.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries, nil
}

// Attempts lists every reply attempt for a message in call order
func (l *MemoryLedger) Attempts(_ context.Context, incomingID string) ([]models.ReplyAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []models.ReplyAttempt{}
	for _, a := range l.attempts {
		if a.IncomingMessageID == incomingID {
			out = append(out, a)
		}
	}
	return out, nil
}

// UsageByProvider sums attempts, successes and cost per provider
func (l *MemoryLedger) UsageByProvider(_ context.Context, accountIDs []string) ([]models.ProviderUsage, error) {
	allowed := toSet(accountIDs)

	l.mu.Lock()
	byProvider := make(map[string]*models.ProviderUsage)
	for _, a := range l.attempts {
		m, ok := l.incoming[a.IncomingMessageID]
		if !ok || !allowed[m.MailAccountID] {
			continue
		}
		u, ok := byProvider[a.Provider]
		if !ok {
			u = &models.ProviderUsage{Provider: a.Provider}
			byProvider[a.Provider] = u
		}
		u.Attempts++
		if a.Outcome == models.OutcomeSuccess {
			u.Successes++
		}
		u.Cost += a.CostEstimate
		u.PromptTokens += a.PromptTokens
		u.CompletionTokens += a.CompletionTokens
	}
	l.mu.Unlock()

	usage := make([]models.ProviderUsage, 0, len(byProvider))
	for _, u := range byProvider {
		usage = append(usage, *u)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].Provider < usage[j].Provider })
	return usage, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sentOrCreated(o *models.OutgoingMessage) time.Time {
	if o.SentAt != nil {
		return *o.SentAt
	}
	return o.CreatedAt
}
