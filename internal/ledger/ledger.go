// Package ledger is the durable record of incoming and outgoing mail and the
// processing state machine that guarantees at most one successful AI reply per
// incoming message.
//
//	NEW -> PROCESSING -> REPLIED | FAILED | SKIPPED
//	PROCESSING -> NEW            (ReclaimStale)
//	FAILED -> NEW                (operator Retry)
package ledger

import (
	"context"
	"errors"
	"time"

	"mailpilot/internal/models"
)

var (
	// ErrNotFound is returned for unknown message ids
	ErrNotFound = errors.New("message not found")
	// ErrInvalidTransition is returned when a state change is not allowed from the current state
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrDuplicateSuccess is returned when a second successful attempt is recorded for a message
	ErrDuplicateSuccess = errors.New("message already has a successful reply attempt")
)

// Ledger is the only way the engine mutates message state
type Ledger interface {
	// Insert stores msg unless (mailAccountId, providerMessageId) already exists.
	// inserted is false for a duplicate, which is not an error.
	Insert(ctx context.Context, msg *models.IncomingMessage) (inserted bool, err error)
	// ClaimNext moves the account's oldest NEW message to PROCESSING and returns it, or nil when none is left
	ClaimNext(ctx context.Context, accountID string) (*models.IncomingMessage, error)
	Get(ctx context.Context, id string) (*models.IncomingMessage, error)

	RecordAttempt(ctx context.Context, attempt *models.ReplyAttempt) error
	MarkReplied(ctx context.Context, id, outgoingID string) error
	MarkFailed(ctx context.Context, id, reason string) error
	MarkSkipped(ctx context.Context, id, reason string) error
	// ReclaimStale returns PROCESSING messages claimed more than olderThan ago to NEW
	ReclaimStale(ctx context.Context, olderThan time.Duration) ([]models.IncomingMessage, error)
	// Retry moves a FAILED message back to NEW. A failed reply draft is re-armed so it is re-sent, not regenerated.
	Retry(ctx context.Context, id string) error

	CreateOutgoing(ctx context.Context, out *models.OutgoingMessage) error
	MarkOutgoingSent(ctx context.Context, id, messageID string, at time.Time) error
	MarkOutgoingFailed(ctx context.Context, id, reason string) error
	// PendingOutgoing returns the unsent draft for an incoming message, or nil
	PendingOutgoing(ctx context.Context, incomingID string) (*models.OutgoingMessage, error)

	ListInbox(ctx context.Context, accountIDs []string, limit, offset int) ([]models.IncomingMessage, int, error)
	Contacts(ctx context.Context, accountIDs []string) ([]models.Contact, error)
	Conversation(ctx context.Context, accountIDs []string, address string) ([]models.ConversationEntry, error)
	Attempts(ctx context.Context, incomingID string) ([]models.ReplyAttempt, error)
	UsageByProvider(ctx context.Context, accountIDs []string) ([]models.ProviderUsage, error)
}

// Page bounds for ListInbox
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// NormalizePage clamps limit and offset to sane values
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
