package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailpilot/internal/models"
)

const incomingColumns = `id, mail_account_id, from_address, to_address, subject, body_text, body_html,
	provider_message_id, in_reply_to, message_references, received_at, imap_uid, seen, has_attachments,
	auto_submitted, state, state_reason, outgoing_id, claimed_at, created_at, updated_at`

const outgoingColumns = `id, incoming_message_id, mail_account_id, to_address, subject, body_text, body_html,
	message_id, in_reply_to, message_references, provider, model, send_state, sent_at, smtp_error, created_at`

const attemptColumns = `id, incoming_message_id, provider, model, started_at, finished_at, outcome,
	cost_estimate, prompt_tokens, completion_tokens, error_detail`

// PostgresLedger implements Ledger on PostgreSQL
type PostgresLedger struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresLedger creates a PostgreSQL-backed ledger
func NewPostgresLedger(db *sqlx.DB) *PostgresLedger {
	return &PostgresLedger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Insert stores msg unless it already exists
func (l *PostgresLedger) Insert(ctx context.Context, msg *models.IncomingMessage) (bool, error) {
	prepareIncoming(msg, l.now())

	res, err := l.db.NamedExecContext(ctx, `
		INSERT INTO incoming_messages (`+incomingColumns+`)
		VALUES (:id, :mail_account_id, :from_address, :to_address, :subject, :body_text, :body_html,
			:provider_message_id, :in_reply_to, :message_references, :received_at, :imap_uid, :seen, :has_attachments,
			:auto_submitted, :state, :state_reason, :outgoing_id, :claimed_at, :created_at, :updated_at)
		ON CONFLICT (mail_account_id, provider_message_id) DO NOTHING`, msg)
	if err != nil {
		return false, fmt.Errorf("failed to insert incoming message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// ClaimNext atomically claims the account's oldest NEW message
func (l *PostgresLedger) ClaimNext(ctx context.Context, accountID string) (*models.IncomingMessage, error) {
	var msg models.IncomingMessage
	err := l.db.GetContext(ctx, &msg, `
		UPDATE incoming_messages SET state = 'PROCESSING', claimed_at = $2, updated_at = $2
		WHERE id = (
			SELECT id FROM incoming_messages
			WHERE mail_account_id = $1 AND state = 'NEW'
			ORDER BY received_at, imap_uid, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+incomingColumns, accountID, l.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim message: %w", err)
	}
	return &msg, nil
}

// Get loads an incoming message by id
func (l *PostgresLedger) Get(ctx context.Context, id string) (*models.IncomingMessage, error) {
	var msg models.IncomingMessage
	err := l.db.GetContext(ctx, &msg, `SELECT `+incomingColumns+` FROM incoming_messages WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// RecordAttempt stores one provider call. A second success for the same message is rejected.
func (l *PostgresLedger) RecordAttempt(ctx context.Context, attempt *models.ReplyAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}

	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO reply_attempts (`+attemptColumns+`)
		VALUES (:id, :incoming_message_id, :provider, :model, :started_at, :finished_at, :outcome,
			:cost_estimate, :prompt_tokens, :completion_tokens, :error_detail)`, attempt)
	if isUniqueViolation(err, successIndex) {
		return ErrDuplicateSuccess
	}
	if err != nil {
		return fmt.Errorf("failed to record reply attempt: %w", err)
	}
	return nil
}

// MarkReplied finishes a PROCESSING message with the outgoing reply that answered it
func (l *PostgresLedger) MarkReplied(ctx context.Context, id, outgoingID string) error {
	return l.finish(ctx, id, models.StateReplied, "", outgoingID)
}

// MarkFailed finishes a PROCESSING message as failed
func (l *PostgresLedger) MarkFailed(ctx context.Context, id, reason string) error {
	return l.finish(ctx, id, models.StateFailed, reason, "")
}

// MarkSkipped finishes a PROCESSING message without replying
func (l *PostgresLedger) MarkSkipped(ctx context.Context, id, reason string) error {
	return l.finish(ctx, id, models.StateSkipped, reason, "")
}

func (l *PostgresLedger) finish(ctx context.Context, id string, state models.MessageState, reason, outgoingID string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE incoming_messages
		SET state = $2, state_reason = $3, outgoing_id = $4, claimed_at = NULL, updated_at = $5
		WHERE id = $1 AND state = 'PROCESSING'`,
		id, string(state), reason, outgoingID, l.now())
	if err != nil {
		return fmt.Errorf("failed to mark message %s: %w", strings.ToLower(string(state)), err)
	}
	return l.checkTransition(ctx, res, id)
}

// checkTransition distinguishes a missing row from a row in the wrong state
func (l *PostgresLedger) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	var state string
	err = l.db.GetContext(ctx, &state, `SELECT state FROM incoming_messages WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read message state: %w", err)
	}
	return fmt.Errorf("%w: message %s is %s", ErrInvalidTransition, id, state)
}

// ReclaimStale returns stuck PROCESSING messages to NEW
func (l *PostgresLedger) ReclaimStale(ctx context.Context, olderThan time.Duration) ([]models.IncomingMessage, error) {
	now := l.now()
	var msgs []models.IncomingMessage
	err := l.db.SelectContext(ctx, &msgs, `
		UPDATE incoming_messages SET state = 'NEW', claimed_at = NULL, updated_at = $2
		WHERE state = 'PROCESSING' AND claimed_at < $1
		RETURNING `+incomingColumns, now.Add(-olderThan), now)
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim stale messages: %w", err)
	}
	return msgs, nil
}

// Retry moves a FAILED message back to NEW and re-arms its failed draft
func (l *PostgresLedger) Retry(ctx context.Context, id string) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin retry: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE incoming_messages SET state = 'NEW', state_reason = '', updated_at = $2
		WHERE id = $1 AND state = 'FAILED'`, id, l.now())
	if err != nil {
		return fmt.Errorf("failed to retry message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		_ = tx.Rollback()
		return l.checkTransition(ctx, res, id)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE outgoing_messages SET send_state = 'PENDING', smtp_error = ''
		WHERE id = (
			SELECT id FROM outgoing_messages
			WHERE incoming_message_id = $1 AND send_state = 'FAILED'
			ORDER BY created_at DESC LIMIT 1
		)`, id)
	if err != nil {
		return fmt.Errorf("failed to re-arm reply draft: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit retry: %w", err)
	}
	return nil
}

// CreateOutgoing stores a new outgoing message, PENDING unless a state is set
func (l *PostgresLedger) CreateOutgoing(ctx context.Context, out *models.OutgoingMessage) error {
	prepareOutgoing(out, l.now())

	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO outgoing_messages (`+outgoingColumns+`)
		VALUES (:id, :incoming_message_id, :mail_account_id, :to_address, :subject, :body_text, :body_html,
			:message_id, :in_reply_to, :message_references, :provider, :model, :send_state, :sent_at, :smtp_error, :created_at)`, out)
	if err != nil {
		return fmt.Errorf("failed to create outgoing message: %w", err)
	}
	return nil
}

// MarkOutgoingSent records a delivered message
func (l *PostgresLedger) MarkOutgoingSent(ctx context.Context, id, messageID string, at time.Time) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE outgoing_messages SET send_state = 'SENT', sent_at = $2, message_id = $3, smtp_error = ''
		WHERE id = $1 AND send_state = 'PENDING'`, id, at, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark outgoing sent: %w", err)
	}
	return l.checkOutgoing(ctx, res, id)
}

// MarkOutgoingFailed records a send that exhausted its retries
func (l *PostgresLedger) MarkOutgoingFailed(ctx context.Context, id, reason string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE outgoing_messages SET send_state = 'FAILED', smtp_error = $2
		WHERE id = $1 AND send_state = 'PENDING'`, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark outgoing failed: %w", err)
	}
	return l.checkOutgoing(ctx, res, id)
}

func (l *PostgresLedger) checkOutgoing(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	var state string
	err = l.db.GetContext(ctx, &state, `SELECT send_state FROM outgoing_messages WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read outgoing state: %w", err)
	}
	return fmt.Errorf("%w: outgoing %s is %s", ErrInvalidTransition, id, state)
}

// PendingOutgoing returns the newest unsent draft for an incoming message
func (l *PostgresLedger) PendingOutgoing(ctx context.Context, incomingID string) (*models.OutgoingMessage, error) {
	var out models.OutgoingMessage
	err := l.db.GetContext(ctx, &out, `
		SELECT `+outgoingColumns+` FROM outgoing_messages
		WHERE incoming_message_id = $1 AND send_state = 'PENDING'
		ORDER BY created_at DESC LIMIT 1`, incomingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outgoing: %w", err)
	}
	return &out, nil
}

// ListInbox pages through incoming messages, newest first
func (l *PostgresLedger) ListInbox(ctx context.Context, accountIDs []string, limit, offset int) ([]models.IncomingMessage, int, error) {
	limit, offset = NormalizePage(limit, offset)

	var total int
	if err := l.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM incoming_messages WHERE mail_account_id = ANY($1)`, pq.Array(accountIDs)); err != nil {
		return nil, 0, fmt.Errorf("failed to count inbox: %w", err)
	}

	msgs := []models.IncomingMessage{}
	err := l.db.SelectContext(ctx, &msgs, `
		SELECT `+incomingColumns+` FROM incoming_messages
		WHERE mail_account_id = ANY($1)
		ORDER BY received_at DESC, imap_uid DESC
		LIMIT $2 OFFSET $3`, pq.Array(accountIDs), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list inbox: %w", err)
	}
	return msgs, total, nil
}

// Contacts projects counterparties from both directions of traffic
func (l *PostgresLedger) Contacts(ctx context.Context, accountIDs []string) ([]models.Contact, error) {
	contacts := []models.Contact{}
	err := l.db.SelectContext(ctx, &contacts, `
		SELECT mail_account_id, address, MAX(at) AS last_message_at,
			COUNT(*) AS message_count, SUM(unread) AS unread_count
		FROM (
			SELECT mail_account_id, LOWER(from_address) AS address, received_at AS at,
				CASE WHEN seen THEN 0 ELSE 1 END AS unread
			FROM incoming_messages WHERE mail_account_id = ANY($1) AND from_address <> ''
			UNION ALL
			SELECT mail_account_id, LOWER(to_address), COALESCE(sent_at, created_at), 0
			FROM outgoing_messages WHERE mail_account_id = ANY($1)
		) traffic
		GROUP BY mail_account_id, address
		ORDER BY last_message_at DESC`, pq.Array(accountIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

// Conversation returns every message exchanged with address, oldest first
func (l *PostgresLedger) Conversation(ctx context.Context, accountIDs []string, address string) ([]models.ConversationEntry, error) {
	entries := []models.ConversationEntry{}
	err := l.db.SelectContext(ctx, &entries, `
		SELECT id, 'incoming' AS direction, from_address AS address, subject, body_text, body_html,
			state, received_at AS at
		FROM incoming_messages WHERE mail_account_id = ANY($1) AND LOWER(from_address) = LOWER($2)
		UNION ALL
		SELECT id, 'outgoing', to_address, subject, body_text, body_html,
			send_state, COALESCE(sent_at, created_at)
		FROM outgoing_messages WHERE mail_account_id = ANY($1) AND LOWER(to_address) = LOWER($2)
		ORDER BY at`, pq.Array(accountIDs), address)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return entries, nil
}

// Attempts lists every reply attempt for a message in call order
func (l *PostgresLedger) Attempts(ctx context.Context, incomingID string) ([]models.ReplyAttempt, error) {
	attempts := []models.ReplyAttempt{}
	err := l.db.SelectContext(ctx, &attempts,
		`SELECT `+attemptColumns+` FROM reply_attempts WHERE incoming_message_id = $1 ORDER BY started_at, id`, incomingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

// UsageByProvider sums attempts, successes and cost per provider
func (l *PostgresLedger) UsageByProvider(ctx context.Context, accountIDs []string) ([]models.ProviderUsage, error) {
	usage := []models.ProviderUsage{}
	err := l.db.SelectContext(ctx, &usage, `
		SELECT r.provider,
			COUNT(*) AS attempts,
			COUNT(*) FILTER (WHERE r.outcome = 'success') AS successes,
			COALESCE(SUM(r.cost_estimate), 0) AS cost,
			COALESCE(SUM(r.prompt_tokens), 0) AS prompt_tokens,
			COALESCE(SUM(r.completion_tokens), 0) AS completion_tokens
		FROM reply_attempts r
		JOIN incoming_messages m ON m.id = r.incoming_message_id
		WHERE m.mail_account_id = ANY($1)
		GROUP BY r.provider
		ORDER BY r.provider`, pq.Array(accountIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	return usage, nil
}

// successIndex allows one successful attempt per incoming message
const successIndex = "uq_reply_attempts_success"

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}

func prepareIncoming(msg *models.IncomingMessage, now time.Time) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.State == "" {
		msg.State = models.StateNew
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now
}

func prepareOutgoing(out *models.OutgoingMessage, now time.Time) {
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.SendState == "" {
		out.SendState = models.SendPending
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
}
