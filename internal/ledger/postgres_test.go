package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpilot/internal/models"
)

func newMockLedger(t *testing.T) (*PostgresLedger, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	l := NewPostgresLedger(sqlx.NewDb(mockDB, "sqlmock"))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	return l, mock
}

var incomingRowColumns = []string{
	"id", "mail_account_id", "from_address", "to_address", "subject", "body_text", "body_html",
	"provider_message_id", "in_reply_to", "message_references", "received_at", "imap_uid", "seen", "has_attachments",
	"auto_submitted", "state", "state_reason", "outgoing_id", "claimed_at", "created_at", "updated_at",
}

func TestPostgresLedger_Insert(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "new message", affected: 1, want: true},
		{name: "duplicate key", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, mock := newMockLedger(t)
			mock.ExpectExec("INSERT INTO incoming_messages .+ ON CONFLICT \\(mail_account_id, provider_message_id\\) DO NOTHING").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			msg := &models.IncomingMessage{MailAccountID: "a1", ProviderMessageID: "<m1@x>"}
			inserted, err := l.Insert(context.Background(), msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, inserted)
			assert.NotEmpty(t, msg.ID)
			assert.Equal(t, models.StateNew, msg.State)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresLedger_ClaimNext(t *testing.T) {
	t.Run("claims with skip locked", func(t *testing.T) {
		l, mock := newMockLedger(t)
		now := l.now()
		rows := sqlmock.NewRows(incomingRowColumns).AddRow(
			"m1", "a1", "c@example.com", "s@acme.test", "Hi", "body", "", "<m1@x>", "", "", now, 7, false, false,
			"", "PROCESSING", "", "", now, now, now)

		mock.ExpectQuery("UPDATE incoming_messages SET state = 'PROCESSING'.+FOR UPDATE SKIP LOCKED.+RETURNING").
			WithArgs("a1", now).
			WillReturnRows(rows)

		msg, err := l.ClaimNext(context.Background(), "a1")
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, "m1", msg.ID)
		assert.Equal(t, models.StateProcessing, msg.State)
		assert.Equal(t, int64(7), msg.IMAPUID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing to claim", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectQuery("UPDATE incoming_messages SET state = 'PROCESSING'").
			WillReturnRows(sqlmock.NewRows(incomingRowColumns))

		msg, err := l.ClaimNext(context.Background(), "a1")
		require.NoError(t, err)
		assert.Nil(t, msg)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresLedger_MarkTransitions(t *testing.T) {
	t.Run("from processing", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectExec("UPDATE incoming_messages\\s+SET state = \\$2.+WHERE id = \\$1 AND state = 'PROCESSING'").
			WithArgs("m1", "REPLIED", "", "out-1", l.now()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, l.MarkReplied(context.Background(), "m1", "out-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong state", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectExec("UPDATE incoming_messages").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT state FROM incoming_messages WHERE id = \\$1").
			WithArgs("m1").
			WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("REPLIED"))

		err := l.MarkFailed(context.Background(), "m1", "boom")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectExec("UPDATE incoming_messages").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT state FROM incoming_messages").
			WillReturnError(sql.ErrNoRows)

		err := l.MarkSkipped(context.Background(), "nope", models.ReasonOwnMessage)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresLedger_RecordAttemptDuplicateSuccess(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectExec("INSERT INTO reply_attempts").
		WillReturnError(&pq.Error{
			Code:       "23505",
			Message:    "duplicate key value violates unique constraint \"uq_reply_attempts_success\"",
			Constraint: "uq_reply_attempts_success",
		})

	err := l.RecordAttempt(context.Background(), &models.ReplyAttempt{IncomingMessageID: "m1", Provider: "openai", Outcome: models.OutcomeSuccess})
	assert.ErrorIs(t, err, ErrDuplicateSuccess)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_RecordAttemptPrimaryKeyClash(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectExec("INSERT INTO reply_attempts").
		WillReturnError(&pq.Error{
			Code:       "23505",
			Message:    "duplicate key value violates unique constraint \"reply_attempts_pkey\"",
			Constraint: "reply_attempts_pkey",
		})

	err := l.RecordAttempt(context.Background(), &models.ReplyAttempt{ID: "att-1", IncomingMessageID: "m1", Provider: "openai", Outcome: models.OutcomeError})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateSuccess)
	assert.Contains(t, err.Error(), "failed to record reply attempt")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_ReclaimStale(t *testing.T) {
	l, mock := newMockLedger(t)
	now := l.now()
	rows := sqlmock.NewRows(incomingRowColumns).AddRow(
		"m1", "a1", "c@example.com", "s@acme.test", "Hi", "body", "", "<m1@x>", "", "", now, 7, false, false,
		"", "NEW", "", "", nil, now, now)

	mock.ExpectQuery("UPDATE incoming_messages SET state = 'NEW'.+WHERE state = 'PROCESSING' AND claimed_at < \\$1").
		WithArgs(now.Add(-10*time.Minute), now).
		WillReturnRows(rows)

	msgs, err := l.ReclaimStale(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.StateNew, msgs[0].State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Retry(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE incoming_messages SET state = 'NEW'.+WHERE id = \\$1 AND state = 'FAILED'").
		WithArgs("m1", l.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outgoing_messages SET send_state = 'PENDING'").
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, l.Retry(context.Background(), "m1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_UsageByProvider(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectQuery("FROM reply_attempts r\\s+JOIN incoming_messages m").
		WithArgs(pq.Array([]string{"a1"})).
		WillReturnRows(sqlmock.NewRows([]string{"provider", "attempts", "successes", "cost", "prompt_tokens", "completion_tokens"}).
			AddRow("openai", 3, 1, 0.0125, 900, 300))

	usage, err := l.UsageByProvider(context.Background(), []string{"a1"})
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 3, usage[0].Attempts)
	assert.InDelta(t, 0.0125, usage[0].Cost, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
