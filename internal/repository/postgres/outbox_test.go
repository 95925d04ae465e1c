package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msrxse/zero2prod/internal/service/subscription"
)

func TestOutboxRepo_Enqueue(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec("INSERT INTO email_outbox").
		WithArgs(sqlmock.AnyArg(), "ursula_le_guin@gmail.com", "Welcome to our newsletter!",
			"<p>hi</p>", "hi", subscription.OutboxPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewOutboxRepo(db)
	m := &subscription.OutboxMessage{
		Recipient: "ursula_le_guin@gmail.com",
		Subject:   "Welcome to our newsletter!",
		HTMLBody:  "<p>hi</p>",
		TextBody:  "hi",
	}
	err := repo.Enqueue(context.Background(), m)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID, "enqueue assigns an id when missing")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_DuePending(t *testing.T) {
	db, mock := setupTestDB(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "recipient", "subject", "html_body", "text_body", "status",
		"attempts", "last_error", "next_attempt_at", "created_at",
	}).AddRow("id-1", "a@example.com", "Welcome to our newsletter!", "<p>a</p>", "a",
		"pending", 2, "provider returned status 503", now, now)

	mock.ExpectQuery("SELECT (.+) FROM email_outbox").
		WithArgs(10).
		WillReturnRows(rows)

	repo := NewOutboxRepo(db)
	msgs, err := repo.DuePending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "id-1", msgs[0].ID)
	assert.Equal(t, "a@example.com", msgs[0].Recipient)
	assert.Equal(t, 2, msgs[0].Attempts)
	assert.Equal(t, subscription.OutboxPending, msgs[0].Status)
}

func TestOutboxRepo_MarkSent(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec("UPDATE email_outbox SET status = 'sent'").
		WithArgs("id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewOutboxRepo(db)
	require.NoError(t, repo.MarkSent(context.Background(), "id-1"))
}

func TestOutboxRepo_MarkSent_Missing(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec("UPDATE email_outbox SET status = 'sent'").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewOutboxRepo(db)
	assert.ErrorIs(t, repo.MarkSent(context.Background(), "missing"), sql.ErrNoRows)
}

func TestOutboxRepo_RescheduleFailed(t *testing.T) {
	db, mock := setupTestDB(t)

	next := time.Now().Add(time.Minute)
	mock.ExpectExec("UPDATE email_outbox").
		WithArgs("id-1", "provider returned status 503", next).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewOutboxRepo(db)
	require.NoError(t, repo.RescheduleFailed(context.Background(), "id-1", "provider returned status 503", next))
}

func TestOutboxRepo_MarkDead(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec("UPDATE email_outbox").
		WithArgs("id-1", "gave up").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewOutboxRepo(db)
	require.NoError(t, repo.MarkDead(context.Background(), "id-1", "gave up"))
}
