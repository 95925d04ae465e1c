package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/msrxse/zero2prod/internal/service/subscription"
)

// OutboxRepo implements subscription.OutboxRepository against PostgreSQL.
type OutboxRepo struct{ db *sql.DB }

// NewOutboxRepo creates a Postgres-backed email outbox.
func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{db: db} }

func (r *OutboxRepo) Enqueue(ctx context.Context, m *subscription.OutboxMessage) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_outbox
			(id, recipient, subject, html_body, text_body, status, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW(), NOW())
	`, m.ID, m.Recipient, m.Subject, m.HTMLBody, m.TextBody, subscription.OutboxPending)
	if err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

func (r *OutboxRepo) DuePending(ctx context.Context, limit int) ([]subscription.OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recipient, subject, html_body, text_body, status, attempts,
		       COALESCE(last_error, ''), next_attempt_at, created_at
		FROM email_outbox
		WHERE status = 'pending' AND next_attempt_at <= NOW()
		ORDER BY next_attempt_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list due outbox messages: %w", err)
	}
	defer rows.Close()

	var out []subscription.OutboxMessage
	for rows.Next() {
		var m subscription.OutboxMessage
		if err := rows.Scan(
			&m.ID, &m.Recipient, &m.Subject, &m.HTMLBody, &m.TextBody, &m.Status,
			&m.Attempts, &m.LastError, &m.NextAttemptAt, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *OutboxRepo) MarkSent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_outbox SET status = 'sent' WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark outbox message sent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *OutboxRepo) RescheduleFailed(ctx context.Context, id, lastErr string, nextAttempt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_outbox
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		WHERE id = $1
	`, id, lastErr, nextAttempt)
	if err != nil {
		return fmt.Errorf("reschedule outbox message: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *OutboxRepo) MarkDead(ctx context.Context, id, lastErr string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_outbox
		SET status = 'dead', attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`, id, lastErr)
	if err != nil {
		return fmt.Errorf("mark outbox message dead: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
