// Package postgres implements the service repository contracts against
// PostgreSQL using lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/msrxse/zero2prod/internal/domain"
	"github.com/msrxse/zero2prod/internal/service/subscription"
)

// SubscriptionRepo implements subscription.Repository against PostgreSQL.
type SubscriptionRepo struct{ db *sql.DB }

// NewSubscriptionRepo creates a Postgres-backed subscriber repository.
func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

// Insert stores one subscriber row. The identifier and UTC timestamp are
// generated here, status starts as pending_confirmation, and the single
// INSERT makes the write atomic.
func (r *SubscriptionRepo) Insert(ctx context.Context, sub domain.NewSubscriber) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, email, name, subscribed_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), sub.Email.String(), sub.Name.String(),
		time.Now().UTC(), domain.SubscriberPending)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return subscription.ErrDuplicate
		}
		return fmt.Errorf("%w: %v", subscription.ErrUnavailable, err)
	}
	return nil
}
