package subscription

import (
	"context"
	"time"

	"github.com/msrxse/zero2prod/internal/domain"
)

// Repository defines the data access contract for subscribers.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Insert durably stores one record for a validated subscriber,
	// generating its identifier and timestamp. The write is atomic.
	// Returns ErrDuplicate on a uniqueness violation and an error
	// wrapping ErrUnavailable for any other storage failure.
	Insert(ctx context.Context, sub domain.NewSubscriber) error
}

// Sender delivers one transactional email. The email provider client
// satisfies this interface.
type Sender interface {
	SendEmail(ctx context.Context, recipient domain.SubscriberEmail, subject, htmlBody, textBody string) error
}

// OutboxStatus enumerates the delivery states of an outbox message.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxDead    OutboxStatus = "dead"
)

// OutboxMessage is one confirmation email awaiting asynchronous delivery.
type OutboxMessage struct {
	ID            string
	Recipient     string
	Subject       string
	HTMLBody      string
	TextBody      string
	Status        OutboxStatus
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// Outbox is the enqueue-side contract used by the service when a synchronous
// send fails and redelivery is enabled.
type Outbox interface {
	Enqueue(ctx context.Context, m *OutboxMessage) error
}

// OutboxRepository is the full outbox contract consumed by the relay worker.
type OutboxRepository interface {
	Outbox

	// DuePending returns pending messages whose next attempt is due,
	// oldest first, up to limit.
	DuePending(ctx context.Context, limit int) ([]OutboxMessage, error)

	// MarkSent finalizes a delivered message.
	MarkSent(ctx context.Context, id string) error

	// RescheduleFailed records a failed attempt and the next retry time.
	RescheduleFailed(ctx context.Context, id, lastErr string, nextAttempt time.Time) error

	// MarkDead gives up on a message after exhausting its attempts.
	MarkDead(ctx context.Context, id, lastErr string) error
}
