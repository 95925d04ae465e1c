// Package worker contains background processes that run alongside the HTTP
// server. The outbox relay redelivers confirmation emails that failed their
// synchronous send.
package worker

import (
	"context"
	"math"
	"time"

	"github.com/msrxse/zero2prod/internal/domain"
	"github.com/msrxse/zero2prod/internal/pkg/logger"
	"github.com/msrxse/zero2prod/internal/service/subscription"
)

// RelayLock guards the outbox so only one relay instance drains it at a
// time. distlock.RedisLock satisfies this interface.
type RelayLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// OutboxRelayConfig tunes the relay loop.
type OutboxRelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// OutboxRelay polls the email outbox and redelivers pending confirmation
// emails with exponential backoff between attempts.
type OutboxRelay struct {
	outbox subscription.OutboxRepository
	sender subscription.Sender
	lock   RelayLock // nil disables cross-instance locking
	cfg    OutboxRelayConfig
}

// NewOutboxRelay creates a relay. lock may be nil for single-instance
// deployments.
func NewOutboxRelay(outbox subscription.OutboxRepository, sender subscription.Sender, lock RelayLock, cfg OutboxRelayConfig) *OutboxRelay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	return &OutboxRelay{outbox: outbox, sender: sender, lock: lock, cfg: cfg}
}

// Run polls until ctx is cancelled. Callers run it in its own goroutine.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	logger.Info("outbox relay started", "poll_interval", r.cfg.PollInterval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			r.drainOnce(ctx)
		}
	}
}

// drainOnce acquires the relay lock (if configured) and processes one batch
// of due messages.
func (r *OutboxRelay) drainOnce(ctx context.Context) {
	if r.lock != nil {
		ok, err := r.lock.Acquire(ctx)
		if err != nil {
			logger.Warn("outbox relay lock error", "error", err)
			return
		}
		if !ok {
			// Another instance holds the outbox.
			return
		}
		defer r.lock.Release(ctx)
	}

	r.processBatch(ctx)
}

func (r *OutboxRelay) processBatch(ctx context.Context) {
	msgs, err := r.outbox.DuePending(ctx, r.cfg.BatchSize)
	if err != nil {
		logger.Error("outbox poll failed", "error", err)
		return
	}

	for _, m := range msgs {
		if ctx.Err() != nil {
			return
		}
		r.deliver(ctx, m)
	}
}

func (r *OutboxRelay) deliver(ctx context.Context, m subscription.OutboxMessage) {
	recipient, err := domain.ParseSubscriberEmail(m.Recipient)
	if err != nil {
		// Can only happen if the row was tampered with; retrying is useless.
		logger.Error("outbox message has invalid recipient", "id", m.ID)
		if err := r.outbox.MarkDead(ctx, m.ID, "invalid recipient"); err != nil {
			logger.Error("outbox mark dead failed", "id", m.ID, "error", err)
		}
		return
	}

	if err := r.sender.SendEmail(ctx, recipient, m.Subject, m.HTMLBody, m.TextBody); err != nil {
		attempts := m.Attempts + 1
		if attempts >= r.cfg.MaxAttempts {
			logger.Error("outbox message exhausted attempts",
				"id", m.ID, "recipient", m.Recipient, "attempts", attempts)
			if derr := r.outbox.MarkDead(ctx, m.ID, err.Error()); derr != nil {
				logger.Error("outbox mark dead failed", "id", m.ID, "error", derr)
			}
			return
		}

		next := time.Now().UTC().Add(backoffDelay(attempts))
		logger.Warn("outbox redelivery failed, rescheduled",
			"id", m.ID, "recipient", m.Recipient, "attempts", attempts, "error", err)
		if rerr := r.outbox.RescheduleFailed(ctx, m.ID, err.Error(), next); rerr != nil {
			logger.Error("outbox reschedule failed", "id", m.ID, "error", rerr)
		}
		return
	}

	if err := r.outbox.MarkSent(ctx, m.ID); err != nil {
		logger.Error("outbox mark sent failed", "id", m.ID, "error", err)
		return
	}
	logger.Info("outbox message delivered", "id", m.ID, "recipient", m.Recipient)
}

// backoffDelay returns the wait before the next attempt: 1m, 2m, 4m, ...
// capped at one hour.
func backoffDelay(attempts int) time.Duration {
	delay := time.Duration(float64(time.Minute) * math.Pow(2, float64(attempts-1)))
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}
