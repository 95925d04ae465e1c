package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msrxse/zero2prod/internal/domain"
	"github.com/msrxse/zero2prod/internal/pkg/distlock"
	"github.com/msrxse/zero2prod/internal/service/subscription"
)

// memOutbox is an in-memory outbox repository.
type memOutbox struct {
	mu       sync.Mutex
	messages map[string]*subscription.OutboxMessage
}

func newMemOutbox() *memOutbox {
	return &memOutbox{messages: make(map[string]*subscription.OutboxMessage)}
}

func (m *memOutbox) Enqueue(_ context.Context, msg *subscription.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	cp.Status = subscription.OutboxPending
	cp.NextAttemptAt = time.Now().UTC()
	m.messages[cp.ID] = &cp
	return nil
}

func (m *memOutbox) DuePending(_ context.Context, limit int) ([]subscription.OutboxMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []subscription.OutboxMessage
	now := time.Now().UTC()
	for _, msg := range m.messages {
		if msg.Status == subscription.OutboxPending && !msg.NextAttemptAt.After(now) {
			out = append(out, *msg)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memOutbox) MarkSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return errors.New("not found")
	}
	msg.Status = subscription.OutboxSent
	return nil
}

func (m *memOutbox) RescheduleFailed(_ context.Context, id, lastErr string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return errors.New("not found")
	}
	msg.Attempts++
	msg.LastError = lastErr
	msg.NextAttemptAt = next
	return nil
}

func (m *memOutbox) MarkDead(_ context.Context, id, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return errors.New("not found")
	}
	msg.Attempts++
	msg.LastError = lastErr
	msg.Status = subscription.OutboxDead
	return nil
}

func (m *memOutbox) get(id string) subscription.OutboxMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.messages[id]
}

// fakeSender records sends and optionally fails them.
type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	failErr error
}

func (f *fakeSender) SendEmail(_ context.Context, recipient domain.SubscriberEmail, subject, htmlBody, textBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.sent = append(f.sent, recipient.String())
	return nil
}

func enqueueTestMessage(t *testing.T, outbox *memOutbox, id string) {
	t.Helper()
	err := outbox.Enqueue(context.Background(), &subscription.OutboxMessage{
		ID:        id,
		Recipient: "ursula_le_guin@gmail.com",
		Subject:   "Welcome to our newsletter!",
		HTMLBody:  "<p>hi</p>",
		TextBody:  "hi",
	})
	require.NoError(t, err)
}

func TestOutboxRelay_DeliversPending(t *testing.T) {
	outbox := newMemOutbox()
	sender := &fakeSender{}
	relay := NewOutboxRelay(outbox, sender, nil, OutboxRelayConfig{MaxAttempts: 3})

	enqueueTestMessage(t, outbox, "id-1")
	relay.drainOnce(context.Background())

	assert.Equal(t, []string{"ursula_le_guin@gmail.com"}, sender.sent)
	assert.Equal(t, subscription.OutboxSent, outbox.get("id-1").Status)
}

func TestOutboxRelay_ReschedulesOnFailure(t *testing.T) {
	outbox := newMemOutbox()
	sender := &fakeSender{failErr: errors.New("provider down")}
	relay := NewOutboxRelay(outbox, sender, nil, OutboxRelayConfig{MaxAttempts: 3})

	enqueueTestMessage(t, outbox, "id-1")
	relay.drainOnce(context.Background())

	m := outbox.get("id-1")
	assert.Equal(t, subscription.OutboxPending, m.Status)
	assert.Equal(t, 1, m.Attempts)
	assert.Equal(t, "provider down", m.LastError)
	assert.True(t, m.NextAttemptAt.After(time.Now()), "next attempt is in the future")
}

func TestOutboxRelay_MarksDeadAfterMaxAttempts(t *testing.T) {
	outbox := newMemOutbox()
	sender := &fakeSender{failErr: errors.New("provider down")}
	relay := NewOutboxRelay(outbox, sender, nil, OutboxRelayConfig{MaxAttempts: 2})

	enqueueTestMessage(t, outbox, "id-1")

	// First failure reschedules; force it due again, second failure kills it.
	relay.drainOnce(context.Background())
	outbox.mu.Lock()
	outbox.messages["id-1"].NextAttemptAt = time.Now().UTC().Add(-time.Second)
	outbox.mu.Unlock()
	relay.drainOnce(context.Background())

	m := outbox.get("id-1")
	assert.Equal(t, subscription.OutboxDead, m.Status)
	assert.Equal(t, 2, m.Attempts)
}

func TestOutboxRelay_DeadOnInvalidRecipient(t *testing.T) {
	outbox := newMemOutbox()
	require.NoError(t, outbox.Enqueue(context.Background(), &subscription.OutboxMessage{
		ID:        "id-bad",
		Recipient: "not-an-email",
	}))

	sender := &fakeSender{}
	relay := NewOutboxRelay(outbox, sender, nil, OutboxRelayConfig{})
	relay.drainOnce(context.Background())

	assert.Empty(t, sender.sent)
	assert.Equal(t, subscription.OutboxDead, outbox.get("id-bad").Status)
}

func TestOutboxRelay_SkipsWhenLockHeld(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()

	// Another instance already holds the relay lock.
	other := distlock.NewRedisLock(client, "outbox-relay", time.Minute)
	held, err := other.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, held)

	outbox := newMemOutbox()
	sender := &fakeSender{}
	lock := distlock.NewRedisLock(client, "outbox-relay", time.Minute)
	relay := NewOutboxRelay(outbox, sender, lock, OutboxRelayConfig{})

	enqueueTestMessage(t, outbox, "id-1")
	relay.drainOnce(ctx)

	assert.Empty(t, sender.sent, "relay must not drain while the lock is held elsewhere")
	assert.Equal(t, subscription.OutboxPending, outbox.get("id-1").Status)

	// Once released, the next drain delivers.
	require.NoError(t, other.Release(ctx))
	relay.drainOnce(ctx)
	assert.Len(t, sender.sent, 1)
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, time.Minute, backoffDelay(1))
	assert.Equal(t, 2*time.Minute, backoffDelay(2))
	assert.Equal(t, 4*time.Minute, backoffDelay(3))
	assert.Equal(t, time.Hour, backoffDelay(20), "delay is capped at one hour")
}
