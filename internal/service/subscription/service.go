package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/msrxse/zero2prod/internal/domain"
	"github.com/msrxse/zero2prod/internal/pkg/logger"
)

// Service implements the subscription intake flow: persist the subscriber,
// then send the confirmation email. All methods are safe for concurrent use
// if the underlying repository and sender are.
type Service struct {
	repo   Repository
	sender Sender
	outbox Outbox // nil unless asynchronous redelivery is enabled
}

// NewService creates a subscription service. A failed confirmation send
// fails the whole subscription (the record stays persisted — no rollback).
func NewService(repo Repository, sender Sender) *Service {
	return &Service{repo: repo, sender: sender}
}

// NewServiceWithOutbox creates a subscription service that parks failed
// confirmation sends in the outbox for the relay worker instead of failing
// the request.
func NewServiceWithOutbox(repo Repository, sender Sender, outbox Outbox) *Service {
	return &Service{repo: repo, sender: sender, outbox: outbox}
}

// Subscribe persists the subscriber and dispatches the confirmation email.
// On storage failure no email is attempted. On delivery failure the record
// is kept; the error propagates unless the outbox absorbs the send.
func (s *Service) Subscribe(ctx context.Context, sub domain.NewSubscriber) error {
	if err := s.repo.Insert(ctx, sub); err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}

	subject, htmlBody, textBody := confirmationContent(sub.Name)

	if err := s.sender.SendEmail(ctx, sub.Email, subject, htmlBody, textBody); err != nil {
		if s.outbox != nil {
			qErr := s.enqueueConfirmation(ctx, sub, subject, htmlBody, textBody)
			if qErr == nil {
				logger.Warn("confirmation send failed, deferred to outbox",
					"recipient", sub.Email.String(), "error", err)
				return nil
			}
			logger.Error("outbox enqueue failed after delivery failure",
				"recipient", sub.Email.String(), "error", qErr)
		}
		return fmt.Errorf("send confirmation: %w", err)
	}

	logger.Info("subscriber confirmed email dispatched", "recipient", sub.Email.String())
	return nil
}

func (s *Service) enqueueConfirmation(ctx context.Context, sub domain.NewSubscriber, subject, htmlBody, textBody string) error {
	return s.outbox.Enqueue(ctx, &OutboxMessage{
		ID:        uuid.New().String(),
		Recipient: sub.Email.String(),
		Subject:   subject,
		HTMLBody:  htmlBody,
		TextBody:  textBody,
		Status:    OutboxPending,
	})
}

// confirmationContent builds the fixed confirmation email for a subscriber.
// The name is already validated, so it cannot carry markup characters.
func confirmationContent(name domain.SubscriberName) (subject, htmlBody, textBody string) {
	subject = "Welcome to our newsletter!"
	htmlBody = fmt.Sprintf(
		"<h1>Welcome, %s!</h1><p>Thanks for subscribing to our newsletter. You'll hear from us soon.</p>",
		name.String())
	textBody = fmt.Sprintf(
		"Welcome, %s!\n\nThanks for subscribing to our newsletter. You'll hear from us soon.\n",
		name.String())
	return subject, htmlBody, textBody
}
