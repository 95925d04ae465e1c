package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rivo/uniseg"
)

// SubscriberStatus enumerates the states a subscriber can be in.
type SubscriberStatus string

const (
	SubscriberPending   SubscriberStatus = "pending_confirmation"
	SubscriberConfirmed SubscriberStatus = "confirmed"
)

// ValidationError reports why a raw input was rejected by a domain
// constructor. It maps to HTTP 400 at the API boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// maxNameGraphemes caps subscriber names at 256 user-perceived characters.
const maxNameGraphemes = 256

// forbiddenNameChars would let a name break out of SQL string context or
// inject HTML if it ever reached one unescaped.
const forbiddenNameChars = `/()"<>\{}`

// SubscriberName is a validated subscriber display name. The zero value is
// not valid; use ParseSubscriberName.
type SubscriberName struct {
	value string
}

// ParseSubscriberName validates raw into a SubscriberName. The input is
// trimmed; it must be non-empty, at most 256 grapheme clusters, and contain
// none of / ( ) " < > \ { }.
func ParseSubscriberName(raw string) (SubscriberName, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SubscriberName{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if uniseg.GraphemeClusterCount(trimmed) > maxNameGraphemes {
		return SubscriberName{}, &ValidationError{
			Field:  "name",
			Reason: fmt.Sprintf("must not exceed %d characters", maxNameGraphemes),
		}
	}
	if strings.ContainsAny(trimmed, forbiddenNameChars) {
		return SubscriberName{}, &ValidationError{Field: "name", Reason: "contains a forbidden character"}
	}
	return SubscriberName{value: trimmed}, nil
}

// String returns the validated name text.
func (n SubscriberName) String() string { return n.value }

// SubscriberEmail is a validated email address. The zero value is not valid;
// use ParseSubscriberEmail.
type SubscriberEmail struct {
	value string
}

// ParseSubscriberEmail validates raw into a SubscriberEmail. The address must
// be a bare local@domain form with non-empty local part and domain.
func ParseSubscriberEmail(raw string) (SubscriberEmail, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SubscriberEmail{}, &ValidationError{Field: "email", Reason: "must not be empty"}
	}

	at := strings.LastIndex(trimmed, "@")
	if at <= 0 || at == len(trimmed)-1 {
		return SubscriberEmail{}, &ValidationError{Field: "email", Reason: "must be of the form local@domain"}
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		// addr.Address differs when the input carried a display name or
		// angle brackets; only bare addresses are accepted.
		return SubscriberEmail{}, &ValidationError{Field: "email", Reason: "is not a valid email address"}
	}

	return SubscriberEmail{value: trimmed}, nil
}

// String returns the validated address text.
func (e SubscriberEmail) String() string { return e.value }

// NewSubscriber pairs the validated inputs of one subscription request.
// It exists only for the duration of that request.
type NewSubscriber struct {
	Name  SubscriberName
	Email SubscriberEmail
}

// Subscriber is the persisted subscription record. The intake core writes it
// exactly once and never reads it back.
type Subscriber struct {
	ID           string           `json:"id" db:"id"`
	Email        string           `json:"email" db:"email"`
	Name         string           `json:"name" db:"name"`
	SubscribedAt time.Time        `json:"subscribed_at" db:"subscribed_at"`
	Status       SubscriberStatus `json:"status" db:"status"`
}
