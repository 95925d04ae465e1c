// Package email implements the transactional email provider client used to
// deliver subscription confirmations. One SendEmail call is exactly one
// outbound HTTP request; retry policy belongs to the caller.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/msrxse/zero2prod/internal/config"
	"github.com/msrxse/zero2prod/internal/domain"
)

// HTTPDoer is the interface for executing HTTP requests.
// *http.Client satisfies this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DeliveryKind classifies a failed delivery attempt.
type DeliveryKind int

const (
	// DeliveryTimeout means the request did not complete within the
	// configured timeout.
	DeliveryTimeout DeliveryKind = iota
	// DeliveryTransport covers connection failures and non-2xx responses.
	DeliveryTransport
)

// DeliveryError reports why an email could not be delivered. StatusCode is
// zero unless the provider responded with a non-2xx status.
type DeliveryError struct {
	Kind       DeliveryKind
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Kind == DeliveryTimeout:
		return fmt.Sprintf("email delivery timed out: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("email provider returned status %d", e.StatusCode)
	default:
		return fmt.Sprintf("email delivery failed: %v", e.Err)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Client sends transactional email through the provider's HTTP API.
// The sender identity and credential are fixed at construction and the
// client is safe for concurrent use.
type Client struct {
	baseURL    string
	sender     domain.SubscriberEmail
	authToken  string
	httpClient HTTPDoer
}

// NewClient creates a provider client from configuration. The per-request
// timeout is enforced by the underlying http.Client.
func NewClient(cfg config.EmailConfig, sender domain.SubscriberEmail) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		sender:    sender,
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

// sendRequest is the provider's wire format for a single transmission.
type sendRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

// SendEmail delivers one email to recipient. It performs exactly one POST to
// {base_url}/email and never retries; failures are reported as a
// *DeliveryError classified as timeout or transport.
func (c *Client) SendEmail(ctx context.Context, recipient domain.SubscriberEmail, subject, htmlBody, textBody string) error {
	payload := sendRequest{
		From:     c.sender.String(),
		To:       recipient.String(),
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Kind: DeliveryTransport, Err: fmt.Errorf("encoding request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Kind: DeliveryTransport, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &DeliveryError{Kind: DeliveryTimeout, Err: err}
		}
		return &DeliveryError{Kind: DeliveryTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused; the body is not part of
		// the error to avoid leaking provider internals into responses.
		io.Copy(io.Discard, resp.Body)
		return &DeliveryError{
			Kind:       DeliveryTransport,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("provider returned status %d", resp.StatusCode),
		}
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

// isTimeout reports whether err is a client timeout or context deadline,
// as opposed to a connection-level failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
