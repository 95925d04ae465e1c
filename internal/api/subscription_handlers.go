package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/msrxse/zero2prod/internal/domain"
	"github.com/msrxse/zero2prod/internal/pkg/httputil"
	"github.com/msrxse/zero2prod/internal/pkg/logger"
)

// SubscriptionService is the intake contract the handlers depend on.
// *subscription.Service satisfies this interface.
type SubscriptionService interface {
	Subscribe(ctx context.Context, sub domain.NewSubscriber) error
}

// Handlers holds the HTTP handlers and their dependencies. The database
// handle is used only by the readiness probe.
type Handlers struct {
	svc SubscriptionService
	db  *sql.DB
}

// NewHandlers creates the API handlers. db may be nil when no readiness
// probe is needed (unit tests).
func NewHandlers(svc SubscriptionService, db *sql.DB) *Handlers {
	return &Handlers{svc: svc, db: db}
}

// Subscribe accepts a form-encoded name/email pair, validates it into
// domain values, and runs the persist-then-notify pipeline.
//
//	POST /subscriptions
//
// Responses: 200 accepted, 400 missing/invalid field, 500 storage or
// delivery failure (generic body, internals only logged).
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, "malformed form data")
		return
	}

	name, err := domain.ParseSubscriberName(r.PostForm.Get("name"))
	if err != nil {
		logger.Debug("subscription rejected", "reason", err.Error())
		httputil.BadRequest(w, err.Error())
		return
	}

	email, err := domain.ParseSubscriberEmail(r.PostForm.Get("email"))
	if err != nil {
		logger.Debug("subscription rejected", "reason", err.Error())
		httputil.BadRequest(w, err.Error())
		return
	}

	sub := domain.NewSubscriber{Name: name, Email: email}
	if err := h.svc.Subscribe(r.Context(), sub); err != nil {
		httputil.InternalError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
