// Package billinghandler exposes the billing pipeline over HTTP: intent
// creation, payment confirmation, and purchase history.
package billinghandler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/httpserver"
	"github.com/lunahub/hub/pkg/eventstore"
	"github.com/lunahub/hub/pkg/orchestration"
	"github.com/lunahub/hub/pkg/token"
)

// Handler wires the billing pipeline and event store onto the billing
// routes.
type Handler struct {
	billing    *orchestration.BillingPipeline
	events     *eventstore.Store
	tokens     *token.Service
	cookieName string
	logger     *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(billing *orchestration.BillingPipeline, events *eventstore.Store, tokens *token.Service, cookieName string, logger *slog.Logger) *Handler {
	return &Handler{billing: billing, events: events, tokens: tokens, cookieName: cookieName, logger: logger}
}

// Routes returns the billing router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/create-intent", h.handleCreateIntent)
	r.Post("/confirm-payment", h.handleConfirmPayment)
	r.Get("/history/{user}", h.handleHistory)
	return r
}

func (h *Handler) authenticatedUser(r *http.Request) (uuid.UUID, error) {
	raw := httpserver.BearerOrCookie(r, h.cookieName)
	if raw == "" {
		return uuid.Nil, apierr.New(apierr.CodeUnauthenticated, "missing access token")
	}
	claims, err := h.tokens.ValidateAccess(raw)
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, apierr.New(apierr.CodeInvalidToken, "invalid token subject")
	}
	return userID, nil
}
