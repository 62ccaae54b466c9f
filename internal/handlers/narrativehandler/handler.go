// Package narrativehandler exposes the event log and the Narrative
// Analyzer over HTTP: appending narrative events and reading computed
// context packets.
package narrativehandler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/httpserver"
	"github.com/lunahub/hub/pkg/eventstore"
	"github.com/lunahub/hub/pkg/narrative"
	"github.com/lunahub/hub/pkg/token"
)

// Handler wires the event store and narrative analyzer onto the narrative
// routes.
type Handler struct {
	events     *eventstore.Store
	analyzer   *narrative.Analyzer
	tokens     *token.Service
	cookieName string
	logger     *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(events *eventstore.Store, analyzer *narrative.Analyzer, tokens *token.Service, cookieName string, logger *slog.Logger) *Handler {
	return &Handler{events: events, analyzer: analyzer, tokens: tokens, cookieName: cookieName, logger: logger}
}

// Routes returns the narrative router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/events", h.handleAppendEvent)
	r.Get("/context/{user}", h.handleContext)
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
