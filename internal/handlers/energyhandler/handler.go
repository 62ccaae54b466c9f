// Package energyhandler exposes the Energy Ledger and the metered-action
// orchestration pipeline over HTTP: affordability prechecks, consume/refund
// commits, and refund eligibility probes.
package energyhandler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lunahub/hub/internal/httpserver"
	"github.com/lunahub/hub/pkg/energy"
	"github.com/lunahub/hub/pkg/orchestration"
	"github.com/lunahub/hub/pkg/token"
)

// Handler wires the energy ledger and orchestration pipelines onto the
// energy routes.
type Handler struct {
	ledger     *energy.Ledger
	tokens     *token.Service
	actions    *orchestration.ActionPipeline
	refunds    *orchestration.RefundPipeline
	cookieName string
	logger     *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(ledger *energy.Ledger, tokens *token.Service, actions *orchestration.ActionPipeline, refunds *orchestration.RefundPipeline, cookieName string, logger *slog.Logger) *Handler {
	return &Handler{
		ledger:     ledger,
		tokens:     tokens,
		actions:    actions,
		refunds:    refunds,
		cookieName: cookieName,
		logger:     logger,
	}
}

// Routes returns the energy router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/can-perform", h.handleCanPerform)
	r.Post("/consume", h.handleConsume)
	r.Post("/refund", h.handleRefund)
	r.Get("/refund-eligibility/{user}/{event}", h.handleRefundEligibility)
	return r
}

func (h *Handler) rawToken(r *http.Request) string {
	return httpserver.BearerOrCookie(r, h.cookieName)
}
