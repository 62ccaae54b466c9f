// Package authhandler exposes the Token Service over HTTP: registration,
// login, refresh rotation, secure-cookie sessions, session management, and
// parent-to-child specialist delegation.
package authhandler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/httpserver"
	"github.com/lunahub/hub/pkg/ratelimit"
	"github.com/lunahub/hub/pkg/token"
	"github.com/lunahub/hub/pkg/user"
)

// Handler wires the user store and token service onto the auth routes.
type Handler struct {
	users        *user.Store
	tokens       *token.Service
	limiter      *ratelimit.Limiter
	cookieName   string
	cookieSecure bool
	logger       *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(users *user.Store, tokens *token.Service, limiter *ratelimit.Limiter, cookieName string, cookieSecure bool, logger *slog.Logger) *Handler {
	return &Handler{
		users:        users,
		tokens:       tokens,
		limiter:      limiter,
		cookieName:   cookieName,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

// Routes returns the auth router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/secure-session", h.handleSecureSession)
	r.Post("/logout-secure", h.handleLogoutSecure)
	r.Get("/me", h.handleMe)
	r.Get("/sessions", h.handleListSessions)
	r.Delete("/sessions/{id}", h.handleRevokeSession)
	r.Post("/logout-all", h.handleLogoutAll)
	r.Post("/luna/delegate-specialist", h.handleDelegateSpecialist)
	r.Post("/luna/validate-specialist", h.handleValidateSpecialist)
	return r
}

// authenticate extracts and validates the bearer/cookie token from r.
func (h *Handler) authenticate(r *http.Request) (token.Claims, error) {
	raw := httpserver.BearerOrCookie(r, h.cookieName)
	if raw == "" {
		return token.Claims{}, apierr.New(apierr.CodeUnauthenticated, "missing access token")
	}
	return h.tokens.ValidateAccess(raw)
}

// checkLimiter applies the named rate-limit scope, mapping a non-allowed
// decision to the corresponding apierr.
func (h *Handler) checkLimiter(r *http.Request, userID uuid.UUID, identifier, scope string) error {
	if h.limiter == nil {
		return nil
	}
	result, err := h.limiter.Check(r.Context(), userID, identifier, scope)
	if err != nil {
		return nil
	}
	switch result.Decision {
	case ratelimit.Allowed:
		return nil
	case ratelimit.Blocked:
		return apierr.New(apierr.CodeBlocked, "too many attempts, temporarily blocked").WithDetails(map[string]any{
			"blocked_until": result.BlockedUntil,
		})
	default:
		return apierr.New(apierr.CodeRateLimited, "rate limit exceeded").WithDetails(map[string]any{
			"scope": result.Scope,
		})
	}
}
