package authhandler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/httpserver"
)

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.CodeInvalidToken, "invalid token subject"))
		return
	}

	sessions, err := h.tokens.ListSessions(r.Context(), userID)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			SessionID:   sess.SessionID.String(),
			DeviceLabel: sess.DeviceLabel,
			IP:          sess.IP,
			UserAgent:   sess.UserAgent,
			CreatedAt:   sess.CreatedAt,
			LastSeen:    sess.LastSeen,
		})
	}

	httpserver.Respond(w, http.StatusOK, sessionsResponse{Sessions: out})
}

func (h *Handler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.CodeInvalidToken, "invalid token subject"))
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.CodeInvalidInput, "invalid session id"))
		return
	}

	sess, err := h.tokens.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, apierr.New(apierr.CodeInvalidInput, "session not found"))
			return
		}
		httpserver.RespondError(w, err)
		return
	}
	if sess.UserID != userID {
		httpserver.RespondError(w, apierr.New(apierr.CodeUnauthenticated, "session does not belong to caller"))
		return
	}

	if err := h.tokens.Revoke(r.Context(), sessionID); err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, statusResponse{Status: "revoked"})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.CodeInvalidToken, "invalid token subject"))
		return
	}

	currentSessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.CodeInvalidToken, "invalid token session"))
		return
	}

	revoked, err := h.tokens.RevokeAllExcept(r.Context(), userID, currentSessionID)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, revokedCountResponse{RevokedCount: revoked})
}
