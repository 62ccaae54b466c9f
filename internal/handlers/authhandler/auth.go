package authhandler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/httpserver"
	"github.com/lunahub/hub/pkg/token"
)

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	if err := h.checkLimiter(r, uuid.Nil, httpserver.ClientIP(r), "auth_register"); err != nil {
		httpserver.RespondError(w, err)
		return
	}

	hash, err := token.HashPassword(req.Password)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.CodeInternal, "hashing password", err))
		return
	}

	u, err := h.users.Create(ctx, req.Email, hash)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	result, err := h.tokens.Login(ctx, u.ID, "", httpserver.ClientIP(r), r.UserAgent(), token.LunaContext{}, nil)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, authResponse{
		AccessToken:  result.AccessToken.Raw,
		RefreshToken: result.RefreshToken,
		SessionID:    result.SessionID.String(),
		ExpiresAt:    result.AccessToken.ExpiresAt,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	if err := h.checkLimiter(r, uuid.Nil, req.Email, "auth_login"); err != nil {
		httpserver.RespondError(w, err)
		return
	}

	u, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	if err := token.VerifyPassword(u.PasswordHash, req.Password); err != nil {
		httpserver.RespondError(w, apierr.New(apierr.CodeUnauthenticated, "invalid email or password"))
		return
	}

	result, err := h.tokens.Login(ctx, u.ID, req.DeviceLabel, httpserver.ClientIP(r), r.UserAgent(), token.LunaContext{}, nil)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, authResponse{
		AccessToken:  result.AccessToken.Raw,
		RefreshToken: result.RefreshToken,
		SessionID:    result.SessionID.String(),
		ExpiresAt:    result.AccessToken.ExpiresAt,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.checkLimiter(r, uuid.Nil, httpserver.ClientIP(r), "token_refresh"); err != nil {
		httpserver.RespondError(w, err)
		return
	}

	result, err := h.tokens.Refresh(r.Context(), req.RefreshToken, token.LunaContext{}, nil)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, authResponse{
		AccessToken:  result.AccessToken.Raw,
		RefreshToken: result.RefreshToken,
		SessionID:    result.SessionID.String(),
		ExpiresAt:    result.AccessToken.ExpiresAt,
	})
}

func (h *Handler) handleSecureSession(w http.ResponseWriter, r *http.Request) {
	raw := httpserver.BearerOrCookie(r, h.cookieName)
	if raw == "" {
		httpserver.RespondError(w, apierr.New(apierr.CodeUnauthenticated, "missing access token"))
		return
	}
	if _, err := h.tokens.ValidateAccess(raw); err != nil {
		httpserver.RespondError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    raw,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httpserver.Respond(w, http.StatusOK, statusResponse{Status: "session cookie set"})
}

func (h *Handler) handleLogoutSecure(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	httpserver.Respond(w, http.StatusOK, statusResponse{Status: "session cookie cleared"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
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

	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, meResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	})
}
