package authhandler

import (
	"net/http"
	"time"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/httpserver"
	"github.com/lunahub/hub/pkg/token"
)

func (h *Handler) handleDelegateSpecialist(w http.ResponseWriter, r *http.Request) {
	var req delegateSpecialistRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	raw := httpserver.BearerOrCookie(r, h.cookieName)
	if raw == "" {
		httpserver.RespondError(w, apierr.New(apierr.CodeUnauthenticated, "missing access token"))
		return
	}

	parent, parentJTI, err := h.tokens.ValidateParentToken(raw)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	issued, err := h.tokens.Delegate(r.Context(), parent, parentJTI, req.SpecialistName, req.Permissions,
		time.Duration(req.TTLSeconds)*time.Second,
		token.DelegationContext{TargetModule: req.TargetModule, Reason: req.Reason},
	)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, delegateSpecialistResponse{
		AccessToken: issued.Raw,
		ExpiresAt:   issued.ExpiresAt,
	})
}

func (h *Handler) handleValidateSpecialist(w http.ResponseWriter, r *http.Request) {
	var req validateSpecialistRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	claims, err := h.tokens.ValidateAccess(req.Token)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	if !claims.IsChild() {
		httpserver.RespondError(w, apierr.New(apierr.CodeInvalidToken, "token is not a specialist token"))
		return
	}

	resp := validateSpecialistResponse{
		Valid:          true,
		SpecialistName: claims.SpecialistName,
		Permissions:    claims.SpecialistPermissions,
		ParentJTI:      claims.ParentJTI,
		SessionID:      claims.SessionID,
	}
	if claims.DelegationContext != nil {
		resp.TargetModule = claims.DelegationContext.TargetModule
		resp.Reason = claims.DelegationContext.Reason
	}

	httpserver.Respond(w, http.StatusOK, resp)
}
