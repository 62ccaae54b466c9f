package narrativehandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/httpserver"
)

func (h *Handler) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	var req appendEventRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	userID, err := h.authenticatedUser(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	eventID, err := h.events.Append(r.Context(), userID, req.EventType, req.AppSource, req.EventData, req.Metadata)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	if err := h.analyzer.Invalidate(r.Context(), userID); err != nil {
		h.logger.Warn("failed to invalidate narrative cache after event append", "user_id", userID, "error", err)
	}

	httpserver.Respond(w, http.StatusCreated, appendEventResponse{EventID: eventID.String()})
}

func (h *Handler) handleContext(w http.ResponseWriter, r *http.Request) {
	callerID, err := h.authenticatedUser(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	pathUserID, err := uuid.Parse(chi.URLParam(r, "user"))
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.CodeInvalidInput, "invalid user id"))
		return
	}
	if pathUserID != callerID {
		httpserver.RespondError(w, apierr.New(apierr.CodeUnauthenticated, "cannot read another user's narrative context"))
		return
	}

	pkt, err := h.analyzer.Context(r.Context(), pathUserID)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.CodeInternal, "computing narrative context", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, pkt)
}
