package energyhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/httpserver"
	"github.com/lunahub/hub/pkg/orchestration"
)

func (h *Handler) authenticatedUser(r *http.Request) (uuid.UUID, error) {
	raw := h.rawToken(r)
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

func (h *Handler) handleCanPerform(w http.ResponseWriter, r *http.Request) {
	var req canPerformRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	userID, err := h.authenticatedUser(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	affordability, err := h.ledger.CanPerform(r.Context(), userID, req.ActionName)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, canPerformResponse{
		CanPerform: affordability.CanPerform,
		Required:   affordability.Required,
		Current:    affordability.Current,
		Deficit:    affordability.Deficit,
		Unlimited:  affordability.Unlimited,
		Plan:       affordability.Plan,
	})
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	raw := h.rawToken(r)
	if raw == "" {
		httpserver.RespondError(w, apierr.New(apierr.CodeUnauthenticated, "missing access token"))
		return
	}

	result, err := h.actions.Perform(r.Context(), orchestration.ActionRequest{
		RawToken:      raw,
		ClientIP:      httpserver.ClientIP(r),
		ActionName:    req.ActionName,
		AppSource:     req.AppSource,
		RequestID:     httpserver.RequestIDFromContext(r.Context()),
		CorrelationID: httpserver.CorrelationIDFromContext(r.Context()),
		Payload:       req.Payload,
	})
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	resp := consumeResponse{
		Consumed:  result.Consume.Consumed,
		Remaining: result.Consume.Remaining,
		Unlimited: result.Consume.Unlimited,
		Degraded:  result.Degraded,
		Anomaly:   result.Anomaly,
	}
	if result.Consume.TransactionID != uuid.Nil {
		resp.TransactionID = result.Consume.TransactionID.String()
	}
	if result.Consume.EventID != uuid.Nil {
		resp.EventID = result.Consume.EventID.String()
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	userID, err := h.authenticatedUser(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	eventID, err := uuid.Parse(req.OriginalEventID)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.CodeInvalidInput, "invalid original_event_id"))
		return
	}

	result, err := h.refunds.Refund(r.Context(), orchestration.RefundRequest{
		UserID:          userID,
		OriginalEventID: eventID,
		AppSource:       req.AppSource,
		RequestID:       httpserver.RequestIDFromContext(r.Context()),
		CorrelationID:   httpserver.CorrelationIDFromContext(r.Context()),
	})
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, refundResponse{
		TransactionID: result.TransactionID.String(),
		Refunded:      result.Refunded,
		NewBalance:    result.NewBalance,
		EventID:       result.EventID.String(),
	})
}

func (h *Handler) handleRefundEligibility(w http.ResponseWriter, r *http.Request) {
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
		httpserver.RespondError(w, apierr.New(apierr.CodeUnauthenticated, "cannot probe another user's events"))
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "event"))
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.CodeInvalidInput, "invalid event id"))
		return
	}

	eligible, reason, err := h.refunds.Eligible(r.Context(), pathUserID, eventID)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, refundEligibilityResponse{Eligible: eligible, Reason: reason})
}
