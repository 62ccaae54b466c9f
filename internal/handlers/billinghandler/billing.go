package billinghandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/httpserver"
	"github.com/lunahub/hub/pkg/eventstore"
)

func (h *Handler) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	userID, err := h.authenticatedUser(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	result, err := h.billing.CreateIntent(r.Context(), userID, req.PackCode, req.AppSource)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, createIntentResponse{
		IntentID: result.IntentID,
		Status:   string(result.Status),
	})
}

func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	userID, err := h.authenticatedUser(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	result, err := h.billing.ConfirmPayment(r.Context(), userID, req.IntentID, req.PackCode, req.AppSource)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, confirmPaymentResponse{
		PurchaseID:    result.PurchaseID.String(),
		EnergyAdded:   result.EnergyAdded,
		Bonus:         result.Bonus,
		BonusApplied:  result.BonusApplied,
		CurrentEnergy: result.CurrentEnergy,
		EventID:       result.EventID.String(),
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
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
		httpserver.RespondError(w, apierr.New(apierr.CodeUnauthenticated, "cannot read another user's billing history"))
		return
	}

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.CodeInvalidInput, err.Error()))
		return
	}

	// Query returns newest-first; fetch a wide-enough window and filter
	// locally since the event store has no keyset "before cursor" query.
	events, err := h.events.Query(r.Context(), pathUserID, (params.Limit+1)*3, eventstore.TypeEnergyPurchased, nil)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	if params.After != nil {
		filtered := events[:0]
		for _, ev := range events {
			if ev.CreatedAt.Before(params.After.CreatedAt) ||
				(ev.CreatedAt.Equal(params.After.CreatedAt) && ev.EventID.String() < params.After.ID.String()) {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if len(events) > params.Limit+1 {
		events = events[:params.Limit+1]
	}

	page := httpserver.NewCursorPage(events, params.Limit, func(ev eventstore.Event) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: ev.CreatedAt, ID: ev.EventID}
	})

	items := make([]purchaseHistoryItem, 0, len(page.Items))
	for _, ev := range page.Items {
		item := purchaseHistoryItem{EventID: ev.EventID.String(), CreatedAt: ev.CreatedAt}
		if v, ok := ev.EventData["pack_code"].(string); ok {
			item.PackCode = v
		}
		if v, ok := ev.EventData["payment_intent_id"].(string); ok {
			item.PaymentIntentID = v
		}
		if v, ok := ev.EventData["energy_added"].(float64); ok {
			item.EnergyAdded = v
		}
		if v, ok := ev.EventData["bonus_applied"].(bool); ok {
			item.BonusApplied = v
		}
		items = append(items, item)
	}

	httpserver.Respond(w, http.StatusOK, billingHistoryResponse{
		Items:      items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}
