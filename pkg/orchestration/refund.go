package orchestration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/telemetry"
	"github.com/lunahub/hub/pkg/catalog"
	"github.com/lunahub/hub/pkg/energy"
	"github.com/lunahub/hub/pkg/eventstore"
)

// refundEligibilityWindow bounds how old an action can be and still qualify
// for a refund.
const refundEligibilityWindow = 7 * 24 * time.Hour

// refundScanLimit bounds the idempotency scan over prior EnergyRefunded
// events.
const refundScanLimit = 200

// RefundPipeline implements the refund endpoint: ownership, age, and
// free-action eligibility checks, idempotency by cross-event lookup, and
// the credit itself.
type RefundPipeline struct {
	energy  EnergyLedger
	actions ActionCatalog
	events  EventStore
	logger  *slog.Logger
}

// NewRefundPipeline creates a RefundPipeline.
func NewRefundPipeline(ledger EnergyLedger, actions ActionCatalog, events EventStore, logger *slog.Logger) *RefundPipeline {
	return &RefundPipeline{energy: ledger, actions: actions, events: events, logger: logger}
}

// RefundRequest identifies the original action event to refund.
type RefundRequest struct {
	UserID          uuid.UUID
	OriginalEventID uuid.UUID
	AppSource       string
	RequestID       string
	CorrelationID   string
}

// eligibility resolves the original event and action, and checks
// ownership/age/free-action/idempotency, shared by Refund and Eligible.
func (p *RefundPipeline) eligibility(ctx context.Context, userID, originalEventID uuid.UUID) (eventstore.Event, catalog.Action, *apierr.Error) {
	original, err := p.events.Get(ctx, userID, originalEventID)
	if err != nil {
		if apiErr, ok := apierr.As(err); ok {
			return eventstore.Event{}, catalog.Action{}, apiErr
		}
		return eventstore.Event{}, catalog.Action{}, apierr.Wrap(apierr.CodeInternal, "fetching original event", err)
	}
	if original.EventType != eventstore.TypeEnergyActionPerformed {
		return eventstore.Event{}, catalog.Action{}, apierr.New(apierr.CodeRefundNotEligible, "referenced event is not an energy action")
	}
	if original.UserID != userID {
		return eventstore.Event{}, catalog.Action{}, apierr.New(apierr.CodeUnauthenticated, "event does not belong to this user")
	}
	if time.Since(original.CreatedAt) > refundEligibilityWindow {
		return eventstore.Event{}, catalog.Action{}, apierr.New(apierr.CodeRefundNotEligible, "action is older than the refund eligibility window")
	}

	actionName, _ := original.EventData["action_name"].(string)
	action, ok := p.actions.Lookup(actionName)
	if !ok {
		return eventstore.Event{}, catalog.Action{}, apierr.Newf(apierr.CodeUnknownAction, "unknown action %q", actionName)
	}
	if action.IsFree() {
		return eventstore.Event{}, catalog.Action{}, apierr.New(apierr.CodeRefundNotEligible, "free actions are not refundable")
	}

	existing, err := p.events.FindByTypeAndField(ctx, userID, eventstore.TypeEnergyRefunded, "original_action_event_id", originalEventID.String(), refundScanLimit)
	if err != nil {
		return eventstore.Event{}, catalog.Action{}, apierr.Wrap(apierr.CodeInternal, "checking refund idempotency", err)
	}
	if existing != nil {
		return eventstore.Event{}, catalog.Action{}, apierr.New(apierr.CodeAlreadyRefunded, "this action has already been refunded")
	}

	return original, action, nil
}

// Refund validates eligibility and credits energy back for a prior
// EnergyActionPerformed event.
func (p *RefundPipeline) Refund(ctx context.Context, req RefundRequest) (energy.RefundResult, error) {
	original, action, apiErr := p.eligibility(ctx, req.UserID, req.OriginalEventID)
	if apiErr != nil {
		telemetry.ActionPipelineTotal.WithLabelValues("refund", string(apiErr.Code)).Inc()
		return energy.RefundResult{}, apiErr
	}
	actionName, _ := original.EventData["action_name"].(string)

	cost := float64(action.EnergyCost)
	reqCtx := auditContext(req.RequestID, req.CorrelationID)
	result, err := p.energy.Refund(ctx, req.UserID, cost, "refund:"+actionName, req.AppSource, reqCtx)
	if err != nil {
		return energy.RefundResult{}, err
	}

	if _, err := p.events.Append(ctx, req.UserID, eventstore.TypeEnergyRefunded, req.AppSource, map[string]any{
		"original_action_event_id": req.OriginalEventID.String(),
		"action_name":              actionName,
		"amount":                   cost,
		"transaction_id":           result.TransactionID.String(),
	}, nil); err != nil {
		p.logger.Error("failed to record refund audit event", "user_id", req.UserID, "original_event_id", req.OriginalEventID, "error", err)
	}

	telemetry.ActionPipelineTotal.WithLabelValues("refund", "succeeded").Inc()
	return result, nil
}

// Eligible reports whether the original action event would currently pass
// the refund pipeline's ownership/age/free-action/idempotency checks,
// without performing the credit. Used by the eligibility-probe endpoint.
func (p *RefundPipeline) Eligible(ctx context.Context, userID, originalEventID uuid.UUID) (bool, string, error) {
	_, _, apiErr := p.eligibility(ctx, userID, originalEventID)
	if apiErr == nil {
		return true, "", nil
	}
	if apiErr.Code == apierr.CodeInternal {
		return false, "", apiErr
	}
	return false, apiErr.Message, nil
}
