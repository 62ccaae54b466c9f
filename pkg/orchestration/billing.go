package orchestration

import (
	"context"

	"github.com/google/uuid"

	"github.com/lunahub/hub/pkg/billing"
	"github.com/lunahub/hub/pkg/energy"
)

// BillingPipeline is a thin wrapper around the billing service, giving it
// the same call shape as the action and refund pipelines for handler
// wiring.
type BillingPipeline struct {
	billing *billing.Service
}

// NewBillingPipeline creates a BillingPipeline.
func NewBillingPipeline(svc *billing.Service) *BillingPipeline {
	return &BillingPipeline{billing: svc}
}

// CreateIntent delegates to the billing service.
func (p *BillingPipeline) CreateIntent(ctx context.Context, userID uuid.UUID, packCode, appSource string) (billing.CreateIntentResult, error) {
	return p.billing.CreateIntent(ctx, userID, packCode, appSource)
}

// ConfirmPayment delegates to the billing service.
func (p *BillingPipeline) ConfirmPayment(ctx context.Context, userID uuid.UUID, intentID, packCode, appSource string) (energy.PurchaseResult, error) {
	return p.billing.ConfirmPayment(ctx, userID, intentID, packCode, appSource)
}
