// Package orchestration composes the cross-cutting pipeline that runs
// before and after every metered action: rate limiting, authentication and
// specialist-permission checks, the energy precheck, execution of the
// external action, the energy commit with compensating refund on failure,
// and correlation-id audit threading. It also implements the refund
// pipeline and a thin wrapper around the billing pipeline, grounded on the
// teacher's app.go composition root wiring narrow collaborator interfaces
// rather than concrete store/cache types.
package orchestration

import (
	"context"

	"github.com/google/uuid"

	"github.com/lunahub/hub/pkg/catalog"
	"github.com/lunahub/hub/pkg/energy"
	"github.com/lunahub/hub/pkg/eventstore"
	"github.com/lunahub/hub/pkg/ratelimit"
	"github.com/lunahub/hub/pkg/token"
)

// Limiter is the subset of the Rate Limiter the pipeline drives.
type Limiter interface {
	Check(ctx context.Context, userID uuid.UUID, identifier, scope string) (ratelimit.Result, error)
}

// TokenValidator is the subset of the Token Service the pipeline drives.
type TokenValidator interface {
	ValidateAccess(raw string) (token.Claims, error)
}

// EnergyLedger is the subset of the Energy Ledger the pipeline drives.
type EnergyLedger interface {
	CanPerform(ctx context.Context, userID uuid.UUID, actionName string) (energy.Affordability, error)
	Consume(ctx context.Context, userID uuid.UUID, actionName, appSource string, reqCtx map[string]any) (energy.ConsumeResult, error)
	Refund(ctx context.Context, userID uuid.UUID, amount float64, reason, appSource string, reqCtx map[string]any) (energy.RefundResult, error)
}

// ActionCatalog is the subset of the static action catalog the pipeline
// drives.
type ActionCatalog interface {
	Lookup(name string) (catalog.Action, bool)
}

// PackCatalog is the subset of the static energy pack catalog the pipeline
// drives, used to suggest a pack when a precheck fails for insufficient
// energy.
type PackCatalog interface {
	Lookup(code string) (catalog.EnergyPack, bool)
	All() []catalog.EnergyPack
}

// EventStore is the subset of the event store the pipeline drives.
type EventStore interface {
	Append(ctx context.Context, userID uuid.UUID, eventType, appSource string, eventData, metadata map[string]any) (uuid.UUID, error)
	Get(ctx context.Context, userID, eventID uuid.UUID) (eventstore.Event, error)
	FindByTypeAndField(ctx context.Context, userID uuid.UUID, eventType, key, value string, scanLimit int) (*eventstore.Event, error)
}

// suggestPack returns the cheapest pack covering deficit energy units, or
// ok=false if none does.
func suggestPack(packs PackCatalog, deficit float64) (catalog.EnergyPack, bool) {
	var best catalog.EnergyPack
	found := false
	for _, p := range packs.All() {
		if p.Unlimited {
			continue
		}
		if float64(p.EnergyUnits) < deficit {
			continue
		}
		if !found || p.EnergyUnits < best.EnergyUnits {
			best = p
			found = true
		}
	}
	return best, found
}

// auditContext builds the per-mutation context object recorded alongside
// energy transactions, threading the correlation id through to storage.
func auditContext(requestID, correlationID string) map[string]any {
	return map[string]any{
		"request_id":     requestID,
		"correlation_id": correlationID,
	}
}
