package energy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/cacheadapter"
	"github.com/lunahub/hub/internal/telemetry"
	"github.com/lunahub/hub/pkg/catalog"
	"github.com/lunahub/hub/pkg/eventstore"
)

const balanceCacheTTL = 5 * time.Minute

// Ledger is the Energy Ledger: the sole mutator of UserEnergy rows,
// gating actions by cost and keeping the durable transaction log and the
// event log in lockstep.
type Ledger struct {
	store          *Store
	events         *eventstore.Store
	cache          cacheadapter.Adapter
	actions        *catalog.ActionCatalog
	packs          *catalog.PackCatalog
	logger         *slog.Logger
	startingEnergy float64
	unlimitedReset float64
}

// New creates a Ledger.
func New(store *Store, events *eventstore.Store, cache cacheadapter.Adapter, actions *catalog.ActionCatalog, packs *catalog.PackCatalog, startingEnergy, unlimitedReset float64, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:          store,
		events:         events,
		cache:          cache,
		actions:        actions,
		packs:          packs,
		logger:         logger,
		startingEnergy: startingEnergy,
		unlimitedReset: unlimitedReset,
	}
}

func balanceCacheKey(userID uuid.UUID) string {
	return "energy:balance:" + userID.String()
}

// CheckBalance reads through the cache then the durable store, lazily
// provisioning a new UserEnergy row if absent.
func (l *Ledger) CheckBalance(ctx context.Context, userID uuid.UUID) (BalanceSnapshot, error) {
	u, err := l.loadBalance(ctx, userID)
	if err != nil {
		return BalanceSnapshot{}, err
	}
	return BalanceSnapshot{
		Current:         u.CurrentEnergy,
		Max:             u.MaxEnergy,
		Percentage:      u.Percentage(),
		CanPerformBasic: u.IsUnlimited() || u.CurrentEnergy > 0,
	}, nil
}

func (l *Ledger) loadBalance(ctx context.Context, userID uuid.UUID) (UserEnergy, error) {
	key := balanceCacheKey(userID)

	cached, err := l.cache.GetOrLoad(ctx, key, balanceCacheTTL, func(ctx context.Context) (string, error) {
		u, err := l.store.GetOrCreate(ctx, userID, l.startingEnergy, l.startingEnergy)
		if err != nil {
			return "", err
		}
		b, err := json.Marshal(u)
		if err != nil {
			return "", fmt.Errorf("marshaling user energy: %w", err)
		}
		return string(b), nil
	})
	if err != nil {
		// Cache unavailable entirely: fall through to the durable store
		// directly rather than failing the read, falling back to a direct read.
		l.logger.Warn("energy balance cache unavailable, reading through", "error", err)
		return l.store.GetOrCreate(ctx, userID, l.startingEnergy, l.startingEnergy)
	}

	var u UserEnergy
	if err := json.Unmarshal([]byte(cached), &u); err != nil {
		return l.store.GetOrCreate(ctx, userID, l.startingEnergy, l.startingEnergy)
	}
	return u, nil
}

func (l *Ledger) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := l.cache.Delete(ctx, balanceCacheKey(userID)); err != nil {
		l.logger.Warn("failed to invalidate energy balance cache", "user_id", userID, "error", err)
	}
}

// CanPerform reports whether userID can afford actionName.
func (l *Ledger) CanPerform(ctx context.Context, userID uuid.UUID, actionName string) (Affordability, error) {
	action, ok := l.actions.Lookup(actionName)
	if !ok {
		return Affordability{}, apierr.Newf(apierr.CodeUnknownAction, "unknown action %q", actionName)
	}

	u, err := l.loadBalance(ctx, userID)
	if err != nil {
		return Affordability{}, err
	}

	required := float64(action.EnergyCost)
	if u.IsUnlimited() {
		return Affordability{CanPerform: true, Required: 0, Current: MaxEnergySentinel, Unlimited: true, Plan: u.SubscriptionType}, nil
	}

	deficit := required - u.CurrentEnergy
	if deficit < 0 {
		deficit = 0
	}
	return Affordability{
		CanPerform: u.CurrentEnergy >= required,
		Required:   required,
		Current:    u.CurrentEnergy,
		Deficit:    deficit,
		Unlimited:  false,
		Plan:       u.SubscriptionType,
	}, nil
}

// Consume atomically debits the cost of actionName from userID's balance,
// appending both a durable transaction row and a narrative event.
func (l *Ledger) Consume(ctx context.Context, userID uuid.UUID, actionName, appSource string, reqCtx map[string]any) (ConsumeResult, error) {
	action, ok := l.actions.Lookup(actionName)
	if !ok {
		return ConsumeResult{}, apierr.Newf(apierr.CodeUnknownAction, "unknown action %q", actionName)
	}
	cost := float64(action.EnergyCost)

	current, err := l.loadBalance(ctx, userID)
	if err != nil {
		return ConsumeResult{}, err
	}

	if current.IsUnlimited() {
		eventID, err := l.events.Append(ctx, userID, eventstore.TypeEnergyActionPerformed, appSource, map[string]any{
			"action_name": actionName,
			"energy_cost": 0,
			"unlimited":   true,
		}, nil)
		if err != nil {
			return ConsumeResult{}, apierr.Wrap(apierr.CodeEventStoreUnavailable, "recording unlimited action", err)
		}
		telemetry.EnergyConsumedTotal.WithLabelValues(actionName).Inc()
		return ConsumeResult{EventID: eventID, Unlimited: true}, nil
	}

	if current.CurrentEnergy < cost {
		return ConsumeResult{}, apierr.New(apierr.CodeInsufficientEnergy, "insufficient energy balance").
			WithDetails(map[string]any{"required": cost, "current": current.CurrentEnergy, "deficit": cost - current.CurrentEnergy})
	}

	transactionID := uuid.New()
	var result ConsumeResult

	err = l.store.ApplyMutation(ctx, func(ctx context.Context, tx pgx.Tx) error {
		u, err := l.store.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return apierr.Wrap(apierr.CodeInternal, "locking balance row", err)
		}
		if u.CurrentEnergy < cost {
			return apierr.New(apierr.CodeInsufficientEnergy, "insufficient energy balance").
				WithDetails(map[string]any{"required": cost, "current": u.CurrentEnergy, "deficit": cost - u.CurrentEnergy})
		}

		before := u.CurrentEnergy
		u.CurrentEnergy -= cost
		u.TotalConsumed += cost

		if err := l.store.UpdateBalance(ctx, tx, u); err != nil {
			return apierr.Wrap(apierr.CodeInternal, "updating balance", err)
		}
		if err := l.store.InsertTransaction(ctx, tx, EnergyTransaction{
			TransactionID: transactionID,
			UserID:        userID,
			ActionType:    ActionConsume,
			Amount:        cost,
			Reason:        actionName,
			EnergyBefore:  before,
			EnergyAfter:   u.CurrentEnergy,
			Context:       reqCtx,
			CreatedAt:     time.Now().UTC(),
		}); err != nil {
			return apierr.Wrap(apierr.CodeInternal, "recording transaction", err)
		}

		result = ConsumeResult{TransactionID: transactionID, Consumed: cost, Remaining: u.CurrentEnergy}
		return nil
	})
	if err != nil {
		return ConsumeResult{}, err
	}

	eventID, err := l.events.Append(ctx, userID, eventstore.TypeEnergyActionPerformed, appSource, map[string]any{
		"action_name":    actionName,
		"energy_cost":    cost,
		"transaction_id": transactionID.String(),
		"unlimited":      false,
	}, nil)
	if err != nil {
		// Event append failed after a committed balance mutation: compensate
		// by crediting the cost back.
		if compErr := l.store.ApplyMutation(ctx, func(ctx context.Context, tx pgx.Tx) error {
			u, err := l.store.GetForUpdate(ctx, tx, userID)
			if err != nil {
				return err
			}
			u.CurrentEnergy += cost
			u.TotalConsumed -= cost
			return l.store.UpdateBalance(ctx, tx, u)
		}); compErr != nil {
			l.logger.Error("failed to compensate balance after event append failure", "user_id", userID, "error", compErr)
		}
		l.invalidate(ctx, userID)
		return ConsumeResult{}, apierr.Wrap(apierr.CodeEventStoreUnavailable, "recording consume event", err)
	}

	result.EventID = eventID
	l.invalidate(ctx, userID)
	telemetry.EnergyConsumedTotal.WithLabelValues(actionName).Inc()
	return result, nil
}

// Refund credits amount back to userID's balance, capped at max_energy.
// Cross-event idempotency against the originating action is enforced by the
// caller (the refund endpoint), not by this method.
func (l *Ledger) Refund(ctx context.Context, userID uuid.UUID, amount float64, reason, appSource string, reqCtx map[string]any) (RefundResult, error) {
	transactionID := uuid.New()
	var result RefundResult

	err := l.store.ApplyMutation(ctx, func(ctx context.Context, tx pgx.Tx) error {
		u, err := l.store.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return apierr.Wrap(apierr.CodeInternal, "locking balance row", err)
		}

		before := u.CurrentEnergy
		u.CurrentEnergy += amount
		if u.CurrentEnergy > u.MaxEnergy {
			u.CurrentEnergy = u.MaxEnergy
		}

		if err := l.store.UpdateBalance(ctx, tx, u); err != nil {
			return apierr.Wrap(apierr.CodeInternal, "updating balance", err)
		}
		if err := l.store.InsertTransaction(ctx, tx, EnergyTransaction{
			TransactionID: transactionID,
			UserID:        userID,
			ActionType:    ActionRefund,
			Amount:        amount,
			Reason:        reason,
			EnergyBefore:  before,
			EnergyAfter:   u.CurrentEnergy,
			Context:       reqCtx,
			CreatedAt:     time.Now().UTC(),
		}); err != nil {
			return apierr.Wrap(apierr.CodeInternal, "recording transaction", err)
		}

		result = RefundResult{TransactionID: transactionID, Refunded: amount, NewBalance: u.CurrentEnergy}
		return nil
	})
	if err != nil {
		return RefundResult{}, err
	}

	eventID, err := l.events.Append(ctx, userID, eventstore.TypeEnergyRefunded, appSource, map[string]any{
		"amount":         amount,
		"reason":         reason,
		"transaction_id": transactionID.String(),
	}, nil)
	if err != nil {
		l.logger.Error("refund event append failed after committed mutation", "user_id", userID, "error", err)
		return RefundResult{}, apierr.Wrap(apierr.CodeEventStoreUnavailable, "recording refund event", err)
	}

	result.EventID = eventID
	l.invalidate(ctx, userID)
	telemetry.EnergyRefundedTotal.WithLabelValues(reason).Inc()
	return result, nil
}

// Purchase credits a pack's energy units (plus first-purchase bonus where
// eligible) to userID's balance, or activates the unlimited subscription for
// the bundled unlimited pack.
func (l *Ledger) Purchase(ctx context.Context, userID uuid.UUID, packCode, paymentIntentID string, firstPurchase bool, appSource string) (PurchaseResult, error) {
	pack, ok := l.packs.Lookup(packCode)
	if !ok {
		return PurchaseResult{}, apierr.Newf(apierr.CodeUnknownPack, "unknown energy pack %q", packCode)
	}

	purchaseID := uuid.New()
	var result PurchaseResult

	err := l.store.ApplyMutation(ctx, func(ctx context.Context, tx pgx.Tx) error {
		u, err := l.store.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return apierr.Wrap(apierr.CodeInternal, "locking balance row", err)
		}
		if u.IsUnlimited() {
			return apierr.New(apierr.CodePurchaseForbidden, "user already has an unlimited subscription")
		}

		before := u.CurrentEnergy

		if pack.Unlimited {
			u.SubscriptionType = PlanUnlimited
			u.MaxEnergy = MaxEnergySentinel
			u.CurrentEnergy = l.unlimitedReset
			result = PurchaseResult{PurchaseID: purchaseID, EnergyAdded: l.unlimitedReset, CurrentEnergy: u.CurrentEnergy}
		} else {
			bonus := 0.0
			if firstPurchase {
				bonus = float64(pack.FirstPurchaseBonusUnits)
			}
			added := float64(pack.EnergyUnits) + bonus
			u.CurrentEnergy += added
			if u.CurrentEnergy > u.MaxEnergy {
				u.MaxEnergy = u.CurrentEnergy
			}
			u.TotalPurchased += added
			result = PurchaseResult{
				PurchaseID:    purchaseID,
				EnergyAdded:   added,
				Bonus:         bonus,
				BonusApplied:  bonus > 0,
				CurrentEnergy: u.CurrentEnergy,
			}
		}

		if err := l.store.UpdateBalance(ctx, tx, u); err != nil {
			return apierr.Wrap(apierr.CodeInternal, "updating balance", err)
		}
		if err := l.store.InsertTransaction(ctx, tx, EnergyTransaction{
			TransactionID: purchaseID,
			UserID:        userID,
			ActionType:    ActionPurchase,
			Amount:        result.EnergyAdded,
			Reason:        packCode,
			EnergyBefore:  before,
			EnergyAfter:   u.CurrentEnergy,
			Context:       map[string]any{"pack_code": packCode, "payment_intent_id": paymentIntentID},
			CreatedAt:     time.Now().UTC(),
		}); err != nil {
			return apierr.Wrap(apierr.CodeInternal, "recording transaction", err)
		}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	eventID, err := l.events.Append(ctx, userID, eventstore.TypeEnergyPurchased, appSource, map[string]any{
		"pack_code":         packCode,
		"payment_intent_id": paymentIntentID,
		"energy_added":      result.EnergyAdded,
		"bonus_applied":     result.BonusApplied,
	}, nil)
	if err != nil {
		l.logger.Error("purchase event append failed after committed mutation", "user_id", userID, "error", err)
		return PurchaseResult{}, apierr.Wrap(apierr.CodeEventStoreUnavailable, "recording purchase event", err)
	}

	result.EventID = eventID
	l.invalidate(ctx, userID)
	telemetry.EnergyPurchasedTotal.WithLabelValues(packCode).Inc()
	return result, nil
}
