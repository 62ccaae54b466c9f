package billing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/pkg/catalog"
	"github.com/lunahub/hub/pkg/energy"
	"github.com/lunahub/hub/pkg/eventstore"
)

// purchaseScanLimit bounds the event-store scan used for idempotency and
// first-purchase-bonus checks, mirroring the event store's documented O(N)
// FindByTypeAndField scan where no dedicated index exists.
const purchaseScanLimit = 200

// Ledger is the subset of the Energy Ledger the billing pipeline drives.
type Ledger interface {
	Purchase(ctx context.Context, userID uuid.UUID, packCode, paymentIntentID string, firstPurchase bool, appSource string) (energy.PurchaseResult, error)
}

// EventRecorder is the subset of the event store the billing pipeline
// drives: recording billing events and scanning prior purchases for
// idempotency and first-purchase-bonus eligibility.
type EventRecorder interface {
	Append(ctx context.Context, userID uuid.UUID, eventType, appSource string, eventData, metadata map[string]any) (uuid.UUID, error)
	Query(ctx context.Context, userID uuid.UUID, limit int, eventType string, since *time.Time) ([]eventstore.Event, error)
	FindByTypeAndField(ctx context.Context, userID uuid.UUID, eventType, key, value string, scanLimit int) (*eventstore.Event, error)
}

// Service implements the billing pipeline: create-intent and
// confirm-payment.
type Service struct {
	provider PaymentProvider
	ledger   Ledger
	packs    *catalog.PackCatalog
	events   EventRecorder
	logger   *slog.Logger
}

// NewService creates a billing Service.
func NewService(provider PaymentProvider, ledger Ledger, packs *catalog.PackCatalog, events EventRecorder, logger *slog.Logger) *Service {
	return &Service{provider: provider, ledger: ledger, packs: packs, events: events, logger: logger}
}

// CreateIntentResult is returned by CreateIntent.
type CreateIntentResult struct {
	IntentID string
	Status   IntentStatus
}

// CreateIntent translates packCode into an amount/currency, creates a
// payment intent keyed by an idempotency key derived from user_id + pack +
// nonce, and records a BillingIntentCreated event.
func (s *Service) CreateIntent(ctx context.Context, userID uuid.UUID, packCode string, appSource string) (CreateIntentResult, error) {
	pack, ok := s.packs.Lookup(packCode)
	if !ok {
		return CreateIntentResult{}, apierr.Newf(apierr.CodeUnknownPack, "unknown energy pack %q", packCode)
	}

	nonce, err := randomNonce()
	if err != nil {
		return CreateIntentResult{}, apierr.Wrap(apierr.CodeInternal, "generating idempotency nonce", err)
	}
	idempotencyKey := fmt.Sprintf("%s:%s:%s", userID, packCode, nonce)

	intent, err := s.provider.CreateIntent(ctx, idempotencyKey, pack.PriceCents, pack.Currency)
	if err != nil {
		return CreateIntentResult{}, apierr.Wrap(apierr.CodeUpstreamUnavailable, "creating payment intent", err)
	}

	if _, err := s.events.Append(ctx, userID, eventstore.TypeBillingIntentCreated, appSource, map[string]any{
		"intent_id": intent.ID,
		"pack_code": packCode,
		"amount":    pack.PriceCents,
		"currency":  pack.Currency,
	}, nil); err != nil {
		s.logger.Warn("billing intent event append failed", "user_id", userID, "intent_id", intent.ID, "error", err)
	}

	return CreateIntentResult{IntentID: intent.ID, Status: intent.Status}, nil
}

// ConfirmPayment retrieves the intent, requires it to be in a terminal
// success-adjacent state, rejects a replayed confirmation for the same
// intent_id, computes first-purchase eligibility, credits energy, and
// records EnergyPurchased.
func (s *Service) ConfirmPayment(ctx context.Context, userID uuid.UUID, intentID, packCode, appSource string) (energy.PurchaseResult, error) {
	intent, err := s.provider.GetIntent(ctx, intentID)
	if err != nil {
		return energy.PurchaseResult{}, apierr.Wrap(apierr.CodeUpstreamUnavailable, "retrieving payment intent", err)
	}

	if intent.Status != IntentSucceeded && intent.Status != IntentRequiresCapture {
		return energy.PurchaseResult{}, apierr.Newf(apierr.CodeInvalidInput, "payment intent %q is not in a payable state (%s)", intentID, intent.Status)
	}

	existing, err := s.events.FindByTypeAndField(ctx, userID, eventstore.TypeEnergyPurchased, "payment_intent_id", intentID, purchaseScanLimit)
	if err != nil {
		return energy.PurchaseResult{}, err
	}
	if existing != nil {
		return energy.PurchaseResult{}, apierr.New(apierr.CodePurchaseForbidden, "payment intent already confirmed")
	}

	firstPurchase, err := s.isFirstPurchase(ctx, userID)
	if err != nil {
		s.logger.Warn("first-purchase bonus check failed, defaulting to ineligible", "user_id", userID, "error", err)
		firstPurchase = false
	}

	return s.ledger.Purchase(ctx, userID, packCode, intentID, firstPurchase, appSource)
}

// isFirstPurchase reports whether userID has no prior EnergyPurchased
// events, scanning bounded history rather than maintaining a separate
// counter.
func (s *Service) isFirstPurchase(ctx context.Context, userID uuid.UUID) (bool, error) {
	events, err := s.events.Query(ctx, userID, purchaseScanLimit, eventstore.TypeEnergyPurchased, nil)
	if err != nil {
		return false, err
	}
	return len(events) == 0, nil
}

func randomNonce() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
