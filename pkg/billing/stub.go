package billing

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
)

// StubProvider is an in-memory PaymentProvider that always succeeds
// immediately, keyed by idempotency key. It exists so the billing pipeline
// is fully exercisable without a real payment gateway.
type StubProvider struct {
	mu         sync.Mutex
	byKey      map[string]Intent
	byIntentID map[string]Intent
}

// NewStubProvider creates an empty StubProvider.
func NewStubProvider() *StubProvider {
	return &StubProvider{
		byKey:      make(map[string]Intent),
		byIntentID: make(map[string]Intent),
	}
}

// CreateIntent implements PaymentProvider.
func (p *StubProvider) CreateIntent(ctx context.Context, idempotencyKey string, amountCents int, currency string) (Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.byKey[idempotencyKey]; ok {
		return existing, nil
	}

	intent := Intent{
		ID:             uuid.New().String(),
		IdempotencyKey: idempotencyKey,
		AmountCents:    amountCents,
		Currency:       currency,
		Status:         IntentSucceeded,
	}
	p.byKey[idempotencyKey] = intent
	p.byIntentID[intent.ID] = intent
	return intent, nil
}

// GetIntent implements PaymentProvider.
func (p *StubProvider) GetIntent(ctx context.Context, intentID string) (Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	intent, ok := p.byIntentID[intentID]
	if !ok {
		return Intent{}, apierr.Newf(apierr.CodeInvalidInput, "unknown payment intent %q", intentID)
	}
	return intent, nil
}
