// Package billing implements the billing pipeline: translating a pack code
// into a payment intent, persisting its creation, and confirming payment
// idempotently before crediting energy through the Energy Ledger. The real
// payment gateway is out of scope; PaymentProvider is a narrow interface any
// concrete integration can satisfy.
package billing

import "context"

// IntentStatus mirrors the subset of payment-provider statuses the
// confirmation pipeline cares about.
type IntentStatus string

const (
	IntentPending         IntentStatus = "pending"
	IntentRequiresCapture IntentStatus = "requires_capture"
	IntentSucceeded       IntentStatus = "succeeded"
	IntentFailed          IntentStatus = "failed"
)

// Intent is a payment provider's view of a single payment attempt.
type Intent struct {
	ID             string
	IdempotencyKey string
	AmountCents    int
	Currency       string
	Status         IntentStatus
}

// PaymentProvider is the narrow surface the billing pipeline depends on.
// No concrete payment gateway SDK appears anywhere in the retrieval pack
// for this concern, so only an in-memory stub is wired here.
type PaymentProvider interface {
	// CreateIntent creates a new payment intent for amountCents/currency,
	// deduplicated by idempotencyKey: a repeated call with the same key
	// returns the original intent rather than creating a second one.
	CreateIntent(ctx context.Context, idempotencyKey string, amountCents int, currency string) (Intent, error)
	// GetIntent retrieves a previously created intent by id.
	GetIntent(ctx context.Context, intentID string) (Intent, error)
}
