package billing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/pkg/energy"
	"github.com/lunahub/hub/pkg/eventstore"
)

type fakeLedger struct {
	purchases []fakePurchaseCall
	result    energy.PurchaseResult
	err       error
}

type fakePurchaseCall struct {
	userID        uuid.UUID
	packCode      string
	intentID      string
	firstPurchase bool
}

func (f *fakeLedger) Purchase(ctx context.Context, userID uuid.UUID, packCode, paymentIntentID string, firstPurchase bool, appSource string) (energy.PurchaseResult, error) {
	f.purchases = append(f.purchases, fakePurchaseCall{userID, packCode, paymentIntentID, firstPurchase})
	return f.result, f.err
}

type fakeEvents struct {
	appended []eventstore.Event
	existing *eventstore.Event
	history  []eventstore.Event
}

func (f *fakeEvents) Append(ctx context.Context, userID uuid.UUID, eventType, appSource string, eventData, metadata map[string]any) (uuid.UUID, error) {
	id := uuid.New()
	f.appended = append(f.appended, eventstore.Event{EventID: id, UserID: userID, EventType: eventType, AppSource: appSource, EventData: eventData})
	return id, nil
}

func (f *fakeEvents) Query(ctx context.Context, userID uuid.UUID, limit int, eventType string, since *time.Time) ([]eventstore.Event, error) {
	return f.history, nil
}

func (f *fakeEvents) FindByTypeAndField(ctx context.Context, userID uuid.UUID, eventType, key, value string, scanLimit int) (*eventstore.Event, error) {
	return f.existing, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfirmPaymentRejectsUnpaidIntent(t *testing.T) {
	provider := NewStubProvider()
	ledger := &fakeLedger{}
	events := &fakeEvents{}

	intent, err := provider.CreateIntent(context.Background(), "key-1", 499, "usd")
	if err != nil {
		t.Fatalf("CreateIntent() error = %v", err)
	}
	// Force the intent into a non-payable state to exercise the guard.
	provider.byIntentID[intent.ID] = Intent{ID: intent.ID, Status: IntentFailed}

	svc := &Service{provider: provider, ledger: ledger, events: events, logger: testLogger()}
	_, err = svc.ConfirmPayment(context.Background(), uuid.New(), intent.ID, "cafe_luna", "cv")
	if err == nil {
		t.Fatal("expected error confirming a failed payment intent")
	}
}

func TestConfirmPaymentRejectsReplay(t *testing.T) {
	provider := NewStubProvider()
	ledger := &fakeLedger{}
	existing := eventstore.Event{EventID: uuid.New()}
	events := &fakeEvents{existing: &existing}

	intent, err := provider.CreateIntent(context.Background(), "key-2", 499, "usd")
	if err != nil {
		t.Fatalf("CreateIntent() error = %v", err)
	}

	svc := &Service{provider: provider, ledger: ledger, events: events, logger: testLogger()}
	_, err = svc.ConfirmPayment(context.Background(), uuid.New(), intent.ID, "cafe_luna", "cv")
	if err == nil {
		t.Fatal("expected error confirming an already-confirmed intent")
	}
	if apierr.CodeOf(err) != apierr.CodePurchaseForbidden {
		t.Errorf("CodeOf(err) = %v, want %v", apierr.CodeOf(err), apierr.CodePurchaseForbidden)
	}
	if len(ledger.purchases) != 0 {
		t.Error("expected ledger.Purchase not to be called on a replayed confirmation")
	}
}

func TestConfirmPaymentCreditsFirstPurchase(t *testing.T) {
	provider := NewStubProvider()
	ledger := &fakeLedger{result: energy.PurchaseResult{EnergyAdded: 110, BonusApplied: true}}
	events := &fakeEvents{} // no prior history -> first purchase

	intent, err := provider.CreateIntent(context.Background(), "key-3", 499, "usd")
	if err != nil {
		t.Fatalf("CreateIntent() error = %v", err)
	}

	svc := &Service{provider: provider, ledger: ledger, events: events, logger: testLogger()}
	userID := uuid.New()
	result, err := svc.ConfirmPayment(context.Background(), userID, intent.ID, "cafe_luna", "cv")
	if err != nil {
		t.Fatalf("ConfirmPayment() error = %v", err)
	}
	if !result.BonusApplied {
		t.Error("expected bonus applied on first purchase")
	}
	if len(ledger.purchases) != 1 || !ledger.purchases[0].firstPurchase {
		t.Errorf("purchases = %+v, want a single first-purchase call", ledger.purchases)
	}
}

func TestConfirmPaymentNotFirstPurchase(t *testing.T) {
	provider := NewStubProvider()
	ledger := &fakeLedger{}
	events := &fakeEvents{history: []eventstore.Event{{EventID: uuid.New()}}}

	intent, err := provider.CreateIntent(context.Background(), "key-4", 499, "usd")
	if err != nil {
		t.Fatalf("CreateIntent() error = %v", err)
	}

	svc := &Service{provider: provider, ledger: ledger, events: events, logger: testLogger()}
	_, err = svc.ConfirmPayment(context.Background(), uuid.New(), intent.ID, "cafe_luna", "cv")
	if err != nil {
		t.Fatalf("ConfirmPayment() error = %v", err)
	}
	if len(ledger.purchases) != 1 || ledger.purchases[0].firstPurchase {
		t.Errorf("purchases = %+v, want a single non-first-purchase call", ledger.purchases)
	}
}
