package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/pkg/catalog"
	"github.com/lunahub/hub/pkg/energy"
	"github.com/lunahub/hub/pkg/eventstore"
)

type fakeEventStore struct {
	get          eventstore.Event
	getErr       error
	findExisting *eventstore.Event
	findErr      error
	appended     []eventstore.Event
}

func (f *fakeEventStore) Append(ctx context.Context, userID uuid.UUID, eventType, appSource string, eventData, metadata map[string]any) (uuid.UUID, error) {
	id := uuid.New()
	f.appended = append(f.appended, eventstore.Event{EventID: id, UserID: userID, EventType: eventType, AppSource: appSource, EventData: eventData})
	return id, nil
}

func (f *fakeEventStore) Get(ctx context.Context, userID, eventID uuid.UUID) (eventstore.Event, error) {
	return f.get, f.getErr
}

func (f *fakeEventStore) FindByTypeAndField(ctx context.Context, userID uuid.UUID, eventType, key, value string, scanLimit int) (*eventstore.Event, error) {
	return f.findExisting, f.findErr
}

func newTestRefundPipeline() (*RefundPipeline, *fakeEnergyLedger, *fakeActionCatalog, *fakeEventStore) {
	ledger := &fakeEnergyLedger{refundResult: energy.RefundResult{Refunded: 10, NewBalance: 100}}
	actions := &fakeActionCatalog{actions: map[string]catalog.Action{
		"cv_analysis": {Name: "cv_analysis", EnergyCost: 10, RefundEligible: true},
		"free_intro":  {Name: "free_intro", EnergyCost: 0},
	}}
	events := &fakeEventStore{}
	p := NewRefundPipeline(ledger, actions, events, testLogger())
	return p, ledger, actions, events
}

func TestRefundRejectsWrongEventType(t *testing.T) {
	p, _, _, events := newTestRefundPipeline()
	userID := uuid.New()
	events.get = eventstore.Event{UserID: userID, EventType: "login_succeeded", CreatedAt: time.Now()}

	_, err := p.Refund(context.Background(), RefundRequest{UserID: userID, OriginalEventID: uuid.New()})
	if apierr.CodeOf(err) != apierr.CodeRefundNotEligible {
		t.Errorf("CodeOf(err) = %v, want %v", apierr.CodeOf(err), apierr.CodeRefundNotEligible)
	}
}

func TestRefundRejectsTooOld(t *testing.T) {
	p, _, _, events := newTestRefundPipeline()
	userID := uuid.New()
	events.get = eventstore.Event{
		UserID:    userID,
		EventType: eventstore.TypeEnergyActionPerformed,
		EventData: map[string]any{"action_name": "cv_analysis"},
		CreatedAt: time.Now().Add(-8 * 24 * time.Hour),
	}

	_, err := p.Refund(context.Background(), RefundRequest{UserID: userID, OriginalEventID: uuid.New()})
	if apierr.CodeOf(err) != apierr.CodeRefundNotEligible {
		t.Errorf("CodeOf(err) = %v, want %v", apierr.CodeOf(err), apierr.CodeRefundNotEligible)
	}
}

func TestRefundRejectsFreeAction(t *testing.T) {
	p, _, _, events := newTestRefundPipeline()
	userID := uuid.New()
	events.get = eventstore.Event{
		UserID:    userID,
		EventType: eventstore.TypeEnergyActionPerformed,
		EventData: map[string]any{"action_name": "free_intro"},
		CreatedAt: time.Now(),
	}

	_, err := p.Refund(context.Background(), RefundRequest{UserID: userID, OriginalEventID: uuid.New()})
	if apierr.CodeOf(err) != apierr.CodeRefundNotEligible {
		t.Errorf("CodeOf(err) = %v, want %v", apierr.CodeOf(err), apierr.CodeRefundNotEligible)
	}
}

func TestRefundRejectsAlreadyRefunded(t *testing.T) {
	p, _, _, events := newTestRefundPipeline()
	userID := uuid.New()
	events.get = eventstore.Event{
		UserID:    userID,
		EventType: eventstore.TypeEnergyActionPerformed,
		EventData: map[string]any{"action_name": "cv_analysis"},
		CreatedAt: time.Now(),
	}
	existing := eventstore.Event{EventID: uuid.New()}
	events.findExisting = &existing

	_, err := p.Refund(context.Background(), RefundRequest{UserID: userID, OriginalEventID: uuid.New()})
	if apierr.CodeOf(err) != apierr.CodeAlreadyRefunded {
		t.Errorf("CodeOf(err) = %v, want %v", apierr.CodeOf(err), apierr.CodeAlreadyRefunded)
	}
}

func TestRefundCreditsAndRecordsEvent(t *testing.T) {
	p, ledger, _, events := newTestRefundPipeline()
	userID := uuid.New()
	originalID := uuid.New()
	events.get = eventstore.Event{
		UserID:    userID,
		EventType: eventstore.TypeEnergyActionPerformed,
		EventData: map[string]any{"action_name": "cv_analysis"},
		CreatedAt: time.Now(),
	}

	result, err := p.Refund(context.Background(), RefundRequest{UserID: userID, OriginalEventID: originalID, AppSource: "cv"})
	if err != nil {
		t.Fatalf("Refund() error = %v", err)
	}
	if result.NewBalance != 100 {
		t.Errorf("NewBalance = %v, want 100", result.NewBalance)
	}
	if ledger.refundCalls != 1 {
		t.Errorf("refundCalls = %d, want 1", ledger.refundCalls)
	}
	if len(events.appended) != 1 || events.appended[0].EventType != eventstore.TypeEnergyRefunded {
		t.Fatalf("appended = %+v, want a single EnergyRefunded event", events.appended)
	}
	if events.appended[0].EventData["original_action_event_id"] != originalID.String() {
		t.Errorf("original_action_event_id = %v, want %v", events.appended[0].EventData["original_action_event_id"], originalID.String())
	}
}

func TestEligibleReportsFalseWithoutCrediting(t *testing.T) {
	p, ledger, _, events := newTestRefundPipeline()
	userID := uuid.New()
	events.get = eventstore.Event{
		UserID:    userID,
		EventType: eventstore.TypeEnergyActionPerformed,
		EventData: map[string]any{"action_name": "free_intro"},
		CreatedAt: time.Now(),
	}

	ok, reason, err := p.Eligible(context.Background(), userID, uuid.New())
	if err != nil {
		t.Fatalf("Eligible() error = %v", err)
	}
	if ok {
		t.Error("expected ineligible for a free action")
	}
	if reason == "" {
		t.Error("expected a reason string")
	}
	if ledger.refundCalls != 0 {
		t.Error("Eligible must not credit energy")
	}
}

func TestEligibleReportsTrue(t *testing.T) {
	p, _, _, events := newTestRefundPipeline()
	userID := uuid.New()
	events.get = eventstore.Event{
		UserID:    userID,
		EventType: eventstore.TypeEnergyActionPerformed,
		EventData: map[string]any{"action_name": "cv_analysis"},
		CreatedAt: time.Now(),
	}

	ok, _, err := p.Eligible(context.Background(), userID, uuid.New())
	if err != nil {
		t.Fatalf("Eligible() error = %v", err)
	}
	if !ok {
		t.Error("expected eligible")
	}
}
