package orchestration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/pkg/actionrunner"
	"github.com/lunahub/hub/pkg/catalog"
	"github.com/lunahub/hub/pkg/energy"
	"github.com/lunahub/hub/pkg/ratelimit"
	"github.com/lunahub/hub/pkg/token"
)

type fakeLimiter struct {
	result ratelimit.Result
	err    error
	calls  []string
}

func (f *fakeLimiter) Check(ctx context.Context, userID uuid.UUID, identifier, scope string) (ratelimit.Result, error) {
	f.calls = append(f.calls, scope)
	return f.result, f.err
}

type fakeTokenValidator struct {
	claims token.Claims
	err    error
}

func (f *fakeTokenValidator) ValidateAccess(raw string) (token.Claims, error) {
	return f.claims, f.err
}

type fakeEnergyLedger struct {
	affordability energy.Affordability
	affordErr     error
	consumeResult energy.ConsumeResult
	consumeErr    error
	refundResult  energy.RefundResult
	refundErr     error
	refundCalls   int
}

func (f *fakeEnergyLedger) CanPerform(ctx context.Context, userID uuid.UUID, actionName string) (energy.Affordability, error) {
	return f.affordability, f.affordErr
}

func (f *fakeEnergyLedger) Consume(ctx context.Context, userID uuid.UUID, actionName, appSource string, reqCtx map[string]any) (energy.ConsumeResult, error) {
	return f.consumeResult, f.consumeErr
}

func (f *fakeEnergyLedger) Refund(ctx context.Context, userID uuid.UUID, amount float64, reason, appSource string, reqCtx map[string]any) (energy.RefundResult, error) {
	f.refundCalls++
	return f.refundResult, f.refundErr
}

type fakeActionCatalog struct {
	actions map[string]catalog.Action
}

func (f *fakeActionCatalog) Lookup(name string) (catalog.Action, bool) {
	a, ok := f.actions[name]
	return a, ok
}

type fakePackCatalog struct {
	packs []catalog.EnergyPack
}

func (f *fakePackCatalog) Lookup(code string) (catalog.EnergyPack, bool) {
	for _, p := range f.packs {
		if p.Code == code {
			return p, true
		}
	}
	return catalog.EnergyPack{}, false
}

func (f *fakePackCatalog) All() []catalog.EnergyPack { return f.packs }

type fakeProducer struct {
	result actionrunner.Result
	err    error
}

func (f *fakeProducer) Produce(ctx context.Context, req actionrunner.Request) (actionrunner.Result, error) {
	return f.result, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline() (*ActionPipeline, *fakeLimiter, *fakeTokenValidator, *fakeEnergyLedger, *fakeProducer) {
	limiter := &fakeLimiter{result: ratelimit.Result{Decision: ratelimit.Allowed}}
	tokens := &fakeTokenValidator{claims: token.Claims{Subject: uuid.New().String()}}
	ledger := &fakeEnergyLedger{
		affordability: energy.Affordability{CanPerform: true},
		consumeResult: energy.ConsumeResult{Consumed: 10, Remaining: 90},
	}
	actions := &fakeActionCatalog{actions: map[string]catalog.Action{
		"cv_analysis": {Name: "cv_analysis", EnergyCost: 10, RefundEligible: true},
	}}
	packs := &fakePackCatalog{packs: []catalog.EnergyPack{
		{Code: "small", EnergyUnits: 50, PriceCents: 499, Currency: "usd"},
		{Code: "large", EnergyUnits: 200, PriceCents: 1499, Currency: "usd"},
	}}
	producer := &fakeProducer{result: actionrunner.Result{Succeeded: true, Output: map[string]any{}}}

	p := NewActionPipeline(limiter, tokens, ledger, actions, packs, producer, testLogger())
	return p, limiter, tokens, ledger, producer
}

func TestPerformRateLimitedByClient(t *testing.T) {
	p, limiter, _, _, _ := newTestPipeline()
	limiter.result = ratelimit.Result{Decision: ratelimit.Limited, BlockedUntil: time.Now().Add(30 * time.Second)}

	_, err := p.Perform(context.Background(), ActionRequest{ActionName: "cv_analysis", ClientIP: "1.2.3.4"})
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if apierr.CodeOf(err) != apierr.CodeRateLimited {
		t.Errorf("CodeOf(err) = %v, want %v", apierr.CodeOf(err), apierr.CodeRateLimited)
	}
}

func TestPerformUnauthenticated(t *testing.T) {
	p, _, tokens, _, _ := newTestPipeline()
	tokens.err = apierr.New(apierr.CodeInvalidToken, "bad token")

	_, err := p.Perform(context.Background(), ActionRequest{ActionName: "cv_analysis", ClientIP: "1.2.3.4"})
	if apierr.CodeOf(err) != apierr.CodeInvalidToken {
		t.Errorf("CodeOf(err) = %v, want %v", apierr.CodeOf(err), apierr.CodeInvalidToken)
	}
}

func TestPerformForbiddenSpecialistScope(t *testing.T) {
	p, _, tokens, _, _ := newTestPipeline()
	tokens.claims = token.Claims{
		Subject:               tokens.claims.Subject,
		SpecialistName:        token.SpecialistCV,
		SpecialistPermissions: []string{"letter_drafting"},
	}

	_, err := p.Perform(context.Background(), ActionRequest{ActionName: "cv_analysis", ClientIP: "1.2.3.4"})
	if apierr.CodeOf(err) != apierr.CodeInsufficientScope {
		t.Errorf("CodeOf(err) = %v, want %v", apierr.CodeOf(err), apierr.CodeInsufficientScope)
	}
}

func TestPerformInsufficientEnergySuggestsPack(t *testing.T) {
	p, _, _, ledger, _ := newTestPipeline()
	ledger.affordability = energy.Affordability{CanPerform: false, Deficit: 60}

	_, err := p.Perform(context.Background(), ActionRequest{ActionName: "cv_analysis", ClientIP: "1.2.3.4"})
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.CodeInsufficientEnergy {
		t.Fatalf("expected InsufficientEnergy error, got %v", err)
	}
	if apiErr.Details["suggested_pack"] != "large" {
		t.Errorf("suggested_pack = %v, want %q (cheapest pack covering a 60-unit deficit)", apiErr.Details["suggested_pack"], "large")
	}
}

func TestPerformExecutionFailure(t *testing.T) {
	p, _, _, _, producer := newTestPipeline()
	producer.err = errors.New("gateway timeout")

	_, err := p.Perform(context.Background(), ActionRequest{ActionName: "cv_analysis", ClientIP: "1.2.3.4"})
	if apierr.CodeOf(err) != apierr.CodeUpstreamUnavailable {
		t.Errorf("CodeOf(err) = %v, want %v", apierr.CodeOf(err), apierr.CodeUpstreamUnavailable)
	}
}

func TestPerformSucceeds(t *testing.T) {
	p, _, _, _, _ := newTestPipeline()

	resp, err := p.Perform(context.Background(), ActionRequest{ActionName: "cv_analysis", ClientIP: "1.2.3.4", AppSource: "cv"})
	if err != nil {
		t.Fatalf("Perform() error = %v", err)
	}
	if resp.Degraded {
		t.Error("expected a non-degraded success")
	}
	if resp.Consume.Remaining != 90 {
		t.Errorf("Remaining = %v, want 90", resp.Consume.Remaining)
	}
}

func TestPerformCommitFailureIssuesCompensatingRefund(t *testing.T) {
	p, _, _, ledger, _ := newTestPipeline()
	ledger.consumeErr = apierr.New(apierr.CodeEventStoreUnavailable, "append failed")

	resp, err := p.Perform(context.Background(), ActionRequest{ActionName: "cv_analysis", ClientIP: "1.2.3.4", AppSource: "cv"})
	if err != nil {
		t.Fatalf("Perform() error = %v, want a degraded success", err)
	}
	if !resp.Degraded {
		t.Error("expected a degraded success response")
	}
	if ledger.refundCalls != 1 {
		t.Errorf("refundCalls = %d, want 1", ledger.refundCalls)
	}
}

func TestPerformCommitFailureAndRefundFailureSurfacesOriginalError(t *testing.T) {
	p, _, _, ledger, _ := newTestPipeline()
	ledger.consumeErr = apierr.New(apierr.CodeEventStoreUnavailable, "append failed")
	ledger.refundErr = errors.New("ledger down")

	_, err := p.Perform(context.Background(), ActionRequest{ActionName: "cv_analysis", ClientIP: "1.2.3.4", AppSource: "cv"})
	if apierr.CodeOf(err) != apierr.CodeEventStoreUnavailable {
		t.Errorf("CodeOf(err) = %v, want the original commit error's code %v", apierr.CodeOf(err), apierr.CodeEventStoreUnavailable)
	}
}
