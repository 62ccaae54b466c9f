package orchestration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/telemetry"
	"github.com/lunahub/hub/pkg/actionrunner"
	"github.com/lunahub/hub/pkg/catalog"
	"github.com/lunahub/hub/pkg/energy"
	"github.com/lunahub/hub/pkg/ratelimit"
)

const clientScope = "api_general"

// ActionPipeline composes rate limiting, authentication, the energy
// precheck, action execution, and the energy commit for every metered
// action.
type ActionPipeline struct {
	limiter  Limiter
	tokens   TokenValidator
	energy   EnergyLedger
	actions  ActionCatalog
	packs    PackCatalog
	producer actionrunner.ActionProducer
	logger   *slog.Logger
}

// NewActionPipeline creates an ActionPipeline.
func NewActionPipeline(limiter Limiter, tokens TokenValidator, ledger EnergyLedger, actions ActionCatalog, packs PackCatalog, producer actionrunner.ActionProducer, logger *slog.Logger) *ActionPipeline {
	return &ActionPipeline{
		limiter:  limiter,
		tokens:   tokens,
		energy:   ledger,
		actions:  actions,
		packs:    packs,
		producer: producer,
		logger:   logger,
	}
}

// ActionRequest describes one inbound metered-action request.
type ActionRequest struct {
	RawToken      string
	ClientIP      string
	ActionName    string
	AppSource     string
	RequestID     string
	CorrelationID string
	Payload       map[string]any
}

// ActionResponse is returned on a successful (possibly degraded) commit.
type ActionResponse struct {
	Consume  energy.ConsumeResult
	Degraded bool
	Anomaly  string
}

// Perform runs the full metered action pipeline: rate limit, authenticate,
// precheck, execute, commit.
func (p *ActionPipeline) Perform(ctx context.Context, req ActionRequest) (ActionResponse, error) {
	if err := p.checkRateLimit(ctx, uuid.Nil, req.ClientIP, clientScope); err != nil {
		telemetry.ActionPipelineTotal.WithLabelValues(req.ActionName, "rate_limited_client").Inc()
		return ActionResponse{}, err
	}

	claims, err := p.tokens.ValidateAccess(req.RawToken)
	if err != nil {
		telemetry.ActionPipelineTotal.WithLabelValues(req.ActionName, "unauthenticated").Inc()
		return ActionResponse{}, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ActionResponse{}, apierr.Wrap(apierr.CodeInvalidToken, "token subject is not a valid user id", err)
	}

	if err := p.checkRateLimit(ctx, userID, userID.String(), "action:"+req.ActionName); err != nil {
		telemetry.ActionPipelineTotal.WithLabelValues(req.ActionName, "rate_limited_user").Inc()
		return ActionResponse{}, err
	}

	if claims.IsChild() && !hasPermission(claims.SpecialistPermissions, req.ActionName) {
		telemetry.ActionPipelineTotal.WithLabelValues(req.ActionName, "forbidden_scope").Inc()
		return ActionResponse{}, apierr.Newf(apierr.CodeInsufficientScope, "specialist token %q is not permitted to perform %q", claims.SpecialistName, req.ActionName)
	}

	action, ok := p.actions.Lookup(req.ActionName)
	if !ok {
		return ActionResponse{}, apierr.Newf(apierr.CodeUnknownAction, "unknown action %q", req.ActionName)
	}

	affordability, err := p.energy.CanPerform(ctx, userID, req.ActionName)
	if err != nil {
		return ActionResponse{}, err
	}
	if !affordability.CanPerform {
		telemetry.ActionPipelineTotal.WithLabelValues(req.ActionName, "insufficient_energy").Inc()
		details := map[string]any{"deficit": affordability.Deficit}
		if pack, ok := suggestPack(p.packs, affordability.Deficit); ok {
			details["suggested_pack"] = pack.Code
		}
		return ActionResponse{}, apierr.New(apierr.CodeInsufficientEnergy, "insufficient energy balance").WithDetails(details)
	}

	execResult, err := p.producer.Produce(ctx, actionrunner.Request{
		UserID:     userID.String(),
		ActionName: req.ActionName,
		AppSource:  req.AppSource,
		Payload:    req.Payload,
	})
	if err != nil {
		telemetry.ActionPipelineTotal.WithLabelValues(req.ActionName, "execution_failed").Inc()
		return ActionResponse{}, apierr.Wrap(apierr.CodeUpstreamUnavailable, "executing action", err)
	}
	if !execResult.Succeeded {
		telemetry.ActionPipelineTotal.WithLabelValues(req.ActionName, "execution_failed").Inc()
		return ActionResponse{}, apierr.New(apierr.CodeUpstreamUnavailable, "action execution did not succeed")
	}

	auditCtx := auditContext(req.RequestID, req.CorrelationID)
	consumeResult, err := p.energy.Consume(ctx, userID, req.ActionName, req.AppSource, auditCtx)
	if err != nil {
		return p.compensate(ctx, userID, action, req, err)
	}

	telemetry.ActionPipelineTotal.WithLabelValues(req.ActionName, "succeeded").Inc()
	return ActionResponse{Consume: consumeResult}, nil
}

// compensate is reached when the external action already ran but the
// energy commit failed. Consume attempts its own internal compensation when
// only its event-append step fails, but from here that outcome is
// indistinguishable from one where no debit happened at all, so a
// defensive refund for the action's cost is issued and the anomaly is
// reported rather than silently eaten.
func (p *ActionPipeline) compensate(ctx context.Context, userID uuid.UUID, action catalog.Action, req ActionRequest, commitErr error) (ActionResponse, error) {
	telemetry.ActionPipelineTotal.WithLabelValues(req.ActionName, "commit_failed").Inc()

	cost := float64(action.EnergyCost)
	if cost <= 0 {
		return ActionResponse{}, commitErr
	}

	auditCtx := auditContext(req.RequestID, req.CorrelationID)
	if _, refundErr := p.energy.Refund(ctx, userID, cost, "compensating_refund:"+req.ActionName, req.AppSource, auditCtx); refundErr != nil {
		p.logger.Error("compensating refund failed after commit failure", "user_id", userID, "action", req.ActionName, "error", refundErr, "commit_error", commitErr)
		telemetry.ActionPipelineTotal.WithLabelValues(req.ActionName, "compensation_failed").Inc()
		return ActionResponse{}, commitErr
	}

	telemetry.CompensatingRefundsTotal.Inc()
	telemetry.ActionPipelineTotal.WithLabelValues(req.ActionName, "degraded_success").Inc()
	p.logger.Warn("action executed but energy commit failed; issued compensating refund", "user_id", userID, "action", req.ActionName, "error", commitErr)

	return ActionResponse{
		Degraded: true,
		Anomaly:  "action completed but the energy commit failed; no energy was charged",
	}, nil
}

func (p *ActionPipeline) checkRateLimit(ctx context.Context, userID uuid.UUID, identifier, scope string) error {
	result, err := p.limiter.Check(ctx, userID, identifier, scope)
	if err != nil {
		return err
	}
	switch result.Decision {
	case ratelimit.Allowed:
		return nil
	case ratelimit.Blocked:
		return apierr.New(apierr.CodeBlocked, "too many requests; temporarily blocked").WithDetails(map[string]any{
			"retry_after_seconds": retryAfterSeconds(result.BlockedUntil),
		})
	default:
		return apierr.New(apierr.CodeRateLimited, "rate limit exceeded").WithDetails(map[string]any{
			"retry_after_seconds": retryAfterSeconds(result.BlockedUntil),
		})
	}
}

func retryAfterSeconds(blockedUntil time.Time) int {
	d := time.Until(blockedUntil)
	if d <= 0 {
		return 0
	}
	return int(d.Seconds()) + 1
}

func hasPermission(permissions []string, actionName string) bool {
	for _, p := range permissions {
		if p == actionName {
			return true
		}
	}
	return false
}
