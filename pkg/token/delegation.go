package token

import (
	"context"
	"time"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/telemetry"
)

// specialistPolicy bounds what a parent token may delegate to a given
// specialist: the permissions it is allowed to carry forward and the
// longest-lived child token it may mint. There is no YAML-driven config for
// this table; it changes only when a new specialist ships, which is a code
// change in its own right.
type specialistPolicy struct {
	allowedPermissions map[string]bool
	maxTTL             time.Duration
}

var specialistPolicies = map[string]specialistPolicy{
	SpecialistAube: {
		allowedPermissions: permSet("chat", "voice"),
		maxTTL:             30 * time.Minute,
	},
	SpecialistCV: {
		allowedPermissions: permSet("document_read", "document_write"),
		maxTTL:             15 * time.Minute,
	},
	SpecialistLetters: {
		allowedPermissions: permSet("document_read", "document_write", "chat"),
		maxTTL:             15 * time.Minute,
	},
	SpecialistRise: {
		allowedPermissions: permSet("chat", "progress_read"),
		maxTTL:             30 * time.Minute,
	},
}

func permSet(perms ...string) map[string]bool {
	m := make(map[string]bool, len(perms))
	for _, p := range perms {
		m[p] = true
	}
	return m
}

// Delegate mints a scoped child token on behalf of a parent token, restricted
// to specialistName. parentJTI is the registered jti of the token being
// delegated from, carried forward on the child for revocation-chain lookups.
// The parent must not itself be a child (no sub-delegation); requested
// permissions must be a subset of the specialist's allow-list; the requested
// duration is clamped to the specialist's policy ceiling rather than
// rejected outright.
func (s *Service) Delegate(ctx context.Context, parent Claims, parentJTI, specialistName string, requestedPermissions []string, requestedTTL time.Duration, delegCtx DelegationContext) (IssuedToken, error) {
	if parent.IsChild() {
		return IssuedToken{}, apierr.New(apierr.CodeInvalidToken, "specialist tokens cannot delegate further")
	}

	policy, ok := specialistPolicies[specialistName]
	if !ok {
		return IssuedToken{}, apierr.Newf(apierr.CodeInvalidInput, "unknown specialist %q", specialistName)
	}

	for _, p := range requestedPermissions {
		if !policy.allowedPermissions[p] {
			return IssuedToken{}, apierr.Newf(apierr.CodeInvalidInput, "specialist %q is not permitted %q", specialistName, p)
		}
	}

	ttl := requestedTTL
	if ttl <= 0 || ttl > policy.maxTTL {
		ttl = policy.maxTTL
	}

	childClaims := Claims{
		Subject:               parent.Subject,
		SessionID:             parent.SessionID,
		LunaContext:           parent.LunaContext,
		SpecialistName:        specialistName,
		SpecialistPermissions: requestedPermissions,
		DelegationContext:     &delegCtx,
		ParentJTI:             parentJTI,
	}

	issued, err := s.signer.Issue(childClaims, ttl)
	if err != nil {
		return IssuedToken{}, apierr.Wrap(apierr.CodeInternal, "issuing specialist token", err)
	}

	telemetry.TokensIssuedTotal.WithLabelValues("specialist").Inc()

	if s.events != nil {
		if userUUID, parseErr := parseUUID(parent.Subject); parseErr == nil {
			_, _ = s.events.Append(ctx, userUUID, "specialist_token_delegated", "token", map[string]any{
				"specialist_name": specialistName,
				"permissions":     requestedPermissions,
				"target_module":   delegCtx.TargetModule,
				"reason":          delegCtx.Reason,
				"parent_jti":      parentJTI,
			}, nil)
		}
	}

	return issued, nil
}
