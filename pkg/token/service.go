package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/telemetry"
	"github.com/lunahub/hub/pkg/eventstore"
)

// Service is the Token Service: issues parent access/refresh tokens,
// rotates refresh tokens with reuse detection, and delegates scoped
// specialist tokens.
type Service struct {
	signer        *Signer
	store         *Store
	events        *eventstore.Store
	logger        *slog.Logger
	accessTTL     time.Duration
	refreshTTL    time.Duration
	specialistTTL time.Duration
}

// NewService creates a Service.
func NewService(signer *Signer, store *Store, events *eventstore.Store, accessTTL, refreshTTL, specialistTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		signer:        signer,
		store:         store,
		events:        events,
		logger:        logger,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		specialistTTL: specialistTTL,
	}
}

// LoginResult bundles the tokens and session issued on a successful login.
type LoginResult struct {
	AccessToken  IssuedToken
	RefreshToken string
	SessionID    uuid.UUID
}

// Login creates a new session, issues a parent access token and an opaque
// refresh token, and records session_created / login_succeeded events.
func (s *Service) Login(ctx context.Context, userID uuid.UUID, deviceLabel, ip, userAgent string, lunaCtx LunaContext, scope []string) (LoginResult, error) {
	sessionID := uuid.New()
	now := time.Now().UTC()

	if err := s.store.CreateSession(ctx, Session{
		SessionID:   sessionID,
		UserID:      userID,
		DeviceLabel: deviceLabel,
		IP:          ip,
		UserAgent:   userAgent,
		CreatedAt:   now,
		LastSeen:    now,
	}); err != nil {
		return LoginResult{}, apierr.Wrap(apierr.CodeInternal, "creating session", err)
	}

	access, err := s.signer.Issue(Claims{
		Subject:           userID.String(),
		SessionID:         sessionID.String(),
		LunaContext:       lunaCtx,
		MicroserviceScope: scope,
	}, s.accessTTL)
	if err != nil {
		return LoginResult{}, apierr.Wrap(apierr.CodeInternal, "issuing access token", err)
	}

	refreshRaw, refreshHash, err := newOpaqueToken()
	if err != nil {
		return LoginResult{}, apierr.Wrap(apierr.CodeInternal, "generating refresh token", err)
	}

	if err := s.store.CreateRefreshToken(ctx, RefreshToken{
		ID:               uuid.New(),
		SessionID:        sessionID,
		UserID:           userID,
		RefreshTokenHash: refreshHash,
		JTI:              access.JTI,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.refreshTTL),
	}); err != nil {
		return LoginResult{}, apierr.Wrap(apierr.CodeInternal, "creating refresh token", err)
	}

	if s.events != nil {
		_, _ = s.events.Append(ctx, userID, eventstore.TypeSessionCreated, "token", map[string]any{"session_id": sessionID.String()}, nil)
		_, _ = s.events.Append(ctx, userID, eventstore.TypeLoginSucceeded, "token", map[string]any{"device_label": deviceLabel}, nil)
	}

	telemetry.TokensIssuedTotal.WithLabelValues("access").Inc()
	telemetry.TokensIssuedTotal.WithLabelValues("refresh").Inc()

	return LoginResult{AccessToken: access, RefreshToken: refreshRaw, SessionID: sessionID}, nil
}

// Refresh rotates a refresh token: validates it, revokes it, and issues a
// fresh access+refresh pair bound to the same session. Reuse of an
// already-rotated or revoked token revokes the entire session chain.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string, lunaCtx LunaContext, scope []string) (LoginResult, error) {
	hash := hashOpaqueToken(rawRefreshToken)

	rt, err := s.store.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		return LoginResult{}, apierr.New(apierr.CodeInvalidToken, "invalid refresh token")
	}

	now := time.Now()
	if !rt.IsValid(now) {
		// Reuse of a revoked token (or an expired one submitted after the
		// fact) is treated as compromise: revoke the whole chain.
		if revokeErr := s.store.RevokeChain(ctx, rt.SessionID); revokeErr != nil {
			s.logger.Error("failed to revoke session chain on refresh reuse", "session_id", rt.SessionID, "error", revokeErr)
		}
		if s.events != nil {
			_, _ = s.events.Append(ctx, rt.UserID, "session_revoked_all", "token", map[string]any{"session_id": rt.SessionID.String()}, nil)
		}
		telemetry.SessionsRevokedTotal.Inc()
		return LoginResult{}, apierr.New(apierr.CodeInvalidToken, "refresh token reuse detected, session revoked")
	}

	if err := s.store.RevokeRefreshToken(ctx, rt.ID); err != nil {
		return LoginResult{}, apierr.Wrap(apierr.CodeInternal, "revoking used refresh token", err)
	}

	access, err := s.signer.Issue(Claims{
		Subject:           rt.UserID.String(),
		SessionID:         rt.SessionID.String(),
		LunaContext:       lunaCtx,
		MicroserviceScope: scope,
	}, s.accessTTL)
	if err != nil {
		return LoginResult{}, apierr.Wrap(apierr.CodeInternal, "issuing access token", err)
	}

	newRaw, newHash, err := newOpaqueToken()
	if err != nil {
		return LoginResult{}, apierr.Wrap(apierr.CodeInternal, "generating refresh token", err)
	}

	parentID := rt.ID
	if err := s.store.CreateRefreshToken(ctx, RefreshToken{
		ID:               uuid.New(),
		SessionID:        rt.SessionID,
		UserID:           rt.UserID,
		RefreshTokenHash: newHash,
		JTI:              access.JTI,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.refreshTTL),
		ParentID:         &parentID,
	}); err != nil {
		return LoginResult{}, apierr.Wrap(apierr.CodeInternal, "creating refresh token", err)
	}

	if err := s.store.TouchSession(ctx, rt.SessionID); err != nil {
		s.logger.Warn("failed to touch session on refresh", "session_id", rt.SessionID, "error", err)
	}

	telemetry.TokensIssuedTotal.WithLabelValues("access").Inc()
	telemetry.TokensIssuedTotal.WithLabelValues("refresh").Inc()

	return LoginResult{AccessToken: access, RefreshToken: newRaw, SessionID: rt.SessionID}, nil
}

// Revoke revokes a session and its entire refresh-token chain (explicit
// logout).
func (s *Service) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.store.RevokeChain(ctx, sessionID); err != nil {
		return apierr.Wrap(apierr.CodeInternal, "revoking session", err)
	}
	telemetry.SessionsRevokedTotal.Inc()
	return nil
}

// GetSession fetches a session by id, used to check ownership before a
// targeted revoke.
func (s *Service) GetSession(ctx context.Context, sessionID uuid.UUID) (Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, apierr.New(apierr.CodeInvalidInput, "session not found")
	}
	return sess, nil
}

// ListSessions returns every active session for userID.
func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	sessions, err := s.store.ListActiveSessions(ctx, userID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, "listing sessions", err)
	}
	return sessions, nil
}

// RevokeAllExcept revokes every active session belonging to userID other
// than keepSessionID, used by the logout-all-devices endpoint.
func (s *Service) RevokeAllExcept(ctx context.Context, userID, keepSessionID uuid.UUID) (int, error) {
	sessions, err := s.store.ListActiveSessions(ctx, userID)
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeInternal, "listing sessions", err)
	}

	revoked := 0
	for _, sess := range sessions {
		if sess.SessionID == keepSessionID {
			continue
		}
		if err := s.store.RevokeChain(ctx, sess.SessionID); err != nil {
			return revoked, apierr.Wrap(apierr.CodeInternal, "revoking session", err)
		}
		revoked++
	}
	telemetry.SessionsRevokedTotal.Add(float64(revoked))
	return revoked, nil
}

// ValidateAccess verifies an access token's signature and expiry. Access
// tokens are stateless; session revocation takes effect on the next refresh,
// not by invalidating already-issued access tokens early.
func (s *Service) ValidateAccess(raw string) (Claims, error) {
	claims, _, err := s.signer.Validate(raw)
	return claims, err
}

// ValidateParentToken validates raw the same way ValidateAccess does, but
// also returns its registered jti, needed by the delegate-specialist
// endpoint to stamp the child token's parent_jti.
func (s *Service) ValidateParentToken(raw string) (Claims, string, error) {
	claims, registered, err := s.signer.Validate(raw)
	if err != nil {
		return Claims{}, "", err
	}
	return claims, registered.ID, nil
}

func newOpaqueToken() (raw, hash string, err error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating random token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, hashOpaqueToken(raw), nil
}

func hashOpaqueToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
