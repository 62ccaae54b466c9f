package token

import (
	"testing"
	"time"
)

func TestSessionIsRevoked(t *testing.T) {
	s := Session{}
	if s.IsRevoked() {
		t.Error("expected fresh session to not be revoked")
	}
	now := time.Now()
	s.RevokedAt = &now
	if !s.IsRevoked() {
		t.Error("expected session with RevokedAt set to be revoked")
	}
}

func TestRefreshTokenIsValid(t *testing.T) {
	now := time.Now()

	valid := RefreshToken{ExpiresAt: now.Add(time.Hour)}
	if !valid.IsValid(now) {
		t.Error("expected unexpired, unrevoked token to be valid")
	}

	expired := RefreshToken{ExpiresAt: now.Add(-time.Hour)}
	if expired.IsValid(now) {
		t.Error("expected expired token to be invalid")
	}

	revokedAt := now.Add(-time.Minute)
	revoked := RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}
	if revoked.IsValid(now) {
		t.Error("expected revoked token to be invalid even if unexpired")
	}
}
