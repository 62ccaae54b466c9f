package token

import (
	"time"

	"github.com/google/uuid"
)

// Session tracks one logical login across its refresh-token rotation chain.
type Session struct {
	SessionID   uuid.UUID
	UserID      uuid.UUID
	DeviceLabel string
	IP          string
	UserAgent   string
	CreatedAt   time.Time
	LastSeen    time.Time
	RevokedAt   *time.Time
}

// IsRevoked reports whether the session has been explicitly revoked.
func (s Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// RefreshToken is an opaque rotation-chain entry; only its SHA-256 hash is
// ever persisted.
type RefreshToken struct {
	ID               uuid.UUID
	SessionID        uuid.UUID
	UserID           uuid.UUID
	RefreshTokenHash string
	JTI              string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	ParentID         *uuid.UUID
}

// IsValid reports whether the token is usable: not revoked and not expired.
func (r RefreshToken) IsValid(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}
