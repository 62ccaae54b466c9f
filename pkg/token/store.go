package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lunahub/hub/internal/dbtx"
)

// Store provides access to the sessions and refresh_tokens tables, owned
// exclusively by the Token Service.
type Store struct {
	dbtx dbtx.DBTX
}

// NewStore creates a Store backed by the given database handle.
func NewStore(handle dbtx.DBTX) *Store {
	return &Store{dbtx: handle}
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.dbtx.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, device_label, ip, user_agent, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sess.SessionID, sess.UserID, sess.DeviceLabel, sess.IP, sess.UserAgent, sess.CreatedAt, sess.LastSeen)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (Session, error) {
	var sess Session
	err := s.dbtx.QueryRow(ctx, `
		SELECT session_id, user_id, device_label, ip, user_agent, created_at, last_seen, revoked_at
		FROM sessions WHERE session_id = $1
	`, sessionID).Scan(&sess.SessionID, &sess.UserID, &sess.DeviceLabel, &sess.IP, &sess.UserAgent, &sess.CreatedAt, &sess.LastSeen, &sess.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, pgx.ErrNoRows
		}
		return Session{}, fmt.Errorf("fetching session: %w", err)
	}
	return sess, nil
}

// ListActiveSessions returns every non-revoked session for userID, most
// recently seen first.
func (s *Store) ListActiveSessions(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	rows, err := s.dbtx.Query(ctx, `
		SELECT session_id, user_id, device_label, ip, user_agent, created_at, last_seen, revoked_at
		FROM sessions WHERE user_id = $1 AND revoked_at IS NULL
		ORDER BY last_seen DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.SessionID, &sess.UserID, &sess.DeviceLabel, &sess.IP, &sess.UserAgent, &sess.CreatedAt, &sess.LastSeen, &sess.RevokedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// RevokeSession marks a session revoked.
func (s *Store) RevokeSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE sessions SET revoked_at = now() WHERE session_id = $1 AND revoked_at IS NULL`, sessionID)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// TouchSession updates last_seen to now.
func (s *Store) TouchSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE sessions SET last_seen = now() WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// CreateRefreshToken inserts a new refresh token row.
func (s *Store) CreateRefreshToken(ctx context.Context, rt RefreshToken) error {
	_, err := s.dbtx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, session_id, user_id, token_hash, jti, created_at, expires_at, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rt.ID, rt.SessionID, rt.UserID, rt.RefreshTokenHash, rt.JTI, rt.CreatedAt, rt.ExpiresAt, rt.ParentID)
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

// GetRefreshTokenByHash fetches a refresh token by its SHA-256 hash.
func (s *Store) GetRefreshTokenByHash(ctx context.Context, hash string) (RefreshToken, error) {
	var rt RefreshToken
	err := s.dbtx.QueryRow(ctx, `
		SELECT id, session_id, user_id, token_hash, jti, created_at, expires_at, revoked_at, parent_id
		FROM refresh_tokens WHERE token_hash = $1
	`, hash).Scan(&rt.ID, &rt.SessionID, &rt.UserID, &rt.RefreshTokenHash, &rt.JTI, &rt.CreatedAt, &rt.ExpiresAt, &rt.RevokedAt, &rt.ParentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshToken{}, pgx.ErrNoRows
		}
		return RefreshToken{}, fmt.Errorf("fetching refresh token: %w", err)
	}
	return rt, nil
}

// RevokeRefreshToken marks a single refresh token revoked.
func (s *Store) RevokeRefreshToken(ctx context.Context, id uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

// RevokeChain revokes every refresh token belonging to sessionID and the
// session itself, used on reuse detection.
func (s *Store) RevokeChain(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE session_id = $1 AND revoked_at IS NULL`, sessionID)
	if err != nil {
		return fmt.Errorf("revoking refresh token chain: %w", err)
	}
	return s.RevokeSession(ctx, sessionID)
}
