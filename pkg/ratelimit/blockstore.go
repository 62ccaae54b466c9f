package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lunahub/hub/internal/dbtx"
)

// BlockStore persists short-lived block records in the `rate_limits` table,
// indexed by (scope, identifier_hash).
type BlockStore struct {
	dbtx dbtx.DBTX
}

// NewBlockStore creates a BlockStore backed by the given database handle.
func NewBlockStore(handle dbtx.DBTX) *BlockStore {
	return &BlockStore{dbtx: handle}
}

// Get returns the blocked_until timestamp for (scope, hash), if a block
// record exists.
func (s *BlockStore) Get(ctx context.Context, scope, hash string) (time.Time, bool, error) {
	var blockedUntil time.Time
	err := s.dbtx.QueryRow(ctx,
		`SELECT blocked_until FROM rate_limits WHERE scope = $1 AND identifier_hash = $2`,
		scope, hash,
	).Scan(&blockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("fetching rate limit block: %w", err)
	}
	return blockedUntil, true, nil
}

// Upsert creates or refreshes the block record for (scope, hash).
func (s *BlockStore) Upsert(ctx context.Context, scope, hash string, blockedUntil time.Time) error {
	_, err := s.dbtx.Exec(ctx, `
		INSERT INTO rate_limits (scope, identifier_hash, blocked_until, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (scope, identifier_hash)
		DO UPDATE SET blocked_until = excluded.blocked_until, updated_at = now()
	`, scope, hash, blockedUntil)
	if err != nil {
		return fmt.Errorf("upserting rate limit block: %w", err)
	}
	return nil
}

// ReapExpired deletes every block record whose blocked_until has passed,
// returning the number removed. Run periodically by the background worker
// so the rate_limits table doesn't grow unbounded with stale blocks.
func (s *BlockStore) ReapExpired(ctx context.Context) (int64, error) {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM rate_limits WHERE blocked_until < now()`)
	if err != nil {
		return 0, fmt.Errorf("reaping expired rate limit blocks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes the block record for (scope, hash), used by the admin reset
// operation.
func (s *BlockStore) Delete(ctx context.Context, scope, hash string) error {
	_, err := s.dbtx.Exec(ctx, `DELETE FROM rate_limits WHERE scope = $1 AND identifier_hash = $2`, scope, hash)
	if err != nil {
		return fmt.Errorf("deleting rate limit block: %w", err)
	}
	return nil
}
