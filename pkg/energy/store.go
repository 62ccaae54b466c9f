package energy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lunahub/hub/internal/dbtx"
)

// Store provides transactional access to the user_energy and
// energy_transactions tables.
type Store struct {
	db dbtx.Beginner
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(db dbtx.Beginner) *Store {
	return &Store{db: db}
}

// GetOrCreate returns the UserEnergy row for userID, lazily provisioning one
// with startingEnergy if absent.
func (s *Store) GetOrCreate(ctx context.Context, userID uuid.UUID, startingEnergy, maxEnergy float64) (UserEnergy, error) {
	row, err := s.get(ctx, s.db, userID)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return UserEnergy{}, err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO user_energy (user_id, current_energy, max_energy, total_consumed, total_purchased, subscription_type, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4, now())
		ON CONFLICT (user_id) DO NOTHING
	`, userID, startingEnergy, maxEnergy, PlanFree)
	if err != nil {
		return UserEnergy{}, fmt.Errorf("provisioning user energy: %w", err)
	}

	return s.get(ctx, s.db, userID)
}

func (s *Store) get(ctx context.Context, q dbtx.DBTX, userID uuid.UUID) (UserEnergy, error) {
	var u UserEnergy
	err := q.QueryRow(ctx, `
		SELECT user_id, current_energy, max_energy, total_consumed, total_purchased, subscription_type, updated_at
		FROM user_energy WHERE user_id = $1
	`, userID).Scan(&u.UserID, &u.CurrentEnergy, &u.MaxEnergy, &u.TotalConsumed, &u.TotalPurchased, &u.SubscriptionType, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserEnergy{}, pgx.ErrNoRows
		}
		return UserEnergy{}, fmt.Errorf("fetching user energy: %w", err)
	}
	return u, nil
}

// Get reads the current UserEnergy row without provisioning.
func (s *Store) Get(ctx context.Context, userID uuid.UUID) (UserEnergy, error) {
	return s.get(ctx, s.db, userID)
}

// ApplyMutation executes fn inside a database transaction, passing a
// transaction-scoped handle, and commits iff fn succeeds. Used by the
// Ledger's consume/refund/purchase paths so that the balance mutation and
// its transaction row are written together or not at all; the Ledger
// appends the matching event after the commit, outside this transaction.
func (s *Store) ApplyMutation(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetForUpdate reads the UserEnergy row with a row lock, for use inside a
// transaction started by ApplyMutation (single-writer discipline per user
// row).
func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (UserEnergy, error) {
	var u UserEnergy
	err := tx.QueryRow(ctx, `
		SELECT user_id, current_energy, max_energy, total_consumed, total_purchased, subscription_type, updated_at
		FROM user_energy WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&u.UserID, &u.CurrentEnergy, &u.MaxEnergy, &u.TotalConsumed, &u.TotalPurchased, &u.SubscriptionType, &u.UpdatedAt)
	if err != nil {
		return UserEnergy{}, fmt.Errorf("locking user energy row: %w", err)
	}
	return u, nil
}

// UpdateBalance writes the new balance fields for userID inside tx.
func (s *Store) UpdateBalance(ctx context.Context, tx pgx.Tx, u UserEnergy) error {
	_, err := tx.Exec(ctx, `
		UPDATE user_energy
		SET current_energy = $2, max_energy = $3, total_consumed = $4, total_purchased = $5,
		    subscription_type = $6, updated_at = now()
		WHERE user_id = $1
	`, u.UserID, u.CurrentEnergy, u.MaxEnergy, u.TotalConsumed, u.TotalPurchased, u.SubscriptionType)
	if err != nil {
		return fmt.Errorf("updating user energy: %w", err)
	}
	return nil
}

// InsertTransaction appends an EnergyTransaction row inside tx.
func (s *Store) InsertTransaction(ctx context.Context, tx pgx.Tx, t EnergyTransaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO energy_transactions (transaction_id, user_id, action_type, amount, reason, energy_before, energy_after, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.TransactionID, t.UserID, t.ActionType, t.Amount, t.Reason, t.EnergyBefore, t.EnergyAfter, contextJSON(t.Context), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting energy transaction: %w", err)
	}
	return nil
}

func contextJSON(m map[string]any) []byte {
	if m == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}
