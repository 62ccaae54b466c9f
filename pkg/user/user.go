// Package user provides the account record backing login and registration:
// email/password identity, independent of the session and delegation
// machinery owned by pkg/token.
package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/dbtx"
)

// User is one registered account.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Store provides access to the users table.
type Store struct {
	dbtx dbtx.DBTX
}

// NewStore creates a Store backed by the given database handle.
func NewStore(handle dbtx.DBTX) *Store {
	return &Store{dbtx: handle}
}

// Create inserts a new user with the given email and pre-hashed password.
// A duplicate email is reported as InvalidInput rather than the underlying
// constraint violation.
func (s *Store) Create(ctx context.Context, email, passwordHash string) (User, error) {
	u := User{ID: uuid.New(), Email: email, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}

	_, err := s.dbtx.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, apierr.New(apierr.CodeInvalidInput, "an account with this email already exists")
		}
		return User{}, apierr.Wrap(apierr.CodeInternal, "creating user", err)
	}
	return u, nil
}

// GetByEmail fetches a user by email.
func (s *Store) GetByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.dbtx.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, apierr.New(apierr.CodeUnauthenticated, "invalid email or password")
		}
		return User{}, apierr.Wrap(apierr.CodeInternal, "fetching user", err)
	}
	return u, nil
}

// GetByID fetches a user by id.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := s.dbtx.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, apierr.New(apierr.CodeInvalidInput, "user not found")
		}
		return User{}, apierr.Wrap(apierr.CodeInternal, "fetching user", err)
	}
	return u, nil
}

