// Package dbtx defines the minimal database handle interface shared by every
// store. Both *pgxpool.Pool and pgx.Tx satisfy it, so stores can run inside
// or outside an explicit transaction without changing their signatures.
package dbtx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner is satisfied by *pgxpool.Pool: stores that need an explicit
// transaction (the Energy Ledger's atomic consume/refund/purchase paths)
// depend on this narrower interface instead of the concrete pool type.
type Beginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}
