package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier abstracts over *pgxpool.Pool and pgx.Tx so every store method can
// run either standalone or inside the caller's enclosing transaction — the
// audit store's append contract requires the latter ("append
// is atomic with the caller's enclosing transaction").
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}
