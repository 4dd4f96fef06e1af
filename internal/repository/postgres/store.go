// Package postgres implements repository.Store on a pgx connection pool.
// Exclusivity-sensitive operations (ClaimGood, SettleOrder) use row locks
// inside a single local transaction and never hold them across a network
// round trip.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/set-night/rewardmarket/internal/repository"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// isUniqueViolation reports whether err is a postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
