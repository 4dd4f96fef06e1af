package postgres

import (
	"context"
	"fmt"
	"time"
)

// AcquireLease is a non-blocking SetIfAbsent with expiry. A stale lease (a
// holder that crashed without releasing) is taken over once its expiry passes,
// so a crash never deadlocks a key.
func (s *Store) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	expiresAt := time.Now().Add(ttl)
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO leases (key, expires_at) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET expires_at = $2
		WHERE leases.expires_at <= now()`, key, expiresAt)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseLease(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM leases WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
