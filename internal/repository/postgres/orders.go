package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/set-night/rewardmarket/internal/domain"
)

func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, offer_id, amount, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.UserID, o.OfferID, o.Amount, o.Address, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o := &domain.Order{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, offer_id, amount, address, created_at, deleted_at
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.UserID, &o.OfferID, &o.Amount, &o.Address, &o.CreatedAt, &o.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *Store) ActiveOrders(ctx context.Context, userID string, ttl time.Duration) ([]*domain.Order, error) {
	cutoff := time.Now().Add(-ttl)
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, offer_id, amount, address, created_at, deleted_at
		FROM orders
		WHERE user_id = $1 AND deleted_at IS NULL AND created_at > $2
		ORDER BY created_at`, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("active orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o := &domain.Order{}
		if err := rows.Scan(&o.ID, &o.UserID, &o.OfferID, &o.Amount, &o.Address, &o.CreatedAt, &o.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) MarkOrderDeleted(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark order deleted: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a double delete from a missing row.
	var deletedAt *time.Time
	err = s.pool.QueryRow(ctx, `SELECT deleted_at FROM orders WHERE id = $1`, id).Scan(&deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("check order: %w", err)
	}
	return domain.ErrOrderDeleted
}

func (s *Store) DropOrder(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("drop order: %w", err)
	}
	return nil
}

func (s *Store) PurgeOrders(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM orders
		WHERE created_at < $1
		AND NOT EXISTS (SELECT 1 FROM goods g WHERE g.order_id = orders.id AND g.tx_hash IS NULL)`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge orders: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) LiveOrderCount(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM orders WHERE deleted_at IS NULL AND created_at > $1`, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("live order count: %w", err)
	}
	return n, nil
}
