package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/set-night/rewardmarket/internal/domain"
)

func (s *Store) CreateOffer(ctx context.Context, o *domain.Offer) error {
	minVersion, err := json.Marshal(o.MinVersion)
	if err != nil {
		return fmt.Errorf("marshal min version: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO offers (id, title, price, address, active, min_version)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.Title, o.Price, o.Address, o.Active, minVersion)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	return nil
}

func scanOffer(row pgx.Row) (*domain.Offer, error) {
	o := &domain.Offer{}
	var minVersion []byte
	err := row.Scan(&o.ID, &o.Title, &o.Price, &o.Address, &o.Active, &minVersion, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(minVersion, &o.MinVersion); err != nil {
		return nil, fmt.Errorf("unmarshal min version: %w", err)
	}
	return o, nil
}

func (s *Store) GetOffer(ctx context.Context, id string) (*domain.Offer, error) {
	o, err := scanOffer(s.pool.QueryRow(ctx, `
		SELECT id, title, price, address, active, min_version, created_at FROM offers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

func (s *Store) ListOffers(ctx context.Context) ([]*domain.Offer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, price, address, active, min_version, created_at FROM offers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var offers []*domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

func (s *Store) AddGood(ctx context.Context, offerID, value string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO goods (offer_id, value) VALUES ($1, $2) RETURNING id`, offerID, value).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add good: %w", err)
	}
	return id, nil
}

// ClaimGood picks one unreserved good of the offer under a row lock and stamps
// it with the order id. SKIP LOCKED keeps concurrent claimers from queuing on
// the same row, so a burst of buyers drains the pool without ever handing out
// one good twice.
func (s *Store) ClaimGood(ctx context.Context, offerID, orderID string) (int64, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var goodID int64
	err = tx.QueryRow(ctx, `
		SELECT id FROM goods
		WHERE offer_id = $1 AND order_id IS NULL
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, offerID).Scan(&goodID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil // sold out
		}
		return 0, false, fmt.Errorf("select good: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE goods SET order_id = $1 WHERE id = $2`, orderID, goodID); err != nil {
		return 0, false, fmt.Errorf("reserve good: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}
	return goodID, true, nil
}

// FinalizeGood consumes the good reserved by the order. The row lock plus the
// tx_hash IS NULL predicate make a second finalize find nothing.
func (s *Store) FinalizeGood(ctx context.Context, orderID, txHash string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `
		UPDATE goods SET tx_hash = $1
		WHERE id = (
			SELECT id FROM goods
			WHERE order_id = $2 AND tx_hash IS NULL
			FOR UPDATE
		)
		RETURNING value`, txHash, orderID).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrGoodNotFound
		}
		return "", fmt.Errorf("finalize good: %w", err)
	}
	return value, nil
}

func (s *Store) ReleaseGood(ctx context.Context, orderID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE goods SET order_id = NULL WHERE order_id = $1 AND tx_hash IS NULL`, orderID)
	if err != nil {
		return fmt.Errorf("release good: %w", err)
	}
	return nil
}

func (s *Store) ReleaseExpiredGoods(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	tag, err := s.pool.Exec(ctx, `
		UPDATE goods g SET order_id = NULL
		WHERE g.tx_hash IS NULL AND g.order_id IS NOT NULL
		AND NOT EXISTS (
			SELECT 1 FROM orders o
			WHERE o.id = g.order_id AND o.deleted_at IS NULL AND o.created_at > $1
		)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release expired goods: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) AvailableCount(ctx context.Context, offerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM goods WHERE offer_id = $1 AND order_id IS NULL`, offerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("available count: %w", err)
	}
	return n, nil
}

func (s *Store) TotalCount(ctx context.Context, offerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM goods WHERE offer_id = $1`, offerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("total count: %w", err)
	}
	return n, nil
}
