package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/set-night/rewardmarket/internal/domain"
)

// SettleOrder runs the whole redemption finalization in one transaction: the
// ledger row insert (hash primary key), the good's tx_hash stamp under a row
// lock, and the order tombstone. If the hash was already credited the insert
// conflicts and nothing else happens.
func (s *Store) SettleOrder(ctx context.Context, txn *domain.Transaction, orderID string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (hash, user_id, amount, direction, task_id, offer_id, memo)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		txn.Hash, txn.UserID, txn.Amount, txn.Direction, txn.TaskID, txn.OfferID, txn.Memo)
	if err != nil {
		if isUniqueViolation(err) {
			return "", domain.ErrDuplicateTransaction
		}
		return "", fmt.Errorf("insert transaction: %w", err)
	}

	var value string
	err = tx.QueryRow(ctx, `
		UPDATE goods SET tx_hash = $1
		WHERE id = (
			SELECT id FROM goods
			WHERE order_id = $2 AND tx_hash IS NULL
			FOR UPDATE
		)
		RETURNING value`, txn.Hash, orderID).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrGoodNotFound
		}
		return "", fmt.Errorf("finalize good: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, orderID); err != nil {
		return "", fmt.Errorf("close order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return value, nil
}

func (s *Store) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (hash, user_id, amount, direction, task_id, offer_id, memo)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		txn.Hash, txn.UserID, txn.Amount, txn.Direction, txn.TaskID, txn.OfferID, txn.Memo)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateTransaction
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) TransactionsByUserTask(ctx context.Context, userID, taskID string) ([]*domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT hash, user_id, amount, direction, task_id, offer_id, memo, created_at
		FROM transactions WHERE user_id = $1 AND task_id = $2
		ORDER BY created_at`, userID, taskID)
	if err != nil {
		return nil, fmt.Errorf("transactions by user task: %w", err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		t := &domain.Transaction{}
		if err := rows.Scan(&t.Hash, &t.UserID, &t.Amount, &t.Direction, &t.TaskID, &t.OfferID, &t.Memo, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (s *Store) InsertResult(ctx context.Context, r *domain.TaskResult) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO task_results (id, user_id, task_id, answers)
		VALUES ($1, $2, $3, $4)`,
		r.ID, r.UserID, r.TaskID, answers)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) GetPayoutByUsers(ctx context.Context, userIDs []string, taskID string) (*domain.Payout, error) {
	p := &domain.Payout{}
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, task_id, memo, amount, tx_hash, created_at
		FROM payouts WHERE task_id = $1 AND user_id = ANY($2::uuid[])
		LIMIT 1`, taskID, userIDs).
		Scan(&p.UserID, &p.TaskID, &p.Memo, &p.Amount, &p.TxHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return p, nil
}

func (s *Store) InsertPayout(ctx context.Context, p *domain.Payout) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payouts (user_id, task_id, memo, amount)
		VALUES ($1, $2, $3, $4)`,
		p.UserID, p.TaskID, p.Memo, p.Amount)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateTransaction
		}
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (s *Store) SetPayoutTxHash(ctx context.Context, userID, taskID, txHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE payouts SET tx_hash = $1 WHERE user_id = $2 AND task_id = $3`,
		txHash, userID, taskID)
	if err != nil {
		return fmt.Errorf("set payout tx hash: %w", err)
	}
	return nil
}
