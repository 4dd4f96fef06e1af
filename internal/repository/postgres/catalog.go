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

func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO categories (id, title) VALUES ($1, $2)`, c.ID, c.Title)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	minVersion, err := json.Marshal(t.MinVersion)
	if err != nil {
		return fmt.Errorf("marshal min version: %w", err)
	}
	items, err := json.Marshal(t.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (id, category_id, title, task_type, position, price, delay_days, min_version, excluded_countries, start_date, expiration_date, items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.CategoryID, t.Title, t.Type, t.Position, t.Price, t.DelayDays,
		minVersion, t.ExcludedCountries, t.StartDate, t.ExpirationDate, items)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

const taskColumns = `id, category_id, title, task_type, position, price, delay_days, min_version, excluded_countries, start_date, expiration_date, items, created_at`

func scanTask(row pgx.Row) (*domain.Task, error) {
	t := &domain.Task{}
	var minVersion, items []byte
	err := row.Scan(&t.ID, &t.CategoryID, &t.Title, &t.Type, &t.Position, &t.Price, &t.DelayDays,
		&minVersion, &t.ExcludedCountries, &t.StartDate, &t.ExpirationDate, &items, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(minVersion, &t.MinVersion); err != nil {
		return nil, fmt.Errorf("unmarshal min version: %w", err)
	}
	if err := json.Unmarshal(items, &t.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *Store) TasksByCategory(ctx context.Context, categoryID string) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE category_id = $1
		ORDER BY position, start_date NULLS FIRST, id`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("tasks by category: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) GetProgress(ctx context.Context, userID, categoryID string) (*domain.CategoryProgress, error) {
	p := &domain.CategoryProgress{UserID: userID, CategoryID: categoryID}
	err := s.pool.QueryRow(ctx, `
		SELECT completed_task_ids, next_eligible_at FROM category_progress
		WHERE user_id = $1 AND category_id = $2`, userID, categoryID).
		Scan(&p.CompletedTaskIDs, &p.NextEligibleAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, nil
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

func (s *Store) RecordCompletion(ctx context.Context, userID, categoryID, taskID string, nextEligibleAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO category_progress (user_id, category_id, completed_task_ids, next_eligible_at)
		VALUES ($1, $2, ARRAY[$3], $4)
		ON CONFLICT (user_id, category_id) DO UPDATE
		SET completed_task_ids = CASE
				WHEN category_progress.completed_task_ids @> ARRAY[$3::text]
				THEN category_progress.completed_task_ids
				ELSE array_append(category_progress.completed_task_ids, $3)
			END,
			next_eligible_at = $4`,
		userID, categoryID, taskID, nextEligibleAt)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}
