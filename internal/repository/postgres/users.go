package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/set-night/rewardmarket/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, wallet_address, phone_hash, country_code, utc_offset_minutes, platform, client_version, device_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.WalletAddress, u.PhoneHash, u.CountryCode, u.UTCOffsetMinutes, u.Platform, u.ClientVersion, u.DeviceToken)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, wallet_address, phone_hash, country_code, utc_offset_minutes, platform, client_version, device_token, created_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.WalletAddress, &u.PhoneHash, &u.CountryCode, &u.UTCOffsetMinutes, &u.Platform, &u.ClientVersion, &u.DeviceToken, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) UserIDsByPhoneHash(ctx context.Context, phoneHash string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users WHERE phone_hash = $1`, phoneHash)
	if err != nil {
		return nil, fmt.Errorf("users by phone hash: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
