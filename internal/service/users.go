package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/repository"
)

type UserService struct {
	store repository.Store
}

func NewUserService(store repository.Store) *UserService {
	return &UserService{store: store}
}

type RegisterParams struct {
	WalletAddress    string
	PhoneHash        *string
	CountryCode      string
	UTCOffsetMinutes int
	Platform         domain.Platform
	ClientVersion    string
	DeviceToken      string
}

func (s *UserService) Register(ctx context.Context, p RegisterParams) (*domain.User, error) {
	if p.WalletAddress == "" {
		return nil, fmt.Errorf("%w: wallet address required", domain.ErrInvalidInput)
	}
	if p.Platform != domain.PlatformIOS && p.Platform != domain.PlatformAndroid {
		return nil, fmt.Errorf("%w: unknown platform %q", domain.ErrInvalidInput, p.Platform)
	}
	// Offsets outside UTC-12..UTC+14 do not exist.
	if p.UTCOffsetMinutes < -12*60 || p.UTCOffsetMinutes > 14*60 {
		return nil, fmt.Errorf("%w: utc offset out of range", domain.ErrInvalidInput)
	}

	user := &domain.User{
		ID:               uuid.New().String(),
		WalletAddress:    p.WalletAddress,
		PhoneHash:        p.PhoneHash,
		CountryCode:      p.CountryCode,
		UTCOffsetMinutes: p.UTCOffsetMinutes,
		Platform:         p.Platform,
		ClientVersion:    p.ClientVersion,
		DeviceToken:      p.DeviceToken,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.store.GetUser(ctx, id)
}
