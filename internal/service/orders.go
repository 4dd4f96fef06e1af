package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/rewardmarket/internal/config"
	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/repository"
)

// OrderService creates and expires time-boxed purchase reservations. An order
// is only ever returned to the caller with a good already reserved behind it.
type OrderService struct {
	store     repository.Store
	inventory *InventoryService
}

func NewOrderService(store repository.Store, inventory *InventoryService) *OrderService {
	return &OrderService{store: store, inventory: inventory}
}

// CreateOrder reserves the offer for the user. Fails with ErrTooManyOrders
// when the user already holds the maximum of live orders, ErrOfferUnavailable
// for inactive or version-gated offers, and ErrExhausted when the pool is
// empty.
func (s *OrderService) CreateOrder(ctx context.Context, userID, offerID string) (*domain.Order, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !offer.AvailableFor(user.Platform, user.ClientVersion) {
		return nil, domain.ErrOfferUnavailable
	}

	// The live-order cap is a read-then-insert; the lease serializes it per
	// user so parallel requests cannot both pass the count.
	lockKey := "order:" + userID
	acquired, err := s.store.AcquireLease(ctx, lockKey, config.OrderLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire order lease: %w", err)
	}
	if !acquired {
		return nil, domain.ErrConflict
	}
	defer func() {
		if relErr := s.store.ReleaseLease(context.WithoutCancel(ctx), lockKey); relErr != nil {
			slog.Error("release order lease failed", "user_id", userID, "error", relErr)
		}
	}()

	active, err := s.store.ActiveOrders(ctx, userID, config.OrderTTL)
	if err != nil {
		return nil, fmt.Errorf("active orders: %w", err)
	}
	if len(active) >= config.MaxConcurrentOrders {
		return nil, domain.ErrTooManyOrders
	}

	// Optimistic check; the claim below is what actually guarantees
	// exclusivity.
	available, err := s.inventory.AvailableCount(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("available count: %w", err)
	}
	if available == 0 {
		return nil, domain.ErrExhausted
	}

	id, err := NewOrderID()
	if err != nil {
		return nil, fmt.Errorf("mint order id: %w", err)
	}
	order := &domain.Order{
		ID:        id,
		UserID:    userID,
		OfferID:   offerID,
		Amount:    offer.Price,
		Address:   offer.Address,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	_, ok, err := s.inventory.Allocate(ctx, offerID, order.ID)
	if err != nil {
		_ = s.store.DropOrder(ctx, order.ID)
		return nil, fmt.Errorf("allocate good: %w", err)
	}
	if !ok {
		// Lost the race for the last good.
		_ = s.store.DropOrder(ctx, order.ID)
		return nil, domain.ErrExhausted
	}
	return order, nil
}

// ActiveOrders returns the user's unexpired orders; expired rows are invisible
// here even though they may still exist until swept.
func (s *OrderService) ActiveOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.store.ActiveOrders(ctx, userID, config.OrderTTL)
}

// DeleteOrder cancels the user's order and frees its good. Orders belonging
// to someone else read as ErrOrderNotFound. Deleting twice returns
// ErrOrderDeleted, which signals a logic error upstream, distinct from
// ErrOrderNotFound.
func (s *OrderService) DeleteOrder(ctx context.Context, userID, id string) error {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return domain.ErrOrderNotFound
	}
	if err := s.store.MarkOrderDeleted(ctx, id); err != nil {
		return err
	}
	if err := s.inventory.Release(ctx, id); err != nil {
		return fmt.Errorf("release good: %w", err)
	}
	return nil
}
