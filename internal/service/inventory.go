package service

import (
	"context"
	"fmt"

	"github.com/set-night/rewardmarket/internal/metrics"
	"github.com/set-night/rewardmarket/internal/repository"
)

// InventoryService hands out goods exclusively: one good, one order, never
// twice. The hard guarantees live in the store's claim/finalize operations;
// this layer adds the sold-out signal and metrics.
type InventoryService struct {
	store repository.Store
}

func NewInventoryService(store repository.Store) *InventoryService {
	return &InventoryService{store: store}
}

// Allocate reserves one good of the offer for the order. ok=false is the
// sold-out signal, not an error.
func (s *InventoryService) Allocate(ctx context.Context, offerID, orderID string) (int64, bool, error) {
	goodID, ok, err := s.store.ClaimGood(ctx, offerID, orderID)
	if err != nil {
		return 0, false, fmt.Errorf("claim good: %w", err)
	}
	if ok && metrics.Registered {
		metrics.AvailableGoods.WithLabelValues(offerID).Dec()
	}
	return goodID, ok, nil
}

// Finalize permanently consumes the good reserved by the order and returns its
// payload. A second call for the same order fails with ErrGoodNotFound.
func (s *InventoryService) Finalize(ctx context.Context, orderID, txHash string) (string, error) {
	return s.store.FinalizeGood(ctx, orderID, txHash)
}

// Release puts the good reserved by an abandoned order back in the pool.
func (s *InventoryService) Release(ctx context.Context, orderID string) error {
	return s.store.ReleaseGood(ctx, orderID)
}

func (s *InventoryService) AvailableCount(ctx context.Context, offerID string) (int, error) {
	return s.store.AvailableCount(ctx, offerID)
}

func (s *InventoryService) TotalCount(ctx context.Context, offerID string) (int, error) {
	return s.store.TotalCount(ctx, offerID)
}
