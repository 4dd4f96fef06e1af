package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/set-night/rewardmarket/internal/config"
	"github.com/set-night/rewardmarket/internal/metrics"
	"github.com/set-night/rewardmarket/internal/repository"
)

// SweepService is the periodic janitor: goods stuck behind expired or
// cancelled orders go back to the pool, and long-dead order rows are purged.
type SweepService struct {
	store repository.Store
}

func NewSweepService(store repository.Store) *SweepService {
	return &SweepService{store: store}
}

func (s *SweepService) Run(ctx context.Context) {
	released, err := s.store.ReleaseExpiredGoods(ctx, config.OrderTTL)
	if err != nil {
		slog.Error("release expired goods failed", "error", err)
	} else if released > 0 {
		slog.Info("released goods from expired orders", "count", released)
		if metrics.Registered {
			metrics.SweepReleased.Add(float64(released))
		}
	}

	purgeBefore := time.Now().Add(-config.OrderTTL - config.OrderPurgeGrace)
	purged, err := s.store.PurgeOrders(ctx, purgeBefore)
	if err != nil {
		slog.Error("purge orders failed", "error", err)
	} else if purged > 0 {
		slog.Debug("purged stale orders", "count", purged)
	}
}

// RefreshMetrics republishes the inventory and order gauges.
func (s *SweepService) RefreshMetrics(ctx context.Context) {
	if !metrics.Registered {
		return
	}

	live, err := s.store.LiveOrderCount(ctx, config.OrderTTL)
	if err != nil {
		slog.Error("live order count failed", "error", err)
	} else {
		metrics.LiveOrders.Set(float64(live))
	}

	offers, err := s.store.ListOffers(ctx)
	if err != nil {
		slog.Error("list offers failed", "error", err)
		return
	}
	for _, offer := range offers {
		if available, err := s.store.AvailableCount(ctx, offer.ID); err == nil {
			metrics.AvailableGoods.WithLabelValues(offer.ID).Set(float64(available))
		}
		if total, err := s.store.TotalCount(ctx, offer.ID); err == nil {
			metrics.TotalGoods.WithLabelValues(offer.ID).Set(float64(total))
		}
	}
}
