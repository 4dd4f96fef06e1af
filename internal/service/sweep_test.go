package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/set-night/rewardmarket/internal/config"
	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/repository/memstore"
)

func TestSweepReleasesGoodsBehindExpiredOrders(t *testing.T) {
	store := memstore.New()
	offer := newTestOffer(t, store, 1)
	user := newTestUser(t, store, nil)

	stale := &domain.Order{
		ID:        "stale-order",
		UserID:    user.ID,
		OfferID:   offer.ID,
		Amount:    offer.Price,
		Address:   offer.Address,
		CreatedAt: time.Now().Add(-config.OrderTTL - time.Minute),
	}
	if err := store.CreateOrder(context.Background(), stale); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, ok, err := store.ClaimGood(context.Background(), offer.ID, stale.ID); err != nil || !ok {
		t.Fatalf("claim good: ok=%v err=%v", ok, err)
	}

	NewSweepService(store).Run(context.Background())

	available, err := store.AvailableCount(context.Background(), offer.ID)
	if err != nil {
		t.Fatalf("available count: %v", err)
	}
	if available != 1 {
		t.Fatalf("sweep must free the good behind an expired order, got %d available", available)
	}
}

func TestSweepPurgesOnlySettledOrders(t *testing.T) {
	store := memstore.New()
	offer := newTestOffer(t, store, 2)
	user := newTestUser(t, store, nil)

	old := time.Now().Add(-config.OrderTTL - config.OrderPurgeGrace - time.Hour)

	// Settled long ago: good consumed, order tombstoned.
	settled := &domain.Order{
		ID: "settled-order", UserID: user.ID, OfferID: offer.ID,
		Amount: decimal.NewFromInt(100), Address: offer.Address, CreatedAt: old,
	}
	if err := store.CreateOrder(context.Background(), settled); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, ok, err := store.ClaimGood(context.Background(), offer.ID, settled.ID); err != nil || !ok {
		t.Fatalf("claim good: ok=%v err=%v", ok, err)
	}
	txn := &domain.Transaction{Hash: "inhash-1", UserID: user.ID, Amount: settled.Amount, Direction: domain.TxIncoming, OfferID: offer.ID, Memo: settled.ID}
	if _, err := store.SettleOrder(context.Background(), txn, settled.ID); err != nil {
		t.Fatalf("settle order: %v", err)
	}

	// Recent order: outside the purge horizon.
	recent := &domain.Order{
		ID: "recent-order", UserID: user.ID, OfferID: offer.ID,
		Amount: decimal.NewFromInt(100), Address: offer.Address, CreatedAt: time.Now(),
	}
	if err := store.CreateOrder(context.Background(), recent); err != nil {
		t.Fatalf("create order: %v", err)
	}

	NewSweepService(store).Run(context.Background())

	if _, err := store.GetOrder(context.Background(), settled.ID); err == nil {
		t.Fatalf("settled order past the grace window must be purged")
	}
	if _, err := store.GetOrder(context.Background(), recent.ID); err != nil {
		t.Fatalf("recent order must survive the purge: %v", err)
	}
}
