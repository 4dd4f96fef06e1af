package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/rewardmarket/internal/config"
	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/ledger"
	"github.com/set-night/rewardmarket/internal/metrics"
	"github.com/set-night/rewardmarket/internal/repository"
)

// RedeemService validates an externally reported payment against an order and
// finalizes it exactly once. Mutual exclusion per tx hash comes from a
// non-blocking lease; losing the race is a Conflict, never a queue.
type RedeemService struct {
	store        repository.Store
	ledger       ledger.Client
	asset        ledger.Asset
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewRedeemService(store repository.Store, lc ledger.Client, asset ledger.Asset) *RedeemService {
	return &RedeemService{
		store:        store,
		ledger:       lc,
		asset:        asset,
		pollInterval: config.LedgerPollInterval,
		pollTimeout:  config.LedgerPollTimeout,
	}
}

// Redeem proves payment for an order and releases the reserved good's payload.
func (s *RedeemService) Redeem(ctx context.Context, userID, txHash string) (payload string, err error) {
	acquired, err := s.store.AcquireLease(ctx, "redeem:"+txHash, config.RedeemLockTTL)
	if err != nil {
		return "", fmt.Errorf("acquire redeem lease: %w", err)
	}
	if !acquired {
		s.count("conflict")
		return "", domain.ErrConflict
	}
	defer func() {
		if relErr := s.store.ReleaseLease(context.WithoutCancel(ctx), "redeem:"+txHash); relErr != nil {
			slog.Error("release redeem lease failed", "tx_hash", txHash, "error", relErr)
		}
	}()

	tx, err := s.fetchTransaction(ctx, txHash)
	if err != nil {
		s.count("not_found")
		return "", err
	}

	op, err := s.validateTransaction(tx)
	if err != nil {
		s.count("rejected")
		return "", err
	}

	order, err := s.store.GetOrder(ctx, tx.Memo)
	if err != nil || order.Deleted() || order.UserID != userID {
		s.count("not_found")
		return "", domain.ErrOrderNotFound
	}
	if order.Expired(time.Now(), config.OrderTTL) {
		s.count("expired")
		return "", domain.ErrOrderExpired
	}

	if op.To != order.Address {
		s.count("rejected")
		return "", fmt.Errorf("%w: wrong destination address", domain.ErrTxMismatch)
	}
	if !op.Amount.Equal(order.Amount) {
		// No tolerance either way; the order stays open until its own
		// expiration so a corrected payment can still land.
		s.count("rejected")
		return "", fmt.Errorf("%w: paid %s, order is %s", domain.ErrTxMismatch, op.Amount, order.Amount)
	}

	payload, err = s.store.SettleOrder(ctx, &domain.Transaction{
		Hash:      txHash,
		UserID:    order.UserID,
		Amount:    order.Amount,
		Direction: domain.TxIncoming,
		OfferID:   order.OfferID,
		Memo:      order.ID,
	}, order.ID)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			s.count("conflict")
			return "", domain.ErrConflict
		}
		s.count("error")
		return "", fmt.Errorf("settle order: %w", err)
	}

	s.count("finalized")
	slog.Info("order redeemed", "order", order.ID, "offer", order.OfferID, "tx_hash", txHash)
	return payload, nil
}

// fetchTransaction polls the ledger until the hash is indexed or the bounded
// wall-clock timeout passes.
func (s *RedeemService) fetchTransaction(ctx context.Context, txHash string) (*ledger.Transaction, error) {
	deadline := time.Now().Add(s.pollTimeout)
	for {
		tx, err := s.ledger.GetTransaction(ctx, txHash)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, ledger.ErrNotYetIndexed) {
			return nil, fmt.Errorf("fetch transaction: %w", err)
		}
		if !time.Now().Add(s.pollInterval).Before(deadline) {
			return nil, domain.ErrTxNotFound
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// validateTransaction checks the shape of the reported payment: exactly one
// operation, a payment of the expected asset, with a textual memo.
func (s *RedeemService) validateTransaction(tx *ledger.Transaction) (*ledger.Operation, error) {
	if len(tx.Operations) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one operation, got %d", domain.ErrTxMismatch, len(tx.Operations))
	}
	op := &tx.Operations[0]
	if op.Type != "payment" {
		return nil, fmt.Errorf("%w: operation type %q", domain.ErrTxMismatch, op.Type)
	}
	if op.AssetCode != s.asset.Code || op.AssetIssuer != s.asset.Issuer {
		return nil, fmt.Errorf("%w: unexpected asset %s:%s", domain.ErrTxMismatch, op.AssetCode, op.AssetIssuer)
	}
	if tx.MemoType != ledger.MemoTypeText {
		return nil, fmt.Errorf("%w: memo type %q", domain.ErrTxMismatch, tx.MemoType)
	}
	return op, nil
}

func (s *RedeemService) count(state string) {
	if metrics.Registered {
		metrics.Redemptions.WithLabelValues(state).Inc()
	}
}
