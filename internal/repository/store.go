package repository

import (
	"context"
	"time"

	"github.com/set-night/rewardmarket/internal/domain"
)

// Store is the persistence contract the services run against. The postgres
// package implements it on pgx; memstore implements the same contract in
// memory for tests. Implementations must uphold the exclusivity guarantees
// documented per method, not just the data shapes.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	// UserIDsByPhoneHash returns every user identity linked to one verified
	// phone number, the requesting user included.
	UserIDsByPhoneHash(ctx context.Context, phoneHash string) ([]string, error)

	// Catalog
	CreateCategory(ctx context.Context, c *domain.Category) error
	CreateTask(ctx context.Context, t *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	TasksByCategory(ctx context.Context, categoryID string) ([]*domain.Task, error)

	// Per-user category progress. GetProgress returns empty progress for a
	// pair with no state yet, never an error for absence.
	GetProgress(ctx context.Context, userID, categoryID string) (*domain.CategoryProgress, error)
	// RecordCompletion appends taskID to the completed set and moves the
	// cooldown fence in one write.
	RecordCompletion(ctx context.Context, userID, categoryID, taskID string, nextEligibleAt time.Time) error

	// Offers and goods
	CreateOffer(ctx context.Context, o *domain.Offer) error
	GetOffer(ctx context.Context, id string) (*domain.Offer, error)
	ListOffers(ctx context.Context) ([]*domain.Offer, error)
	AddGood(ctx context.Context, offerID, value string) (int64, error)
	// ClaimGood reserves exactly one unreserved good of the offer for the
	// order. ok=false means sold out; concurrent callers never claim the
	// same good.
	ClaimGood(ctx context.Context, offerID, orderID string) (goodID int64, ok bool, err error)
	// FinalizeGood stamps the good reserved by the order with the tx hash
	// and returns its payload. At most one call per order succeeds; later
	// calls find no unconsumed row and fail with domain.ErrGoodNotFound.
	FinalizeGood(ctx context.Context, orderID, txHash string) (string, error)
	// ReleaseGood clears the reservation of an unconsumed good.
	ReleaseGood(ctx context.Context, orderID string) error
	// ReleaseExpiredGoods releases every unconsumed good whose order expired
	// or was deleted; returns how many were freed.
	ReleaseExpiredGoods(ctx context.Context, ttl time.Duration) (int, error)
	AvailableCount(ctx context.Context, offerID string) (int, error)
	TotalCount(ctx context.Context, offerID string) (int, error)

	// Orders. GetOrder returns the row even when expired or tombstoned; the
	// caller decides what that means.
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ActiveOrders(ctx context.Context, userID string, ttl time.Duration) ([]*domain.Order, error)
	// MarkOrderDeleted tombstones an order. A second call returns
	// domain.ErrOrderDeleted, distinct from domain.ErrOrderNotFound.
	MarkOrderDeleted(ctx context.Context, id string) error
	// DropOrder removes an order outright; used when allocation of a good
	// failed right after minting.
	DropOrder(ctx context.Context, id string) error
	PurgeOrders(ctx context.Context, olderThan time.Time) (int, error)
	LiveOrderCount(ctx context.Context, ttl time.Duration) (int, error)

	// SettleOrder finalizes a redemption atomically: inserts the ledger row,
	// stamps the reserved good with the tx hash, tombstones the order, and
	// returns the good's payload. A duplicate hash fails the whole settle
	// with domain.ErrDuplicateTransaction.
	SettleOrder(ctx context.Context, txn *domain.Transaction, orderID string) (string, error)

	// Ledger rows (append-only, hash is the primary key)
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error
	TransactionsByUserTask(ctx context.Context, userID, taskID string) ([]*domain.Transaction, error)

	// Task results and payout idempotency records
	InsertResult(ctx context.Context, r *domain.TaskResult) error
	// GetPayoutByUsers returns the payout for taskID held by any of the
	// given identities, or nil when none exists.
	GetPayoutByUsers(ctx context.Context, userIDs []string, taskID string) (*domain.Payout, error)
	InsertPayout(ctx context.Context, p *domain.Payout) error
	SetPayoutTxHash(ctx context.Context, userID, taskID, txHash string) error

	// Leases: non-blocking SetIfAbsent-with-TTL coordination primitives.
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key string) error
}
