package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a time-boxed reservation of one Good against one Offer. The id is
// short enough to ride inside an on-chain memo field, which is how a payment
// is correlated back to its order.
type Order struct {
	ID        string
	UserID    string
	OfferID   string
	Amount    decimal.Decimal
	Address   string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Expired reports whether the order's reservation window has passed. Expired
// orders are invisible to lookups even though the row may linger until swept.
func (o *Order) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(o.CreatedAt) >= ttl
}

func (o *Order) Deleted() bool {
	return o.DeletedAt != nil
}
