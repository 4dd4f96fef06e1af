package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Offer is a purchasable catalog entry priced in the reward currency. Each
// unit sold is backed by exactly one Good.
type Offer struct {
	ID         string
	Title      string
	Price      decimal.Decimal
	Address    string // destination wallet the buyer pays to
	Active     bool
	MinVersion map[Platform]string
	CreatedAt  time.Time
}

func (o *Offer) AvailableFor(platform Platform, clientVersion string) bool {
	if !o.Active {
		return false
	}
	min, ok := o.MinVersion[platform]
	if !ok || min == "" {
		return true
	}
	return CompareVersions(clientVersion, min) >= 0
}

// Good is one consumable inventory unit backing an Offer. OrderID is set while
// reserved, TxHash once permanently consumed. A Good with TxHash set is never
// reassigned.
type Good struct {
	ID        int64
	OfferID   string
	OrderID   *string
	TxHash    *string
	Value     string // the payload released on redemption, e.g. a gift code
	CreatedAt time.Time
}

func (g *Good) Reserved() bool {
	return g.OrderID != nil
}

func (g *Good) Consumed() bool {
	return g.TxHash != nil
}
