package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxDirection string

const (
	TxIncoming TxDirection = "incoming" // user paid us (redemption)
	TxOutgoing TxDirection = "outgoing" // we paid the user (task reward)
)

// Transaction is one append-only ledger row. Hash is the primary key, so each
// external transaction is credited at most once.
type Transaction struct {
	Hash      string
	UserID    string
	Amount    decimal.Decimal
	Direction TxDirection
	TaskID    string // set for outgoing reward payouts
	OfferID   string // set for incoming redemptions
	Memo      string
	CreatedAt time.Time
}
