// Package ledger talks to the external blockchain ledger. The core only needs
// two calls: submit a payment and fetch an indexed transaction; everything
// chain-specific stays behind Client.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotYetIndexed means the ledger has not indexed the transaction yet; the
// caller polls with a bounded timeout before treating it as missing.
var ErrNotYetIndexed = errors.New("transaction not yet indexed")

const MemoTypeText = "text"

// Asset identifies the reward currency by code and issuing account.
type Asset struct {
	Code   string
	Issuer string
}

type Operation struct {
	Type        string          `json:"type"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	AssetCode   string          `json:"asset_code"`
	AssetIssuer string          `json:"asset_issuer"`
}

type Transaction struct {
	Hash       string      `json:"hash"`
	Memo       string      `json:"memo"`
	MemoType   string      `json:"memo_type"`
	Operations []Operation `json:"operations"`
}

type Client interface {
	// Pay submits an outgoing payment and returns the transaction hash.
	Pay(ctx context.Context, address string, amount decimal.Decimal, memo string) (string, error)
	// GetTransaction fetches an indexed transaction with its operations.
	// Returns ErrNotYetIndexed while the ledger has no record of the hash.
	GetTransaction(ctx context.Context, hash string) (*Transaction, error)
}
