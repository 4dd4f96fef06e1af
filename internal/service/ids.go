package service

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/set-night/rewardmarket/internal/config"
)

const orderIDCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewOrderID mints a short random id that fits the on-chain memo field. The
// memo is the only link between a payment and its order, so collisions must be
// negligible: 21 base62 chars is ~125 bits.
func NewOrderID() (string, error) {
	id := make([]byte, config.OrderIDLength)
	for i := range id {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(orderIDCharset))))
		if err != nil {
			return "", err
		}
		id[i] = orderIDCharset[n.Int64()]
	}
	return string(id), nil
}

// NewMemo mints a payout memo, also bounded by the memo field size.
func NewMemo() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:config.MemoMaxLen-4]
}
