package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemAnswer is the user's answer to one task item. For tip items AnswerID
// carries the chosen tip amount as a decimal string.
type ItemAnswer struct {
	ItemID   string `json:"item_id"`
	AnswerID string `json:"answer_id"`
}

// TaskResult stores what the user submitted. Storage is at-least-once: the row
// commits before the reward payment is attempted and is never rolled back.
type TaskResult struct {
	ID        string
	UserID    string
	TaskID    string
	Answers   []ItemAnswer
	CreatedAt time.Time
}

// Payout is the idempotency record for a task reward: at most one per
// (user, task), holding the memo handed back on resubmission. The ledger
// Transaction row may be absent when the payment call itself failed; that gap
// is reconciled by scanning for memos with no matching ledger row.
type Payout struct {
	UserID    string
	TaskID    string
	Memo      string
	Amount    decimal.Decimal
	TxHash    *string // set once the payment attempt succeeded
	CreatedAt time.Time
}
