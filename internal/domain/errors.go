package domain

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrTaskNotFound         = errors.New("task not found")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrOfferNotFound        = errors.New("offer not found")
	ErrOfferUnavailable     = errors.New("offer unavailable")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderDeleted         = errors.New("order already deleted")
	ErrOrderExpired         = errors.New("order expired")
	ErrTooManyOrders        = errors.New("too many active orders")
	ErrNotEligible          = errors.New("category cooldown active")
	ErrExhausted            = errors.New("no goods left")
	ErrGoodNotFound         = errors.New("no good reserved for order")
	ErrConflict             = errors.New("already processing")
	ErrTxNotFound           = errors.New("transaction not found")
	ErrTxMismatch           = errors.New("payment does not match order")
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	ErrAlreadyCompensating  = errors.New("compensation already in progress")
	ErrRewardUndetermined   = errors.New("reward amount could not be determined")
	ErrInvalidInput         = errors.New("invalid input")
)
