package config

import "time"

const (
	// Orders
	OrderTTL            = 15 * time.Minute
	MaxConcurrentOrders = 2
	OrderIDLength       = 21 // must fit the 28-byte on-chain memo field
	MemoMaxLen          = 28

	// Distributed lease TTLs
	RedeemLockTTL   = 30 * time.Second
	DisburseLockTTL = 60 * time.Second
	OrderLockTTL    = 10 * time.Second

	// Upgrade notices are emitted at most once per window per (user, category)
	UpgradeNoticeTTL = 24 * time.Hour

	// Ledger transaction polling
	LedgerPollInterval = 2 * time.Second
	LedgerPollTimeout  = 20 * time.Second

	// Background sweeps
	SweepInterval = 1 * time.Minute
	// Swept order rows are kept this long past expiry so late mismatched
	// payments still resolve to a definitive "expired" answer.
	OrderPurgeGrace = 24 * time.Hour

	// Metrics refresh
	MetricsRefreshInterval = 30 * time.Second

	// HTTP server
	ReadTimeout     = 10 * time.Second
	WriteTimeout    = 30 * time.Second
	ShutdownTimeout = 10 * time.Second
)
