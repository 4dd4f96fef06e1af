package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"5"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Ledger (Horizon-compatible REST API)
	LedgerURL    string `env:"LEDGER_API_URL,required"`
	LedgerSecret string `env:"LEDGER_API_SECRET"`
	AssetCode    string `env:"ASSET_CODE,required"`
	AssetIssuer  string `env:"ASSET_ISSUER,required"`

	// Admin API (basic auth); both empty disables admin routes
	AdminLogin    string `env:"ADMIN_LOGIN"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// Notifications via Telegram; empty token disables the dispatcher
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`

	// Metrics
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"rewardmarket"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) AdminAuthEnabled() bool {
	return c.AdminLogin != "" || c.AdminPassword != ""
}
