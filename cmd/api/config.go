package main

import (
	"time"

	"github.com/f2re/sale-photosession-bot/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	FreeCredits     int64         `env:"FREE_CREDITS" envDefault:"2"`

	Log       config.LogConfig
	Postgres  config.PostgresConfig
	Gateway   config.GatewayConfig
	Poller    config.PollerConfig
	Referral  config.ReferralConfig
	Admin     config.AdminConfig
	Generator config.GeneratorConfig
}
