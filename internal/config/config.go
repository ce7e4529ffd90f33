package config

import (
	"log/slog"
	"time"
)

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" envDefault:"1h"`
}

type LogConfig struct {
	Level slog.Level `env:"APP_LOG_LEVEL" envDefault:"INFO"`
	// File enables a rotated log file in addition to stdout.
	File       string `env:"APP_LOG_FILE" envDefault:""`
	MaxSizeMB  int    `env:"APP_LOG_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"APP_LOG_MAX_BACKUPS" envDefault:"5"`
}

type GatewayConfig struct {
	BaseURL        string        `env:"YOOKASSA_BASE_URL" envDefault:"https://api.yookassa.ru/v3"`
	ShopID         string        `env:"YOOKASSA_SHOP_ID"`
	SecretKey      string        `env:"YOOKASSA_SECRET_KEY"`
	ReturnURL      string        `env:"YOOKASSA_RETURN_URL"`
	Currency       string        `env:"YOOKASSA_CURRENCY" envDefault:"RUB"`
	RequestTimeout time.Duration `env:"YOOKASSA_REQUEST_TIMEOUT" envDefault:"10s"`
	RatePerSecond  float64       `env:"YOOKASSA_RATE_PER_SECOND" envDefault:"5"`
	RateBurst      int           `env:"YOOKASSA_RATE_BURST" envDefault:"10"`
}

// PollerConfig drives the background payment status checks started per intent.
type PollerConfig struct {
	InitialDelays []time.Duration `env:"POLL_INITIAL_DELAYS" envDefault:"60s,30s,60s"`
	Interval      time.Duration   `env:"POLL_INTERVAL" envDefault:"30s"`
	Budget        time.Duration   `env:"POLL_BUDGET" envDefault:"10m"`
	CheckTimeout  time.Duration   `env:"POLL_CHECK_TIMEOUT" envDefault:"10s"`
}

type ReferralConfig struct {
	StartReward     int64 `env:"REFERRAL_START_REWARD" envDefault:"1"`
	PurchasePercent int64 `env:"REFERRAL_PURCHASE_PERCENT" envDefault:"10"`
}

type AdminConfig struct {
	JWTSecret string `env:"ADMIN_JWT_SECRET"`
}

type GeneratorConfig struct {
	URL     string        `env:"GENERATOR_URL"`
	Timeout time.Duration `env:"GENERATOR_TIMEOUT" envDefault:"120s"`
	Retries uint64        `env:"GENERATOR_RETRIES" envDefault:"2"`
}
