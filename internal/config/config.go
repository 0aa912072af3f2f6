package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Telegram TelegramConfig `envPrefix:"TELEGRAM_"`
	TON      TONConfig      `envPrefix:"TON_"`
	Payments PaymentsConfig `envPrefix:"PAYMENTS_"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

type ServerConfig struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	Environment    string        `env:"ENVIRONMENT" envDefault:"development"`
	JWTSecret      string        `env:"JWT_SECRET"`
	JWTTTL         time.Duration `env:"JWT_TTL" envDefault:"24h"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	AdminToken     string        `env:"ADMIN_TOKEN"`
	WebhookSecret  string        `env:"WEBHOOK_SECRET"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
}

type DatabaseConfig struct {
	URL            string `env:"URL"`
	MaxConns       int32  `env:"MAX_CONNS" envDefault:"20"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`
}

type RedisConfig struct {
	Addr       string `env:"ADDR"`
	Password   string `env:"PASSWORD"`
	DB         int    `env:"DB" envDefault:"0"`
	OpenPerMin int64  `env:"OPEN_LIMIT_PER_MIN" envDefault:"60"`
	KeyPrefix  string `env:"PREFIX" envDefault:"crazygift:rl"`
}

type TelegramConfig struct {
	BotToken       string        `env:"BOT_TOKEN"`
	BotUsername    string        `env:"BOT_USERNAME" envDefault:"CrazyGiftBot"`
	AdminIDs       []int64       `env:"ADMIN_IDS" envSeparator:","`
	BotEnabled     bool          `env:"BOT_ENABLED" envDefault:"true"`
	InitDataMaxAge time.Duration `env:"INIT_DATA_MAX_AGE" envDefault:"24h"`
}

type TONConfig struct {
	Network        string        `env:"NETWORK" envDefault:"mainnet"`
	WalletAddress  string        `env:"WALLET_ADDRESS"`
	APIKey         string        `env:"API_KEY"`
	APIURL         string        `env:"API_URL"`
	Verifier       string        `env:"VERIFIER" envDefault:"toncenter"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
}

type PaymentsConfig struct {
	Workers          int           `env:"RECONCILE_WORKERS" envDefault:"4"`
	QueueSize        int           `env:"RECONCILE_QUEUE" envDefault:"256"`
	ReconcileTimeout time.Duration `env:"RECONCILE_TIMEOUT" envDefault:"60s"`
	StuckAfter       time.Duration `env:"RECONCILE_STUCK_AFTER" envDefault:"15m"`
	SweepSchedule    string        `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`
	NotifyQueueSize  int           `env:"NOTIFY_QUEUE" envDefault:"512"`
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("DB_URL is required"))
	}
	if !c.IsDevelopment() {
		if c.Telegram.BotToken == "" {
			errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
		}
		if c.Server.JWTSecret == "" {
			errs = append(errs, errors.New("SERVER_JWT_SECRET is required"))
		}
		if c.Server.WebhookSecret == "" {
			errs = append(errs, errors.New("SERVER_WEBHOOK_SECRET is required"))
		}
	}
	switch strings.ToLower(c.TON.Verifier) {
	case "toncenter", "liteclient":
	default:
		errs = append(errs, fmt.Errorf("unknown TON_VERIFIER %q", c.TON.Verifier))
	}
	switch c.TON.Network {
	case "mainnet", "testnet":
	default:
		errs = append(errs, fmt.Errorf("unknown TON_NETWORK %q", c.TON.Network))
	}
	if c.Payments.Workers <= 0 {
		errs = append(errs, errors.New("PAYMENTS_RECONCILE_WORKERS must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsTestnet() bool {
	return c.TON.Network == "testnet"
}
