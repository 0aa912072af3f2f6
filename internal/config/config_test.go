package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/crazygift")
	t.Setenv("SERVER_ENVIRONMENT", EnvDevelopment)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("порт по умолчанию: %s", cfg.Server.Port)
	}
	if cfg.Payments.StuckAfter != 15*time.Minute {
		t.Errorf("StuckAfter = %v, ожидалось 15m", cfg.Payments.StuckAfter)
	}
	if cfg.Payments.ReconcileTimeout != 60*time.Second {
		t.Errorf("ReconcileTimeout = %v", cfg.Payments.ReconcileTimeout)
	}
	if cfg.TON.Verifier != "toncenter" {
		t.Errorf("verifier = %s", cfg.TON.Verifier)
	}
}

func TestLoad_NestedPrefixes(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/crazygift")
	t.Setenv("SERVER_ENVIRONMENT", EnvDevelopment)
	t.Setenv("TELEGRAM_ADMIN_IDS", "11,22")
	t.Setenv("TON_NETWORK", "testnet")
	t.Setenv("PAYMENTS_RECONCILE_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(cfg.Telegram.AdminIDs) != 2 || cfg.Telegram.AdminIDs[1] != 22 {
		t.Errorf("admin ids разобраны неверно: %v", cfg.Telegram.AdminIDs)
	}
	if !cfg.IsTestnet() {
		t.Error("ожидалась тестовая сеть")
	}
	if cfg.Payments.Workers != 8 {
		t.Errorf("workers = %d", cfg.Payments.Workers)
	}
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Environment: EnvProduction},
		Database: DatabaseConfig{URL: "postgres://x"},
		TON:      TONConfig{Verifier: "toncenter", Network: "mainnet"},
		Payments: PaymentsConfig{Workers: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("без BOT_TOKEN и JWT_SECRET конфиг в проде должен быть невалиден")
	}

	cfg.Telegram.BotToken = "token"
	cfg.Server.JWTSecret = "secret"
	cfg.Server.WebhookSecret = "hook"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("конфиг должен быть валиден: %v", err)
	}
}

func TestValidate_UnknownVerifier(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Environment: EnvDevelopment},
		Database: DatabaseConfig{URL: "postgres://x"},
		TON:      TONConfig{Verifier: "tonapi", Network: "mainnet"},
		Payments: PaymentsConfig{Workers: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("неизвестный verifier должен отклоняться")
	}
}
