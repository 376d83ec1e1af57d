package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppName != "PayFlow" {
		t.Fatalf("unexpected app name %q", cfg.AppName)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if !cfg.Limits.MinTopUp.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected min top-up %s", cfg.Limits.MinTopUp)
	}
	if !cfg.Limits.DailyTransactionLimit.Equal(decimal.NewFromInt(25_000)) {
		t.Fatalf("unexpected daily limit %s", cfg.Limits.DailyTransactionLimit)
	}
}

func TestLoadRequiresBackendsInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing in production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("LIMIT_MAX_TOPUP", "2500.50")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Limits.MaxTopUp.Equal(decimal.RequireFromString("2500.50")) {
		t.Fatalf("unexpected max top-up %s", cfg.Limits.MaxTopUp)
	}
	if cfg.ShutdownPeriod.Seconds() != 5 {
		t.Fatalf("unexpected shutdown period %s", cfg.ShutdownPeriod)
	}
}

func TestLoadRejectsBadDecimal(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("LIMIT_MIN_TOPUP", "ten")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed limit")
	}
}
