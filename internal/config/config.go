package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultAppName        = "PayFlow"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
)

// Transaction limit defaults, in SZL.
const (
	defaultMinTopUp         = "10"
	defaultMaxTopUp         = "10000"
	defaultMinManualDeposit = "50"
	defaultMaxManualDeposit = "50000"
	defaultDailyTxLimit     = "25000"
)

// Limits holds externally supplied transaction limits.
type Limits struct {
	MinTopUp              decimal.Decimal
	MaxTopUp              decimal.Decimal
	MinManualDeposit      decimal.Decimal
	MaxManualDeposit      decimal.Decimal
	DailyTransactionLimit decimal.Decimal
}

// DepositDetails carries the out-of-band payment instructions presented to
// users alongside a deposit reference.
type DepositDetails struct {
	BankName          string
	BankAccountNumber string
	BankAccountName   string
	BranchCode        string
	SwiftCode         string
	MoMoPhone         string
	MoMoAccountName   string
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	VerifierKey    string
	WebhookURL     string
	WebhookSecret  string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	Limits         Limits
	DepositDetails DepositDetails
}

// Load reads configuration values from the environment and populates a Config
// instance. DATABASE_URL and REDIS_URL are required outside development; in
// development the service falls back to in-memory backends.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		VerifierKey:    os.Getenv("VERIFIER_API_KEY"),
		WebhookURL:     os.Getenv("WEBHOOK_URL"),
		WebhookSecret:  os.Getenv("WEBHOOK_SECRET"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		DepositDetails: DepositDetails{
			BankName:          getEnv("BANK_NAME", "Standard Bank Eswatini"),
			BankAccountNumber: getEnv("BANK_ACCOUNT_NUMBER", "1234567890"),
			BankAccountName:   getEnv("BANK_ACCOUNT_NAME", "PayFlow Limited"),
			BranchCode:        getEnv("BANK_BRANCH_CODE", "051001"),
			SwiftCode:         getEnv("BANK_SWIFT_CODE", "SBICSZ22"),
			MoMoPhone:         getEnv("MOMO_SEND_PHONE", "+268 7612 3456"),
			MoMoAccountName:   getEnv("MOMO_SEND_NAME", "PayFlow Limited"),
		},
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}

	if cfg.Limits.MinTopUp, err = decimalEnv("LIMIT_MIN_TOPUP", defaultMinTopUp); err != nil {
		return Config{}, err
	}
	if cfg.Limits.MaxTopUp, err = decimalEnv("LIMIT_MAX_TOPUP", defaultMaxTopUp); err != nil {
		return Config{}, err
	}
	if cfg.Limits.MinManualDeposit, err = decimalEnv("LIMIT_MIN_MANUAL_DEPOSIT", defaultMinManualDeposit); err != nil {
		return Config{}, err
	}
	if cfg.Limits.MaxManualDeposit, err = decimalEnv("LIMIT_MAX_MANUAL_DEPOSIT", defaultMaxManualDeposit); err != nil {
		return Config{}, err
	}
	if cfg.Limits.DailyTransactionLimit, err = decimalEnv("LIMIT_DAILY_TRANSACTIONS", defaultDailyTxLimit); err != nil {
		return Config{}, err
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func decimalEnv(key, fallback string) (decimal.Decimal, error) {
	v := getEnv(key, fallback)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
