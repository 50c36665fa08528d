package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/attar-shop/internal/pricing"
)

type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Payment  PaymentConfig
	Coupons  pricing.Table
}

type AppConfig struct {
	Port string
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

type RedisConfig struct {
	Addr string
}

type PaymentConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Currency      string
}

// defaultCoupons is used when COUPONS_FILE is not set. The table is resolved
// once at startup and injected where needed; it is never a mutable singleton.
func defaultCoupons() pricing.Table {
	return pricing.Table{
		"WELCOME10": {Code: "WELCOME10", Effect: pricing.EffectPercentage, Value: decimal.NewFromInt(10)},
		"ATTAR20":   {Code: "ATTAR20", Effect: pricing.EffectPercentage, Value: decimal.NewFromInt(20)},
		"FLAT15":    {Code: "FLAT15", Effect: pricing.EffectFixed, Value: decimal.NewFromInt(15)},
		"FREESHIP":  {Code: "FREESHIP", Effect: pricing.EffectFreeShipping, Value: decimal.Zero},
	}
}

func New() (*Config, error) {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.Port = getEnv("APP_PORT", "8080")

	var err error
	if cfg.Postgres.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Port, err = requireEnv("DB_PORT"); err != nil {
		return nil, err
	}
	if cfg.Postgres.User, err = requireEnv("DB_USER"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Postgres.DBName, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MaxConns = int32(getEnvInt("DB_MAX_CONNS", 10))
	cfg.Postgres.MinConns = int32(getEnvInt("DB_MIN_CONNS", 2))
	cfg.Postgres.MaxConnLifetime = time.Duration(getEnvInt("DB_MAX_CONN_LIFETIME_MINUTES", 30)) * time.Minute
	cfg.Postgres.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "migrations")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")

	cfg.Payment.BaseURL = getEnv("PAYMENT_BASE_URL", "")
	cfg.Payment.APIKey = getEnv("PAYMENT_API_KEY", "")
	cfg.Payment.WebhookSecret = getEnv("PAYMENT_WEBHOOK_SECRET", "")
	cfg.Payment.Currency = getEnv("PAYMENT_CURRENCY", "USD")

	cfg.Coupons, err = loadCoupons(os.Getenv("COUPONS_FILE"))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadCoupons(path string) (pricing.Table, error) {
	if path == "" {
		return defaultCoupons(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read coupons file %s: %w", path, err)
	}

	var coupons []pricing.Coupon
	if err := json.Unmarshal(data, &coupons); err != nil {
		return nil, fmt.Errorf("config: failed to parse coupons file %s: %w", path, err)
	}

	table := make(pricing.Table, len(coupons))
	for _, c := range coupons {
		table[c.Code] = c
	}

	return table, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("config: %s is required", key)
	}
	return value, nil
}
