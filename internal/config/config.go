package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	DecisionStoreBolt     = "bbolt"
	DecisionStorePostgres = "postgres"
)

// Config holds all runtime configuration derived from environment variables.
type Config struct {
	HTTPPort               string
	SeedDir                string
	DataDir                string
	Location               *time.Location
	DefaultPerTxnLimit     decimal.Decimal
	DefaultDailyLimit      decimal.Decimal
	DecisionStore          string
	DatabaseURL            string
	RedisURL               string
	JWTSecret              string
	JWTIssuer              string
	JWTAudience            string
	ReconciliationInterval time.Duration
	RolloverInterval       time.Duration
	PublicRateLimitRPS     int
	AuthRateLimitRPS       int
	LogLevel               string
	IdempotencyTTL         time.Duration
}

// AuthEnabled reports whether /v1 routes require a bearer token.
func (c *Config) AuthEnabled() bool {
	return strings.TrimSpace(c.JWTSecret) != ""
}

// Load reads environment variables using viper and returns a typed config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	bindEnv(v, "port", "PORT", "LEDGER_PORT")
	bindEnv(v, "seed_dir", "SEED_DIR", "LEDGER_SEED_DIR")
	bindEnv(v, "data_dir", "DATA_DIR", "LEDGER_DATA_DIR")
	bindEnv(v, "timezone", "TIMEZONE", "LEDGER_TIMEZONE")
	bindEnv(v, "default_per_txn_limit", "DEFAULT_PER_TXN_LIMIT", "LEDGER_DEFAULT_PER_TXN_LIMIT")
	bindEnv(v, "default_daily_limit", "DEFAULT_DAILY_LIMIT", "LEDGER_DEFAULT_DAILY_LIMIT")
	bindEnv(v, "decision_store", "DECISION_STORE", "LEDGER_DECISION_STORE")
	bindEnv(v, "database_url", "DATABASE_URL", "LEDGER_DATABASE_URL")
	bindEnv(v, "redis_url", "REDIS_URL", "LEDGER_REDIS_URL")
	bindEnv(v, "jwt_secret", "JWT_SECRET", "LEDGER_JWT_SECRET")
	bindEnv(v, "jwt_issuer", "JWT_ISSUER", "LEDGER_JWT_ISSUER")
	bindEnv(v, "jwt_audience", "JWT_AUDIENCE", "LEDGER_JWT_AUDIENCE")
	bindEnv(v, "reconciliation_interval", "RECONCILIATION_INTERVAL", "LEDGER_RECONCILIATION_INTERVAL")
	bindEnv(v, "rollover_interval", "ROLLOVER_INTERVAL", "LEDGER_ROLLOVER_INTERVAL")
	bindEnv(v, "public_rate_limit_rps", "PUBLIC_RATE_LIMIT_RPS", "LEDGER_PUBLIC_RATE_LIMIT_RPS")
	bindEnv(v, "auth_rate_limit_rps", "AUTH_RATE_LIMIT_RPS", "LEDGER_AUTH_RATE_LIMIT_RPS")
	bindEnv(v, "log_level", "LOG_LEVEL", "LEDGER_LOG_LEVEL")
	bindEnv(v, "idempotency_ttl", "IDEMPOTENCY_TTL", "LEDGER_IDEMPOTENCY_TTL")

	v.SetDefault("port", "8080")
	v.SetDefault("seed_dir", "data/seed")
	v.SetDefault("data_dir", "data/runtime")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("default_per_txn_limit", "5000")
	v.SetDefault("default_daily_limit", "10000")
	v.SetDefault("decision_store", DecisionStoreBolt)
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "ledger-gate")
	v.SetDefault("jwt_audience", "ledger-api")
	v.SetDefault("reconciliation_interval", "1h")
	v.SetDefault("rollover_interval", "1m")
	v.SetDefault("public_rate_limit_rps", 10)
	v.SetDefault("auth_rate_limit_rps", 100)
	v.SetDefault("log_level", "info")
	v.SetDefault("idempotency_ttl", "24h")

	loc, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	perTxn, err := decimal.NewFromString(v.GetString("default_per_txn_limit"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_PER_TXN_LIMIT: %w", err)
	}
	daily, err := decimal.NewFromString(v.GetString("default_daily_limit"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_DAILY_LIMIT: %w", err)
	}
	ttl, err := time.ParseDuration(v.GetString("idempotency_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
	}
	reconciliationInterval, err := time.ParseDuration(v.GetString("reconciliation_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILIATION_INTERVAL: %w", err)
	}
	rolloverInterval, err := time.ParseDuration(v.GetString("rollover_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROLLOVER_INTERVAL: %w", err)
	}

	cfg := &Config{
		HTTPPort:               v.GetString("port"),
		SeedDir:                v.GetString("seed_dir"),
		DataDir:                v.GetString("data_dir"),
		Location:               loc,
		DefaultPerTxnLimit:     perTxn,
		DefaultDailyLimit:      daily,
		DecisionStore:          strings.ToLower(strings.TrimSpace(v.GetString("decision_store"))),
		DatabaseURL:            v.GetString("database_url"),
		RedisURL:               v.GetString("redis_url"),
		JWTSecret:              v.GetString("jwt_secret"),
		JWTIssuer:              v.GetString("jwt_issuer"),
		JWTAudience:            v.GetString("jwt_audience"),
		ReconciliationInterval: reconciliationInterval,
		RolloverInterval:       rolloverInterval,
		PublicRateLimitRPS:     max(v.GetInt("public_rate_limit_rps"), 1),
		AuthRateLimitRPS:       max(v.GetInt("auth_rate_limit_rps"), 1),
		LogLevel:               v.GetString("log_level"),
		IdempotencyTTL:         ttl,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.SeedDir) == "" {
		return fmt.Errorf("SEED_DIR is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if !c.DefaultPerTxnLimit.IsPositive() || !c.DefaultDailyLimit.IsPositive() {
		return fmt.Errorf("default limits must be positive")
	}
	if c.DefaultPerTxnLimit.GreaterThan(c.DefaultDailyLimit) {
		return fmt.Errorf("DEFAULT_PER_TXN_LIMIT must not exceed DEFAULT_DAILY_LIMIT")
	}
	switch c.DecisionStore {
	case DecisionStoreBolt:
	case DecisionStorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when DECISION_STORE is postgres")
		}
	default:
		return fmt.Errorf("DECISION_STORE must be %s or %s", DecisionStoreBolt, DecisionStorePostgres)
	}
	if c.AuthEnabled() {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters")
		}
		if strings.TrimSpace(c.JWTIssuer) == "" {
			return fmt.Errorf("JWT_ISSUER is required")
		}
		if strings.TrimSpace(c.JWTAudience) == "" {
			return fmt.Errorf("JWT_AUDIENCE is required")
		}
	}
	return nil
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}
