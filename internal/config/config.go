// Package config provides application configuration loaded from an optional
// YAML file and environment variables (env wins). Use the package-level Get()
// function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        `yaml:"port"`                   // e.g. "8080"
	BackofficePort       string        `yaml:"backoffice_port"`        // e.g. "8081"
	Env                  string        `yaml:"env"`                    // "development" | "production"
	ReadTimeout          time.Duration `yaml:"read_timeout"`           // default 10s
	WriteTimeout         time.Duration `yaml:"write_timeout"`          // default 10s
	BackofficeAllowedIPs string        `yaml:"backoffice_allowed_ips"` // comma-separated IPs; "" = allow all
	AllowedOrigins       []string      `yaml:"allowed_origins"`        // CORS + websocket; empty = allow all
}

// DBConfig holds database connection settings.
type DBConfig struct {
	Driver          string        `yaml:"driver"` // "postgres" | "sqlite3"
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`    // default 25
	MaxIdleConns    int           `yaml:"max_idle_conns"`    // default 10
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"` // default 5m
}

// JWTConfig holds the shared secret of the session provider.
type JWTConfig struct {
	AccessSecret string        `yaml:"access_secret"` // must be set
	AccessTTL    time.Duration `yaml:"access_ttl"`    // lifetime of tokens minted for internal callers
}

// ClaimConfig holds the cooldown claim settings.
type ClaimConfig struct {
	Amount   decimal.Decimal `yaml:"amount"`   // coins per claim, default 0.73
	Interval time.Duration   `yaml:"interval"` // cooldown, default 3h
}

// OfferConfig holds offer posting limits.
type OfferConfig struct {
	MinPostAmount  decimal.Decimal `yaml:"min_post_amount"`  // default 50
	MinTradeAmount decimal.Decimal `yaml:"min_trade_amount"` // default 2
	PriceBand      decimal.Decimal `yaml:"price_band"`       // default 0.04 (±4%)
}

// ReferralConfig holds commission rates.
type ReferralConfig struct {
	// TradeRate is the share of a trade's notional paid to the referrer,
	// default 0.02. Commission is credited in coins, and notional converted
	// back at the unit price is the coin amount, so it applies to that.
	TradeRate decimal.Decimal `yaml:"trade_rate"`
	ClaimRate decimal.Decimal `yaml:"claim_rate"` // of claimed amount, default 0.015
}

// PriceConfig holds reference price feed settings.
type PriceConfig struct {
	FeedURL      string          `yaml:"feed_url"`      // "" = use Fallback only
	FetchTimeout time.Duration   `yaml:"fetch_timeout"` // default 2s
	CacheTTL     time.Duration   `yaml:"cache_ttl"`     // default 30s
	RefreshSpec  string          `yaml:"refresh_spec"`  // cron spec, default "@every 30s"
	Fallback     decimal.Decimal `yaml:"fallback"`      // used when the feed has never answered
}

// RedisConfig holds the optional shared cache.
type RedisConfig struct {
	URL string `yaml:"url"` // "" = no redis
}

// KafkaConfig holds the optional event stream.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // empty = events are not streamed
	Topic   string   `yaml:"topic"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	DB       DBConfig       `yaml:"db"`
	JWT      JWTConfig      `yaml:"jwt"`
	Claim    ClaimConfig    `yaml:"claim"`
	Offer    OfferConfig    `yaml:"offer"`
	Referral ReferralConfig `yaml:"referral"`
	Price    PriceConfig    `yaml:"price"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}

	switch c.DB.Driver {
	case "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite3, got %q", c.DB.Driver))
	}
	if c.IsProd() && c.DB.Driver != "postgres" {
		errs = append(errs, errors.New("production requires DB_DRIVER=postgres"))
	}

	if !c.Claim.Amount.IsPositive() {
		errs = append(errs, fmt.Errorf("CLAIM_AMOUNT must be positive, got %s", c.Claim.Amount))
	}
	if c.Claim.Interval <= 0 {
		errs = append(errs, fmt.Errorf("CLAIM_INTERVAL must be positive, got %s", c.Claim.Interval))
	}

	if !c.Offer.MinTradeAmount.IsPositive() {
		errs = append(errs, fmt.Errorf("OFFER_MIN_TRADE_AMOUNT must be positive, got %s", c.Offer.MinTradeAmount))
	}
	if c.Offer.MinPostAmount.LessThan(c.Offer.MinTradeAmount) {
		errs = append(errs, fmt.Errorf(
			"OFFER_MIN_POST_AMOUNT (%s) must be at least OFFER_MIN_TRADE_AMOUNT (%s)",
			c.Offer.MinPostAmount, c.Offer.MinTradeAmount))
	}
	if !rateInRange(c.Offer.PriceBand) || c.Offer.PriceBand.IsZero() {
		errs = append(errs, fmt.Errorf("OFFER_PRICE_BAND must be between 0 and 1 (exclusive), got %s", c.Offer.PriceBand))
	}

	if !rateInRange(c.Referral.TradeRate) {
		errs = append(errs, fmt.Errorf("REFERRAL_TRADE_RATE must be in [0, 1), got %s", c.Referral.TradeRate))
	}
	if !rateInRange(c.Referral.ClaimRate) {
		errs = append(errs, fmt.Errorf("REFERRAL_CLAIM_RATE must be in [0, 1), got %s", c.Referral.ClaimRate))
	}

	if c.Price.FeedURL == "" && !c.Price.Fallback.IsPositive() {
		errs = append(errs, errors.New("either PRICE_FEED_URL or a positive PRICE_FALLBACK must be set"))
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC must be set when KAFKA_BROKERS is"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func rateInRange(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThan(decimal.NewFromInt(1))
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once. Panics if loading fails;
// call this early in main() to catch misconfigurations at startup.
func Get() *Config {
	once.Do(func() {
		// .env is a development convenience; a missing file is fine.
		_ = godotenv.Load()
		instance, loadErr = Load(os.Getenv("CONFIG_FILE"))
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Loader
// ──────────────────────────────────────────────────────────────────────────────

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			BackofficePort: "8081",
			Env:            "development",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
		},
		DB: DBConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
		},
		Claim: ClaimConfig{
			Amount:   decimal.RequireFromString("0.73"),
			Interval: 3 * time.Hour,
		},
		Offer: OfferConfig{
			MinPostAmount:  decimal.NewFromInt(50),
			MinTradeAmount: decimal.NewFromInt(2),
			PriceBand:      decimal.RequireFromString("0.04"),
		},
		Referral: ReferralConfig{
			TradeRate: decimal.RequireFromString("0.02"),
			ClaimRate: decimal.RequireFromString("0.015"),
		},
		Price: PriceConfig{
			FetchTimeout: 2 * time.Second,
			CacheTTL:     30 * time.Second,
			RefreshSpec:  "@every 30s",
		},
		Kafka: KafkaConfig{
			Topic: "afx.ledger.events",
		},
	}
}

// Load builds a Config from defaults, then the YAML file at path (if any),
// then environment variables.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BackofficePort = getEnv("BACKOFFICE_PORT", cfg.Server.BackofficePort)
	cfg.Server.Env = getEnv("ENVIRONMENT", cfg.Server.Env)
	cfg.Server.ReadTimeout = getDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.BackofficeAllowedIPs = getEnv("BACKOFFICE_ALLOWED_IPS", cfg.Server.BackofficeAllowedIPs)
	cfg.Server.AllowedOrigins = getList("ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	// ── Database ──────────────────────────────────────────────────────────────
	cfg.DB.Driver = getEnv("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.DSN = getEnv("DATABASE_DSN", cfg.DB.DSN)
	if cfg.DB.DSN == "" && cfg.DB.Driver == "postgres" {
		// Build DSN from individual components for convenience in dev
		cfg.DB.DSN = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "afxledger"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}
	if cfg.DB.DSN == "" && cfg.DB.Driver == "sqlite3" {
		cfg.DB.DSN = "file:afxledger.db?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
	}
	if cfg.DB.MaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", cfg.DB.MaxOpenConns); err != nil {
		return fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	if cfg.DB.MaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", cfg.DB.MaxIdleConns); err != nil {
		return fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}
	cfg.DB.ConnMaxLifetime = getDuration("DB_CONN_MAX_LIFETIME", cfg.DB.ConnMaxLifetime)

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT.AccessSecret = getEnv("JWT_ACCESS_SECRET", cfg.JWT.AccessSecret)
	cfg.JWT.AccessTTL = getDuration("JWT_ACCESS_TTL", cfg.JWT.AccessTTL)

	// ── Claim ─────────────────────────────────────────────────────────────────
	if cfg.Claim.Amount, err = getDecimal("CLAIM_AMOUNT", cfg.Claim.Amount); err != nil {
		return fmt.Errorf("CLAIM_AMOUNT: %w", err)
	}
	cfg.Claim.Interval = getDuration("CLAIM_INTERVAL", cfg.Claim.Interval)

	// ── Offers ────────────────────────────────────────────────────────────────
	if cfg.Offer.MinPostAmount, err = getDecimal("OFFER_MIN_POST_AMOUNT", cfg.Offer.MinPostAmount); err != nil {
		return fmt.Errorf("OFFER_MIN_POST_AMOUNT: %w", err)
	}
	if cfg.Offer.MinTradeAmount, err = getDecimal("OFFER_MIN_TRADE_AMOUNT", cfg.Offer.MinTradeAmount); err != nil {
		return fmt.Errorf("OFFER_MIN_TRADE_AMOUNT: %w", err)
	}
	if cfg.Offer.PriceBand, err = getDecimal("OFFER_PRICE_BAND", cfg.Offer.PriceBand); err != nil {
		return fmt.Errorf("OFFER_PRICE_BAND: %w", err)
	}

	// ── Referral ──────────────────────────────────────────────────────────────
	if cfg.Referral.TradeRate, err = getDecimal("REFERRAL_TRADE_RATE", cfg.Referral.TradeRate); err != nil {
		return fmt.Errorf("REFERRAL_TRADE_RATE: %w", err)
	}
	if cfg.Referral.ClaimRate, err = getDecimal("REFERRAL_CLAIM_RATE", cfg.Referral.ClaimRate); err != nil {
		return fmt.Errorf("REFERRAL_CLAIM_RATE: %w", err)
	}

	// ── Price ─────────────────────────────────────────────────────────────────
	cfg.Price.FeedURL = getEnv("PRICE_FEED_URL", cfg.Price.FeedURL)
	cfg.Price.FetchTimeout = getDuration("PRICE_FETCH_TIMEOUT", cfg.Price.FetchTimeout)
	cfg.Price.CacheTTL = getDuration("PRICE_CACHE_TTL", cfg.Price.CacheTTL)
	cfg.Price.RefreshSpec = getEnv("PRICE_REFRESH_SPEC", cfg.Price.RefreshSpec)
	if cfg.Price.Fallback, err = getDecimal("PRICE_FALLBACK", cfg.Price.Fallback); err != nil {
		return fmt.Errorf("PRICE_FALLBACK: %w", err)
	}

	// ── Redis / Kafka ─────────────────────────────────────────────────────────
	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Kafka.Brokers = getList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

// getDecimal parses an env var as an exact decimal. Money settings never go
// through float64.
func getDecimal(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", v)
	}
	return d, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or unparsable.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getList splits a comma-separated env var, dropping blanks.
func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
