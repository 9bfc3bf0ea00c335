package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/shopspring/decimal"
)

func TestDefaults_MatchProductRules(t *testing.T) {
	cfg := config.Defaults()

	if !cfg.Claim.Amount.Equal(decimal.RequireFromString("0.73")) {
		t.Errorf("claim amount = %s, want 0.73", cfg.Claim.Amount)
	}
	if cfg.Claim.Interval != 3*time.Hour {
		t.Errorf("claim interval = %s, want 3h", cfg.Claim.Interval)
	}
	if !cfg.Offer.MinPostAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("min post = %s, want 50", cfg.Offer.MinPostAmount)
	}
	if !cfg.Offer.MinTradeAmount.Equal(decimal.NewFromInt(2)) {
		t.Errorf("min trade = %s, want 2", cfg.Offer.MinTradeAmount)
	}
	if !cfg.Offer.PriceBand.Equal(decimal.RequireFromString("0.04")) {
		t.Errorf("price band = %s, want 0.04", cfg.Offer.PriceBand)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := config.Defaults()
	cfg.DB.Driver = "mysql"
	cfg.Claim.Interval = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"JWT_ACCESS_SECRET", "DB_DRIVER", "CLAIM_INTERVAL", "PRICE_FEED_URL"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error should mention %s, got: %s", want, msg)
		}
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := config.Defaults()
	cfg.JWT.AccessSecret = "secret"
	cfg.Price.Fallback = decimal.NewFromInt(16)
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
server:
  port: "9090"
db:
  driver: sqlite3
claim:
  amount: "1.25"
  interval: 2h
referral:
  trade_rate: "0.03"
price:
  fallback: "16"
kafka:
  brokers: ["k1:9092"]
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CLAIM_INTERVAL", "90m")
	t.Setenv("JWT_ACCESS_SECRET", "from-env")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090 from yaml", cfg.Server.Port)
	}
	if !cfg.Claim.Amount.Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("claim amount = %s, want 1.25 from yaml", cfg.Claim.Amount)
	}
	if cfg.Claim.Interval != 90*time.Minute {
		t.Errorf("interval = %s, env should override yaml", cfg.Claim.Interval)
	}
	if !cfg.Referral.TradeRate.Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("trade rate = %s", cfg.Referral.TradeRate)
	}
	if !strings.Contains(cfg.DB.DSN, "_txlock=immediate") {
		t.Errorf("sqlite DSN should take immediate write locks, got %q", cfg.DB.DSN)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "k1:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoad_BadDecimalEnv(t *testing.T) {
	t.Setenv("CLAIM_AMOUNT", "lots")
	if _, err := config.Load(""); err == nil {
		t.Error("expected error for non-decimal CLAIM_AMOUNT")
	}
}
