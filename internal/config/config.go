package config

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	// Core
	Storage     string `env:"STORAGE" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"5"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":3000"`
	AdminToken  string `env:"ADMIN_TOKEN"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	SeedFile    string `env:"SEED_FILE"`

	// Social graph (Neynar)
	SocialGraphURL     string        `env:"SOCIAL_GRAPH_URL" envDefault:"https://api.neynar.com"`
	SocialGraphAPIKey  string        `env:"SOCIAL_GRAPH_API_KEY"`
	SocialGraphRPS     float64       `env:"SOCIAL_GRAPH_RPS" envDefault:"5"`
	SocialGraphTimeout time.Duration `env:"SOCIAL_GRAPH_TIMEOUT" envDefault:"10s"`

	// Payout rail (Cryptomus payouts)
	PayoutURL        string        `env:"PAYOUT_URL" envDefault:"https://api.cryptomus.com/v1"`
	PayoutMerchantID string        `env:"PAYOUT_MERCHANT_ID"`
	PayoutAPIKey     string        `env:"PAYOUT_API_KEY"`
	PayoutCurrency   string        `env:"PAYOUT_CURRENCY" envDefault:"ETH"`
	PayoutNetwork    string        `env:"PAYOUT_NETWORK" envDefault:"BASE"`
	PayoutTimeout    time.Duration `env:"PAYOUT_TIMEOUT" envDefault:"30s"`

	// Verification sweep
	VerifyInterval    time.Duration `env:"VERIFY_INTERVAL" envDefault:"30s"`
	VerifyMaxAttempts int           `env:"VERIFY_MAX_ATTEMPTS" envDefault:"8"`
	VerifyBackoffBase time.Duration `env:"VERIFY_BACKOFF_BASE" envDefault:"30s"`
	VerifyBackoffMax  time.Duration `env:"VERIFY_BACKOFF_MAX" envDefault:"30m"`
	VerifyGrace       time.Duration `env:"VERIFY_GRACE" envDefault:"15m"`
	VerifyConcurrency int           `env:"VERIFY_CONCURRENCY" envDefault:"4"`
	VerifyBatchSize   int           `env:"VERIFY_BATCH_SIZE" envDefault:"200"`

	// Expiry and reconciliation sweeps
	ExpirySweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"1m"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"2m"`
	ReconcileAfter      time.Duration `env:"RECONCILE_AFTER" envDefault:"5m"`

	// Notifications
	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"taskreward"`

	// Telegram ops alerts
	OpsBotToken             string `env:"OPS_BOT_TOKEN"`
	OpsChatID               int64  `env:"OPS_CHAT_ID"`
	OpsTopicError           int    `env:"OPS_TOPIC_ERROR"`
	OpsTopicTaskCreated     int    `env:"OPS_TOPIC_TASK_CREATED"`
	OpsTopicClaimSettled    int    `env:"OPS_TOPIC_CLAIM_SETTLED"`
	OpsTopicSettlementHeld  int    `env:"OPS_TOPIC_SETTLEMENT_HELD"`
	OpsTopicVerifyExhausted int    `env:"OPS_TOPIC_VERIFY_EXHAUSTED"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres storage")
		}
		// Without a social graph every action would count as performed.
		if c.SocialGraphAPIKey == "" {
			return errors.New("SOCIAL_GRAPH_API_KEY is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}
	if c.VerifyMaxAttempts < 1 {
		return errors.New("VERIFY_MAX_ATTEMPTS must be at least 1")
	}
	if c.VerifyConcurrency < 1 {
		return errors.New("VERIFY_CONCURRENCY must be at least 1")
	}
	if c.SocialGraphRPS <= 0 {
		return errors.New("SOCIAL_GRAPH_RPS must be positive")
	}
	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsAdmin reports whether token matches the configured admin token.
// An empty admin token disables admin access entirely.
func (c *Config) IsAdmin(token string) bool {
	return c.AdminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(c.AdminToken)) == 1
}

func (c *Config) OpsAlertsEnabled() bool {
	return c.OpsBotToken != "" && c.OpsChatID != 0
}
