// Package config defines the top-level configuration for the bond desk and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BONDD_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet" envconfig:"WALLET"`
	Chain    ChainConfig    `toml:"chain" envconfig:"CHAIN"`
	Issuance IssuanceConfig `toml:"issuance" envconfig:"ISSUANCE"`
	Price    PriceConfig    `toml:"price" envconfig:"PRICE"`
	Postgres PostgresConfig `toml:"postgres" envconfig:"POSTGRES"`
	Redis    RedisConfig    `toml:"redis" envconfig:"REDIS"`
	S3       S3Config       `toml:"s3" envconfig:"S3"`
	Archive  ArchiveConfig  `toml:"archive" envconfig:"ARCHIVE"`
	Server   ServerConfig   `toml:"server" envconfig:"SERVER"`
	Notify   NotifyConfig   `toml:"notify" envconfig:"NOTIFY"`
	Mode     string         `toml:"mode" envconfig:"MODE"`
	LogLevel string         `toml:"log_level" envconfig:"LOG_LEVEL"`
}

// WalletConfig holds the operator key used to sign vault transactions.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key" envconfig:"PRIVATE_KEY"`
	EncryptedKeyPath string `toml:"encrypted_key_path" envconfig:"ENCRYPTED_KEY_PATH"`
	KeyPassword      string `toml:"key_password" envconfig:"KEY_PASSWORD"`
}

// ChainConfig points at the Ethereum node and the bond vault.
type ChainConfig struct {
	RPCURL          string   `toml:"rpc_url" envconfig:"RPC_URL"`
	ChainID         int64    `toml:"chain_id" envconfig:"CHAIN_ID"`
	VaultAddress    string   `toml:"vault_address" envconfig:"VAULT_ADDRESS"`
	ReceiptInterval duration `toml:"receipt_interval" envconfig:"RECEIPT_INTERVAL"`
	CatalogInterval duration `toml:"catalog_interval" envconfig:"CATALOG_INTERVAL"`
}

// IssuanceConfig bounds issuance submissions.
type IssuanceConfig struct {
	ConfirmTimeout duration `toml:"confirm_timeout" envconfig:"CONFIRM_TIMEOUT"`
	CloseDelay     duration `toml:"close_delay" envconfig:"CLOSE_DELAY"`
}

// PriceConfig configures the ETH/USD reference price feed.
type PriceConfig struct {
	CoinGeckoURL    string   `toml:"coingecko_url" envconfig:"COINGECKO_URL"`
	CoinGeckoAPIKey string   `toml:"coingecko_api_key" envconfig:"COINGECKO_API_KEY"`
	PollInterval    duration `toml:"poll_interval" envconfig:"POLL_INTERVAL"`
	MaxAge          duration `toml:"max_age" envconfig:"MAX_AGE"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn" envconfig:"DSN"`
	Host          string `toml:"host" envconfig:"HOST"`
	Port          int    `toml:"port" envconfig:"PORT"`
	Database      string `toml:"database" envconfig:"DATABASE"`
	User          string `toml:"user" envconfig:"USER"`
	Password      string `toml:"password" envconfig:"PASSWORD"`
	SSLMode       string `toml:"ssl_mode" envconfig:"SSL_MODE"`
	PoolMaxConns  int    `toml:"pool_max_conns" envconfig:"POOL_MAX_CONNS"`
	PoolMinConns  int    `toml:"pool_min_conns" envconfig:"POOL_MIN_CONNS"`
	RunMigrations bool   `toml:"run_migrations" envconfig:"RUN_MIGRATIONS"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr" envconfig:"ADDR"`
	Password   string   `toml:"password" envconfig:"PASSWORD"`
	DB         int      `toml:"db" envconfig:"DB"`
	PoolSize   int      `toml:"pool_size" envconfig:"POOL_SIZE"`
	MaxRetries int      `toml:"max_retries" envconfig:"MAX_RETRIES"`
	TLSEnabled bool     `toml:"tls_enabled" envconfig:"TLS_ENABLED"`
	CatalogTTL duration `toml:"catalog_ttl" envconfig:"CATALOG_TTL"`
	PriceTTL   duration `toml:"price_ttl" envconfig:"PRICE_TTL"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint" envconfig:"ENDPOINT"`
	Region         string `toml:"region" envconfig:"REGION"`
	Bucket         string `toml:"bucket" envconfig:"BUCKET"`
	AccessKey      string `toml:"access_key" envconfig:"ACCESS_KEY"`
	SecretKey      string `toml:"secret_key" envconfig:"SECRET_KEY"`
	UseSSL         bool   `toml:"use_ssl" envconfig:"USE_SSL"`
	ForcePathStyle bool   `toml:"force_path_style" envconfig:"FORCE_PATH_STYLE"`
}

// ArchiveConfig controls how settled issuances move to cold storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled" envconfig:"ENABLED"`
	RetentionDays int      `toml:"retention_days" envconfig:"RETENTION_DAYS"`
	Interval      duration `toml:"interval" envconfig:"INTERVAL"`
	// Cron, when set, schedules runs with a 5-field UTC cron expression
	// instead of Interval.
	Cron string `toml:"cron" envconfig:"CRON"`
}

// Retention returns the retention window as a duration.
func (a ArchiveConfig) Retention() time.Duration {
	return time.Duration(a.RetentionDays) * 24 * time.Hour
}

// duration wraps time.Duration so TOML and env values like "30s" decode.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port           int      `toml:"port" envconfig:"PORT"`
	CORSOrigins    []string `toml:"cors_origins" envconfig:"CORS_ORIGINS"`
	APIKey         string   `toml:"api_key" envconfig:"API_KEY"`
	RateLimit      int      `toml:"rate_limit" envconfig:"RATE_LIMIT"`
	RateLimitEvery duration `toml:"rate_limit_window" envconfig:"RATE_LIMIT_WINDOW"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID    string   `toml:"telegram_chat_id" envconfig:"TELEGRAM_CHAT_ID"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" envconfig:"DISCORD_WEBHOOK_URL"`
	Events            []string `toml:"events" envconfig:"EVENTS"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:          "http://localhost:8545",
			ChainID:         1,
			ReceiptInterval: duration{2 * time.Second},
			CatalogInterval: duration{time.Minute},
		},
		Issuance: IssuanceConfig{
			ConfirmTimeout: duration{3 * time.Minute},
			CloseDelay:     duration{2 * time.Second},
		},
		Price: PriceConfig{
			CoinGeckoURL: "https://api.coingecko.com/api/v3",
			PollInterval: duration{30 * time.Second},
			MaxAge:       duration{5 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "bondd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			CatalogTTL: duration{30 * time.Second},
			PriceTTL:   duration{10 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "bondd-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:      120,
			RateLimitEvery: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"issuance_confirmed", "issuance_failed", "swap_executed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"api":    true,
	"worker": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsWallet reports whether the mode signs transactions.
func (c *Config) NeedsWallet() bool {
	m := strings.ToLower(c.Mode)
	return m == "api" || m == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, worker, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: the API signs issuances and swaps.
	if c.NeedsWallet() {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if !common.IsHexAddress(c.Chain.VaultAddress) {
		errs = append(errs, fmt.Sprintf("chain: vault_address %q is not a valid address", c.Chain.VaultAddress))
	}
	if c.Chain.ReceiptInterval.Duration <= 0 {
		errs = append(errs, "chain: receipt_interval must be > 0")
	}

	// Issuance
	if c.Issuance.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "issuance: confirm_timeout must be > 0")
	}
	if c.Issuance.CloseDelay.Duration < 0 {
		errs = append(errs, "issuance: close_delay must be >= 0")
	}

	// Price
	if c.Price.CoinGeckoURL == "" {
		errs = append(errs, "price: coingecko_url must not be empty")
	}
	if c.Price.PollInterval.Duration <= 0 {
		errs = append(errs, "price: poll_interval must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.Cron != "" && len(strings.Fields(c.Archive.Cron)) != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron %q must have 5 fields", c.Archive.Cron))
		}
	}

	// Server
	if c.Mode != "worker" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
