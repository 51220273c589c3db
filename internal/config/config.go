// Package config defines the top-level configuration for the trading
// gateway and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYGW_* environment
// variables.
type Config struct {
	LogLevel string `toml:"log_level"`

	Gateway    GatewayConfig    `toml:"gateway"`
	Relay      RelayConfig      `toml:"relay"`
	Signals    SignalsConfig    `toml:"signals"`
	Wallet     WalletConfig     `toml:"wallet"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
}

// GatewayConfig holds the orchestrator's own lifecycle parameters.
type GatewayConfig struct {
	Version          string `toml:"version"`
	AutoTradeEnabled bool   `toml:"auto_trade_enabled"`
	CancelOnShutdown bool   `toml:"cancel_on_shutdown"`
}

// RelayConfig holds the pairing-relay connection parameters.
type RelayConfig struct {
	Host        string `toml:"host"`
	APIKey      string `toml:"api_key"`
	PairingID   string `toml:"pairing_id"`
	PairingCode string `toml:"pairing_code"`
}

// SignalsConfig holds the public signal feed subscription parameters.
type SignalsConfig struct {
	Host          string   `toml:"host"`
	APIKey        string   `toml:"api_key"`
	SignalTypes   []string `toml:"signal_types"`
	Symbols       []string `toml:"symbols"`
	MinConfidence float64  `toml:"min_confidence"`
}

// WalletConfig holds the Polymarket signing key. PrivateKeyHex is used
// directly when set; otherwise EncryptedKeyPath/KeyPassword resolve a key
// encrypted on disk via crypto.EncryptKey, following crypto.LoadKey's
// precedence.
type WalletConfig struct {
	PrivateKeyHex    string `toml:"private_key_hex"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// KalshiConfig holds Kalshi exchange connection parameters.
type KalshiConfig struct {
	BaseURL           string `toml:"base_url"`
	WSURL             string `toml:"ws_url"`
	APIKeyID          string `toml:"api_key_id"`
	RSAPrivateKeyPath string `toml:"rsa_private_key_path"`
}

// PolymarketConfig holds Polymarket connection parameters.
type PolymarketConfig struct {
	BaseURL string `toml:"base_url"`
	ChainID int    `toml:"chain_id"`
}

// RuleConfig is the TOML-friendly shape of a strategy.Rule: plain values
// instead of pointer filters, converted via ToRule.
type RuleConfig struct {
	Enabled             bool     `toml:"enabled"`
	SignalTypes         []string `toml:"signal_types"`
	SignalNames         []string `toml:"signal_names"`
	Venues              []string `toml:"venues"`
	Symbols             []string `toml:"symbols"`
	MinConfidence       *float64 `toml:"min_confidence"`
	MinSeverity         string   `toml:"min_severity"`
	Directions          []string `toml:"directions"`
	ActionSide          string   `toml:"action_side"`
	ActionSize          float64  `toml:"action_size"`
	ActionOrderType     string   `toml:"action_order_type"`
	LimitPriceOffsetBps *float64 `toml:"limit_price_offset_bps"`
}

// RiskConfig mirrors strategy.RiskConfig for TOML decoding.
type RiskConfig struct {
	MaxTradesPerMinute       int     `toml:"max_trades_per_minute"`
	MarketCooldownSeconds    int     `toml:"market_cooldown_seconds"`
	MaxPositionSizePerMarket float64 `toml:"max_position_size_per_market"`
}

// StrategyConfig mirrors strategy.Config for TOML decoding.
type StrategyConfig struct {
	Enabled                  bool              `toml:"enabled"`
	DryRun                   bool              `toml:"dry_run"`
	SignalDedupWindowSeconds int               `toml:"signal_dedup_window_seconds"`
	Rules                    []RuleConfig      `toml:"rules"`
	MarketMappings           map[string]string `toml:"market_mappings"`
	Risk                     RiskConfig        `toml:"risk"`
}

// ServerConfig holds the optional local dashboard parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds operator-notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// RedisConfig holds the optional Redis-backed report archive parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds the optional settlement archiver parameters.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Gateway: GatewayConfig{
			Version:          "dev",
			AutoTradeEnabled: false,
			CancelOnShutdown: true,
		},
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		Polymarket: PolymarketConfig{
			BaseURL: "https://clob.polymarket.com",
			ChainID: 137,
		},
		Strategy: StrategyConfig{
			SignalDedupWindowSeconds: 60,
			MarketMappings:           map[string]string{},
		},
		Server: ServerConfig{
			Enabled:     false,
			Port:        8090,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"ARB_LEG2_FAILED_HEDGE_REQUIRED", "GATEWAY_SHUTDOWN"},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:          "us-east-1",
			UseSSL:          true,
			ForcePathStyle:  false,
			ArchiveInterval: duration{15 * time.Minute},
		},
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found, following the
// collect-all-errors-then-join shape used throughout this package.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Relay.Host == "" {
		errs = append(errs, "relay: host must not be empty")
	}
	if c.Relay.PairingID == "" && c.Relay.PairingCode == "" {
		errs = append(errs, "relay: either pairing_id or pairing_code must be set")
	}

	if c.Signals.Host == "" {
		errs = append(errs, "signals: host must not be empty")
	}

	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Polymarket.BaseURL == "" {
		errs = append(errs, "polymarket: base_url must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Gateway.AutoTradeEnabled && c.Wallet.PrivateKeyHex == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: private_key_hex or encrypted_key_path is required when gateway.auto_trade_enabled is set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if c.Strategy.Enabled {
		if c.Strategy.SignalDedupWindowSeconds < 0 {
			errs = append(errs, "strategy: signal_dedup_window_seconds must be >= 0")
		}
		if c.Strategy.Risk.MaxPositionSizePerMarket < 0 {
			errs = append(errs, "strategy: risk.max_position_size_per_market must be >= 0")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
