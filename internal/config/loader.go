package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYGW_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYGW_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "POLYGW_LOG_LEVEL")

	// ── Gateway ──
	setStr(&cfg.Gateway.Version, "POLYGW_GATEWAY_VERSION")
	setBool(&cfg.Gateway.AutoTradeEnabled, "POLYGW_GATEWAY_AUTO_TRADE_ENABLED")
	setBool(&cfg.Gateway.CancelOnShutdown, "POLYGW_GATEWAY_CANCEL_ON_SHUTDOWN")

	// ── Relay ──
	setStr(&cfg.Relay.Host, "POLYGW_RELAY_HOST")
	setStr(&cfg.Relay.APIKey, "POLYGW_RELAY_API_KEY")
	setStr(&cfg.Relay.PairingID, "POLYGW_RELAY_PAIRING_ID")
	setStr(&cfg.Relay.PairingCode, "POLYGW_RELAY_PAIRING_CODE")

	// ── Signals ──
	setStr(&cfg.Signals.Host, "POLYGW_SIGNALS_HOST")
	setStr(&cfg.Signals.APIKey, "POLYGW_SIGNALS_API_KEY")
	setStringSlice(&cfg.Signals.SignalTypes, "POLYGW_SIGNALS_SIGNAL_TYPES")
	setStringSlice(&cfg.Signals.Symbols, "POLYGW_SIGNALS_SYMBOLS")
	setFloat64(&cfg.Signals.MinConfidence, "POLYGW_SIGNALS_MIN_CONFIDENCE")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKeyHex, "POLYGW_WALLET_PRIVATE_KEY_HEX")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYGW_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYGW_WALLET_KEY_PASSWORD")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.BaseURL, "POLYGW_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WSURL, "POLYGW_KALSHI_WS_URL")
	setStr(&cfg.Kalshi.APIKeyID, "POLYGW_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.RSAPrivateKeyPath, "POLYGW_KALSHI_RSA_PRIVATE_KEY_PATH")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.BaseURL, "POLYGW_POLYMARKET_BASE_URL")
	setInt(&cfg.Polymarket.ChainID, "POLYGW_POLYMARKET_CHAIN_ID")

	// ── Strategy ──
	setBool(&cfg.Strategy.Enabled, "POLYGW_STRATEGY_ENABLED")
	setBool(&cfg.Strategy.DryRun, "POLYGW_STRATEGY_DRY_RUN")
	setInt(&cfg.Strategy.SignalDedupWindowSeconds, "POLYGW_STRATEGY_SIGNAL_DEDUP_WINDOW_SECONDS")
	setInt(&cfg.Strategy.Risk.MaxTradesPerMinute, "POLYGW_STRATEGY_RISK_MAX_TRADES_PER_MINUTE")
	setInt(&cfg.Strategy.Risk.MarketCooldownSeconds, "POLYGW_STRATEGY_RISK_MARKET_COOLDOWN_SECONDS")
	setFloat64(&cfg.Strategy.Risk.MaxPositionSizePerMarket, "POLYGW_STRATEGY_RISK_MAX_POSITION_SIZE_PER_MARKET")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYGW_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYGW_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYGW_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYGW_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYGW_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYGW_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYGW_NOTIFY_EVENTS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYGW_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYGW_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYGW_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYGW_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYGW_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYGW_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYGW_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYGW_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYGW_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYGW_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYGW_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYGW_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYGW_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYGW_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYGW_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "POLYGW_S3_ARCHIVE_INTERVAL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
