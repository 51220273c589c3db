package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	out.Relay = cfg.Relay
	redact(&out.Relay.APIKey)

	out.Signals = cfg.Signals
	redact(&out.Signals.APIKey)

	out.Wallet = cfg.Wallet
	redact(&out.Wallet.PrivateKeyHex)
	redact(&out.Wallet.KeyPassword)

	out.Kalshi = cfg.Kalshi
	redact(&out.Kalshi.APIKeyID)

	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Copy slices and maps so mutations to the redacted copy never affect
	// the original.
	if cfg.Signals.SignalTypes != nil {
		out.Signals.SignalTypes = append([]string(nil), cfg.Signals.SignalTypes...)
	}
	if cfg.Signals.Symbols != nil {
		out.Signals.Symbols = append([]string(nil), cfg.Signals.Symbols...)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Strategy.MarketMappings != nil {
		out.Strategy.MarketMappings = make(map[string]string, len(cfg.Strategy.MarketMappings))
		for k, v := range cfg.Strategy.MarketMappings {
			out.Strategy.MarketMappings[k] = v
		}
	}
	if cfg.Strategy.Rules != nil {
		out.Strategy.Rules = append([]RuleConfig(nil), cfg.Strategy.Rules...)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
