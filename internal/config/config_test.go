package config

import "testing"

func TestDefaultsFailValidateWithoutRelayAndSignals(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for defaults missing relay/signals host")
	}
}

func TestValidateMinimalConfigPasses(t *testing.T) {
	cfg := Defaults()
	cfg.Relay.Host = "relay.example.com"
	cfg.Relay.PairingID = "p-1"
	cfg.Signals.Host = "signals.example.com"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRequiresWalletWhenAutoTradeEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Relay.Host = "relay.example.com"
	cfg.Relay.PairingID = "p-1"
	cfg.Signals.Host = "signals.example.com"
	cfg.Gateway.AutoTradeEnabled = true

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error: auto-trade enabled without a wallet key")
	}

	cfg.Wallet.PrivateKeyHex = "0xdeadbeef"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config once wallet key is set, got %v", err)
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Relay.Host = "relay.example.com"
	cfg.Relay.PairingID = "p-1"
	cfg.Signals.Host = "signals.example.com"
	cfg.LogLevel = "verbose"

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for invalid log_level")
	}
}

func TestRedactedConfigStripsSecretsWithoutMutatingOriginal(t *testing.T) {
	cfg := Defaults()
	cfg.Relay.APIKey = "relay-secret"
	cfg.Wallet.PrivateKeyHex = "0xsecret"
	cfg.S3.SecretKey = "s3-secret"

	redacted := RedactedConfig(&cfg)
	if redacted.Relay.APIKey != "***" || redacted.Wallet.PrivateKeyHex != "***" || redacted.S3.SecretKey != "***" {
		t.Fatalf("expected secrets redacted, got %+v", redacted)
	}
	if cfg.Relay.APIKey != "relay-secret" {
		t.Fatalf("original config mutated: %+v", cfg)
	}
}

func TestToStrategyConfigConvertsRules(t *testing.T) {
	minConf := 0.5
	sc := StrategyConfig{
		Enabled: true,
		Rules: []RuleConfig{
			{Enabled: true, SignalTypes: []string{"price_move"}, MinConfidence: &minConf, ActionSide: "buy", ActionSize: 10, ActionOrderType: "market"},
		},
		MarketMappings: map[string]string{"S1": "kalshi:M"},
	}

	got := sc.ToStrategyConfig()
	if len(got.Rules) != 1 {
		t.Fatalf("expected one converted rule, got %+v", got.Rules)
	}
	if got.Rules[0].Action.Side != "buy" || got.Rules[0].Action.Size != 10 {
		t.Fatalf("unexpected converted action: %+v", got.Rules[0].Action)
	}
	if got.Rules[0].MinConfidence == nil || *got.Rules[0].MinConfidence != 0.5 {
		t.Fatalf("expected min confidence preserved, got %+v", got.Rules[0].MinConfidence)
	}
}
