package config

import "github.com/alanyoungcy/polymarketbot/internal/strategy"

// ToStrategyConfig converts the TOML-decoded StrategyConfig into the engine's
// runtime strategy.Config. Kept as a conversion step (rather than decoding
// directly into strategy.Config) because strategy.Rule's pointer filter
// fields don't round-trip cleanly through TOML.
func (s StrategyConfig) ToStrategyConfig() strategy.Config {
	rules := make([]strategy.Rule, 0, len(s.Rules))
	for _, r := range s.Rules {
		rules = append(rules, r.ToRule())
	}
	return strategy.Config{
		Enabled:                  s.Enabled,
		DryRun:                   s.DryRun,
		SignalDedupWindowSeconds: s.SignalDedupWindowSeconds,
		Rules:                    rules,
		MarketMappings:           s.MarketMappings,
		Risk: strategy.RiskConfig{
			MaxTradesPerMinute:       s.Risk.MaxTradesPerMinute,
			MarketCooldownSeconds:    s.Risk.MarketCooldownSeconds,
			MaxPositionSizePerMarket: s.Risk.MaxPositionSizePerMarket,
		},
	}
}

// ToRule converts a RuleConfig into a strategy.Rule.
func (r RuleConfig) ToRule() strategy.Rule {
	rule := strategy.Rule{
		Enabled:     r.Enabled,
		SignalTypes: r.SignalTypes,
		SignalNames: r.SignalNames,
		Venues:      r.Venues,
		Symbols:     r.Symbols,
		Directions:  r.Directions,
		Action: strategy.Action{
			Side:                r.ActionSide,
			Size:                r.ActionSize,
			OrderType:           r.ActionOrderType,
			LimitPriceOffsetBps: r.LimitPriceOffsetBps,
		},
	}
	if r.MinConfidence != nil {
		rule.MinConfidence = r.MinConfidence
	}
	if r.MinSeverity != "" {
		sev := r.MinSeverity
		rule.MinSeverity = &sev
	}
	return rule
}
