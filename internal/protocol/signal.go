package protocol

import (
	"encoding/json"
	"time"
)

// Signal is a single message from the public signal stream. Payload carries
// variant-specific data (e.g. ArbitragePayload for cross_venue_arbitrage
// alerts); the engine decodes it lazily since most rules never need it.
type Signal struct {
	ID         string          `json:"id"`
	SignalType string          `json:"signal_type"`
	SignalName string          `json:"signal_name,omitempty"`
	Venue      string          `json:"venue,omitempty"`
	Base       string          `json:"base,omitempty"`
	Quote      string          `json:"quote,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Severity   string          `json:"severity,omitempty"`
	Direction  string          `json:"direction,omitempty"`
	ExpiresAt  time.Time       `json:"expires_at"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Symbol returns the "<base>/<quote>" form used by Rule.Symbols matching.
// Empty when either leg is unset.
func (s Signal) Symbol() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// IsSignal reports whether a decoded JSON object looks like a signal frame
// rather than an unrelated message on the same stream: it must carry both an
// id and a signal_type.
func IsSignal(raw map[string]json.RawMessage) bool {
	_, hasID := raw["id"]
	_, hasType := raw["signal_type"]
	return hasID && hasType
}

// ArbitragePayload is the shape of Signal.Payload for a cross_venue_arbitrage
// alert. Prices are transported as decimal strings since they originate at a
// venue boundary.
type ArbitragePayload struct {
	BuyVenue        string     `json:"buy_venue"`
	SellVenue       string     `json:"sell_venue"`
	BuyMarketID     string     `json:"buy_market_id"`
	SellMarketID    string     `json:"sell_market_id"`
	BuyPrice        string     `json:"buy_price"`
	SellPrice       string     `json:"sell_price"`
	Strategy        string     `json:"strategy,omitempty"`
	BuyOutcome      string     `json:"buy_outcome,omitempty"`
	SellOutcome     string     `json:"sell_outcome,omitempty"`
	SignalCutoffUTC *time.Time `json:"signal_cutoff_utc,omitempty"`
	WindowEndUTC    *time.Time `json:"window_end_utc,omitempty"`
}

// IsArb reports whether the payload has both legs of a cross-venue
// arbitrage: buy/sell venues and market ids all present.
func (p ArbitragePayload) IsArb() bool {
	return p.BuyVenue != "" && p.SellVenue != "" && p.BuyMarketID != "" && p.SellMarketID != ""
}

// pricePayload captures the handful of base-price field names a single-leg
// rule may read when computing a limit_price_offset_bps order.
type pricePayload struct {
	CurrentPrice *float64 `json:"current_price,omitempty"`
	TriggerPrice *float64 `json:"trigger_price,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	YesPrice     *float64 `json:"yes_price,omitempty"`
	LastPrice    *float64 `json:"last_price,omitempty"`
}

// BasePrice extracts the first populated price field from the signal
// payload, in the precedence order current_price, trigger_price, price,
// yes_price, last_price. Returns false if none are present or the payload
// does not decode.
func (s Signal) BasePrice() (float64, bool) {
	if len(s.Payload) == 0 {
		return 0, false
	}
	var p pricePayload
	if err := json.Unmarshal(s.Payload, &p); err != nil {
		return 0, false
	}
	for _, v := range []*float64{p.CurrentPrice, p.TriggerPrice, p.Price, p.YesPrice, p.LastPrice} {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// Arbitrage decodes the signal payload as an ArbitragePayload. Returns false
// if the payload is absent or does not decode.
func (s Signal) Arbitrage() (ArbitragePayload, bool) {
	if len(s.Payload) == 0 {
		return ArbitragePayload{}, false
	}
	var p ArbitragePayload
	if err := json.Unmarshal(s.Payload, &p); err != nil {
		return ArbitragePayload{}, false
	}
	return p, true
}

// SubscribeFrame is the single outbound message the signal consumer sends on
// every WebSocket open.
type SubscribeFrame struct {
	Type          string   `json:"type"`
	SignalTypes   []string `json:"signal_types"`
	Symbols       []string `json:"symbols"`
	MinConfidence float64  `json:"min_confidence"`
}

// NewSubscribeFrame builds the subscribe frame sent on connect.
func NewSubscribeFrame(signalTypes, symbols []string, minConfidence float64) SubscribeFrame {
	return SubscribeFrame{
		Type:          "subscribe",
		SignalTypes:   signalTypes,
		Symbols:       symbols,
		MinConfidence: minConfidence,
	}
}
