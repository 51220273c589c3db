// Package strategy turns public signals into relay-shaped trade commands:
// rule matching and dispatch, a paired-outcome arbitrage branch, and the
// risk gates in risk.go (evaluate-then-record).
package strategy

import (
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/polymarketbot/internal/clock"
	"github.com/alanyoungcy/polymarketbot/internal/eventbus"
	"github.com/alanyoungcy/polymarketbot/internal/protocol"
	"github.com/alanyoungcy/polymarketbot/internal/venue"
)

// Config configures an Engine.
type Config struct {
	Enabled                  bool
	DryRun                   bool
	SignalDedupWindowSeconds int
	Rules                    []Rule
	MarketMappings           map[string]string // signal market key -> "<venue>:<native_id>"
	Risk                     RiskConfig
}

// Counters are the engine's running statistics, exposed read-only for
// status reporting and the heartbeat's strategy_metrics field.
type Counters struct {
	SignalsReceived int64
	TradesGenerated int64
	DryRunTrades    int64
}

// Event is published for dry_run_trade notifications (order_update/error
// for actual trades are the router's concern once the orchestrator injects
// the returned commands).
type Event struct {
	Type    string // "dry_run_trade"
	Command protocol.Command
}

// Engine evaluates incoming signals against an ordered rule list and
// produces zero, one, or two trade commands per signal.
type Engine struct {
	cfg   Config
	clock clock.Clock
	dedup *dedup
	risk  *riskGate

	mu       sync.Mutex
	counters Counters

	events *eventbus.Bus[Event]
}

// New returns an Engine. sizer may be nil if MaxPositionSizePerMarket is 0.
func New(cfg Config, c clock.Clock, sizer PositionSizer) *Engine {
	if c == nil {
		c = clock.Real{}
	}
	return &Engine{
		cfg:    cfg,
		clock:  c,
		dedup:  newDedup(time.Duration(cfg.SignalDedupWindowSeconds)*time.Second, c),
		risk:   newRiskGate(cfg.Risk, c, sizer),
		events: eventbus.New[Event](),
	}
}

// Events returns the bus dry_run_trade notifications are published on.
func (e *Engine) Events() *eventbus.Bus[Event] { return e.events }

// Counters returns a snapshot of the engine's running statistics.
func (e *Engine) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters
}

// PruneDedup drops dedup entries older than the window. Call periodically.
func (e *Engine) PruneDedup() { e.dedup.cleanup() }

// HandleSignal evaluates sig and returns the commands it generates, if any.
func (e *Engine) HandleSignal(sig protocol.Signal) []protocol.Command {
	if !e.cfg.Enabled {
		return nil
	}

	e.mu.Lock()
	e.counters.SignalsReceived++
	e.mu.Unlock()

	now := e.clock.Now()
	if !sig.ExpiresAt.IsZero() && !sig.ExpiresAt.After(now) {
		return nil
	}

	if e.dedup.isDuplicate(sig.ID) {
		return nil
	}

	rule, ok := e.matchRule(sig)
	if !ok {
		return nil
	}

	var candidates []protocol.Command
	if arb, isArb := sig.Arbitrage(); isArb && arb.IsArb() {
		candidates = e.buildArbCommands(sig, arb, rule, now)
	} else {
		candidates = e.buildSingleCommand(sig, rule)
	}
	if len(candidates) == 0 {
		return nil
	}

	if !e.passRiskGate(candidates) {
		return nil
	}

	if e.cfg.DryRun {
		e.mu.Lock()
		e.counters.DryRunTrades += int64(len(candidates))
		e.mu.Unlock()
		for _, cmd := range candidates {
			e.events.Publish(Event{Type: "dry_run_trade", Command: cmd})
		}
		return candidates
	}

	e.mu.Lock()
	e.counters.TradesGenerated += int64(len(candidates))
	e.mu.Unlock()
	return candidates
}

// RecordExecutedTrade feeds the rate-limit and cooldown ledgers. The
// orchestrator calls it for every order that reaches the filled state,
// whether the order came from the strategy or from the relay; a strategy
// command that is routed but not filled is not recorded.
func (e *Engine) RecordExecutedTrade(marketID string) {
	e.risk.recordExecuted(marketID)
}

func (e *Engine) matchRule(sig protocol.Signal) (Rule, bool) {
	for _, r := range e.cfg.Rules {
		if r.matches(sig.SignalType, sig.SignalName, sig.Venue, sig.Symbol(), sig.Confidence, sig.Severity, sig.Direction) {
			return r, true
		}
	}
	return Rule{}, false
}

// buildSingleCommand resolves the single-leg trade path.
func (e *Engine) buildSingleCommand(sig protocol.Signal, rule Rule) []protocol.Command {
	resolved, ok := e.cfg.MarketMappings[sig.Symbol()]
	if !ok {
		resolved, ok = e.cfg.MarketMappings[sig.ID]
	}
	if !ok {
		return nil
	}

	venueName, _, err := venue.ParseMarketID(resolved)
	if err != nil {
		return nil
	}

	side := rule.Action.Side
	if side == "from_signal" {
		derived, ok := fromSignalSide(venueName, sig.Direction)
		if !ok {
			return nil
		}
		side = derived
	}

	cmd := protocol.Command{
		Type:      protocol.CommandTrade,
		ID:        sig.ID,
		MarketID:  resolved,
		Venue:     venueName,
		Side:      side,
		Action:    actionForSide(side),
		Size:      rule.Action.Size,
		OrderType: rule.Action.OrderType,
	}

	if rule.Action.LimitPriceOffsetBps != nil && rule.Action.OrderType == "limit" {
		if base, ok := sig.BasePrice(); ok {
			limit := roundTo2DP(base * (1 + *rule.Action.LimitPriceOffsetBps/10000))
			cmd.LimitPrice = &limit
		}
	}

	return []protocol.Command{cmd}
}

// buildArbCommands resolves the two-leg arbitrage path. Both legs carry the
// matched rule's size and order type, the same as the single-leg path.
func (e *Engine) buildArbCommands(sig protocol.Signal, arb protocol.ArbitragePayload, rule Rule, now time.Time) []protocol.Command {
	cutoff := arb.SignalCutoffUTC
	if cutoff == nil && arb.WindowEndUTC != nil {
		fallback := arb.WindowEndUTC.Add(-15 * time.Second)
		cutoff = &fallback
	}
	if cutoff != nil && !now.Before(*cutoff) {
		return nil
	}

	if arb.Strategy == "super_hedge" && arb.BuyOutcome != "" && arb.SellOutcome != "" {
		return []protocol.Command{
			{Type: protocol.CommandTrade, ID: sig.ID + "-leg1", MarketID: arb.BuyMarketID, Venue: arb.BuyVenue, Side: arb.BuyOutcome, Action: "open", Size: rule.Action.Size, OrderType: rule.Action.OrderType},
			{Type: protocol.CommandTrade, ID: sig.ID + "-leg2", MarketID: arb.SellMarketID, Venue: arb.SellVenue, Side: arb.SellOutcome, Action: "open", Size: rule.Action.Size, OrderType: rule.Action.OrderType},
		}
	}

	return []protocol.Command{
		{Type: protocol.CommandTrade, ID: sig.ID + "-leg1", MarketID: arb.BuyMarketID, Venue: arb.BuyVenue, Side: "buy", Action: "buy", Size: rule.Action.Size, OrderType: rule.Action.OrderType},
		{Type: protocol.CommandTrade, ID: sig.ID + "-leg2", MarketID: arb.SellMarketID, Venue: arb.SellVenue, Side: "sell", Action: "sell", Size: rule.Action.Size, OrderType: rule.Action.OrderType},
	}
}

// passRiskGate evaluates every candidate; for an arb pair both legs must
// pass or the whole pair is rejected.
func (e *Engine) passRiskGate(candidates []protocol.Command) bool {
	for _, cmd := range candidates {
		if !e.risk.evaluate(cmd.MarketID, cmd.Size) {
			return false
		}
	}
	return true
}

func roundTo2DP(v float64) float64 {
	return math.Round(v*100) / 100
}

// actionForSide maps a command's side to the buy/sell action a venue
// connector expects, since "yes"/"no" are outcome sides, not actions.
func actionForSide(side string) string {
	if side == "no" || side == "sell" {
		return "sell"
	}
	return "buy"
}
