package strategy

import (
	"sync"
	"time"

	"github.com/alanyoungcy/polymarketbot/internal/clock"
)

// PositionSizer reports the current gross size held in a market, used by
// the optional max_position_size_per_market gate. Evaluated on gross size
// rather than net, per the documented decision on the spec's open question.
type PositionSizer interface {
	GrossSize(marketID string) float64
}

// RiskConfig configures the risk gate ledger.
type RiskConfig struct {
	MaxTradesPerMinute       int
	MarketCooldownSeconds    int
	MaxPositionSizePerMarket float64 // 0 disables the check
}

// riskGate evaluates candidate commands against an in-process, mutex-guarded
// global rate limit and per-market cooldown, using a sliding-window count
// and an evaluate-then-record split. Kept entirely in-process since this
// module has no persistent-storage requirement.
type riskGate struct {
	cfg   RiskConfig
	clock clock.Clock
	sizer PositionSizer

	mu           sync.Mutex
	tradeTimes   []time.Time          // global sliding window, pruned on each evaluate
	lastByMarket map[string]time.Time // market_id -> last recorded execution
}

func newRiskGate(cfg RiskConfig, c clock.Clock, sizer PositionSizer) *riskGate {
	return &riskGate{
		cfg:          cfg,
		clock:        c,
		sizer:        sizer,
		lastByMarket: make(map[string]time.Time),
	}
}

// evaluate reports whether a candidate trade on marketID with additionalSize
// passes all configured gates. It does not record anything — recording
// happens separately, via recordExecuted.
func (g *riskGate) evaluate(marketID string, additionalSize float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.pruneLocked(now)

	if g.cfg.MaxTradesPerMinute > 0 && len(g.tradeTimes) >= g.cfg.MaxTradesPerMinute {
		return false
	}

	if g.cfg.MarketCooldownSeconds > 0 {
		if last, ok := g.lastByMarket[marketID]; ok {
			if now.Sub(last) < time.Duration(g.cfg.MarketCooldownSeconds)*time.Second {
				return false
			}
		}
	}

	if g.cfg.MaxPositionSizePerMarket > 0 && g.sizer != nil {
		if g.sizer.GrossSize(marketID)+additionalSize > g.cfg.MaxPositionSizePerMarket {
			return false
		}
	}

	return true
}

// recordExecuted records a filled trade against the global and per-market
// ledgers. Not called on rejection, so cooldowns are never burnt
// by failed executions.
func (g *riskGate) recordExecuted(marketID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	g.tradeTimes = append(g.tradeTimes, now)
	g.lastByMarket[marketID] = now
}

// pruneLocked drops trade timestamps older than one minute. Caller must
// hold g.mu.
func (g *riskGate) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(g.tradeTimes) && g.tradeTimes[i].Before(cutoff) {
		i++
	}
	g.tradeTimes = g.tradeTimes[i:]
}
