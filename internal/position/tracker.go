// Package position holds open positions keyed by (venue, market_id),
// recomputes unrealized P&L on update, and retires positions on
// settlement. Updates are published on the in-process internal/eventbus
// rather than Redis, since nothing here needs cross-process fan-out.
package position

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/polymarketbot/internal/eventbus"
)

// Key identifies a tracked position.
type Key struct {
	Venue    string
	MarketID string
}

// Position is a single open position.
type Position struct {
	Venue             string
	MarketID          string
	Side              string
	Size              float64
	EntryPrice        float64
	CurrentPrice      *float64
	UnrealizedPnL     *float64
	ContractExpiresAt *time.Time
}

// longSides lists the position sides whose P&L is computed without
// negation; every other side is treated as short.
var longSides = map[string]bool{"yes": true, "buy": true, "long": true}

func isLong(side string) bool { return longSides[side] }

// Settlement is a terminal result for a position.
type Settlement struct {
	Venue           string
	MarketID        string
	Result          string
	EntryPrice      float64
	SettlementPrice float64
	RealizedPnL     float64
	Timestamp       time.Time
}

// Event is published on position_update/position_removed/settlement.
type Event struct {
	Type       string // "position_update" | "position_removed" | "settlement"
	Position   *Position
	Settlement *Settlement
}

// Tracker holds positions by (venue, market_id) and the settlement log.
// Safe for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	positions   map[Key]Position
	settlements []Settlement

	events *eventbus.Bus[Event]
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		positions: make(map[Key]Position),
		events:    eventbus.New[Event](),
	}
}

// Events returns the bus positions/settlements are published on.
func (t *Tracker) Events() *eventbus.Bus[Event] { return t.events }

// UpdatePosition upserts p by (venue, market_id), recomputing
// unrealized_pnl = (current_price - entry_price) * size for long sides and
// its negation for short sides. UnrealizedPnL is left nil when
// CurrentPrice is absent. Emits position_update.
func (t *Tracker) UpdatePosition(p Position) Position {
	t.mu.Lock()
	if p.CurrentPrice != nil {
		pnl := (*p.CurrentPrice - p.EntryPrice) * p.Size
		if !isLong(p.Side) {
			pnl = -pnl
		}
		p.UnrealizedPnL = &pnl
	} else {
		p.UnrealizedPnL = nil
	}
	key := Key{Venue: p.Venue, MarketID: p.MarketID}
	t.positions[key] = p
	t.mu.Unlock()

	t.events.Publish(Event{Type: "position_update", Position: &p})
	return p
}

// Get returns the tracked position for (venue, market_id), if any.
func (t *Tracker) Get(venue, marketID string) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[Key{Venue: venue, MarketID: marketID}]
	return p, ok
}

// GrossSize implements strategy.PositionSizer: the summed size of every
// tracked position whose MarketID matches, regardless of side. MarketID is
// already venue-qualified ("kalshi:M"), so a single map scan is enough.
func (t *Tracker) GrossSize(marketID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for k, p := range t.positions {
		if k.MarketID == marketID {
			total += p.Size
		}
	}
	return total
}

// All returns every tracked position, sorted by (venue, market_id) for
// deterministic status output.
func (t *Tracker) All() []Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Venue != out[j].Venue {
			return out[i].Venue < out[j].Venue
		}
		return out[i].MarketID < out[j].MarketID
	})
	return out
}

// AddSettlement appends s to the settlement log, deletes any position at
// (s.Venue, s.MarketID), and emits settlement then, if a position was
// removed, position_removed.
func (t *Tracker) AddSettlement(s Settlement) {
	key := Key{Venue: s.Venue, MarketID: s.MarketID}

	t.mu.Lock()
	t.settlements = append(t.settlements, s)
	removed, had := t.positions[key]
	if had {
		delete(t.positions, key)
	}
	t.mu.Unlock()

	t.events.Publish(Event{Type: "settlement", Settlement: &s})
	if had {
		t.events.Publish(Event{Type: "position_removed", Position: &removed})
	}
}

// Settlements returns the full settlement log in append order.
func (t *Tracker) Settlements() []Settlement {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Settlement, len(t.settlements))
	copy(out, t.settlements)
	return out
}
