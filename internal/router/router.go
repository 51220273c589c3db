// Package router dispatches relay commands to venue connectors, tracks
// order state by both command id and minted order id, and reports outcomes
// and failures onto an event bus. cancel_all fans out to every connector in
// parallel with failure isolation: one connector's failure never blocks the
// rest, tracked with a WaitGroup and a mutex-guarded error slice.
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/polymarketbot/internal/eventbus"
	"github.com/alanyoungcy/polymarketbot/internal/protocol"
	"github.com/alanyoungcy/polymarketbot/internal/venue"
)

// Error codes reported via error events.
const (
	ErrGatewayPaused    = "GATEWAY_PAUSED"
	ErrVenueNotFound    = "VENUE_NOT_FOUND"
	ErrVenueUnhealthy   = "VENUE_UNHEALTHY"
	ErrInvalidMarketID  = "INVALID_MARKET_ID"
	ErrOrderNotFound    = "ORDER_NOT_FOUND"
	ErrOrderPlaceFailed = "ORDER_PLACEMENT_FAILED"
	ErrOrderRejected    = "ORDER_REJECTED"
	ErrCancelFailed     = "CANCEL_FAILED"
	ErrCancelAllFailed  = "CANCEL_ALL_FAILED"
)

// OrderState is the lifecycle state of a tracked order.
type OrderState string

const (
	StatePending   OrderState = "pending"
	StateSubmitted OrderState = "submitted"
	StateFilled    OrderState = "filled"
	StateRejected  OrderState = "rejected"
	StateCancelled OrderState = "cancelled"
)

// TrackedOrder is the router's record of a single command's order.
type TrackedOrder struct {
	OrderID string
	// CommandID is the id of the trade command that created the order. The
	// order_update emitted for a cancel carries this original id, not the
	// cancel command's own id.
	CommandID    string
	Venue        string
	MarketID     string
	Side         string
	Size         float64
	State        OrderState
	VenueOrderID string
	FillPrice    *float64
}

// Event is published whenever the router emits order_update or error.
type Event struct {
	Type         string // "order_update" | "error"
	Order        *TrackedOrder
	ErrorCode    string
	ErrorMessage string
	Venue        string
	CommandID    string
}

// Router dispatches commands to registered connectors and tracks their
// resulting orders.
type Router struct {
	registry *venue.Registry

	mu        sync.Mutex
	orders    map[string]*TrackedOrder // keyed by command id
	byOrderID map[string]*TrackedOrder // keyed by minted order id, same values as orders
	paused    bool

	events *eventbus.Bus[Event]
}

// New returns a Router dispatching against registry.
func New(registry *venue.Registry) *Router {
	return &Router{
		registry:  registry,
		orders:    make(map[string]*TrackedOrder),
		byOrderID: make(map[string]*TrackedOrder),
		events:    eventbus.New[Event](),
	}
}

// Events returns the bus order_update/error are published on.
func (r *Router) Events() *eventbus.Bus[Event] { return r.events }

// IsPaused reports the current pause flag. A soft gate: it is read once at
// the top of route_command and not re-checked afterward.
func (r *Router) IsPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// SetPaused flips the pause flag. Called by pause/resume commands.
func (r *Router) SetPaused(paused bool) {
	r.mu.Lock()
	r.paused = paused
	r.mu.Unlock()
}

// GetOrders returns every tracked order, sorted by command id for
// deterministic status output.
func (r *Router) GetOrders() []TrackedOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.orders))
	for id := range r.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]TrackedOrder, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.orders[id])
	}
	return out
}

// RouteCommand dispatches cmd by its variant. It never returns an error to
// the caller for business failures (GATEWAY_PAUSED, VENUE_NOT_FOUND, ...);
// those surface only as error events.
func (r *Router) RouteCommand(ctx context.Context, cmd protocol.Command) {
	switch cmd.Type {
	case protocol.CommandTrade:
		r.routeTrade(ctx, cmd)
	case protocol.CommandCancel:
		r.routeCancel(ctx, cmd)
	case protocol.CommandCancelAll:
		r.routeCancelAll(ctx)
	case protocol.CommandPause:
		r.SetPaused(true)
	case protocol.CommandResume:
		r.SetPaused(false)
	}
}

func (r *Router) routeTrade(ctx context.Context, cmd protocol.Command) {
	if r.IsPaused() {
		r.emitError(ErrGatewayPaused, "trade arrived while gateway is paused", cmd.Venue, cmd.ID)
		return
	}

	venueName, nativeID, err := venue.ParseMarketID(cmd.MarketID)
	if err != nil {
		r.emitError(ErrInvalidMarketID, err.Error(), cmd.Venue, cmd.ID)
		return
	}

	conn, ok := r.registry.Get(venueName)
	if !ok {
		r.emitError(ErrVenueNotFound, fmt.Sprintf("no connector registered for venue %q", venueName), venueName, cmd.ID)
		return
	}
	if !conn.IsHealthy() {
		r.emitError(ErrVenueUnhealthy, fmt.Sprintf("venue %q is unhealthy", venueName), venueName, cmd.ID)
		return
	}

	orderID := r.mintOrderID(venueName)
	tracked := &TrackedOrder{
		OrderID:   orderID,
		CommandID: cmd.ID,
		Venue:     venueName,
		MarketID:  cmd.MarketID,
		Side:      cmd.Side,
		Size:      cmd.Size,
		State:     StatePending,
	}
	r.mu.Lock()
	r.orders[cmd.ID] = tracked
	r.byOrderID[orderID] = tracked
	r.mu.Unlock()

	result, err := conn.PlaceOrder(ctx, venue.OrderRequest{
		MarketID:   nativeID,
		Side:       cmd.Side,
		Action:     cmd.Action,
		Size:       cmd.Size,
		OrderType:  cmd.OrderType,
		LimitPrice: cmd.LimitPrice,
	})
	if err != nil {
		r.mu.Lock()
		tracked.State = StateRejected
		r.mu.Unlock()
		r.emitError(ErrOrderPlaceFailed, err.Error(), venueName, cmd.ID)
		r.emitOrderUpdate(tracked)
		return
	}

	r.mu.Lock()
	tracked.State = stateFromVenueStatus(result.Status)
	tracked.VenueOrderID = result.VenueOrderID
	tracked.FillPrice = result.FillPrice
	r.mu.Unlock()

	r.emitOrderUpdate(tracked)
	if result.Status == venue.OrderStatusRejected && result.Error != "" {
		r.emitError(ErrOrderRejected, result.Error, venueName, cmd.ID)
	}
}

func (r *Router) routeCancel(ctx context.Context, cmd protocol.Command) {
	r.mu.Lock()
	tracked, ok := r.byOrderID[cmd.OrderID]
	r.mu.Unlock()
	if !ok {
		r.emitError(ErrOrderNotFound, fmt.Sprintf("no tracked order for id %q", cmd.OrderID), "", cmd.ID)
		return
	}

	conn, ok := r.registry.Get(tracked.Venue)
	if !ok {
		r.emitError(ErrOrderNotFound, fmt.Sprintf("venue %q no longer registered", tracked.Venue), tracked.Venue, tracked.CommandID)
		return
	}

	if err := conn.CancelOrder(ctx, tracked.VenueOrderID); err != nil {
		r.emitError(ErrCancelFailed, err.Error(), tracked.Venue, tracked.CommandID)
		return
	}

	r.mu.Lock()
	tracked.State = StateCancelled
	r.mu.Unlock()
	r.emitOrderUpdate(tracked)
}

// routeCancelAll invokes CancelAllOrders on every connector in parallel,
// isolating each venue's failure from the others, then marks every
// pending|submitted tracked order cancelled.
func (r *Router) routeCancelAll(ctx context.Context) {
	connectors := r.registry.All()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []string

	for _, conn := range connectors {
		wg.Add(1)
		go func(c venue.Connector) {
			defer wg.Done()
			if err := c.CancelAllOrders(ctx); err != nil {
				mu.Lock()
				failed = append(failed, c.Venue())
				mu.Unlock()
				r.emitError(ErrCancelAllFailed, err.Error(), c.Venue(), "")
			}
		}(conn)
	}
	wg.Wait()

	r.mu.Lock()
	var toEmit []*TrackedOrder
	for _, o := range r.orders {
		if o.State == StatePending || o.State == StateSubmitted {
			o.State = StateCancelled
			toEmit = append(toEmit, o)
		}
	}
	r.mu.Unlock()

	for _, o := range toEmit {
		r.emitOrderUpdate(o)
	}
}

func (r *Router) emitOrderUpdate(o *TrackedOrder) {
	cp := *o
	r.events.Publish(Event{Type: "order_update", Order: &cp})
}

func (r *Router) emitError(code, message, venueName, commandID string) {
	r.events.Publish(Event{
		Type:         "error",
		ErrorCode:    code,
		ErrorMessage: message,
		Venue:        venueName,
		CommandID:    commandID,
	})
}

// mintOrderID builds "<venue>-<ms_epoch>-<random_suffix>". Collision
// probability is negligible but the caller must tolerate it by
// regenerating — here that means the caller always calls this fresh per
// order and never reuses an id.
func (r *Router) mintOrderID(venueName string) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s-%d-%s", venueName, time.Now().UnixMilli(), hex.EncodeToString(suffix))
}

func stateFromVenueStatus(s venue.OrderStatus) OrderState {
	switch s {
	case venue.OrderStatusFilled:
		return StateFilled
	case venue.OrderStatusRejected:
		return StateRejected
	case venue.OrderStatusCancelled:
		return StateCancelled
	default:
		return StateSubmitted
	}
}
