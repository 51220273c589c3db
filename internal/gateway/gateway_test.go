package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/alanyoungcy/polymarketbot/internal/clock"
	"github.com/alanyoungcy/polymarketbot/internal/position"
	"github.com/alanyoungcy/polymarketbot/internal/protocol"
	"github.com/alanyoungcy/polymarketbot/internal/relay"
	"github.com/alanyoungcy/polymarketbot/internal/router"
	"github.com/alanyoungcy/polymarketbot/internal/signalfeed"
	"github.com/alanyoungcy/polymarketbot/internal/venue"
)

type fakeConnector struct {
	name    string
	healthy bool
}

func (f *fakeConnector) Venue() string                       { return f.name }
func (f *fakeConnector) Connect(ctx context.Context) error    { return nil }
func (f *fakeConnector) Disconnect(ctx context.Context) error { return nil }
func (f *fakeConnector) IsHealthy() bool                      { return f.healthy }
func (f *fakeConnector) GetBalance(ctx context.Context) (venue.Balance, error) {
	return venue.Balance{}, nil
}
func (f *fakeConnector) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return nil, nil
}
func (f *fakeConnector) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (f *fakeConnector) CancelAllOrders(ctx context.Context) error             { return nil }
func (f *fakeConnector) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	return venue.OrderResult{}, nil
}

func newTestGateway(t *testing.T) (*Gateway, *venue.Registry, *router.Router, *position.Tracker) {
	t.Helper()
	registry := venue.NewRegistry()
	r := router.New(registry)
	tracker := position.New()
	signals := signalfeed.New(signalfeed.Config{Host: "signals.invalid"})
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	gw := New(Config{Version: "test"}, nil, fc, registry, r, tracker, signals)
	rc, err := relay.New(relay.Config{Host: "relay.invalid", APIKey: "k", PairingID: "p"}, gw, fc)
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}
	gw.SetRelay(rc)
	return gw, registry, r, tracker
}

func TestStartRejectsSecondCallWhileRunning(t *testing.T) {
	gw, _, _, _ := newTestGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gw.Start(ctx, nil); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := gw.Start(ctx, nil); err != ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	gw.Stop(context.Background())
}

func TestStopFromStoppedIsNoop(t *testing.T) {
	gw, _, _, _ := newTestGateway(t)
	gw.Stop(context.Background())
	if gw.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", gw.State())
	}
}

func TestHandleRouterEventFilledUpsertsPosition(t *testing.T) {
	gw, _, _, tracker := newTestGateway(t)
	fillPrice := 0.72

	gw.handleRouterEvent(router.Event{
		Type: "order_update",
		Order: &router.TrackedOrder{
			OrderID: "kalshi-1", CommandID: "C1", Venue: "kalshi", MarketID: "kalshi:M",
			Side: "yes", Size: 10, State: router.StateFilled, FillPrice: &fillPrice,
		},
	})

	p, ok := tracker.Get("kalshi", "kalshi:M")
	if !ok {
		t.Fatalf("expected position to be tracked")
	}
	if p.Size != 10 || p.EntryPrice != 0.72 || p.Side != "yes" {
		t.Fatalf("unexpected position: %+v", p)
	}
}

func TestExecuteStrategyCommandsLeg1FailureAbortsLeg2(t *testing.T) {
	gw, registry, _, _ := newTestGateway(t)
	registry.Register(&fakeConnector{name: "kalshi", healthy: false}) // unhealthy -> place fails at router

	commands := []protocol.Command{
		{Type: protocol.CommandTrade, ID: "leg1", MarketID: "kalshi:A", Venue: "kalshi", Side: "buy", Action: "buy", Size: 10, OrderType: "market"},
		{Type: protocol.CommandTrade, ID: "leg2", MarketID: "polymarket:B", Venue: "polymarket", Side: "sell", Action: "sell", Size: 10, OrderType: "market"},
	}
	gw.executeStrategyCommands(context.Background(), commands)

	orders := gw.router.GetOrders()
	for _, o := range orders {
		if o.CommandID == "leg2" {
			t.Fatalf("expected leg2 never routed, found %+v", o)
		}
	}
}

func TestExecuteStrategyCommandsLeg2FailureEmitsHedgeRequired(t *testing.T) {
	gw, registry, _, _ := newTestGateway(t)
	registry.Register(&fakeConnector{name: "kalshi", healthy: true})
	registry.Register(&fakeConnector{name: "polymarket", healthy: false})

	commands := []protocol.Command{
		{Type: protocol.CommandTrade, ID: "leg1", MarketID: "kalshi:A", Venue: "kalshi", Side: "buy", Action: "buy", Size: 10, OrderType: "market"},
		{Type: protocol.CommandTrade, ID: "leg2", MarketID: "polymarket:B", Venue: "polymarket", Side: "sell", Action: "sell", Size: 10, OrderType: "market"},
	}
	reports, unsub := gw.Reports().Subscribe()
	defer unsub()
	gw.executeStrategyCommands(context.Background(), commands)

	orders := gw.router.GetOrders()
	var sawLeg1 bool
	for _, o := range orders {
		if o.CommandID == "leg1" {
			sawLeg1 = true
		}
	}
	if !sawLeg1 {
		t.Fatalf("expected leg1 order to be tracked")
	}

	var sawHedge bool
	for len(reports) > 0 {
		if r := <-reports; r.Code == "ARB_LEG2_FAILED_HEDGE_REQUIRED" {
			sawHedge = true
		}
	}
	if !sawHedge {
		t.Fatalf("expected ARB_LEG2_FAILED_HEDGE_REQUIRED report")
	}
}

func TestPollHealthEmitsOnlyOnTransition(t *testing.T) {
	gw, registry, _, _ := newTestGateway(t)
	conn := &fakeConnector{name: "kalshi", healthy: true}
	registry.Register(conn)
	reports, unsub := gw.Reports().Subscribe()
	defer unsub()

	gw.pollHealth() // first reading: unknown -> healthy, no transition
	conn.healthy = false
	gw.pollHealth() // healthy -> unhealthy: transition
	gw.pollHealth() // unhealthy -> unhealthy: no further transition

	gw.mu.Lock()
	got := gw.healthy["kalshi"]
	gw.mu.Unlock()
	if got {
		t.Fatalf("expected cached health to be false after transition")
	}

	var transitions int
	for len(reports) > 0 {
		if r := <-reports; r.Code == router.ErrVenueUnhealthy {
			transitions++
		}
	}
	if transitions != 1 {
		t.Fatalf("expected exactly one %s report, got %d", router.ErrVenueUnhealthy, transitions)
	}
}
