package router

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/polymarketbot/internal/protocol"
	"github.com/alanyoungcy/polymarketbot/internal/venue"
)

type fakeConnector struct {
	name     string
	healthy  bool
	result   venue.OrderResult
	placeErr error

	cancelErr    error
	cancelAllErr error

	placed []venue.OrderRequest
}

func (f *fakeConnector) Venue() string                        { return f.name }
func (f *fakeConnector) Connect(ctx context.Context) error     { return nil }
func (f *fakeConnector) Disconnect(ctx context.Context) error  { return nil }
func (f *fakeConnector) IsHealthy() bool                       { return f.healthy }
func (f *fakeConnector) GetBalance(ctx context.Context) (venue.Balance, error) {
	return venue.Balance{}, nil
}
func (f *fakeConnector) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return nil, nil
}
func (f *fakeConnector) CancelOrder(ctx context.Context, orderID string) error {
	return f.cancelErr
}
func (f *fakeConnector) CancelAllOrders(ctx context.Context) error { return f.cancelAllErr }
func (f *fakeConnector) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	f.placed = append(f.placed, req)
	if f.placeErr != nil {
		return venue.OrderResult{}, f.placeErr
	}
	return f.result, nil
}

func newTestRouter(connectors ...*fakeConnector) (*Router, *venue.Registry) {
	reg := venue.NewRegistry()
	for _, c := range connectors {
		reg.Register(c)
	}
	return New(reg), reg
}

func tradeCmd(id, marketID, venueName string) protocol.Command {
	return protocol.Command{
		Type: protocol.CommandTrade, ID: id, MarketID: marketID, Venue: venueName,
		Side: "yes", Action: "buy", Size: 10, OrderType: "market",
	}
}

func TestRouteTradeFilled(t *testing.T) {
	fillPrice := 0.72
	conn := &fakeConnector{name: "kalshi", healthy: true, result: venue.OrderResult{
		VenueOrderID: "venue-42", Status: venue.OrderStatusFilled, FillPrice: &fillPrice,
	}}
	r, _ := newTestRouter(conn)
	ch, unsub := r.Events().Subscribe()
	defer unsub()

	r.RouteCommand(context.Background(), tradeCmd("C1", "kalshi:M", "kalshi"))

	ev := <-ch
	if ev.Type != "order_update" || ev.Order.State != StateFilled {
		t.Fatalf("unexpected event: %+v", ev)
	}
	orders := r.GetOrders()
	if len(orders) != 1 || orders[0].CommandID != "C1" {
		t.Fatalf("unexpected orders: %+v", orders)
	}
}

func TestRouteTradeUnknownVenue(t *testing.T) {
	conn := &fakeConnector{name: "kalshi", healthy: true}
	r, _ := newTestRouter(conn)
	ch, unsub := r.Events().Subscribe()
	defer unsub()

	r.RouteCommand(context.Background(), tradeCmd("C2", "kraken:X", "kraken"))

	ev := <-ch
	if ev.Type != "error" || ev.ErrorCode != ErrVenueNotFound {
		t.Fatalf("expected VENUE_NOT_FOUND, got %+v", ev)
	}
	if len(conn.placed) != 0 {
		t.Fatalf("expected no order placed")
	}
}

func TestRouteTradeWhilePaused(t *testing.T) {
	conn := &fakeConnector{name: "kalshi", healthy: true}
	r, _ := newTestRouter(conn)
	r.SetPaused(true)
	ch, unsub := r.Events().Subscribe()
	defer unsub()

	r.RouteCommand(context.Background(), tradeCmd("C3", "kalshi:M", "kalshi"))

	ev := <-ch
	if ev.Type != "error" || ev.ErrorCode != ErrGatewayPaused {
		t.Fatalf("expected GATEWAY_PAUSED, got %+v", ev)
	}
	if len(conn.placed) != 0 {
		t.Fatalf("expected no order placed while paused")
	}
}

func TestRouteTradeUnhealthyVenue(t *testing.T) {
	conn := &fakeConnector{name: "kalshi", healthy: false}
	r, _ := newTestRouter(conn)
	ch, unsub := r.Events().Subscribe()
	defer unsub()

	r.RouteCommand(context.Background(), tradeCmd("C4", "kalshi:M", "kalshi"))

	ev := <-ch
	if ev.Type != "error" || ev.ErrorCode != ErrVenueUnhealthy {
		t.Fatalf("expected VENUE_UNHEALTHY, got %+v", ev)
	}
}

func TestRoutePlaceOrderThrowsEmitsRejectedAndError(t *testing.T) {
	conn := &fakeConnector{name: "kalshi", healthy: true, placeErr: errors.New("boom")}
	r, _ := newTestRouter(conn)
	ch, unsub := r.Events().Subscribe()
	defer unsub()

	r.RouteCommand(context.Background(), tradeCmd("C5", "kalshi:M", "kalshi"))

	first := <-ch
	if first.Type != "error" || first.ErrorCode != ErrOrderPlaceFailed {
		t.Fatalf("expected ORDER_PLACEMENT_FAILED first, got %+v", first)
	}
	second := <-ch
	if second.Type != "order_update" || second.Order.State != StateRejected {
		t.Fatalf("expected rejected order_update second, got %+v", second)
	}
}

func TestRouteCancelLooksUpByOrderID(t *testing.T) {
	conn := &fakeConnector{name: "kalshi", healthy: true, result: venue.OrderResult{
		VenueOrderID: "venue-42", Status: venue.OrderStatusSubmitted,
	}}
	r, _ := newTestRouter(conn)
	ch, unsub := r.Events().Subscribe()
	defer unsub()

	r.RouteCommand(context.Background(), tradeCmd("C8", "kalshi:M", "kalshi"))
	placed := (<-ch).Order
	if placed == nil {
		t.Fatalf("expected order_update from the trade")
	}

	r.RouteCommand(context.Background(), protocol.Command{
		Type: protocol.CommandCancel, ID: "C9", Venue: "kalshi", OrderID: placed.OrderID,
	})

	ev := <-ch
	if ev.Type != "order_update" || ev.Order.State != StateCancelled {
		t.Fatalf("expected cancelled order_update, got %+v", ev)
	}
	if ev.Order.CommandID != "C8" {
		t.Fatalf("expected the cancelled order to still carry its original command id, got %+v", ev.Order)
	}
}

func TestRouteCancelUnknownOrderID(t *testing.T) {
	conn := &fakeConnector{name: "kalshi", healthy: true}
	r, _ := newTestRouter(conn)
	ch, unsub := r.Events().Subscribe()
	defer unsub()

	r.RouteCommand(context.Background(), protocol.Command{
		Type: protocol.CommandCancel, ID: "C10", Venue: "kalshi", OrderID: "kalshi-nonexistent",
	})

	ev := <-ch
	if ev.Type != "error" || ev.ErrorCode != ErrOrderNotFound {
		t.Fatalf("expected ORDER_NOT_FOUND, got %+v", ev)
	}
}

func TestCancelAllIsolatesPerVenueFailures(t *testing.T) {
	ok := &fakeConnector{name: "kalshi", healthy: true}
	failing := &fakeConnector{name: "polymarket", healthy: true, cancelAllErr: errors.New("down")}
	r, _ := newTestRouter(ok, failing)

	ch, unsub := r.Events().Subscribe()
	defer unsub()

	r.RouteCommand(context.Background(), tradeCmd("C6", "kalshi:M", "kalshi"))
	<-ch // the trade's order_update

	r.RouteCommand(context.Background(), protocol.Command{Type: protocol.CommandCancelAll, ID: "C7"})

	var sawCancelAllFailed, sawCancelledUpdate bool
	for i := 0; i < 2; i++ {
		ev := <-ch
		switch {
		case ev.Type == "error" && ev.ErrorCode == ErrCancelAllFailed && ev.Venue == "polymarket":
			sawCancelAllFailed = true
		case ev.Type == "order_update" && ev.Order.State == StateCancelled:
			sawCancelledUpdate = true
		}
	}
	if !sawCancelAllFailed {
		t.Fatalf("expected a CANCEL_ALL_FAILED error for polymarket")
	}
	if !sawCancelledUpdate {
		t.Fatalf("expected the kalshi order to be marked cancelled")
	}
}
