// Package gateway composes the venue connectors, router, position tracker,
// relay client, signal consumer, and strategy engine into the single
// long-running process. Start brings components up in dependency order;
// Stop tears them down in reverse.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polymarketbot/internal/cache/redis"
	"github.com/alanyoungcy/polymarketbot/internal/clock"
	"github.com/alanyoungcy/polymarketbot/internal/eventbus"
	"github.com/alanyoungcy/polymarketbot/internal/notify"
	"github.com/alanyoungcy/polymarketbot/internal/position"
	"github.com/alanyoungcy/polymarketbot/internal/protocol"
	"github.com/alanyoungcy/polymarketbot/internal/relay"
	"github.com/alanyoungcy/polymarketbot/internal/router"
	"github.com/alanyoungcy/polymarketbot/internal/signalfeed"
	"github.com/alanyoungcy/polymarketbot/internal/strategy"
	"github.com/alanyoungcy/polymarketbot/internal/venue"
)

// operatorActionable is the set of error codes that require operator
// attention beyond the relay-bound report, pushed through the optional
// Notifier as well.
var operatorActionable = map[string]bool{
	"ARB_LEG2_FAILED_HEDGE_REQUIRED": true,
	"GATEWAY_SHUTDOWN":              true,
}

// State is the gateway's own lifecycle state, distinct from the relay
// client's connection state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// healthSupervisorInterval is the venue health poll cadence.
const healthSupervisorInterval = 30 * time.Second

// Config configures a Gateway. Connectors and StrategyConfig are supplied
// separately from the venue/risk/relay wiring they configure so the caller
// (cmd/gateway) owns construction order.
type Config struct {
	Version          string
	AutoTradeEnabled bool
	CancelOnShutdown bool
	StrategyConfig   *strategy.Config // nil disables strategy initialization
	PositionSizer    strategy.PositionSizer
}

// Gateway composes C3-C7 into a single running process.
type Gateway struct {
	cfg    Config
	logger *slog.Logger
	clock  clock.Clock

	registry *venue.Registry
	router   *router.Router
	tracker  *position.Tracker
	relay    *relay.Client
	signals  *signalfeed.Consumer
	notifier *notify.Notifier // optional; nil disables operator notifications
	archive  *redis.Bus       // optional; nil disables durable report archival

	mu                     sync.Mutex
	state                  State
	startedAt              time.Time
	strategyEnabled        bool
	strategyStatusOverride string
	engine                 *strategy.Engine
	healthy                map[string]bool // venue -> last observed health

	stopHealth chan struct{}
	wg         sync.WaitGroup
	unsubs     []func()

	reports *eventbus.Bus[protocol.Report]
}

// New wires a Gateway around its already-constructed components. relayClient
// must have been built with this Gateway passed as its StatusProvider (the
// Gateway satisfies relay.StatusProvider), which means callers construct the
// Gateway first, then the relay client, then call SetRelay before Start.
func New(cfg Config, logger *slog.Logger, c clock.Clock, registry *venue.Registry, r *router.Router, tracker *position.Tracker, signals *signalfeed.Consumer) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Gateway{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "gateway")),
		clock:    c,
		registry: registry,
		router:   r,
		tracker:  tracker,
		signals:  signals,
		state:    StateStopped,
		healthy:  make(map[string]bool),
		reports:  eventbus.New[protocol.Report](),
	}
}

// Reports returns the bus every outgoing report is mirrored onto, in
// addition to being sent upstream through the relay. httpapi's local
// dashboard subscribes here rather than tapping the relay connection, since
// relay.Client writes reports directly to its websocket and has no bus of
// its own to observe.
func (g *Gateway) Reports() *eventbus.Bus[protocol.Report] { return g.reports }

// reportStreamKey is the Redis stream a durable report archive is appended
// to, when one is configured.
const reportStreamKey = "gateway:reports"

// sendReport is the single path every report leaves the gateway through: it
// goes upstream via the relay, is mirrored onto the local reports bus, and,
// if an archive is configured, appended to a durable stream a reconnecting
// dashboard can replay from.
func (g *Gateway) sendReport(r protocol.Report) {
	g.relay.SendReport(r)
	g.reports.Publish(r)
	if g.archive != nil {
		go g.archiveReport(r)
	}
	if r.Type == protocol.ReportError && g.notifier != nil && operatorActionable[r.Code] {
		go g.notifier.Notify(context.Background(), r.Code, r.Code, r.Message)
	}
}

func (g *Gateway) archiveReport(r protocol.Report) {
	data, err := json.Marshal(r)
	if err != nil {
		g.logger.Error("marshal report for archive failed", slog.String("error", err.Error()))
		return
	}
	if err := g.archive.StreamAppend(context.Background(), reportStreamKey, data); err != nil {
		g.logger.Warn("report archive append failed", slog.String("error", err.Error()))
	}
}

// SetRelay attaches the relay client once constructed. Must be called before
// Start.
func (g *Gateway) SetRelay(rc *relay.Client) { g.relay = rc }

// SetNotifier attaches an optional operator notifier. When set, error
// reports whose code is in operatorActionable are additionally pushed
// through it rather than only sent upstream through the relay.
func (g *Gateway) SetNotifier(n *notify.Notifier) { g.notifier = n }

// SetReportArchive attaches an optional durable report archive backed by
// Redis streams. When set, every outgoing report is also appended there.
func (g *Gateway) SetReportArchive(b *redis.Bus) { g.archive = b }

// State returns the gateway's current lifecycle state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ErrAlreadyStarted is returned by Start when called from any non-stopped
// state.
var ErrAlreadyStarted = fmt.Errorf("gateway: ALREADY_STARTED")

// Start wires events, discovers connectors, connects the relay, starts the
// health supervisor, and optionally initializes the strategy engine. It is
// idempotent against concurrent callers: a second call from any non-stopped
// state fails with ErrAlreadyStarted.
// Start returns once wiring is complete; it does not block for the process
// lifetime — callers watch ctx for cancellation to trigger Stop.
func (g *Gateway) Start(ctx context.Context, connectors []venue.Connector) error {
	g.mu.Lock()
	if g.state != StateStopped {
		g.mu.Unlock()
		return ErrAlreadyStarted
	}
	g.state = StateStarting
	g.startedAt = g.clock.Now()
	g.mu.Unlock()

	g.wireEvents(ctx)

	for _, conn := range connectors {
		if err := conn.Connect(ctx); err != nil {
			g.logger.ErrorContext(ctx, "connector connect failed", slog.String("venue", conn.Venue()), slog.String("error", err.Error()))
		}
		g.registry.Register(conn)
	}

	g.relay.Connect(ctx)

	g.stopHealth = make(chan struct{})
	g.wg.Add(1)
	go g.runHealthSupervisor(ctx)

	if g.cfg.AutoTradeEnabled && g.cfg.StrategyConfig != nil {
		g.initStrategy(ctx)
	}

	g.mu.Lock()
	g.state = StateRunning
	g.mu.Unlock()

	g.wg.Add(1)
	go g.watchContext(ctx)

	return nil
}

// watchContext triggers Stop when ctx is cancelled, grounded on the
// teacher's cmd/polybot/main.go signal.NotifyContext pattern: the signal
// handler installation lives in cmd/gateway, the gateway only reacts to
// context cancellation.
func (g *Gateway) watchContext(ctx context.Context) {
	defer g.wg.Done()
	<-ctx.Done()
	g.Stop(context.Background())
}

func (g *Gateway) initStrategy(ctx context.Context) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				g.mu.Lock()
				g.strategyStatusOverride = "error:strategy_init_failed"
				g.mu.Unlock()
				g.logger.ErrorContext(ctx, "strategy init panicked", slog.Any("recover", r))
			}
		}()
		engine := strategy.New(*g.cfg.StrategyConfig, g.clock, g.cfg.PositionSizer)
		g.mu.Lock()
		g.engine = engine
		g.strategyEnabled = true
		g.mu.Unlock()
	}()
}

// wireEvents subscribes to every internal event source and forwards
// outcomes to the relay.
func (g *Gateway) wireEvents(ctx context.Context) {
	relayCh, unsubRelay := g.relay.Events().Subscribe()
	routerCh, unsubRouter := g.router.Events().Subscribe()
	trackerCh, unsubTracker := g.tracker.Events().Subscribe()
	g.unsubs = append(g.unsubs, unsubRelay, unsubRouter, unsubTracker)

	g.wg.Add(3)
	go func() {
		defer g.wg.Done()
		for ev := range relayCh {
			g.handleRelayEvent(ctx, ev)
		}
	}()
	go func() {
		defer g.wg.Done()
		for ev := range routerCh {
			g.handleRouterEvent(ev)
		}
	}()
	go func() {
		defer g.wg.Done()
		for ev := range trackerCh {
			g.handleTrackerEvent(ev)
		}
	}()
}

func (g *Gateway) handleRelayEvent(ctx context.Context, ev relay.Event) {
	switch ev.Type {
	case "connected":
		g.stateSync()
	case "command":
		if ev.Command != nil {
			g.handleCommand(ctx, *ev.Command)
		}
	}
}

// handleCommand interleaves pause/resume with strategy control before
// forwarding every command to the router.
func (g *Gateway) handleCommand(ctx context.Context, cmd protocol.Command) {
	switch cmd.Type {
	case protocol.CommandPause:
		g.mu.Lock()
		g.strategyEnabled = false
		g.strategyStatusOverride = "paused"
		g.mu.Unlock()
	case protocol.CommandResume:
		g.mu.Lock()
		g.strategyEnabled = true
		g.strategyStatusOverride = ""
		g.mu.Unlock()
	}
	g.router.RouteCommand(ctx, cmd)
}

// stateSync pushes a position report for every tracked position and an
// error report for every currently unhealthy connector, run once on relay
// connected.
func (g *Gateway) stateSync() {
	for _, p := range g.tracker.All() {
		g.sendReport(positionReport(p))
	}
	for _, name := range g.registry.Names() {
		conn, ok := g.registry.Get(name)
		if ok && !conn.IsHealthy() {
			g.sendReport(protocol.Report{Type: protocol.ReportError, Code: router.ErrVenueUnhealthy, Venue: name, Message: fmt.Sprintf("venue %q is unhealthy", name)})
		}
	}
}

func (g *Gateway) handleRouterEvent(ev router.Event) {
	switch ev.Type {
	case "order_update":
		if ev.Order != nil {
			g.sendReport(orderUpdateReport(*ev.Order))
			if ev.Order.State == router.StateFilled {
				g.recordFill(*ev.Order)
			}
		}
	case "error":
		g.sendReport(protocol.Report{Type: protocol.ReportError, Code: ev.ErrorCode, Message: ev.ErrorMessage, Venue: ev.Venue, CommandID: ev.CommandID})
	}
}

func (g *Gateway) recordFill(o router.TrackedOrder) {
	g.tracker.UpdatePosition(position.Position{
		Venue:      o.Venue,
		MarketID:   o.MarketID,
		Side:       o.Side,
		Size:       o.Size,
		EntryPrice: derefOr(o.FillPrice, 0),
	})

	g.mu.Lock()
	engine := g.engine
	g.mu.Unlock()
	if engine != nil {
		engine.RecordExecutedTrade(o.MarketID)
	}
}

func (g *Gateway) handleTrackerEvent(ev position.Event) {
	switch ev.Type {
	case "position_update":
		if ev.Position != nil {
			g.sendReport(positionReport(*ev.Position))
		}
	case "settlement":
		if ev.Settlement != nil {
			g.sendReport(settlementReport(*ev.Settlement))
		}
	}
}

// HandleSignal feeds a signal through the strategy engine (when enabled)
// and executes any resulting commands via executeStrategyCommands. In dry-run
// mode the commands are not executed; the engine's dry_run_trade events are
// their only output.
func (g *Gateway) HandleSignal(ctx context.Context, sig protocol.Signal) {
	g.mu.Lock()
	engine := g.engine
	enabled := g.strategyEnabled
	g.mu.Unlock()
	if engine == nil || !enabled {
		return
	}
	commands := engine.HandleSignal(sig)
	if len(commands) == 0 {
		return
	}
	if g.cfg.StrategyConfig != nil && g.cfg.StrategyConfig.DryRun {
		return
	}
	g.executeStrategyCommands(ctx, commands)
}

// executeStrategyCommands injects commands in order. After each injection it
// looks up the resulting order in the router; a missing or rejected order
// aborts an arb pair: ARB_LEG1_FAILED on leg 1 (aborting leg 2), or
// ARB_LEG2_FAILED_HEDGE_REQUIRED on leg 2 (leg 1's position is now
// unhedged, operator action required).
func (g *Gateway) executeStrategyCommands(ctx context.Context, commands []protocol.Command) {
	isArbPair := len(commands) == 2
	for i, cmd := range commands {
		g.router.RouteCommand(ctx, cmd)

		order := g.lookupOrder(cmd.ID)
		failed := order == nil || order.State == router.StateRejected
		if !failed {
			continue
		}
		if !isArbPair {
			return
		}
		if i == 0 {
			g.sendReport(protocol.Report{
				Type: protocol.ReportError, Code: "ARB_LEG1_FAILED",
				Message: fmt.Sprintf("leg 1 command %s failed; leg 2 aborted", cmd.ID),
			})
			return
		}
		g.sendReport(protocol.Report{
			Type: protocol.ReportError, Code: "ARB_LEG2_FAILED_HEDGE_REQUIRED",
			Message: fmt.Sprintf("leg 2 command %s failed after leg 1 %s succeeded; position is unhedged", cmd.ID, commands[0].ID),
		})
	}
}

func (g *Gateway) lookupOrder(commandID string) *router.TrackedOrder {
	for _, o := range g.router.GetOrders() {
		if o.CommandID == commandID {
			order := o
			return &order
		}
	}
	return nil
}

// runHealthSupervisor polls is_healthy() on every connector every 30s and
// reports healthy->unhealthy transitions. The open question on whether to
// debounce is decided by caching the previous tick's reading and comparing
// it to exactly one fresh reading per interval (no additional probing).
func (g *Gateway) runHealthSupervisor(ctx context.Context) {
	defer g.wg.Done()
	ticker := g.clock.NewTicker(healthSupervisorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stopHealth:
			return
		case <-ticker.C():
			g.pollHealth()
		}
	}
}

func (g *Gateway) pollHealth() {
	for _, conn := range g.registry.All() {
		name := conn.Venue()
		now := conn.IsHealthy()

		g.mu.Lock()
		prev, known := g.healthy[name]
		g.healthy[name] = now
		g.mu.Unlock()

		if known && prev && !now {
			g.sendReport(protocol.Report{Type: protocol.ReportError, Code: router.ErrVenueUnhealthy, Venue: name, Message: fmt.Sprintf("venue %q is unhealthy", name)})
		}
	}
}

// Stop tears the gateway down in a fixed order: disable strategy, detach the
// signal consumer, stop the health timer, optionally cancel all orders, send
// the shutdown report, disconnect every connector, disconnect the relay.
// Stop from stopped or stopping is a no-op.
func (g *Gateway) Stop(ctx context.Context) {
	g.mu.Lock()
	if g.state == StateStopped || g.state == StateStopping {
		g.mu.Unlock()
		return
	}
	g.state = StateStopping
	g.strategyEnabled = false
	g.mu.Unlock()

	g.signals.Stop()

	if g.stopHealth != nil {
		close(g.stopHealth)
	}

	if g.cfg.CancelOnShutdown {
		for _, conn := range g.registry.All() {
			_ = conn.CancelAllOrders(ctx)
		}
	}

	g.sendReport(protocol.Report{Type: protocol.ReportError, Code: "GATEWAY_SHUTDOWN", Message: "gateway is shutting down"})

	for _, conn := range g.registry.All() {
		_ = conn.Disconnect(ctx)
	}
	g.relay.Disconnect(false)

	for _, unsub := range g.unsubs {
		unsub()
	}

	g.mu.Lock()
	g.state = StateStopped
	g.mu.Unlock()
}

func derefOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

func positionReport(p position.Position) protocol.Report {
	return protocol.Report{
		Type: protocol.ReportPosition,
		Position: &protocol.PositionReport{
			Venue: p.Venue, MarketID: p.MarketID, Side: p.Side, Size: p.Size,
			EntryPrice: p.EntryPrice, CurrentPrice: p.CurrentPrice, UnrealizedPnL: p.UnrealizedPnL,
			ContractExpiresAt: p.ContractExpiresAt,
		},
	}
}

func settlementReport(s position.Settlement) protocol.Report {
	return protocol.Report{
		Type: protocol.ReportSettlement,
		Settlement: &protocol.SettlementReport{
			Venue: s.Venue, MarketID: s.MarketID, Result: s.Result,
			EntryPrice: s.EntryPrice, SettlementPrice: s.SettlementPrice,
			RealizedPnL: s.RealizedPnL, Timestamp: s.Timestamp,
		},
	}
}

func orderUpdateReport(o router.TrackedOrder) protocol.Report {
	return protocol.Report{
		Type: protocol.ReportOrderUpdate,
		OrderID: o.OrderID, VenueOrderID: o.VenueOrderID, Venue: o.Venue,
		MarketID: o.MarketID, Side: o.Side, Size: o.Size, FillPrice: o.FillPrice,
		Status: string(o.State), CommandID: o.CommandID,
	}
}
