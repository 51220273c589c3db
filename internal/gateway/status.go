package gateway

// This file implements relay.StatusProvider (the heartbeat fields) and the
// external Status snapshot shape, both derived from the same live component
// state rather than cached separately.

// UptimeSeconds reports seconds since Start, per relay.StatusProvider.
func (g *Gateway) UptimeSeconds() int64 {
	g.mu.Lock()
	started := g.startedAt
	g.mu.Unlock()
	if started.IsZero() {
		return 0
	}
	return int64(g.clock.Now().Sub(started).Seconds())
}

// Version returns the configured build version string.
func (g *Gateway) Version() string { return g.cfg.Version }

// StrategyStatus reports the current strategy status string: an override
// ("paused", "error:strategy_init_failed") takes precedence over the plain
// enabled/disabled state.
func (g *Gateway) StrategyStatus() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.strategyStatusOverride != "" {
		return g.strategyStatusOverride
	}
	if g.engine == nil {
		return "disabled"
	}
	if g.strategyEnabled {
		return "enabled"
	}
	return "disabled"
}

// ConnectedVenues lists the names of connectors currently reporting healthy.
func (g *Gateway) ConnectedVenues() []string {
	var out []string
	for _, name := range g.registry.Names() {
		conn, ok := g.registry.Get(name)
		if ok && conn.IsHealthy() {
			out = append(out, name)
		}
	}
	return out
}

// OpenOrders counts tracked orders still in pending or submitted state.
func (g *Gateway) OpenOrders() int {
	count := 0
	for _, o := range g.router.GetOrders() {
		if o.State == "pending" || o.State == "submitted" {
			count++
		}
	}
	return count
}

// OpenPositions counts currently tracked positions.
func (g *Gateway) OpenPositions() int { return len(g.tracker.All()) }

// StrategyMetrics reports the engine's running counters, empty if no
// strategy is initialized.
func (g *Gateway) StrategyMetrics() map[string]int64 {
	g.mu.Lock()
	engine := g.engine
	g.mu.Unlock()
	if engine == nil {
		return nil
	}
	c := engine.Counters()
	return map[string]int64{
		"signals_received": c.SignalsReceived,
		"trades_generated": c.TradesGenerated,
		"dry_run_trades":   c.DryRunTrades,
	}
}

// VenueStatus is a single entry in Status.Venues.
type VenueStatus struct {
	Connected bool `json:"connected"`
	Healthy   bool `json:"healthy"`
}

// Status is the external, read-only snapshot exposed to the relay and the
// local dashboard.
type Status struct {
	State          State                  `json:"state"`
	RelayConnected bool                   `json:"relayConnected"`
	PairingID      string                 `json:"pairingId"`
	Venues         map[string]VenueStatus `json:"venues"`
	OpenOrders     int                    `json:"openOrders"`
	OpenPositions  int                    `json:"openPositions"`
	UptimeSeconds  int64                  `json:"uptimeSeconds"`
}

// Status returns a snapshot of the gateway's externally visible state.
func (g *Gateway) Status() Status {
	venues := make(map[string]VenueStatus)
	for _, name := range g.registry.Names() {
		conn, ok := g.registry.Get(name)
		if !ok {
			continue
		}
		venues[name] = VenueStatus{Connected: true, Healthy: conn.IsHealthy()}
	}
	return Status{
		State:          g.State(),
		RelayConnected: g.relay.IsConnected(),
		PairingID:      g.relay.PairingID(),
		Venues:         venues,
		OpenOrders:     g.OpenOrders(),
		OpenPositions:  g.OpenPositions(),
		UptimeSeconds:  g.UptimeSeconds(),
	}
}
