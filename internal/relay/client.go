// Package relay implements the control-plane WebSocket client: pairing,
// command dispatch, heartbeats, and best-effort report forwarding. The
// connect/reconnect/ping shape is supplied almost verbatim by
// internal/wsconn, specialized here to the relay's pairing/heartbeat/command
// protocol.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polymarketbot/internal/clock"
	"github.com/alanyoungcy/polymarketbot/internal/eventbus"
	"github.com/alanyoungcy/polymarketbot/internal/protocol"
	"github.com/alanyoungcy/polymarketbot/internal/wsconn"
)

// heartbeatInterval is the cadence of the relay heartbeat report.
const heartbeatInterval = 15 * time.Second

// State is the relay client's connection lifecycle state.
type State string

const (
	StateDisconnected    State = "DISCONNECTED"
	StateConnecting      State = "CONNECTING"
	StateAwaitingPairing State = "AWAITING_PAIRING"
	StateConnected       State = "CONNECTED"
)

// Event is published for every lifecycle/protocol transition the client
// observes.
type Event struct {
	Type      string // "connected" | "disconnected" | "pairing_confirmed" | "pairing_revoked" | "command"
	Command   *protocol.Command
	PairingID string
	Reason    string
}

// Config configures a Client.
type Config struct {
	Host        string // bare host, e.g. "relay.example.com" or "localhost:8080"
	APIKey      string
	PairingID   string // known from a prior pairing; mutually exclusive with PairingCode at connect
	PairingCode string // one-time code for first pairing
	Logger      *slog.Logger
}

// StatusProvider supplies the live fields the heartbeat frame carries. The
// orchestrator implements this; the relay client owns only the timer.
type StatusProvider interface {
	UptimeSeconds() int64
	Version() string
	StrategyStatus() string
	ConnectedVenues() []string
	OpenOrders() int
	OpenPositions() int
	StrategyMetrics() map[string]int64
}

// Client is the relay WebSocket client.
type Client struct {
	cfg    Config
	dialer *wsconn.Dialer
	logger *slog.Logger
	clock  clock.Clock

	mu              sync.Mutex
	state           State
	pairingID       string
	shouldReconnect bool
	heartbeatStop   chan struct{}

	status StatusProvider
	events *eventbus.Bus[Event]
}

// New returns a disconnected Client. status may be nil, in which case no
// heartbeat is sent. c may be nil, in
// which case the heartbeat timer runs on the real wall clock.
func New(cfg Config, status StatusProvider, c clock.Clock) (*Client, error) {
	if cfg.PairingID == "" && cfg.PairingCode == "" {
		return nil, fmt.Errorf("relay: CONFIG: connect requires pairing_id or pairing_code")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = clock.Real{}
	}
	cl := &Client{
		cfg:       cfg,
		pairingID: cfg.PairingID,
		state:     StateDisconnected,
		status:    status,
		logger:    logger.With(slog.String("component", "relay")),
		clock:     c,
		events:    eventbus.New[Event](),
	}
	return cl, nil
}

// Events returns the bus lifecycle/protocol events are published on.
func (c *Client) Events() *eventbus.Bus[Event] { return c.events }

// State returns the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PairingID returns the pairing id once known, immutable for the process
// lifetime once set.
func (c *Client) PairingID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairingID
}

// IsConnected reports whether the client is in the CONNECTED state.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect opens the relay WebSocket and starts the reconnect loop in the
// background; it returns once the dialer goroutine has been launched, not
// once paired.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	c.state = StateConnecting
	c.shouldReconnect = true
	c.mu.Unlock()

	targetURL := c.buildURL()
	c.dialer = wsconn.New(targetURL, wsconn.Hooks{
		OnOpen:    c.onOpen,
		OnMessage: c.onMessage,
		OnClose:   c.onClose,
	})
	go c.dialer.RunWithReconnect(ctx)
}

// Disconnect stops the client. If shouldReconnect is false the background
// loop does not attempt to re-dial.
func (c *Client) Disconnect(shouldReconnect bool) {
	c.mu.Lock()
	c.shouldReconnect = shouldReconnect
	c.mu.Unlock()
	if !shouldReconnect && c.dialer != nil {
		c.dialer.Stop()
	}
}

// buildURL derives the relay WebSocket URL from the configured host and
// pairing credentials.
func (c *Client) buildURL() string {
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	if c.PairingID() != "" {
		q.Set("pairing_id", c.PairingID())
	} else {
		q.Set("pairing_code", c.cfg.PairingCode)
	}
	return wsconn.DeriveURL(c.cfg.Host, "/api/v1/relay", q.Encode())
}

func (c *Client) onOpen(conn *websocket.Conn) error {
	c.mu.Lock()
	if c.pairingID != "" {
		c.state = StateConnected
	} else {
		c.state = StateAwaitingPairing
	}
	already := c.pairingID != ""
	c.mu.Unlock()

	if already {
		c.events.Publish(Event{Type: "connected"})
		c.startHeartbeat()
	}
	return nil
}

func (c *Client) onClose(err error) {
	c.mu.Lock()
	c.state = StateDisconnected
	reconnect := c.shouldReconnect
	c.mu.Unlock()

	c.stopHeartbeat()
	c.events.Publish(Event{Type: "disconnected"})

	if !reconnect && c.dialer != nil {
		c.dialer.Stop()
	}
}

func (c *Client) onMessage(raw []byte) {
	frame, err := protocol.DecodeRelayFrame(raw)
	if err != nil {
		c.logger.Warn("dropping unrecognized relay frame", slog.String("error", err.Error()))
		return
	}

	switch {
	case frame.Control != nil:
		c.handleControl(*frame.Control)
	case frame.Command != nil:
		c.handleCommand(*frame.Command)
	}
}

func (c *Client) handleControl(msg protocol.ControlMessage) {
	switch msg.Type {
	case protocol.ControlPairingConfirmed:
		c.mu.Lock()
		if c.pairingID == "" {
			c.pairingID = msg.PairingID
		}
		c.state = StateConnected
		c.mu.Unlock()

		c.events.Publish(Event{Type: "pairing_confirmed", PairingID: msg.PairingID})
		c.events.Publish(Event{Type: "connected"})
		c.startHeartbeat()
	case protocol.ControlPairingRevoked:
		c.events.Publish(Event{Type: "pairing_revoked", Reason: msg.Reason})
		c.Disconnect(false)
	}
}

func (c *Client) handleCommand(cmd protocol.Command) {
	c.events.Publish(Event{Type: "command", Command: &cmd})
	// Best-effort ack: if the socket closed between receive and ack, the
	// command still propagated to the router via the event above.
	_ = c.Send(protocol.Report{Type: protocol.ReportCommandAck, CommandID: cmd.ID, Status: "accepted"})
}

// Send attempts to write a report frame. It never blocks on the relay; a
// closed socket just drops the send.
func (c *Client) Send(report protocol.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("relay: marshal report: %w", err)
	}
	if c.dialer == nil {
		return fmt.Errorf("relay: not connected")
	}
	return c.dialer.Send(data)
}

// SendReport is the gateway-facing best-effort forwarder: it drops
// silently (with a warning log) unless the client is CONNECTED.
func (c *Client) SendReport(report protocol.Report) {
	if !c.IsConnected() {
		c.logger.Warn("dropping report: relay not connected", slog.String("type", string(report.Type)))
		return
	}
	if err := c.Send(report); err != nil {
		c.logger.Warn("failed to send report", slog.String("error", err.Error()))
	}
}

// startHeartbeat launches the heartbeat timer on the client's Clock. The
// orchestrator pushes status in; the relay client owns the timer, not the
// state.
func (c *Client) startHeartbeat() {
	c.mu.Lock()
	if c.heartbeatStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	go func() {
		ticker := c.clock.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				c.sendHeartbeat()
			}
		}
	}()
}

func (c *Client) stopHeartbeat() {
	c.mu.Lock()
	stop := c.heartbeatStop
	c.heartbeatStop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (c *Client) sendHeartbeat() {
	if c.status == nil {
		return
	}
	c.SendReport(protocol.Report{
		Type:            protocol.ReportHeartbeat,
		UptimeSecs:      c.status.UptimeSeconds(),
		Version:         c.status.Version(),
		StrategyStatus:  c.status.StrategyStatus(),
		ConnectedVenues: c.status.ConnectedVenues(),
		OpenOrders:      c.status.OpenOrders(),
		OpenPositions:   c.status.OpenPositions(),
		StrategyMetrics: c.status.StrategyMetrics(),
	})
}
