// Package signalfeed subscribes to the public signal stream and emits each
// well-formed signal onto an event bus for the strategy engine to consume.
// It shares its connect/reconnect/ping shape with the relay client via
// internal/wsconn rather than reimplementing it.
package signalfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polymarketbot/internal/eventbus"
	"github.com/alanyoungcy/polymarketbot/internal/protocol"
	"github.com/alanyoungcy/polymarketbot/internal/wsconn"
)

// Config configures a Consumer.
type Config struct {
	Host          string
	APIKey        string
	SignalTypes   []string
	Symbols       []string
	MinConfidence float64
	Logger        *slog.Logger
}

// Consumer subscribes to the signal WebSocket and republishes each
// well-formed signal.
type Consumer struct {
	cfg    Config
	dialer *wsconn.Dialer
	logger *slog.Logger
	events *eventbus.Bus[protocol.Signal]
}

// New returns a Consumer for cfg.
func New(cfg Config) *Consumer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "signalfeed")),
		events: eventbus.New[protocol.Signal](),
	}
}

// Events returns the bus each decoded Signal is published on.
func (c *Consumer) Events() *eventbus.Bus[protocol.Signal] { return c.events }

// Start launches the reconnect loop in the background. It returns
// immediately; Stop ends it.
func (c *Consumer) Start(ctx context.Context) {
	targetURL := c.buildURL()
	c.dialer = wsconn.New(targetURL, wsconn.Hooks{
		OnOpen:    c.onOpen,
		OnMessage: c.onMessage,
		OnClose:   c.onClose,
	})
	go c.dialer.RunWithReconnect(ctx)
}

// Stop ends the reconnect loop and closes the current connection, if any.
func (c *Consumer) Stop() {
	if c.dialer != nil {
		c.dialer.Stop()
	}
}

// IsConnected reports whether the underlying socket is currently open.
func (c *Consumer) IsConnected() bool {
	return c.dialer != nil && c.dialer.IsConnected()
}

func (c *Consumer) buildURL() string {
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	return wsconn.DeriveURL(c.cfg.Host, "/api/v1/public/ws/signals", q.Encode())
}

// onOpen sends the single subscribe frame required on every connect.
func (c *Consumer) onOpen(conn *websocket.Conn) error {
	frame := protocol.NewSubscribeFrame(c.cfg.SignalTypes, c.cfg.Symbols, c.cfg.MinConfidence)
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	conn.WriteMessage(websocket.TextMessage, data)
	return nil
}

func (c *Consumer) onClose(err error) {
	if err != nil {
		c.logger.Warn("signal feed disconnected", slog.String("error", err.Error()))
	}
}

// onMessage decodes an incoming frame. Invalid JSON is logged at warn level
// and dropped; non-signal objects are dropped without logging; neither
// crashes the consumer.
func (c *Consumer) onMessage(raw []byte) {
	sig, ok, err := protocol.DecodeSignal(raw)
	if err != nil {
		c.logger.Warn("invalid signal frame", slog.String("error", err.Error()))
		return
	}
	if !ok {
		return
	}
	c.events.Publish(sig)
}
