// Package wsconn factors the connect/reconnect/ping state machine shared by
// the relay client and the signal consumer into one place. Grounded on the
// teacher's internal/platform/kalshi/ws.go WSClient (readLoop/pingLoop/
// reconnect), generalized from a single Kalshi-specific orderbook handler
// into pluggable OnOpen/OnMessage/OnClose hooks so each caller supplies its
// own protocol without duplicating the backoff loop.
package wsconn

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 30 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	baseDelay     = time.Second
	maxDelay      = 60 * time.Second
	handshakeWait = 15 * time.Second
)

// Hooks are the caller-supplied callbacks driven by Dialer's reconnect loop.
type Hooks struct {
	// OnOpen is called after a successful dial, before the read loop starts.
	// Typically used to send a one-shot frame (subscribe, pairing query).
	OnOpen func(conn *websocket.Conn) error
	// OnMessage is called for every text/binary frame received.
	OnMessage func(raw []byte)
	// OnClose is called once the connection has dropped, whether from a
	// read error or a deliberate Stop.
	OnClose func(err error)
}

// Dialer owns one logical WebSocket connection and its reconnect state.
// Safe for concurrent use; Stop may be called from any goroutine.
type Dialer struct {
	url   string
	hooks Hooks

	mu      sync.Mutex
	conn    *websocket.Conn
	stopped bool
	done    chan struct{}
}

// New returns a Dialer targeting url with the given hooks.
func New(url string, hooks Hooks) *Dialer {
	return &Dialer{url: url, hooks: hooks, done: make(chan struct{})}
}

// RunWithReconnect blocks, holding a connection open and reconnecting with
// exponential backoff (1s, doubling, capped at 60s) until ctx is cancelled
// or Stop is called. Any attempt that reaches the WebSocket open event
// resets the next delay to 1s, even if the connection drops immediately
// after.
func (d *Dialer) RunWithReconnect(ctx context.Context) {
	delay := baseDelay
	for {
		if d.isStopped() || ctx.Err() != nil {
			return
		}

		conn, err := d.dial(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		// Reached open: reset backoff regardless of what happens next.
		delay = baseDelay

		d.mu.Lock()
		d.conn = conn
		d.mu.Unlock()

		if d.hooks.OnOpen != nil {
			if err := d.hooks.OnOpen(conn); err != nil {
				conn.Close()
				d.mu.Lock()
				d.conn = nil
				d.mu.Unlock()
				if d.hooks.OnClose != nil {
					d.hooks.OnClose(err)
				}
				continue
			}
		}

		readErr := d.readLoop(ctx, conn)
		if d.hooks.OnClose != nil {
			d.hooks.OnClose(readErr)
		}

		d.mu.Lock()
		d.conn = nil
		d.mu.Unlock()
	}
}

// dial opens a new WebSocket connection and configures its pong handler.
func (d *Dialer) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeWait}
	conn, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: dial: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return conn, nil
}

// readLoop reads frames until the connection errors or ctx is cancelled,
// concurrently sending pings on pingPeriod. It returns the error that ended
// the read, or nil on a clean Stop.
func (d *Dialer) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stopPing := make(chan struct{})
	go d.pingLoop(conn, stopPing)
	defer close(stopPing)

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return nil
		case <-d.done:
			conn.Close()
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if d.isStopped() {
				return nil
			}
			return err
		}
		if d.hooks.OnMessage != nil {
			d.hooks.OnMessage(message)
		}
	}
}

func (d *Dialer) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send writes a text frame on the current connection, if any. Returns an
// error if not currently connected.
func (d *Dialer) Send(v []byte) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("wsconn: not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, v)
}

// IsConnected reports whether a connection is currently open.
func (d *Dialer) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// Stop ends RunWithReconnect and closes the current connection, if any.
func (d *Dialer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	conn := d.conn
	d.mu.Unlock()

	close(d.done)
	if conn != nil {
		conn.Close()
	}
}

func (d *Dialer) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// DeriveURL applies a scheme-derivation rule: wss:// unless the host is
// plainly local/private (exact "localhost", or a private-range prefix), in
// which case ws://. If host already carries an explicit scheme it is used
// verbatim.
func DeriveURL(host, path, query string) string {
	if strings.Contains(host, "://") {
		return fmt.Sprintf("%s%s?%s", host, path, query)
	}
	scheme := "wss"
	if isLocalOrPrivate(host) {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s%s?%s", scheme, host, path, query)
}

func isLocalOrPrivate(host string) bool {
	if host == "localhost" {
		return true
	}
	prefixes := []string{"127.", "10.", "192.168.", "100."}
	for _, p := range prefixes {
		if hasPrefix(host, p) {
			return true
		}
	}
	if hasPrefix(host, "172.") {
		return is172PrivateRange(host)
	}
	return false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// is172PrivateRange reports whether host starts with 172.N. for N in
// [16,31], the RFC 1918 private block.
func is172PrivateRange(host string) bool {
	if !hasPrefix(host, "172.") {
		return false
	}
	rest := host[len("172."):]
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 {
		return false
	}
	n := 0
	for _, c := range rest[:i] {
		n = n*10 + int(c-'0')
	}
	return n >= 16 && n <= 31
}
