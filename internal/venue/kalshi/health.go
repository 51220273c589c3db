package kalshi

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// prober maintains a background WebSocket connection purely to populate a
// cached healthy/unhealthy flag, mirroring the reconnect/ping shape of the
// teacher's kalshi WSClient without exposing any of its market-data surface.
type prober struct {
	url string

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	healthy atomic.Bool

	baseDelay time.Duration
	maxDelay  time.Duration
}

func newProber(url string) *prober {
	return &prober{
		url:       url,
		baseDelay: time.Second,
		maxDelay:  30 * time.Second,
	}
}

func (p *prober) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	go p.run(ctx)
}

func (p *prober) stop() {
	p.mu.Lock()
	cancel := p.cancel
	conn := p.conn
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

func (p *prober) isHealthy() bool {
	return p.healthy.Load()
}

// run holds a connection open, resetting the backoff delay on every
// successful open and marking unhealthy whenever the socket drops.
func (p *prober) run(ctx context.Context) {
	delay := p.baseDelay
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url, http.Header{})
		if err != nil {
			p.healthy.Store(false)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > p.maxDelay {
				delay = p.maxDelay
			}
			continue
		}

		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()
		p.healthy.Store(true)
		delay = p.baseDelay

		p.pingLoop(ctx, conn)
		p.healthy.Store(false)
	}
}

// pingLoop blocks, sending periodic pings, until the connection errors or
// the context is cancelled.
func (p *prober) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
