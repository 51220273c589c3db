// Package httpapi exposes the gateway's state over a local, optional,
// read-only HTTP surface: GET /status returns the current snapshot as JSON
// and GET /ws mirrors the same report stream the gateway sends upstream
// through the relay. This surface never participates in the trading
// invariants: it only observes, never commands.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/polymarketbot/internal/eventbus"
	"github.com/alanyoungcy/polymarketbot/internal/gateway"
	"github.com/alanyoungcy/polymarketbot/internal/protocol"
	"github.com/gorilla/websocket"
)

// Config configures the local dashboard surface. It is off by default; the
// caller (cmd/gateway) only constructs a Server when Enabled is set.
type Config struct {
	Enabled     bool
	Port        int
	CORSOrigins []string
}

// StatusSource is the subset of *gateway.Gateway the dashboard reads from.
// Kept narrow so tests can supply a fake rather than a full Gateway.
type StatusSource interface {
	Status() gateway.Status
	Reports() *eventbus.Bus[protocol.Report]
}

// Server is the optional local HTTP + WebSocket dashboard.
type Server struct {
	httpServer *http.Server
	hub        *hub
	logger     *slog.Logger
}

// New builds a Server around src. It does not start listening; call Start.
func New(cfg Config, src StatusSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "httpapi"))

	h := newHub(src.Reports(), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", statusHandler(src))
	mux.HandleFunc("GET /ws", h.handleWS)

	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		hub:    h,
		logger: logger,
	}
}

// Start runs the hub's broadcast loop and blocks serving HTTP until the
// server is shut down. Intended to run in its own goroutine.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.run(ctx)

	s.logger.Info("httpapi: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("httpapi: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return nil
}

func statusHandler(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(src.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}
				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// upgrader allows any local origin; this surface is read-only and never
// accepts commands, so CSRF-style concerns from §corsMiddleware don't apply.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const sendBufferSize = 64

// hub fans reports published on a gateway's report bus out to every
// connected local WebSocket client, dropping messages for a slow client
// rather than blocking the rest.
type hub struct {
	reports *eventbus.Bus[protocol.Report]
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

func newHub(reports *eventbus.Bus[protocol.Report], logger *slog.Logger) *hub {
	return &hub{reports: reports, logger: logger, clients: make(map[chan []byte]struct{})}
}

// run subscribes to the report bus and fans every report out to clients
// until ctx is cancelled.
func (h *hub) run(ctx context.Context) {
	ch, unsubscribe := h.reports.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(r)
			if err != nil {
				continue
			}
			h.broadcast(data)
		}
	}
}

func (h *hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c <- data:
		default:
			h.logger.Warn("httpapi: dropping message for slow client")
		}
	}
}

// handleWS upgrades the request and streams reports to the client until it
// disconnects. The dashboard never reads from the client beyond pings: this
// endpoint is observe-only.
func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("httpapi: ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	send := make(chan []byte, sendBufferSize)
	h.mu.Lock()
	h.clients[send] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, send)
		h.mu.Unlock()
	}()

	// This endpoint never reads real commands, but the read pump is still
	// needed to notice the client going away (gorilla surfaces a closed
	// connection only on Read).
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case data := <-send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
