package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/polymarketbot/internal/eventbus"
	"github.com/alanyoungcy/polymarketbot/internal/gateway"
	"github.com/alanyoungcy/polymarketbot/internal/protocol"
)

type fakeSource struct {
	status  gateway.Status
	reports *eventbus.Bus[protocol.Report]
}

func (f *fakeSource) Status() gateway.Status                 { return f.status }
func (f *fakeSource) Reports() *eventbus.Bus[protocol.Report] { return f.reports }

func newFakeSource() *fakeSource {
	return &fakeSource{
		status:  gateway.Status{State: gateway.StateRunning, OpenOrders: 2},
		reports: eventbus.New[protocol.Report](),
	}
}

func TestStatusHandlerReturnsJSONSnapshot(t *testing.T) {
	src := newFakeSource()
	s := New(Config{Enabled: true, Port: 0}, src, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	statusHandler(src)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got gateway.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OpenOrders != 2 || got.State != gateway.StateRunning {
		t.Fatalf("unexpected status body: %+v", got)
	}
	_ = s
}

func TestCORSMiddlewareAllowsConfiguredOrigin(t *testing.T) {
	h := corsMiddleware([]string{"https://dashboard.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
}

func TestCORSMiddlewareRejectsUnlistedOrigin(t *testing.T) {
	h := corsMiddleware([]string{"https://dashboard.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS header for unlisted origin, got %q", got)
	}
}

func TestHubBroadcastDropsForSlowClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := newHub(eventbus.New[protocol.Report](), logger)

	slow := make(chan []byte) // unbuffered, nobody reads -> always full
	h.mu.Lock()
	h.clients[slow] = struct{}{}
	h.mu.Unlock()

	// broadcast must not block even though the one client never drains.
	done := make(chan struct{})
	go func() {
		h.broadcast([]byte(`{"type":"order_update"}`))
		close(done)
	}()
	<-done
}
