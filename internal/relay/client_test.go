package relay

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/polymarketbot/internal/clock"
	"github.com/alanyoungcy/polymarketbot/internal/protocol"
)

// tickerSpyClock records the duration every NewTicker call is made with, so
// tests can confirm the heartbeat loop reads its interval from the injected
// Clock instead of a hardcoded time.NewTicker.
type tickerSpyClock struct {
	clock.Real
	mu        sync.Mutex
	durations []time.Duration
}

func (s *tickerSpyClock) NewTicker(d time.Duration) clock.Ticker {
	s.mu.Lock()
	s.durations = append(s.durations, d)
	s.mu.Unlock()
	return s.Real.NewTicker(d)
}

func (s *tickerSpyClock) calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.durations...)
}

func TestNewRequiresPairingIDOrCode(t *testing.T) {
	_, err := New(Config{Host: "relay.example.com", APIKey: "k"}, nil, nil)
	if err == nil {
		t.Fatalf("expected error when neither pairing_id nor pairing_code is set")
	}
	if !strings.Contains(err.Error(), "CONFIG") {
		t.Fatalf("expected CONFIG error, got %v", err)
	}
}

func TestBuildURLUsesPairingCodeWhenNoPairingID(t *testing.T) {
	c, err := New(Config{Host: "relay.example.com", APIKey: "k", PairingCode: "ABC123"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u := c.buildURL()
	if !strings.HasPrefix(u, "wss://relay.example.com/api/v1/relay?") {
		t.Fatalf("unexpected url: %s", u)
	}
	if !strings.Contains(u, "pairing_code=ABC123") {
		t.Fatalf("expected pairing_code in url: %s", u)
	}
}

func TestBuildURLLocalHostUsesWsScheme(t *testing.T) {
	c, err := New(Config{Host: "localhost:8080", APIKey: "k", PairingID: "P1"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u := c.buildURL()
	if !strings.HasPrefix(u, "ws://localhost:8080/api/v1/relay?") {
		t.Fatalf("unexpected url: %s", u)
	}
}

func TestHandleControlPairingConfirmedTransitionsToConnected(t *testing.T) {
	c, err := New(Config{Host: "relay.example.com", APIKey: "k", PairingCode: "ABC123"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ch, unsub := c.Events().Subscribe()
	defer unsub()

	c.handleControl(protocol.ControlMessage{Type: protocol.ControlPairingConfirmed, PairingID: "P1"})

	if c.PairingID() != "P1" {
		t.Fatalf("PairingID() = %q, want P1", c.PairingID())
	}
	if c.State() != StateConnected {
		t.Fatalf("State() = %q, want CONNECTED", c.State())
	}

	first := <-ch
	if first.Type != "pairing_confirmed" || first.PairingID != "P1" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	second := <-ch
	if second.Type != "connected" {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestStartHeartbeatUsesInjectedClock(t *testing.T) {
	spy := &tickerSpyClock{}
	c, err := New(Config{Host: "relay.example.com", APIKey: "k", PairingID: "P1"}, nil, spy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.startHeartbeat()
	defer c.stopHeartbeat()

	if calls := spy.calls(); len(calls) != 1 || calls[0] != heartbeatInterval {
		t.Fatalf("expected one NewTicker(%v) call on the injected clock, got %+v", heartbeatInterval, calls)
	}
}

func TestHandleCommandEmitsCommandEvent(t *testing.T) {
	c, err := New(Config{Host: "relay.example.com", APIKey: "k", PairingID: "P1"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ch, unsub := c.Events().Subscribe()
	defer unsub()

	cmd := protocol.Command{Type: protocol.CommandTrade, ID: "C1", MarketID: "kalshi:M", Venue: "kalshi"}
	c.handleCommand(cmd)

	ev := <-ch
	if ev.Type != "command" || ev.Command == nil || ev.Command.ID != "C1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
