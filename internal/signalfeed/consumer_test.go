package signalfeed

import "testing"

func TestBuildURL(t *testing.T) {
	c := New(Config{Host: "signals.example.com", APIKey: "k"})
	u := c.buildURL()
	want := "wss://signals.example.com/api/v1/public/ws/signals?api_key=k"
	if u != want {
		t.Fatalf("buildURL() = %q, want %q", u, want)
	}
}

func TestOnMessageDropsNonSignalSilently(t *testing.T) {
	c := New(Config{Host: "signals.example.com", APIKey: "k"})
	ch, unsub := c.Events().Subscribe()
	defer unsub()

	c.onMessage([]byte(`{"status":"connected"}`))

	select {
	case sig := <-ch:
		t.Fatalf("expected no signal published, got %+v", sig)
	default:
	}
}

func TestOnMessagePublishesWellFormedSignal(t *testing.T) {
	c := New(Config{Host: "signals.example.com", APIKey: "k"})
	ch, unsub := c.Events().Subscribe()
	defer unsub()

	c.onMessage([]byte(`{"id":"S1","signal_type":"price_move"}`))

	sig := <-ch
	if sig.ID != "S1" {
		t.Fatalf("sig.ID = %q, want S1", sig.ID)
	}
}

func TestOnMessageDropsInvalidJSONWithoutCrashing(t *testing.T) {
	c := New(Config{Host: "signals.example.com", APIKey: "k"})
	c.onMessage([]byte(`not json`))
}
