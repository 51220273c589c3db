package protocol

import "testing"

func TestDecodeRelayFrame(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantCmd   bool
		wantCtrl  bool
		wantErr   bool
	}{
		{
			name:    "trade command",
			raw:     `{"type":"trade","id":"C1","market_id":"kalshi:M","venue":"kalshi","side":"yes","action":"buy","size":10,"order_type":"market"}`,
			wantCmd: true,
		},
		{
			name:     "pairing confirmed",
			raw:      `{"type":"pairing_confirmed","pairing_id":"P1","relay_session_id":"S1"}`,
			wantCtrl: true,
		},
		{
			name:    "unknown type",
			raw:     `{"type":"frobnicate"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeRelayFrame([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if _, ok := err.(ErrUnknownVariant); !ok {
					t.Fatalf("expected ErrUnknownVariant, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantCmd && frame.Command == nil {
				t.Fatalf("expected Command, got nil")
			}
			if tt.wantCtrl && frame.Control == nil {
				t.Fatalf("expected Control, got nil")
			}
		})
	}
}

func TestDecodeSignal(t *testing.T) {
	sig, ok, err := DecodeSignal([]byte(`{"id":"S1","signal_type":"price_move","expires_at":"2026-01-01T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if sig.ID != "S1" {
		t.Fatalf("id = %q, want S1", sig.ID)
	}

	_, ok, err = DecodeSignal([]byte(`{"status":"connected"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for non-signal message")
	}
}

func TestSignalArbitrage(t *testing.T) {
	sig := Signal{Payload: []byte(`{"buy_venue":"kalshi","sell_venue":"polymarket","buy_market_id":"A","sell_market_id":"B","buy_price":"0.42","sell_price":"0.61"}`)}
	arb, ok := sig.Arbitrage()
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if !arb.IsArb() {
		t.Fatalf("expected IsArb() = true")
	}
	if arb.BuyVenue != "kalshi" || arb.SellMarketID != "B" {
		t.Fatalf("unexpected payload: %+v", arb)
	}
}
