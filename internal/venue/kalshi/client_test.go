package kalshi

import (
	"strings"
	"testing"

	"github.com/alanyoungcy/polymarketbot/internal/venue"
)

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
		wantKind   venue.ErrorKind
	}{
		{name: "ok", statusCode: 200, wantErr: false},
		{name: "created", statusCode: 201, wantErr: false},
		{name: "unauthorized", statusCode: 401, wantErr: true, wantKind: venue.ErrAuth},
		{name: "rate limited", statusCode: 429, wantErr: true, wantKind: venue.ErrRateLimited},
		{name: "not found", statusCode: 404, wantErr: true, wantKind: venue.ErrOrderNotFound},
		{name: "bad request", statusCode: 400, wantErr: true, wantKind: venue.ErrInvalidOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkStatus(tt.statusCode, []byte(`{"code":"x","message":"boom"}`))
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr && !strings.Contains(err.Error(), string(tt.wantKind)) {
				t.Fatalf("error %q does not carry kind %s", err, tt.wantKind)
			}
		})
	}
}

func TestConnectorVenue(t *testing.T) {
	c, err := New(Config{BaseURL: "https://example.test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Venue() != "kalshi" {
		t.Fatalf("Venue() = %q, want kalshi", c.Venue())
	}
	if !c.IsHealthy() {
		t.Fatalf("expected IsHealthy() = true when no prober is configured")
	}
}
