package wsconn

import "testing"

func TestDeriveURLScheme(t *testing.T) {
	tests := []struct {
		host       string
		wantScheme string
	}{
		{"relay.example.com", "wss"},
		{"localhost", "ws"},
		{"127.0.0.1", "ws"},
		{"10.0.0.5", "ws"},
		{"192.168.1.1", "ws"},
		{"100.64.0.1", "ws"},
		{"172.16.0.1", "ws"},
		{"172.31.255.255", "ws"},
		{"172.32.0.1", "wss"},
		{"172.15.0.1", "wss"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got := DeriveURL(tt.host, "/api/v1/relay", "api_key=k")
			wantPrefix := tt.wantScheme + "://" + tt.host
			if len(got) < len(wantPrefix) || got[:len(wantPrefix)] != wantPrefix {
				t.Fatalf("DeriveURL(%q) = %q, want prefix %q", tt.host, got, wantPrefix)
			}
		})
	}
}
