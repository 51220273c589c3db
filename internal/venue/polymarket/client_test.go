package polymarket

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderAmounts(t *testing.T) {
	size := decimal.NewFromFloat(10)
	price := decimal.NewFromFloat(0.5)

	makerBuy, takerBuy := orderAmounts("yes", size, price)
	if makerBuy.IsZero() || takerBuy.IsZero() {
		t.Fatalf("buy amounts should be non-zero: maker=%s taker=%s", makerBuy, takerBuy)
	}
	if !takerBuy.Equal(decimal.New(10_000_000, 0)) {
		t.Fatalf("buy taker (shares) = %s, want 10000000", takerBuy)
	}

	makerSell, takerSell := orderAmounts("no", size, price)
	if !makerSell.Equal(decimal.New(10_000_000, 0)) {
		t.Fatalf("sell maker (shares) = %s, want 10000000", makerSell)
	}
	if takerSell.IsZero() {
		t.Fatalf("sell taker should be non-zero")
	}
}

func TestCheckStatus(t *testing.T) {
	if err := checkStatus(200, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := checkStatus(401, []byte("nope")); err == nil {
		t.Fatalf("expected error for 401")
	}
	if err := checkStatus(429, []byte("slow down")); err == nil {
		t.Fatalf("expected error for 429")
	}
}

func TestRandomSalt(t *testing.T) {
	a, err := randomSalt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := randomSalt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct salts")
	}
}
