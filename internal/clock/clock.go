// Package clock abstracts time.Now and timers so the dedup window, rate
// limiter, cooldown ledger, and the relay/health timers can be driven
// deterministically in tests instead of depending on wall time.
package clock

import "time"

// Clock is the time source every timing-sensitive component takes instead
// of calling time.Now/time.NewTicker directly.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}

// Ticker mirrors the subset of time.Ticker callers need.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the production Clock backed by the standard library.
type Real struct{}

func (Real) Now() time.Time                         { return time.Now() }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
