package strategy

import (
	"sync"
	"time"

	"github.com/alanyoungcy/polymarketbot/internal/clock"
)

// dedup prevents the same signal id from being processed twice within a
// configurable window. Takes an injectable Clock instead of calling
// time.Now directly, so tests can advance time deterministically.
type dedup struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	clock  clock.Clock
}

func newDedup(window time.Duration, c clock.Clock) *dedup {
	return &dedup{seen: make(map[string]time.Time), window: window, clock: c}
}

// isDuplicate reports whether id was seen within the window; if not, it
// records the current time and returns false.
func (d *dedup) isDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if last, ok := d.seen[id]; ok && now.Sub(last) < d.window {
		return true
	}
	d.seen[id] = now
	return false
}

// cleanup prunes entries older than the window. Called periodically by the
// engine to bound memory growth.
func (d *dedup) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.window {
			delete(d.seen, id)
		}
	}
}
