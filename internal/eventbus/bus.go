// Package eventbus is a small generic typed pub-sub used to decouple event
// producers (router, tracker, strategy engine) from whatever forwards their
// events to the relay. Publish/Subscribe over typed Go channels, not Redis
// Pub/Sub, since nothing here needs to survive a process restart.
package eventbus

import "sync"

// Bus fans a single published value out to every current subscriber.
// Subscribers that fall behind drop events rather than block the publisher
// — a slow relay forwarder must never stall the router or tracker.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
}

// New returns an empty, ready-to-use Bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]chan T)}
}

// Subscribe returns a channel that receives every value published after
// this call. The channel has a small buffer; call the returned unsubscribe
// func to stop receiving, which also closes the channel.
func (b *Bus[T]) Subscribe() (ch <-chan T, unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	c := make(chan T, 64)
	b.subs[id] = c

	return c, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers v to every current subscriber. A subscriber whose buffer
// is full has the value dropped for it rather than blocking the publisher.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.subs {
		select {
		case c <- v:
		default:
		}
	}
}
