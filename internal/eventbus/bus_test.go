package eventbus

import "testing"

func TestBusPublishSubscribe(t *testing.T) {
	b := New[string]()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish("hello")
	select {
	case v := <-ch:
		if v != "hello" {
			t.Fatalf("got %q, want hello", v)
		}
	default:
		t.Fatalf("expected a buffered value")
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := New[int]()
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}

func TestBusFanOut(t *testing.T) {
	b := New[int]()
	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	b.Publish(7)

	if v := <-ch1; v != 7 {
		t.Fatalf("ch1 got %d, want 7", v)
	}
	if v := <-ch2; v != 7 {
		t.Fatalf("ch2 got %d, want 7", v)
	}
}
