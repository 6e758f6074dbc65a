package monitor

import (
	"testing"
	"time"
)

type testEvent string

func (e testEvent) Kind() string { return string(e) }

func TestAttachReceivesBroadcast(t *testing.T) {
	h := NewHub(4, nil)
	sub := h.Attach()
	defer h.Detach(sub.ID())

	h.Broadcast(testEvent("station.created"))

	select {
	case ev := <-sub.Recv():
		if ev.Kind() != "station.created" {
			t.Fatalf("got %q, want station.created", ev.Kind())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestBroadcastFansOutToAllSubscribers(t *testing.T) {
	h := NewHub(4, nil)
	a := h.Attach()
	b := h.Attach()
	defer h.Detach(a.ID())
	defer h.Detach(b.ID())

	h.Broadcast(testEvent("x"))

	for _, s := range []Subscriber{a, b} {
		select {
		case <-s.Recv():
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive broadcast")
		}
	}
}

func TestDetachStopsDelivery(t *testing.T) {
	h := NewHub(4, nil)
	sub := h.Attach()
	h.Detach(sub.ID())

	if got := h.Snapshot().Observers; got != 0 {
		t.Fatalf("expected 0 observers after detach, got %d", got)
	}
}

func TestBroadcastDropsOnFullMailbox(t *testing.T) {
	h := NewHub(1, nil)
	sub := h.Attach()
	defer h.Detach(sub.ID())

	h.Broadcast(testEvent("first"))
	h.Broadcast(testEvent("second")) // mailbox capacity 1, this one should drop

	if got := h.Snapshot().Dropped; got != 1 {
		t.Fatalf("expected 1 dropped event, got %d", got)
	}
}

func TestRunPeriodicSnapshot(t *testing.T) {
	h := NewHub(4, nil)
	sub := h.Attach()
	defer h.Detach(sub.ID())

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		RunPeriodicSnapshot(h, 5*time.Millisecond, stop, func() Event { return testEvent("tick") })
		close(done)
	}()

	select {
	case ev := <-sub.Recv():
		if ev.Kind() != "tick" {
			t.Fatalf("got %q, want tick", ev.Kind())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for periodic snapshot")
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodicSnapshot did not return after stop closed")
	}
}
