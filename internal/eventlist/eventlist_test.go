package eventlist

import (
	"testing"
	"time"

	"github.com/etbroker/et/internal/attachment"
	"github.com/etbroker/et/internal/event"
)

func newEvent(id int32, p event.Priority) *event.Event {
	return &event.Event{ID: id, Priority: p}
}

// S1: inserting H1,L1,H2,L2,H3 one at a time into an empty output list via
// Put must yield [H1,H2,H3,L1,L2] — the leading-high-block invariant.
func TestPutPriorityOrdering(t *testing.T) {
	l := New()
	h1, l1, h2, l2, h3 := newEvent(1, event.PriorityHigh), newEvent(2, event.PriorityLow),
		newEvent(3, event.PriorityHigh), newEvent(4, event.PriorityLow), newEvent(5, event.PriorityHigh)

	l.Put([]*event.Event{h1})
	l.Put([]*event.Event{l1})
	l.Put([]*event.Event{h2})
	l.Put([]*event.Event{l2})
	l.Put([]*event.Event{h3})

	got := l.DrainAll()
	want := []int32{1, 3, 5, 2, 4}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.ID != want[i] {
			t.Errorf("position %d: got id %d, want %d", i, e.ID, want[i])
		}
	}
	if l.LastHigh() != 0 {
		t.Errorf("LastHigh should reset to 0 after DrainAll, got %d", l.LastHigh())
	}
}

func TestPutAllInputOrdering(t *testing.T) {
	l := New()
	l.PutAll([]*event.Event{newEvent(1, event.PriorityHigh), newEvent(2, event.PriorityLow)})
	l.PutAll([]*event.Event{newEvent(3, event.PriorityHigh)})

	got := l.DrainAll()
	want := []int32{1, 3, 2}
	for i, e := range got {
		if e.ID != want[i] {
			t.Errorf("position %d: got id %d, want %d", i, e.ID, want[i])
		}
	}
}

func TestGetAsyncEmpty(t *testing.T) {
	l := New()
	att := attachment.New(1, 0, "localhost", 1)
	_, err := l.Get(att, ModeAsync, 0, 1)
	if err == nil {
		t.Fatal("expected error on empty async get")
	}
}

func TestGetTimedTimeout(t *testing.T) {
	l := New()
	att := attachment.New(1, 0, "localhost", 1)
	start := time.Now()
	_, err := l.Get(att, ModeTimed, 30*time.Millisecond, 1)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("returned too early: %v", elapsed)
	}
}

// S4: WakeUp releases exactly the targeted waiter with ErrWakeUp, and
// does not disturb a second waiter blocked on the same list.
func TestWakeUpTargetsSingleAttachment(t *testing.T) {
	l := New()
	att1 := attachment.New(1, 0, "localhost", 1)
	att2 := attachment.New(2, 0, "localhost", 1)

	res1 := make(chan error, 1)
	res2 := make(chan error, 1)

	go func() {
		_, err := l.Get(att1, ModeSleep, 0, 1)
		res1 <- err
	}()
	go func() {
		_, err := l.Get(att2, ModeSleep, 0, 1)
		res2 <- err
	}()

	time.Sleep(20 * time.Millisecond)
	l.WakeUp(att1)

	select {
	case err := <-res1:
		if err == nil {
			t.Fatal("expected ErrWakeUp for att1")
		}
	case <-time.After(time.Second):
		t.Fatal("att1 never woke up")
	}

	select {
	case err := <-res2:
		t.Fatalf("att2 should still be blocked, got err=%v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// release att2 so the goroutine doesn't leak past the test.
	l.Put([]*event.Event{newEvent(99, event.PriorityLow)})
	<-res2
}

func TestWakeUpAllLastWaiterClearsFlag(t *testing.T) {
	l := New()
	att1 := attachment.New(1, 0, "localhost", 1)
	att2 := attachment.New(2, 0, "localhost", 1)

	res1 := make(chan error, 1)
	res2 := make(chan error, 1)
	go func() { _, err := l.Get(att1, ModeSleep, 0, 1); res1 <- err }()
	go func() { _, err := l.Get(att2, ModeSleep, 0, 1); res2 <- err }()

	time.Sleep(20 * time.Millisecond)
	l.WakeUpAll()

	e1 := <-res1
	e2 := <-res2
	if e1 == nil || e2 == nil {
		t.Fatalf("expected both waiters to see ErrWakeUp, got %v, %v", e1, e2)
	}

	// the last departing waiter must have cleared wakeAll.
	l.mu.Lock()
	stale := l.wakeAll
	l.mu.Unlock()
	if stale {
		t.Fatal("wakeAll still set after every waiter left")
	}

	// a fresh async get afterward must return promptly.
	att3 := attachment.New(3, 0, "localhost", 1)
	done := make(chan struct{})
	go func() {
		l.Get(att3, ModeAsync, 0, 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async get should not block")
	}
}

func TestGetByGroupAsyncZeroMatchesFailsEmpty(t *testing.T) {
	l := New()
	ev := newEvent(1, event.PriorityLow)
	ev.Group = 7
	l.PutAll([]*event.Event{ev})

	att := attachment.New(1, 0, "localhost", 1)
	_, err := l.GetByGroup(att, ModeAsync, 0, 1, 42)
	if err == nil {
		t.Fatal("expected EMPTY for a non-matching group in async mode")
	}
}

func TestGetByGroupReturnsOnlyMatchingGroup(t *testing.T) {
	l := New()
	a := newEvent(1, event.PriorityHigh)
	a.Group = 1
	b := newEvent(2, event.PriorityLow)
	b.Group = 2
	c := newEvent(3, event.PriorityLow)
	c.Group = 1
	l.PutAll([]*event.Event{a, b, c})

	att := attachment.New(1, 0, "localhost", 1)
	got, err := l.GetByGroup(att, ModeAsync, 0, 10, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Fatalf("got %+v, want events 1 and 3 only", got)
	}
	if remaining := l.Len(); remaining != 1 {
		t.Errorf("expected 1 event left in list, got %d", remaining)
	}
}

func TestPutReverseOrdering(t *testing.T) {
	l := New()
	l.PutAll([]*event.Event{newEvent(1, event.PriorityLow)})
	l.PutReverse([]*event.Event{newEvent(2, event.PriorityHigh), newEvent(3, event.PriorityLow)})

	got := l.DrainAll()
	want := []int32{2, 3, 1}
	for i, e := range got {
		if e.ID != want[i] {
			t.Errorf("position %d: got id %d, want %d", i, e.ID, want[i])
		}
	}
}

func TestStatsInvariant(t *testing.T) {
	l := New()
	l.PutAll([]*event.Event{newEvent(1, event.PriorityLow), newEvent(2, event.PriorityLow)})
	att := attachment.New(1, 0, "localhost", 1)
	if _, err := l.Get(att, ModeAsync, 0, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in, out, _, length := l.Stats()
	if in-out != uint64(length) {
		t.Errorf("invariant violated: in=%d out=%d length=%d", in, out, length)
	}
}
