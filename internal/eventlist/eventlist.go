// Package eventlist implements the priority-preserving input/output queue
// that serves every station's inbound and outbound side (spec §4.1).
//
// A list is a concatenation of a leading block of high-priority events
// followed by a block of low-priority ones; within a block, FIFO order
// holds. This invariant is maintained by every mutating method in this
// file, never by callers.
package eventlist

import (
	"sync"
	"time"

	"github.com/etbroker/et/internal/attachment"
	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/status"
)

// Mode selects the blocking behavior of Get / GetByGroup (spec §4.1).
type Mode uint8

const (
	ModeAsync Mode = iota
	ModeTimed
	ModeSleep
)

// EventList is a monitor-protected priority queue. One instance serves as
// a station's input list, another as its output list (spec §3).
type EventList struct {
	mu   sync.Mutex
	cond *sync.Cond

	events []*event.Event

	// lastHigh is meaningful for output lists: the length of the leading
	// high-priority block (spec §3 invariant).
	lastHigh int

	eventsIn  uint64
	eventsOut uint64
	eventsTry uint64

	waitingCount int
	wakeAll      bool
}

// New returns an empty list.
func New() *EventList {
	l := &EventList{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Len returns the current number of events in the list.
func (l *EventList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Stats returns the eventsIn/eventsOut/eventsTry counters (spec §3, §8
// property 5: eventsIn >= eventsOut and their difference equals list
// length).
func (l *EventList) Stats() (in, out, try uint64, length int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eventsIn, l.eventsOut, l.eventsTry, len(l.events)
}

// LastHigh returns the length of the leading high-priority block. Only
// meaningful for output lists.
func (l *EventList) LastHigh() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHigh
}

func splitHighCount(evs []*event.Event) int {
	n := 0
	for _, e := range evs {
		if e.Priority == event.PriorityHigh {
			n++
		} else {
			break
		}
	}
	return n
}

// PutLow appends pre-validated low-priority events to the tail. Callers
// assert every event is low priority (spec §4.1); used on the hot
// conductor path and during pool seeding, where a single writer already
// serializes access, but the list is still locked here for safety against
// concurrent readers.
func (l *EventList) PutLow(evs []*event.Event) {
	if len(evs) == 0 {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, evs...)
	l.eventsIn += uint64(len(evs))
	l.mu.Unlock()
	l.cond.Broadcast()
}

// PutInGC is the synchronized entry point that funnels user dumps into
// GRAND_CENTRAL's input list via PutLow (spec §4.1).
func (l *EventList) PutInGC(evs []*event.Event) {
	l.PutLow(evs)
}

// PutAll is the conductor-driven insertion into an input list. evs must
// already be sorted highs-first. The list's own leading high block is
// located, new highs are inserted right after it, and the remaining lows
// append to the tail (spec §4.1).
func (l *EventList) PutAll(evs []*event.Event) {
	if len(evs) == 0 {
		return
	}
	k := splitHighCount(evs)
	highs, lows := evs[:k], evs[k:]

	l.mu.Lock()
	if len(highs) > 0 {
		head := splitHighCount(l.events)
		l.events = append(l.events[:head], append(append([]*event.Event{}, highs...), l.events[head:]...)...)
	}
	if len(lows) > 0 {
		l.events = append(l.events, lows...)
	}
	l.eventsIn += uint64(len(evs))
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Put is the user-driven insertion into an output list. Lows append to
// the tail; highs insert at lastHigh and bump it (spec §4.1). Wakes a
// single waiter.
func (l *EventList) Put(evs []*event.Event) {
	if len(evs) == 0 {
		return
	}
	l.mu.Lock()
	if len(l.events) == 0 {
		l.lastHigh = 0
	}
	for _, e := range evs {
		if e.Priority == event.PriorityHigh {
			l.events = append(l.events, nil)
			copy(l.events[l.lastHigh+1:], l.events[l.lastHigh:])
			l.events[l.lastHigh] = e
			l.lastHigh++
		} else {
			l.events = append(l.events, e)
		}
	}
	l.eventsIn += uint64(len(evs))
	l.mu.Unlock()
	l.cond.Signal()
}

// PutReverse restores events ahead of existing equal-priority events: highs
// at index 0, lows right after the (possibly just-grown) high block (spec
// §4.1). Used when reclaiming events from a broken client or overflowing
// station (spec §4.5). Does not double-count eventsIn for restored events.
func (l *EventList) PutReverse(evs []*event.Event) {
	if len(evs) == 0 {
		return
	}
	k := splitHighCount(evs)
	highs, lows := evs[:k], evs[k:]

	l.mu.Lock()
	head := splitHighCount(l.events)
	if len(highs) > 0 {
		l.events = append(append(append([]*event.Event{}, highs...), l.events[:head]...), l.events[head:]...)
		head += len(highs)
		l.lastHigh = head
	} else {
		l.lastHigh = head
	}
	if len(lows) > 0 {
		merged := make([]*event.Event, 0, len(l.events)+len(lows))
		merged = append(merged, l.events[:head]...)
		merged = append(merged, lows...)
		merged = append(merged, l.events[head:]...)
		l.events = merged
	}
	l.mu.Unlock()
	l.cond.Broadcast()
}

// DrainAll moves the entire list out in one shot, for the conductor to
// route downstream (spec §4.1, §4.2).
func (l *EventList) DrainAll() []*event.Event {
	l.mu.Lock()
	out := l.events
	l.events = nil
	l.lastHigh = 0
	l.eventsOut += uint64(len(out))
	l.mu.Unlock()
	return out
}

// WaitNonEmpty blocks the calling conductor until the list holds at least
// one event, or until stop is closed.
func (l *EventList) WaitNonEmpty(stop <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		select {
		case <-stop:
			l.mu.Lock()
			l.cond.Broadcast()
			l.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.events) == 0 {
		select {
		case <-stop:
			return
		default:
		}
		l.cond.Wait()
	}
}

// WakeUp marks att's personal wakeup flag and notifies every waiter so it
// can recheck its own flag (spec §4.1, §5 establish-then-signal).
func (l *EventList) WakeUp(att *attachment.Attachment) {
	att.RequestWakeUp()
	l.mu.Lock()
	l.cond.Broadcast()
	l.mu.Unlock()
}

// WakeUpAll sets the list-wide wakeup flag and notifies every waiter. The
// last departing waiter resets the flag (spec §4.1, §9).
func (l *EventList) WakeUpAll() {
	l.mu.Lock()
	l.wakeAll = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

// waitResult is what caused a parked waiter to stop waiting.
type waitResult uint8

const (
	waitReady waitResult = iota
	waitWakeUp
	waitTimeout
)

// waitUntil parks the caller (mutex already held) until ready() reports
// true, a wakeup is signaled for att, or deadline elapses (zero deadline
// means wait forever). It is the shared blocking core of Get/GetByGroup.
func (l *EventList) waitUntil(att *attachment.Attachment, deadline time.Time, ready func() bool) waitResult {
	var timer *time.Timer
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d < 0 {
			d = 0
		}
		timer = time.AfterFunc(d, func() {
			l.mu.Lock()
			l.cond.Broadcast()
			l.mu.Unlock()
		})
		defer timer.Stop()
	}

	l.waitingCount++
	att.SetWaiting(true)
	defer func() {
		l.waitingCount--
		att.SetWaiting(false)
	}()

	for {
		if ready() {
			return waitReady
		}
		if att.ConsumeWakeUp() || l.wakeAll {
			if l.waitingCount == 1 {
				l.wakeAll = false
			}
			return waitWakeUp
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return waitTimeout
		}
		l.cond.Wait()
	}
}

// Get performs a blocking read for an attachment (spec §4.1). It returns
// up to min(quantity, list length) events from the head, in list order.
func (l *EventList) Get(att *attachment.Attachment, mode Mode, timeout time.Duration, quantity int) ([]*event.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.eventsTry++

	if len(l.events) == 0 {
		switch mode {
		case ModeAsync:
			return nil, status.ErrEmpty
		case ModeTimed:
			res := l.waitUntil(att, time.Now().Add(timeout), func() bool { return len(l.events) > 0 })
			switch res {
			case waitWakeUp:
				return nil, status.ErrWakeUp
			case waitTimeout:
				return nil, status.ErrTimeout
			}
		case ModeSleep:
			res := l.waitUntil(att, time.Time{}, func() bool { return len(l.events) > 0 })
			if res == waitWakeUp {
				return nil, status.ErrWakeUp
			}
		}
	}

	return l.takeLocked(quantity), nil
}

// takeLocked removes and returns up to quantity events from the head.
// Caller must hold l.mu.
func (l *EventList) takeLocked(quantity int) []*event.Event {
	n := quantity
	if n > len(l.events) || n <= 0 {
		n = len(l.events)
	}
	out := l.events[:n]
	l.events = l.events[n:]
	if l.lastHigh > n {
		l.lastHigh -= n
	} else {
		l.lastHigh = 0
	}
	l.eventsOut += uint64(n)
	return out
}

// GetByGroup is Get restricted to a single event group (spec §4.1). In
// async mode, zero matches (whether the list is empty or simply holds no
// events of the requested group) fails EMPTY; blocking modes re-wait on
// zero matches (spec §9 open question, resolved as documented there).
func (l *EventList) GetByGroup(att *attachment.Attachment, mode Mode, timeout time.Duration, quantity int, group int32) ([]*event.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.eventsTry++

	matches := func() []int {
		idx := make([]int, 0, quantity)
		for i, e := range l.events {
			if e.Group == group {
				idx = append(idx, i)
				if quantity > 0 && len(idx) == quantity {
					break
				}
			}
		}
		return idx
	}

	idx := matches()
	if len(idx) == 0 {
		switch mode {
		case ModeAsync:
			return nil, status.ErrEmpty
		case ModeTimed:
			deadline := time.Now().Add(timeout)
			for len(idx) == 0 {
				res := l.waitUntil(att, deadline, func() bool { idx = matches(); return len(idx) > 0 })
				switch res {
				case waitWakeUp:
					return nil, status.ErrWakeUp
				case waitTimeout:
					return nil, status.ErrTimeout
				}
			}
		case ModeSleep:
			for len(idx) == 0 {
				res := l.waitUntil(att, time.Time{}, func() bool { idx = matches(); return len(idx) > 0 })
				if res == waitWakeUp {
					return nil, status.ErrWakeUp
				}
			}
		}
	}

	return l.takeIndexesLocked(idx), nil
}

// takeIndexesLocked removes and returns the events at the given (sorted
// ascending) indexes, preserving their relative order. Caller holds l.mu.
func (l *EventList) takeIndexesLocked(idx []int) []*event.Event {
	out := make([]*event.Event, 0, len(idx))
	remove := make(map[int]bool, len(idx))
	for _, i := range idx {
		out = append(out, l.events[i])
		remove[i] = true
	}
	kept := l.events[:0:0]
	highRemoved := 0
	for i, e := range l.events {
		if remove[i] {
			if i < l.lastHigh {
				highRemoved++
			}
			continue
		}
		kept = append(kept, e)
	}
	l.events = kept
	l.lastHigh -= highRemoved
	if l.lastHigh < 0 {
		l.lastHigh = 0
	}
	l.eventsOut += uint64(len(out))
	return out
}
