// Package attachment models the handle identifying one consumer/producer
// bound to one station (spec §3 "Attachment").
package attachment

import (
	"sync"

	"github.com/etbroker/et/internal/event"
)

// ID is a monotonically numbered attachment identifier.
type ID int32

// Attachment is a reader/writer identity bound to exactly one station for
// its lifetime (spec §3 invariants).
type Attachment struct {
	ID        ID
	StationID int32
	Host      string
	Pid       int32

	mu      sync.Mutex
	usable  bool
	waiting bool
	wakeUp  bool

	holdMu sync.Mutex
	held   map[int32]*event.Event // events currently owned by this attachment
}

// New creates an attachment bound to stationID, usable from the moment it
// is returned.
func New(id ID, stationID int32, host string, pid int32) *Attachment {
	return &Attachment{
		ID:        id,
		StationID: stationID,
		Host:      host,
		Pid:       pid,
		usable:    true,
		held:      make(map[int32]*event.Event),
	}
}

// Usable reports whether the attachment is still bound to a live system
// handle (spec §3 invariant, spec §7 "poisons the client handle").
func (a *Attachment) Usable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usable
}

// Invalidate marks the attachment unusable; further operations against it
// must fail fast rather than touch torn-down state.
func (a *Attachment) Invalidate() {
	a.mu.Lock()
	a.usable = false
	a.mu.Unlock()
}

// SetWaiting records that this attachment is currently parked in an
// EventList.Get call.
func (a *Attachment) SetWaiting(w bool) {
	a.mu.Lock()
	a.waiting = w
	a.mu.Unlock()
}

// IsWaiting reports whether the attachment is currently parked.
func (a *Attachment) IsWaiting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.waiting
}

// RequestWakeUp sets the one-shot wakeup signal (spec §4.1 "wake_up").
// Establish-then-signal: callers must hold whatever lock makes this
// visible to a waiter that is about to park (spec §5 ordering guarantee).
func (a *Attachment) RequestWakeUp() {
	a.mu.Lock()
	a.wakeUp = true
	a.mu.Unlock()
}

// ConsumeWakeUp atomically reads and clears the personal wakeup flag.
func (a *Attachment) ConsumeWakeUp() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := a.wakeUp
	a.wakeUp = false
	return w
}

// Hold records that this attachment now owns ev, for later restore on
// disconnect (spec §4.5, testable property 10).
func (a *Attachment) Hold(ev *event.Event) {
	a.holdMu.Lock()
	a.held[ev.ID] = ev
	a.holdMu.Unlock()
}

// Release removes an event from this attachment's held set, e.g. after it
// has been put back to a station's output list.
func (a *Attachment) Release(id int32) {
	a.holdMu.Lock()
	delete(a.held, id)
	a.holdMu.Unlock()
}

// TakeHeld removes and returns the canonical event this attachment holds
// for id, if any. Callers that received a fresh, wire-decoded copy of the
// same event's header use this to recover the pool's actual event object
// before writing the new field values onto it, preserving identity.
func (a *Attachment) TakeHeld(id int32) (*event.Event, bool) {
	a.holdMu.Lock()
	defer a.holdMu.Unlock()
	ev, ok := a.held[id]
	if ok {
		delete(a.held, id)
	}
	return ev, ok
}

// ReleaseAll clears and returns every event still held by this
// attachment, used when it disconnects (spec §4.5).
func (a *Attachment) ReleaseAll() []*event.Event {
	a.holdMu.Lock()
	defer a.holdMu.Unlock()
	out := make([]*event.Event, 0, len(a.held))
	for _, ev := range a.held {
		out = append(out, ev)
	}
	a.held = make(map[int32]*event.Event)
	return out
}
