// Package monitor fans out operational snapshots of the running system to
// any number of attached observers (the websocket monitoring bridge in
// internal/protocol), using a virtual-cell mailbox pattern adapted from
// per-user unicast to broadcast: one actor per observer,
// each with its own bounded mailbox so a slow viewer never slows down
// the broker it is watching.
package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is anything the hub can broadcast to observers.
type Event interface {
	Kind() string
}

// Subscriber is the external API a transport (e.g. a websocket connection)
// uses to drain its mailbox.
type Subscriber interface {
	ID() uuid.UUID
	Recv() <-chan Event
	Close()
}

type subscriber struct {
	id       uuid.UUID
	mailbox  chan Event
	closeCh  chan struct{}
	closeOne sync.Once
}

func (s *subscriber) ID() uuid.UUID      { return s.id }
func (s *subscriber) Recv() <-chan Event { return s.mailbox }

func (s *subscriber) Close() {
	s.closeOne.Do(func() {
		close(s.closeCh)
	})
}

// push drops the event if the mailbox is saturated, rather than block the
// broadcasting caller (spec-neutral: monitoring must never perturb the
// broker's own delivery latency).
func (s *subscriber) push(ev Event) bool {
	select {
	case <-s.closeCh:
		return false
	case s.mailbox <- ev:
		return true
	default:
		return false
	}
}

// Hub tracks every attached observer and broadcasts events to all of them.
type Hub struct {
	subs        sync.Map // uuid.UUID -> *subscriber
	mailboxSize int
	logger      *slog.Logger

	droppedMu sync.Mutex
	dropped   uint64
}

// NewHub returns a Hub whose subscriber mailboxes hold mailboxSize pending
// events before new broadcasts start being dropped for that subscriber.
func NewHub(mailboxSize int, logger *slog.Logger) *Hub {
	if mailboxSize <= 0 {
		mailboxSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{mailboxSize: mailboxSize, logger: logger}
}

// Attach registers a new observer and returns its handle.
func (h *Hub) Attach() Subscriber {
	s := &subscriber{
		id:      uuid.New(),
		mailbox: make(chan Event, h.mailboxSize),
		closeCh: make(chan struct{}),
	}
	h.subs.Store(s.id, s)
	return s
}

// Detach removes an observer. Safe to call more than once.
func (h *Hub) Detach(id uuid.UUID) {
	if v, ok := h.subs.LoadAndDelete(id); ok {
		v.(*subscriber).Close()
	}
}

// Broadcast pushes ev to every attached observer's mailbox, dropping it
// for observers whose mailbox is currently full.
func (h *Hub) Broadcast(ev Event) {
	h.subs.Range(func(_, v any) bool {
		s := v.(*subscriber)
		if !s.push(ev) {
			h.droppedMu.Lock()
			h.dropped++
			h.droppedMu.Unlock()
		}
		return true
	})
}

// Stats reports the current observer count and cumulative drop count.
type Stats struct {
	Observers int
	Dropped   uint64
}

// Snapshot returns the hub's current fan-out stats.
func (h *Hub) Snapshot() Stats {
	n := 0
	h.subs.Range(func(_, _ any) bool { n++; return true })
	h.droppedMu.Lock()
	dropped := h.dropped
	h.droppedMu.Unlock()
	return Stats{Observers: n, Dropped: dropped}
}

// RunPeriodicSnapshot broadcasts the result of snapshot() on every tick
// until stop is closed, for observers that just want a live system-stats
// feed rather than discrete station events.
func RunPeriodicSnapshot(h *Hub, interval time.Duration, stop <-chan struct{}, snapshot func() Event) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.Broadcast(snapshot())
		}
	}
}
