package event

import "fmt"

// Pool is the narrow interface the engine needs from the shared event
// buffer (spec §1, §9 "Shared state"). The real implementation maps a
// single contiguous region indexed by event id and is out of scope here;
// MemPool below is a plain heap-backed stand-in used for tests and for
// hosts that do not require the memory-mapped fast path.
type Pool interface {
	// NumEvents is the fixed total event count configured at creation.
	NumEvents() int
	// Capacity is the fixed per-event payload capacity in bytes.
	Capacity() int
	// ControlLen is the fixed length of every event's control vector.
	ControlLen() int
	// NumGroups is the number of disjoint groups events are partitioned into.
	NumGroups() int
	// Event returns the event at the given id. Ids are 0..NumEvents-1.
	Event(id int32) (*Event, error)
	// All returns every event in the pool, in id order. Used once, at
	// system bootstrap, to seed GRAND_CENTRAL's input list.
	All() []*Event
}

type memPool struct {
	events     []*Event
	capacity   int
	controlLen int
	numGroups  int
}

// NewMemPool allocates numEvents fixed-capacity events, partitioning them
// round-robin across numGroups disjoint, permanent groups (spec §3
// "group... partitioned into disjoint groups at pool creation and remain
// in their group forever").
func NewMemPool(numEvents, capacity, controlLen, numGroups int) (Pool, error) {
	if numEvents <= 0 {
		return nil, fmt.Errorf("event: pool size must be positive, got %d", numEvents)
	}
	if numGroups <= 0 {
		numGroups = 1
	}
	p := &memPool{
		events:     make([]*Event, numEvents),
		capacity:   capacity,
		controlLen: controlLen,
		numGroups:  numGroups,
	}
	for i := range p.events {
		p.events[i] = &Event{
			ID:       int32(i),
			Data:     make([]byte, capacity),
			Capacity: capacity,
			Control:  make([]int32, controlLen),
			Group:    int32(i%numGroups) + 1, // groups are positive integers (spec §3)
			Owner:    SystemOwner,
		}
	}
	return p, nil
}

func (p *memPool) NumEvents() int  { return len(p.events) }
func (p *memPool) Capacity() int   { return p.capacity }
func (p *memPool) ControlLen() int { return p.controlLen }
func (p *memPool) NumGroups() int  { return p.numGroups }

func (p *memPool) Event(id int32) (*Event, error) {
	if id < 0 || int(id) >= len(p.events) {
		return nil, fmt.Errorf("event: id %d out of range", id)
	}
	return p.events[id], nil
}

func (p *memPool) All() []*Event {
	out := make([]*Event, len(p.events))
	copy(out, p.events)
	return out
}
