// Package station models a named node in the ET pipeline graph: its
// configuration, predicate selection knobs, its input/output lists and
// attached readers/writers (spec §3 "Station", §4.4).
package station

import (
	"sync"
	"sync/atomic"

	"github.com/etbroker/et/internal/attachment"
	"github.com/etbroker/et/internal/eventlist"
)

// ID identifies a station; 0 is always GRAND_CENTRAL.
type ID int32

const (
	GrandCentralID   ID     = 0
	GrandCentralName string = "GRAND_CENTRAL"
)

// FlowMode controls whether a station is wired serially or as a parallel
// group member (spec §3).
type FlowMode uint8

const (
	FlowSerial FlowMode = iota
	FlowParallel
)

// BlockMode controls back-pressure behavior when a station's input list
// reaches its cue limit (spec §4.3).
type BlockMode uint8

const (
	BlockBlocking BlockMode = iota
	BlockNonBlocking
)

// SelectMode is the station's acceptance/distribution predicate family
// (spec §4.3, §4.4).
type SelectMode uint8

const (
	SelectAll SelectMode = iota
	SelectMatch
	SelectRRobin
	SelectEqualCue
	SelectUser
)

// RestoreMode decides where an attachment's outstanding events (or a
// non-blocking station's overflow) are re-homed (spec §4.5).
type RestoreMode uint8

const (
	RestoreToStation RestoreMode = iota
	RestoreToInput
	RestoreToGrandCentral
	RestoreRedistribute
)

// Config is a station's immutable-once-created configuration (spec §3).
type Config struct {
	Flow    FlowMode
	Block   BlockMode
	Select  SelectMode
	Restore RestoreMode

	Prescale int32 // >= 1
	Cue      int32 // advisory input-list length limit, clamped to pool size

	SelectVector []int32 // same length as event control vector

	UserPredicate string // name resolved against pipeline.PredicateRegistry
	FuncLib       string // native-host-only, carried opaquely
	FuncClass     string // native-host-only, carried opaquely
}

// Equal reports whether two configs are identical for the purposes of
// create_station idempotency (spec §4.6).
func (c Config) Equal(o Config) bool {
	if c.Flow != o.Flow || c.Block != o.Block || c.Select != o.Select || c.Restore != o.Restore {
		return false
	}
	if c.Prescale != o.Prescale || c.Cue != o.Cue {
		return false
	}
	if c.UserPredicate != o.UserPredicate || c.FuncLib != o.FuncLib || c.FuncClass != o.FuncClass {
		return false
	}
	if len(c.SelectVector) != len(o.SelectVector) {
		return false
	}
	for i := range c.SelectVector {
		if c.SelectVector[i] != o.SelectVector[i] {
			return false
		}
	}
	return true
}

// Station is a named node owning one input list, one output list, a set
// of attachments, and optionally membership in a parallel group.
type Station struct {
	ID     ID
	Name   string
	Config Config

	Input  *eventlist.EventList
	Output *eventlist.EventList

	mu          sync.RWMutex
	attachments map[attachment.ID]struct{}

	// Position is this station's slot in the ring: 0 is GRAND_CENTRAL,
	// 1..N-1 otherwise (spec §3).
	Position int32

	// ParallelPosition is this station's slot within its parallel group,
	// or -1 if the station is not a parallel-group member.
	ParallelPosition int32

	// GroupHeadID is this station's own id if it heads a parallel group,
	// or the head's id if it is a non-head member, or NoGroup (-1, see
	// IsInGroup) if it is not grouped at all.
	GroupHeadID ID

	// rrobinCursor is only meaningful on a group head using SelectRRobin.
	rrobinCursor int32

	// prescaleTry counts every event evaluated against this station's
	// predicate, regardless of acceptance (spec §4.3).
	prescaleTry uint64
}

// NoGroup marks a station as not belonging to any parallel group. It is
// distinct from GrandCentralID (0), which is itself a valid station id.
const NoGroup ID = -1

// New constructs a station with fresh, empty lists.
func New(id ID, name string, cfg Config, position int32) *Station {
	return &Station{
		ID:               id,
		Name:             name,
		Config:           cfg,
		Input:            eventlist.New(),
		Output:           eventlist.New(),
		attachments:      make(map[attachment.ID]struct{}),
		Position:         position,
		ParallelPosition: -1,
		GroupHeadID:      NoGroup,
	}
}

// IsInGroup reports whether the station belongs to a parallel group.
func (s *Station) IsInGroup() bool { return s.GroupHeadID != NoGroup }

// IsGroupHead reports whether the station is the head of its own group.
func (s *Station) IsGroupHead() bool { return s.IsInGroup() && s.GroupHeadID == s.ID }

// AttachmentCount returns the number of attachments currently bound.
func (s *Station) AttachmentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attachments)
}

// AddAttachment registers an attachment id as bound to this station.
func (s *Station) AddAttachment(id attachment.ID) {
	s.mu.Lock()
	s.attachments[id] = struct{}{}
	s.mu.Unlock()
}

// RemoveAttachment unregisters an attachment id.
func (s *Station) RemoveAttachment(id attachment.ID) {
	s.mu.Lock()
	delete(s.attachments, id)
	s.mu.Unlock()
}

// HasAttachment reports whether id is currently bound to this station.
func (s *Station) HasAttachment(id attachment.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.attachments[id]
	return ok
}

// PassesPrescale increments the station's try counter and reports
// whether this try passes the configured decimation factor: it accepts
// exactly one of every Prescale tries (spec §4.3). All events increment
// the counter regardless of acceptance.
func (s *Station) PassesPrescale() bool {
	n := atomic.AddUint64(&s.prescaleTry, 1) - 1
	p := s.Config.Prescale
	if p < 1 {
		p = 1
	}
	return n%uint64(p) == 0
}

// NextRRobin advances and returns the round-robin cursor. Only meaningful
// when called on a group head (spec §4.4).
func (s *Station) NextRRobin(numMembers int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := int(s.rrobinCursor) % numMembers
	s.rrobinCursor++
	return v
}
