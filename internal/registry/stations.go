package registry

import (
	"fmt"
	"sort"

	"github.com/etbroker/et/internal/station"
	"github.com/etbroker/et/internal/status"
)

// CreateStation validates and creates (or idempotently returns) a station
// at the requested ring position and, for parallel-group members, the
// requested slot within that group's parallel position (spec §4.6).
//
// Position addresses a ring *slot*: a slot holds either one serial
// station or a whole parallel group. ParallelPositionNewHead creates a
// brand new slot headed by the new station; any other parallel position
// joins the group already occupying the slot named by position.
func (s *System) CreateStation(name string, cfg station.Config, position, parallelPosition int32) (*station.Station, error) {
	if name == station.GrandCentralName {
		return nil, fmt.Errorf("%w: station name GRAND_CENTRAL is reserved", status.ErrGeneric)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Prescale < 1 {
		cfg.Prescale = 1
	}
	if cfg.Cue <= 0 || int(cfg.Cue) > s.pool.NumEvents() {
		cfg.Cue = int32(s.pool.NumEvents())
	}

	if existingID, ok := s.byName[name]; ok {
		existing := s.byID[existingID]
		if existing.Config.Equal(cfg) {
			return existing, nil
		}
		return nil, status.ErrExists
	}

	if len(s.stations) >= s.limits.MaxStations+1 { // +1 accounts for GRAND_CENTRAL
		return nil, status.ErrTooMany
	}

	if cfg.Flow == station.FlowParallel {
		if err := station.ValidateParallelConfig(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", status.ErrGeneric, err)
		}
	}

	slots := s.ringSlotPositions()
	numSlots := int32(len(slots))

	joiningGroup := cfg.Flow == station.FlowParallel && parallelPosition != ParallelPositionNewHead

	var targetPos int32
	id := station.ID(s.nextStationID)

	if joiningGroup {
		// position must name an existing slot occupied by a parallel group.
		if position < 1 || position > slots[len(slots)-1] {
			return nil, fmt.Errorf("%w: position %d does not address an existing parallel slot", status.ErrGeneric, position)
		}
		targetPos = position
		members := s.slotStations(targetPos)
		if len(members) == 0 || !members[0].IsInGroup() {
			return nil, fmt.Errorf("%w: no parallel group at position %d", status.ErrGeneric, position)
		}
		head := s.groupHeadLocked(members)
		if err := station.CompatibleWithHead(head.Config, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", status.ErrGeneric, err)
		}

		st := station.New(id, name, cfg, targetPos)
		st.GroupHeadID = head.ID

		insertAt := parallelPosition
		if insertAt == ParallelPositionEnd || insertAt < 0 || int(insertAt) > len(members) {
			insertAt = int32(len(members))
		}
		for _, m := range members {
			if m.ParallelPosition >= insertAt {
				m.ParallelPosition++
			}
		}
		st.ParallelPosition = insertAt

		s.stations = append(s.stations, st)
		s.finishCreate(name, id, st)
		return st, nil
	}

	// New ring slot: either a serial station or a brand new group head.
	pos := position
	if pos == PositionEnd {
		pos = numSlots + 1
	}
	if pos < 1 || pos > numSlots+1 {
		return nil, fmt.Errorf("%w: position %d out of range", status.ErrGeneric, position)
	}
	for _, st := range s.stations {
		if st.Position >= pos {
			st.Position++
		}
	}
	targetPos = pos

	st := station.New(id, name, cfg, targetPos)
	if cfg.Flow == station.FlowParallel {
		st.GroupHeadID = st.ID
		st.ParallelPosition = 0
	}
	s.stations = append(s.stations, st)
	s.finishCreate(name, id, st)
	return st, nil
}

func (s *System) finishCreate(name string, id station.ID, st *station.Station) {
	s.byName[name] = id
	s.byID[id] = st
	s.nextStationID++
	s.nameCache.Add(name, id)
}

// groupHeadLocked returns the head of a set of group members. Caller
// holds s.mu.
func (s *System) groupHeadLocked(members []*station.Station) *station.Station {
	for _, m := range members {
		if m.ID == m.GroupHeadID {
			return m
		}
	}
	return members[0]
}

// ringSlotPositions returns the sorted, de-duplicated set of occupied
// ring positions. Caller holds s.mu (read or write).
func (s *System) ringSlotPositions() []int32 {
	seen := make(map[int32]bool)
	var out []int32
	for _, st := range s.stations {
		if !seen[st.Position] {
			seen[st.Position] = true
			out = append(out, st.Position)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RemoveStation removes a station with zero attachments (spec §4.6).
// GRAND_CENTRAL can never be removed.
func (s *System) RemoveStation(id station.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == station.GrandCentralID {
		return fmt.Errorf("%w: cannot remove GRAND_CENTRAL", status.ErrGeneric)
	}
	st, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: no such station", status.ErrGeneric)
	}
	if st.AttachmentCount() > 0 {
		return fmt.Errorf("%w: station has attachments", status.ErrBusy)
	}

	remaining := s.stations[:0]
	for _, other := range s.stations {
		if other.ID != id {
			remaining = append(remaining, other)
		}
	}
	s.stations = remaining
	delete(s.byID, id)
	delete(s.byName, st.Name)
	s.nameCache.Remove(st.Name)

	// If group members remain in the slot, renumber their parallel
	// positions; if the head was removed, the first remaining member
	// becomes head of its own group.
	siblings := s.slotStations(st.Position)
	if len(siblings) > 0 && st.IsInGroup() {
		if st.ID == st.GroupHeadID && len(siblings) > 0 {
			siblings[0].GroupHeadID = siblings[0].ID
		}
		for i, m := range siblings {
			m.ParallelPosition = int32(i)
		}
	}
	return nil
}

// SetStationPosition moves a station within the ring. Forbidden for
// GRAND_CENTRAL (spec §4.6).
func (s *System) SetStationPosition(id station.ID, position, parallelPosition int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == station.GrandCentralID {
		return fmt.Errorf("%w: cannot move GRAND_CENTRAL", status.ErrGeneric)
	}
	st, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: no such station", status.ErrGeneric)
	}

	if st.IsInGroup() {
		members := s.slotStations(st.Position)
		insertAt := parallelPosition
		if insertAt == ParallelPositionEnd || insertAt < 0 {
			insertAt = int32(len(members) - 1)
		}
		st.ParallelPosition = insertAt
		return nil
	}

	slots := s.ringSlotPositions()
	numSlots := int32(len(slots))
	pos := position
	if pos == PositionEnd {
		pos = numSlots
	}
	if pos < 1 || pos > numSlots {
		return fmt.Errorf("%w: position %d out of range", status.ErrGeneric, position)
	}
	st.Position = pos
	return nil
}

// GetStationPosition returns a station's current ring and parallel
// position.
func (s *System) GetStationPosition(id station.ID) (position, parallelPosition int32, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byID[id]
	if !ok {
		return 0, 0, fmt.Errorf("%w: no such station", status.ErrGeneric)
	}
	return st.Position, st.ParallelPosition, nil
}

// Ring returns the ordered sequence of ring slots, each a non-empty,
// parallel-position-sorted group of stations sharing one ring position,
// starting at GRAND_CENTRAL (spec §4.2 "traverse the station ring").
func (s *System) Ring() [][]*station.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slots := s.ringSlotPositions()
	out := make([][]*station.Station, 0, len(slots))
	for _, pos := range slots {
		out = append(out, s.slotStations(pos))
	}
	return out
}
