package registry

import (
	"fmt"

	"github.com/etbroker/et/internal/distribute"
	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/station"
	"github.com/etbroker/et/internal/status"
)

// Restore re-homes events according to st's restore mode (spec §4.5):
// when an attachment disconnects while holding events, or a
// non-blocking station overflows. It preserves priority ordering and
// never increments eventsIn a second time for the same event (PutReverse
// is the underlying primitive for that reason).
func (s *System) Restore(st *station.Station, events []*event.Event) error {
	if len(events) == 0 {
		return nil
	}
	switch st.Config.Restore {
	case station.RestoreToStation:
		st.Input.PutReverse(events)
		return nil

	case station.RestoreToGrandCentral:
		gc := s.GrandCentral()
		gc.Input.PutReverse(events)
		return nil

	case station.RestoreToInput:
		prev := s.previousSlotHead(st)
		if prev == nil {
			return fmt.Errorf("%w: no upstream station to restore to", status.ErrGeneric)
		}
		prev.Output.PutReverse(events)
		return nil

	case station.RestoreRedistribute:
		members := s.GroupMembers(st)
		if len(members) <= 1 {
			st.Input.PutReverse(events)
			return nil
		}
		head := s.groupHeadOf(members)
		for _, ev := range events {
			target := distribute.Pick(head, members, ev, nil)
			if target == nil {
				target = st
			}
			target.Input.PutReverse([]*event.Event{ev})
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown restore mode", status.ErrGeneric)
	}
}

func (s *System) groupHeadOf(members []*station.Station) *station.Station {
	for _, m := range members {
		if m.ID == m.GroupHeadID {
			return m
		}
	}
	return members[0]
}

// previousSlotHead returns the head station of the ring slot immediately
// preceding st's slot, or GRAND_CENTRAL if st is the first non-root slot.
func (s *System) previousSlotHead(st *station.Station) *station.Station {
	ring := s.Ring()
	for i, slot := range ring {
		for _, m := range slot {
			if m.ID == st.ID {
				if i == 0 {
					return nil
				}
				prevSlot := ring[i-1]
				return s.groupHeadOf(prevSlot)
			}
		}
	}
	return nil
}
