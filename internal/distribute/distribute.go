// Package distribute implements the parallel-group member-selection
// policies (spec §4.4): once a group's head predicate accepts an event,
// exactly one member is chosen to receive it.
package distribute

import (
	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/station"
)

// UserPicker is the functional-signature a user-mode group distribution
// predicate must satisfy: given the event and the ordered group members,
// it returns the index of the member(s) that accept it (spec §4.4 "the
// user predicate returns which member(s) accept the event"). Only the
// first returned index is used, preserving the single-owner invariant
// (spec §3).
type UserPicker func(ev *event.Event, members []*station.Station) []int

// Pick selects exactly one member of a parallel group to receive ev,
// according to the group head's select mode. It returns nil when members
// is empty or when the user picker returns no valid member index.
func Pick(head *station.Station, members []*station.Station, ev *event.Event, user UserPicker) *station.Station {
	if len(members) == 0 {
		return nil
	}
	switch head.Config.Select {
	case station.SelectRRobin:
		return members[head.NextRRobin(len(members))]
	case station.SelectEqualCue:
		return pickSmallest(members)
	case station.SelectUser:
		if user == nil {
			return pickSmallest(members)
		}
		idx := user(ev, members)
		if len(idx) == 0 || idx[0] < 0 || idx[0] >= len(members) {
			return nil
		}
		return members[idx[0]]
	default:
		return members[0]
	}
}

// pickSmallest returns the member whose input list currently has the
// fewest queued events, ties broken by lowest parallel position (spec
// §4.4 "equal_cue").
func pickSmallest(members []*station.Station) *station.Station {
	best := members[0]
	bestLen := best.Input.Len()
	for _, m := range members[1:] {
		l := m.Input.Len()
		if l < bestLen || (l == bestLen && m.ParallelPosition < best.ParallelPosition) {
			best = m
			bestLen = l
		}
	}
	return best
}
