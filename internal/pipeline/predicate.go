// Package pipeline implements the conductor: the per-station worker that
// drains a station's output list and routes events into the input lists
// of downstream stations (spec §4.2, §4.3, §4.4).
package pipeline

import (
	"fmt"
	"sync"

	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/station"
)

// Predicate is a pluggable user-mode select function (spec §4.3 "user",
// §9 "Pluggable select predicates"). It receives the event and the
// station's configuration and returns whether the event is accepted.
type Predicate func(ev *event.Event, cfg station.Config) bool

// PredicateRegistry resolves user predicates by name at station-create
// time. A station naming an unregistered predicate must fail
// STATION_CREATE_AT with ErrGeneric (spec §9).
type PredicateRegistry struct {
	mu    sync.RWMutex
	funcs map[string]Predicate
}

// NewPredicateRegistry returns an empty registry.
func NewPredicateRegistry() *PredicateRegistry {
	return &PredicateRegistry{funcs: make(map[string]Predicate)}
}

// Register adds or replaces a named predicate.
func (r *PredicateRegistry) Register(name string, fn Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Resolve looks up a predicate by name.
func (r *PredicateRegistry) Resolve(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// ErrUnknownPredicate is returned by Accepts when a station names a user
// predicate that was never registered.
var ErrUnknownPredicate = fmt.Errorf("pipeline: unknown user predicate")

// matches implements the match-mode acceptance rule (spec §4.3): the
// event's control[i] AND station's select[i] must be nonzero at every
// position where select[i] != 0.
func matches(ev *event.Event, cfg station.Config) bool {
	n := len(cfg.SelectVector)
	if n > len(ev.Control) {
		n = len(ev.Control)
	}
	for i := 0; i < n; i++ {
		if cfg.SelectVector[i] != 0 && (ev.Control[i]&cfg.SelectVector[i]) == 0 {
			return false
		}
	}
	return true
}

// Accepts evaluates a station's own select predicate against ev,
// independent of prescale and of any group-level distribution decision
// (spec §4.3: "individual station's predicate still passes before
// group-level distribution").
func Accepts(st *station.Station, ev *event.Event, registry *PredicateRegistry) (bool, error) {
	switch st.Config.Select {
	case station.SelectAll, station.SelectRRobin, station.SelectEqualCue:
		return true, nil
	case station.SelectMatch:
		return matches(ev, st.Config), nil
	case station.SelectUser:
		fn, ok := registry.Resolve(st.Config.UserPredicate)
		if !ok {
			return false, fmt.Errorf("%w: %q", ErrUnknownPredicate, st.Config.UserPredicate)
		}
		return fn(ev, st.Config), nil
	default:
		return false, fmt.Errorf("pipeline: unknown select mode %v", st.Config.Select)
	}
}
