package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/etbroker/et/internal/distribute"
	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/station"
)

// System is the narrow slice of registry.System the conductor needs,
// kept as an interface so pipeline never imports registry (registry's
// restore logic, in turn, depends on pipeline's sibling distribute
// package, not on pipeline itself).
type System interface {
	Ring() [][]*station.Station
	GrandCentral() *station.Station
	Restore(st *station.Station, events []*event.Event) error
}

// Conductor is the per-station worker that drains a station's output
// list and routes events into downstream input lists (spec §4.2).
type Conductor struct {
	st       *station.Station
	sys      System
	registry *PredicateRegistry
	logger   *slog.Logger

	// OnDeliver, when set, is notified with the number of events routed
	// back into GRAND_CENTRAL's input, for every batch that routes at
	// least one event there (used by the
	// watermill recirculation fan-out, SPEC_FULL.md domain-stack).
	OnDeliver func(toGrandCentral int)

	breakersMu sync.Mutex
	breakers   map[station.ID]*gobreaker.CircuitBreaker
}

// NewConductor returns a conductor draining st's output list.
func NewConductor(st *station.Station, sys System, registry *PredicateRegistry, logger *slog.Logger) *Conductor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conductor{
		st:       st,
		sys:      sys,
		registry: registry,
		logger:   logger.With(slog.String("station", st.Name), slog.Int("station_id", int(st.ID))),
		breakers: make(map[station.ID]*gobreaker.CircuitBreaker),
	}
}

// Run drains the station's output list forever, until stop is closed
// (spec §4.2, §5 "Suspension points").
func (c *Conductor) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		c.st.Output.WaitNonEmpty(stop)
		select {
		case <-stop:
			return
		default:
		}
		batch := c.st.Output.DrainAll()
		if len(batch) == 0 {
			continue
		}
		c.route(batch)
	}
}

// route implements §4.2 steps 3-7: events arrive already highs-first
// (DrainAll preserves the source list's invariant); for each event, walk
// the ring forward from this station's slot, evaluate each downstream
// slot's predicate (and, for parallel groups, its distribution policy),
// and deliver to the first slot that accepts. If the whole ring is
// exhausted without acceptance, the event is delivered to GRAND_CENTRAL's
// input so it never vanishes silently.
func (c *Conductor) route(batch []*event.Event) {
	ring := c.sys.Ring()
	myIdx := -1
	for i, slot := range ring {
		for _, m := range slot {
			if m.ID == c.st.ID {
				myIdx = i
			}
		}
	}

	buckets := make(map[station.ID][]*event.Event)
	order := make([]station.ID, 0)
	byID := make(map[station.ID]*station.Station)
	toGC := 0

	for _, ev := range batch {
		target := c.selectTarget(ring, myIdx, ev)
		if target == nil {
			target = c.sys.GrandCentral()
			toGC++
		}
		if _, ok := buckets[target.ID]; !ok {
			order = append(order, target.ID)
			byID[target.ID] = target
		}
		buckets[target.ID] = append(buckets[target.ID], ev)
	}

	for _, id := range order {
		c.deliver(byID[id], buckets[id])
	}

	if c.OnDeliver != nil && toGC > 0 {
		c.OnDeliver(toGC)
	}
}

// selectTarget walks the ring starting right after myIdx, wrapping
// around, and returns the first accepting station (or group member). nil
// means nothing in the ring accepted it.
func (c *Conductor) selectTarget(ring [][]*station.Station, myIdx int, ev *event.Event) *station.Station {
	if len(ring) == 0 {
		return nil
	}
	for step := 1; step <= len(ring); step++ {
		idx := (myIdx + step) % len(ring)
		slot := ring[idx]
		if len(slot) == 0 {
			continue
		}
		if len(slot) == 1 && !slot[0].IsInGroup() {
			st := slot[0]
			if st.PassesPrescale() {
				if ok, err := Accepts(st, ev, c.registry); err == nil && ok {
					return st
				}
			}
			continue
		}

		head := c.groupHead(slot)
		if !head.PassesPrescale() {
			continue
		}
		ok, err := Accepts(head, ev, c.registry)
		if err != nil || !ok {
			continue
		}
		target := distribute.Pick(head, slot, ev, nil)
		if target != nil {
			return target
		}
	}
	return nil
}

func (c *Conductor) groupHead(members []*station.Station) *station.Station {
	for _, m := range members {
		if m.ID == m.GroupHeadID {
			return m
		}
	}
	return members[0]
}

// deliver pushes events into target's input list, honoring its cue and
// block mode (spec §4.3 "Blocking mode"). A per-target circuit breaker
// trips after repeated overflow; while it rejects calls, whole batches go
// straight to the restore path without probing the target's queue
// (SPEC_FULL.md domain-stack entry for sony/gobreaker).
func (c *Conductor) deliver(target *station.Station, events []*event.Event) {
	if target.Config.Block == station.BlockBlocking {
		target.Input.PutAll(events)
		return
	}

	breaker := c.breakerFor(target)
	cue := int(target.Config.Cue)
	accept := make([]*event.Event, 0, len(events))
	overflow := make([]*event.Event, 0)

	ran := false
	_, _ = breaker.Execute(func() (any, error) {
		ran = true
		queued := target.Input.Len()
		for _, ev := range events {
			if queued+len(accept) >= cue {
				overflow = append(overflow, ev)
				continue
			}
			accept = append(accept, ev)
		}
		if len(overflow) > 0 {
			return nil, gobreaker.ErrTooManyRequests
		}
		return nil, nil
	})
	if !ran {
		overflow = events
	}

	if len(accept) > 0 {
		target.Input.PutAll(accept)
	}
	if len(overflow) > 0 {
		if err := c.sys.Restore(target, overflow); err != nil {
			c.logger.Error("restore failed on non-blocking overflow",
				slog.String("target", target.Name), slog.Any("err", err))
		}
	}
}

func (c *Conductor) breakerFor(target *station.Station) *gobreaker.CircuitBreaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()
	b, ok := c.breakers[target.ID]
	if !ok {
		b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        target.Name,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     500 * time.Millisecond,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
		c.breakers[target.ID] = b
	}
	return b
}
