// Package registry implements the System: the registry of stations and
// attachments, GRAND_CENTRAL bootstrap, lifecycle, and free-pool seeding
// (spec §4.6).
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/etbroker/et/internal/attachment"
	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/station"
	"github.com/etbroker/et/internal/status"
)

// Position/parallel-position sentinels from the wire protocol (spec §6.1).
const (
	PositionEnd             int32 = -1
	ParallelPositionEnd     int32 = -1
	ParallelPositionNewHead int32 = -2
)

// Limits bounds the registry's station and attachment counts (spec §4.6).
type Limits struct {
	MaxStations    int
	MaxAttachments int
}

// System is the single source of truth for the station ring and the
// attachment table. Structural mutation (create/remove/move/attach/detach)
// is mutually exclusive with itself; conductors take the read lock to walk
// the ring (spec §4.6, §5).
type System struct {
	mu sync.RWMutex

	pool   event.Pool
	limits Limits

	startedAt time.Time
	alive     bool

	stations []*station.Station // flat set, order not semantically meaningful; use Ring() for traversal
	byName   map[string]station.ID
	byID     map[station.ID]*station.Station

	attachments      map[attachment.ID]*attachment.Attachment
	nextStationID    int32
	nextAttachmentID int32

	nameCache *lru.Cache[string, station.ID]
}

// New bootstraps the system: creates GRAND_CENTRAL at position 0 and
// seeds its input list with every event in the pool (spec §3 "Lifecycles").
func New(pool event.Pool, limits Limits) (*System, error) {
	if limits.MaxStations <= 0 {
		limits.MaxStations = 1024
	}
	if limits.MaxAttachments <= 0 {
		limits.MaxAttachments = 4096
	}
	cache, err := lru.New[string, station.ID](256)
	if err != nil {
		return nil, fmt.Errorf("registry: creating name cache: %w", err)
	}

	s := &System{
		pool:        pool,
		limits:      limits,
		startedAt:   time.Now(),
		alive:       true,
		byName:      make(map[string]station.ID),
		byID:        make(map[station.ID]*station.Station),
		attachments: make(map[attachment.ID]*attachment.Attachment),
		nameCache:   cache,
		nextStationID: 1,
	}

	gcCfg := station.Config{
		Flow:     station.FlowSerial,
		Block:    station.BlockBlocking,
		Select:   station.SelectAll,
		Restore:  station.RestoreToStation,
		Prescale: 1,
		Cue:      int32(pool.NumEvents()),
	}
	gc := station.New(station.GrandCentralID, station.GrandCentralName, gcCfg, 0)
	s.stations = append(s.stations, gc)
	s.byName[station.GrandCentralName] = gc.ID
	s.byID[gc.ID] = gc
	s.nameCache.Add(station.GrandCentralName, gc.ID)

	gc.Input.PutLow(pool.All())

	return s, nil
}

// GrandCentral returns the mandatory root station.
func (s *System) GrandCentral() *station.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[station.GrandCentralID]
}

// Pool returns the event pool backing this system.
func (s *System) Pool() event.Pool { return s.pool }

// Alive reports whether the system has been explicitly closed.
func (s *System) Alive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alive
}

// Close terminates the system; attachments are invalidated (spec §3
// "Lifecycles").
func (s *System) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive = false
	for _, a := range s.attachments {
		a.Invalidate()
	}
}

// StationByID looks up a station by id under the read lock.
func (s *System) StationByID(id station.ID) (*station.Station, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byID[id]
	return st, ok
}

// StationByName resolves a station name to an id, consulting the LRU
// cache before falling back to the registry map (spec "STATION_EXISTS"
// hot path, SPEC_FULL.md domain-stack entry for golang-lru).
func (s *System) StationByName(name string) (station.ID, bool) {
	if id, ok := s.nameCache.Get(name); ok {
		s.mu.RLock()
		_, stillThere := s.byID[id]
		s.mu.RUnlock()
		if stillThere {
			return id, true
		}
		s.nameCache.Remove(name)
	}
	s.mu.RLock()
	id, ok := s.byName[name]
	s.mu.RUnlock()
	if ok {
		s.nameCache.Add(name, id)
	}
	return id, ok
}

// Attachment looks up an attachment by id.
func (s *System) Attachment(id attachment.ID) (*attachment.Attachment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attachments[id]
	return a, ok
}

// slotStations returns every station occupying ring position pos, sorted
// by parallel position (a single-element result for non-grouped stations).
func (s *System) slotStations(pos int32) []*station.Station {
	var out []*station.Station
	for _, st := range s.stations {
		if st.Position == pos {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParallelPosition < out[j].ParallelPosition })
	return out
}

// GroupMembers returns the ordered member list of st's parallel group
// (head first), or a single-element slice if st is not grouped.
func (s *System) GroupMembers(st *station.Station) []*station.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !st.IsInGroup() {
		return []*station.Station{st}
	}
	return s.slotStations(st.Position)
}

// Attach admits a new attachment bound to stationID (spec §4.6).
func (s *System) Attach(stationID station.ID, host string, pid int32) (*attachment.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byID[stationID]
	if !ok {
		return nil, fmt.Errorf("%w: no such station", status.ErrGeneric)
	}
	if len(s.attachments) >= s.limits.MaxAttachments {
		return nil, status.ErrTooMany
	}

	id := attachment.ID(s.nextAttachmentID + 1)
	s.nextAttachmentID++
	a := attachment.New(id, int32(stationID), host, pid)
	s.attachments[id] = a
	st.AddAttachment(id)
	return a, nil
}

// Detach removes an attachment, restoring any events it still held back
// into its station according to the station's restore mode (spec §4.5,
// §8 property 10).
func (s *System) Detach(id attachment.ID) error {
	s.mu.Lock()
	a, ok := s.attachments[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: no such attachment", status.ErrGeneric)
	}
	st := s.byID[station.ID(a.StationID)]
	delete(s.attachments, id)
	s.mu.Unlock()

	a.Invalidate()
	if st != nil {
		st.RemoveAttachment(id)
	}

	held := a.ReleaseAll()
	if len(held) == 0 || st == nil {
		return nil
	}
	return s.Restore(st, held)
}

// IsAttached reports whether attachment id is currently bound to station
// stationID.
func (s *System) IsAttached(stationID station.ID, id attachment.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byID[stationID]
	if !ok {
		return false
	}
	return st.HasAttachment(id)
}
