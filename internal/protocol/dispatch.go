// Package protocol implements the wire-protocol server and the local
// fast path (spec §4.7, §6). Dispatcher holds the one set of core
// operations both paths call; the only difference between them is
// whether arguments and results cross a socket (spec §6.2).
package protocol

import (
	"fmt"
	"time"

	"github.com/etbroker/et/internal/attachment"
	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/eventlist"
	"github.com/etbroker/et/internal/pipeline"
	"github.com/etbroker/et/internal/registry"
	"github.com/etbroker/et/internal/station"
	"github.com/etbroker/et/internal/status"
)

// Dispatcher is the command core shared by the TCP server and the local
// fast-path client.
type Dispatcher struct {
	sys        *registry.System
	predicates *pipeline.PredicateRegistry

	// OnStationCreated/OnStationRemoved/OnAttach/OnDetach, when set, feed
	// the monitoring fan-out (internal/monitor); nil is a valid no-op.
	OnStationCreated func(*station.Station)
	OnStationRemoved func(station.ID, string)
	OnAttach         func(*attachment.Attachment, station.ID)
	OnDetach         func(attachment.ID, station.ID)
}

// NewDispatcher binds a dispatcher to a system and its user-predicate
// registry.
func NewDispatcher(sys *registry.System, predicates *pipeline.PredicateRegistry) *Dispatcher {
	return &Dispatcher{sys: sys, predicates: predicates}
}

// Alive reports whether the backing system is still running.
func (d *Dispatcher) Alive() bool { return d.sys.Alive() }

// WakeAtt wakes a single attachment's blocked get/get_by_group call.
func (d *Dispatcher) WakeAtt(attID attachment.ID) error {
	att, ok := d.sys.Attachment(attID)
	if !ok {
		return fmt.Errorf("%w: no such attachment", status.ErrGeneric)
	}
	st, ok := d.sys.StationByID(station.ID(att.StationID))
	if !ok {
		return fmt.Errorf("%w: attachment's station is gone", status.ErrGeneric)
	}
	st.Input.WakeUp(att)
	return nil
}

// WakeAll wakes every attachment blocked on a station's input list.
func (d *Dispatcher) WakeAll(stationID station.ID) error {
	st, ok := d.sys.StationByID(stationID)
	if !ok {
		return fmt.Errorf("%w: no such station", status.ErrGeneric)
	}
	st.Input.WakeUpAll()
	return nil
}

// StationCreateAt creates (or idempotently returns) a station. A
// select-mode of user whose predicate name cannot be resolved against
// this host's registry fails the whole call (spec §9): this is the one
// check that belongs here rather than in the registry, since only the
// dispatcher holds both the registry and the predicate registry.
func (d *Dispatcher) StationCreateAt(name string, cfg station.Config, position, parallelPosition int32) (*station.Station, error) {
	if cfg.Select == station.SelectUser {
		if _, ok := d.predicates.Resolve(cfg.UserPredicate); !ok {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrUnknownPredicate, cfg.UserPredicate)
		}
	}
	st, err := d.sys.CreateStation(name, cfg, position, parallelPosition)
	if err != nil {
		return nil, err
	}
	if d.OnStationCreated != nil {
		d.OnStationCreated(st)
	}
	return st, nil
}

// StationRemove removes a station.
func (d *Dispatcher) StationRemove(id station.ID) error {
	st, _ := d.sys.StationByID(id)
	if err := d.sys.RemoveStation(id); err != nil {
		return err
	}
	if d.OnStationRemoved != nil && st != nil {
		d.OnStationRemoved(id, st.Name)
	}
	return nil
}

// StationSetPos moves a station within the ring.
func (d *Dispatcher) StationSetPos(id station.ID, position, parallelPosition int32) error {
	return d.sys.SetStationPosition(id, position, parallelPosition)
}

// StationGetPos returns a station's ring coordinates.
func (d *Dispatcher) StationGetPos(id station.ID) (position, parallelPosition int32, err error) {
	return d.sys.GetStationPosition(id)
}

// StationExists resolves a station name to an id.
func (d *Dispatcher) StationExists(name string) (station.ID, bool) {
	return d.sys.StationByName(name)
}

// StationAttach admits a new attachment bound to stationID.
func (d *Dispatcher) StationAttach(stationID station.ID, host string, pid int32) (*attachment.Attachment, error) {
	att, err := d.sys.Attach(stationID, host, pid)
	if err != nil {
		return nil, err
	}
	if d.OnAttach != nil {
		d.OnAttach(att, stationID)
	}
	return att, nil
}

// StationDetach releases an attachment, restoring any events it still
// held (spec §4.5).
func (d *Dispatcher) StationDetach(attID attachment.ID) error {
	att, ok := d.sys.Attachment(attID)
	if !ok {
		return fmt.Errorf("%w: no such attachment", status.ErrGeneric)
	}
	stationID := station.ID(att.StationID)
	if err := d.sys.Detach(attID); err != nil {
		return err
	}
	if d.OnDetach != nil {
		d.OnDetach(attID, stationID)
	}
	return nil
}

// StationIsAttached reports whether attID is currently bound to stationID.
func (d *Dispatcher) StationIsAttached(stationID station.ID, attID attachment.ID) bool {
	return d.sys.IsAttached(stationID, attID)
}

// attachmentStation resolves an attachment to its bound station, failing
// if either no longer exists.
func (d *Dispatcher) attachmentStation(attID attachment.ID) (*attachment.Attachment, *station.Station, error) {
	att, ok := d.sys.Attachment(attID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no such attachment", status.ErrGeneric)
	}
	if !att.Usable() {
		return nil, nil, status.ErrDead
	}
	st, ok := d.sys.StationByID(station.ID(att.StationID))
	if !ok {
		return nil, nil, fmt.Errorf("%w: attachment's station is gone", status.ErrGeneric)
	}
	return att, st, nil
}

// EvsNewGrp acquires up to count events of the given group from the
// attachment's bound station's input list (wire command EVS_NEW_GRP).
// Acquired events are tracked as held by the attachment until put back
// via EvsPut or released via EvsDump (spec §4.5 testable property 10).
func (d *Dispatcher) EvsNewGrp(attID attachment.ID, mode eventlist.Mode, timeout time.Duration, count int, group int32) ([]*event.Event, error) {
	att, st, err := d.attachmentStation(attID)
	if err != nil {
		return nil, err
	}
	var evs []*event.Event
	if group > 0 {
		evs, err = st.Input.GetByGroup(att, mode, timeout, count, group)
	} else {
		evs, err = st.Input.Get(att, mode, timeout, count)
	}
	if err != nil {
		return nil, err
	}
	for _, ev := range evs {
		att.Hold(ev)
	}
	return evs, nil
}

// EvsGet acquires up to count events from the attachment's bound
// station's input list, irrespective of group (wire command EVS_GET).
func (d *Dispatcher) EvsGet(attID attachment.ID, mode eventlist.Mode, timeout time.Duration, count int) ([]*event.Event, error) {
	return d.EvsNewGrp(attID, mode, timeout, count, 0)
}

// EvsPut writes events the attachment currently holds to its bound
// station's output list, for the conductor to route downstream (wire
// command EVS_PUT). updates carries the new field values for each event,
// decoded fresh off the wire; the canonical pool object the attachment
// actually holds is recovered by id and updated in place, preserving
// event identity. An id the attachment does not hold is rejected to
// preserve the single-ownership invariant (spec §3).
func (d *Dispatcher) EvsPut(attID attachment.ID, updates []*event.Event) error {
	att, st, err := d.attachmentStation(attID)
	if err != nil {
		return err
	}
	out := make([]*event.Event, 0, len(updates))
	for _, upd := range updates {
		canonical, ok := att.TakeHeld(upd.ID)
		if !ok {
			return fmt.Errorf("%w: attachment does not hold event %d", status.ErrGeneric, upd.ID)
		}
		canonical.Length = upd.Length
		canonical.Priority = upd.Priority
		canonical.DataStatus = upd.DataStatus
		canonical.ByteOrder = upd.ByteOrder
		canonical.Modify = upd.Modify
		copy(canonical.Control, upd.Control)
		if upd.Data != nil {
			copy(canonical.Data, upd.Data)
		}
		out = append(out, canonical)
	}
	st.Output.Put(out)
	return nil
}

// EvsDump returns events the attachment currently holds to the free pool
// by funneling them into GRAND_CENTRAL's input list, without routing them
// through any station's selection logic (wire command EVS_DUMP, spec
// §4.1 "put_in_gc... funnels user dumps").
func (d *Dispatcher) EvsDump(attID attachment.ID, ids []int32) error {
	att, _, err := d.attachmentStation(attID)
	if err != nil {
		return err
	}
	out := make([]*event.Event, 0, len(ids))
	for _, id := range ids {
		canonical, ok := att.TakeHeld(id)
		if !ok {
			return fmt.Errorf("%w: attachment does not hold event %d", status.ErrGeneric, id)
		}
		out = append(out, canonical)
	}
	d.sys.GrandCentral().Input.PutInGC(out)
	return nil
}

// SysData returns the full system and per-station statistics snapshot
// (wire command SYS_DATA).
func (d *Dispatcher) SysData() (registry.SystemStats, []registry.StationStats) {
	return d.sys.Stats()
}

// SysHistogram buckets every station's input-list occupancy (wire
// command SYS_HISTOGRAM).
func (d *Dispatcher) SysHistogram(numBuckets int) []int {
	return d.sys.Histogram(numBuckets)
}
