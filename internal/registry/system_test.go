package registry

import (
	"testing"

	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/station"
	"github.com/etbroker/et/internal/status"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	pool, err := event.NewMemPool(8, 64, 2, 2)
	if err != nil {
		t.Fatalf("NewMemPool: %v", err)
	}
	sys, err := New(pool, Limits{MaxStations: 16, MaxAttachments: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sys
}

func serialCfg() station.Config {
	return station.Config{
		Flow:     station.FlowSerial,
		Block:    station.BlockBlocking,
		Select:   station.SelectAll,
		Restore:  station.RestoreToStation,
		Prescale: 1,
		Cue:      8,
	}
}

func TestBootstrapSeedsGrandCentral(t *testing.T) {
	sys := newTestSystem(t)
	gc := sys.GrandCentral()
	if gc.Name != station.GrandCentralName {
		t.Fatalf("expected GRAND_CENTRAL, got %q", gc.Name)
	}
	if gc.Input.Len() != 8 {
		t.Fatalf("expected 8 seeded events, got %d", gc.Input.Len())
	}
}

func TestCreateStationIdempotent(t *testing.T) {
	sys := newTestSystem(t)
	cfg := serialCfg()

	a, err := sys.CreateStation("filter", cfg, PositionEnd, ParallelPositionNewHead)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	b, err := sys.CreateStation("filter", cfg, PositionEnd, ParallelPositionNewHead)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("expected idempotent create to return the same station, got %v and %v", a.ID, b.ID)
	}

	cfg2 := cfg
	cfg2.Cue = 4
	if _, err := sys.CreateStation("filter", cfg2, PositionEnd, ParallelPositionNewHead); status.KindOf(err) != status.KindExists {
		t.Errorf("expected ErrExists on name collision with a different config, got %v", err)
	}
}

func TestCreateStationReservesGrandCentralName(t *testing.T) {
	sys := newTestSystem(t)
	if _, err := sys.CreateStation(station.GrandCentralName, serialCfg(), PositionEnd, ParallelPositionNewHead); err == nil {
		t.Fatal("expected error creating a station named GRAND_CENTRAL")
	}
}

func TestRingOrderingAndMove(t *testing.T) {
	sys := newTestSystem(t)
	a, _ := sys.CreateStation("a", serialCfg(), PositionEnd, ParallelPositionNewHead)
	b, _ := sys.CreateStation("b", serialCfg(), PositionEnd, ParallelPositionNewHead)
	_, _ = sys.CreateStation("c", serialCfg(), PositionEnd, ParallelPositionNewHead)

	ring := sys.Ring()
	if len(ring) != 4 { // GRAND_CENTRAL + a, b, c
		t.Fatalf("expected 4 ring slots, got %d", len(ring))
	}
	if ring[1][0].Name != "a" || ring[2][0].Name != "b" {
		t.Fatalf("unexpected ring order: %+v", ring)
	}

	if err := sys.SetStationPosition(b.ID, 1, ParallelPositionEnd); err != nil {
		t.Fatalf("SetStationPosition: %v", err)
	}
	ring = sys.Ring()
	if ring[1][0].Name != "b" {
		t.Fatalf("expected b moved to slot 1, got %+v", ring[1])
	}
	_ = a
}

func TestParallelGroupJoin(t *testing.T) {
	sys := newTestSystem(t)
	cfg := serialCfg()
	cfg.Flow = station.FlowParallel
	cfg.Select = station.SelectRRobin

	head, err := sys.CreateStation("workers", cfg, PositionEnd, ParallelPositionNewHead)
	if err != nil {
		t.Fatalf("create head: %v", err)
	}
	pos, _, err := sys.GetStationPosition(head.ID)
	if err != nil {
		t.Fatalf("GetStationPosition: %v", err)
	}
	member, err := sys.CreateStation("workers-2", cfg, pos, ParallelPositionEnd)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if !member.IsInGroup() || member.GroupHeadID != head.ID {
		t.Fatalf("expected member to join head's group, got %+v", member)
	}
	members := sys.GroupMembers(head)
	if len(members) != 2 {
		t.Fatalf("expected 2 group members, got %d", len(members))
	}
}

func TestAttachDetachRestoresHeldEvents(t *testing.T) {
	sys := newTestSystem(t)
	gc := sys.GrandCentral()

	a, err := sys.Attach(gc.ID, "localhost", 100)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	before := gc.Input.Len()

	ev, err := gc.Input.Get(a, 0 /* ModeAsync */, 0, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	a.Hold(ev[0])

	if err := sys.Detach(a.ID); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if got := gc.Input.Len(); got != before {
		t.Errorf("expected held event restored to GRAND_CENTRAL input, got len=%d want=%d", got, before)
	}
	if sys.IsAttached(gc.ID, a.ID) {
		t.Error("attachment should no longer be attached after Detach")
	}
}

func TestRemoveStationRejectsWithAttachments(t *testing.T) {
	sys := newTestSystem(t)
	st, _ := sys.CreateStation("s", serialCfg(), PositionEnd, ParallelPositionNewHead)
	a, err := sys.Attach(st.ID, "localhost", 1)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := sys.RemoveStation(st.ID); status.KindOf(err) != status.KindBusy {
		t.Errorf("expected ErrBusy removing a station with attachments, got %v", err)
	}
	if err := sys.Detach(a.ID); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if err := sys.RemoveStation(st.ID); err != nil {
		t.Errorf("expected removal to succeed once detached, got %v", err)
	}
}
