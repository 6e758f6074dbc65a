package pipeline

import (
	"testing"
	"time"

	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/station"
)

func TestManagerStartStop(t *testing.T) {
	gc := newStation(0, allCfg(), 0)
	sys := &fakeSystem{ring: [][]*station.Station{{gc}}, gc: gc}
	m := NewManager(sys, NewPredicateRegistry(), nil)

	m.Start(gc)
	if got := m.Running(); got != 1 {
		t.Fatalf("expected 1 running conductor, got %d", got)
	}
	m.Start(gc) // idempotent
	if got := m.Running(); got != 1 {
		t.Fatalf("expected Start to be idempotent, got %d running", got)
	}

	m.Stop(gc.ID)
	if got := m.Running(); got != 0 {
		t.Fatalf("expected 0 running conductors after Stop, got %d", got)
	}
}

func TestManagerRoutesEventsWhileRunning(t *testing.T) {
	gc := newStation(0, allCfg(), 0)
	matchCfg := allCfg()
	matchCfg.Select = station.SelectMatch
	matchCfg.SelectVector = []int32{1}
	filter := newStation(1, matchCfg, 1)

	sys := &fakeSystem{ring: [][]*station.Station{{gc}, {filter}}, gc: gc}
	m := NewManager(sys, NewPredicateRegistry(), nil)
	m.Start(gc)
	defer m.StopAll()

	gc.Output.Put([]*event.Event{{ID: 1, Control: []int32{1}}})

	deadline := time.Now().Add(time.Second)
	for filter.Input.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for conductor to route event")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestManagerStopAllWaitsForExit(t *testing.T) {
	gc := newStation(0, allCfg(), 0)
	sys := &fakeSystem{ring: [][]*station.Station{{gc}}, gc: gc}
	m := NewManager(sys, NewPredicateRegistry(), nil)
	m.Start(gc)

	m.StopAll()
	if got := m.Running(); got != 0 {
		t.Fatalf("expected 0 running conductors, got %d", got)
	}
}
