package pipeline

import (
	"log/slog"
	"sync"

	"github.com/etbroker/et/internal/station"
)

// Manager owns the one conductor goroutine per live station, starting one
// whenever a station joins the ring and stopping it when the station is
// removed. This is the dynamic counterpart to conductor.go's per-station
// Run loop: stations come and go at runtime via STATION_CREATE_AT/
// STATION_REMOVE, so nothing in the system can enumerate conductors once
// at startup.
type Manager struct {
	sys        System
	predicates *PredicateRegistry
	logger     *slog.Logger

	// OnDeliver, when set, is attached to every conductor this manager
	// starts, receiving the station id alongside the recirculated count.
	OnDeliver func(id station.ID, toGrandCentral int)

	mu   sync.Mutex
	stop map[station.ID]chan struct{}
	wg   sync.WaitGroup
}

// NewManager returns an empty manager bound to sys and predicates.
func NewManager(sys System, predicates *PredicateRegistry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sys:        sys,
		predicates: predicates,
		logger:     logger,
		stop:       make(map[station.ID]chan struct{}),
	}
}

// Start launches a conductor for st, unless one is already running.
func (m *Manager) Start(st *station.Station) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.stop[st.ID]; running {
		return
	}
	stop := make(chan struct{})
	m.stop[st.ID] = stop

	c := NewConductor(st, m.sys, m.predicates, m.logger)
	if m.OnDeliver != nil {
		id := st.ID
		c.OnDeliver = func(n int) { m.OnDeliver(id, n) }
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.Run(stop)
	}()
}

// Stop signals the conductor for id to halt, if running. It does not wait
// for the conductor goroutine to exit; StopAll does.
func (m *Manager) Stop(id station.ID) {
	m.mu.Lock()
	stop, ok := m.stop[id]
	if ok {
		delete(m.stop, id)
	}
	m.mu.Unlock()
	if ok {
		close(stop)
	}
}

// StopAll halts every running conductor and waits for them all to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	stops := m.stop
	m.stop = make(map[station.ID]chan struct{})
	m.mu.Unlock()
	for _, stop := range stops {
		close(stop)
	}
	m.wg.Wait()
}

// Running reports how many conductors are currently active.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stop)
}
