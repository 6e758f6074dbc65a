package registry

import (
	"time"

	"github.com/etbroker/et/internal/station"
)

// StationStats is one row of the SYS_DATA station-statistics payload
// (spec §6.1).
type StationStats struct {
	ID          int32
	Name        string
	Position    int32
	EventsIn    uint64
	EventsOut   uint64
	EventsTry   uint64
	InputLen    int
	OutputLen   int
	Attachments int
}

// SystemStats is the process-level summary half of SYS_DATA.
type SystemStats struct {
	NumStations    int
	NumAttachments int
	MaxStations    int
	MaxAttachments int
	UptimeSeconds  float64
	Alive          bool
}

// Stats returns a full snapshot for SYS_DATA (spec §6.1).
func (s *System) Stats() (SystemStats, []StationStats) {
	s.mu.RLock()
	stations := make([]*station.Station, len(s.stations))
	copy(stations, s.stations)
	sys := SystemStats{
		NumStations:    len(s.stations),
		NumAttachments: len(s.attachments),
		MaxStations:    s.limits.MaxStations,
		MaxAttachments: s.limits.MaxAttachments,
		UptimeSeconds:  time.Since(s.startedAt).Seconds(),
		Alive:          s.alive,
	}
	s.mu.RUnlock()

	out := make([]StationStats, 0, len(stations))
	for _, st := range stations {
		in, outCount, try, _ := st.Input.Stats()
		_, outOut, _, outLen := st.Output.Stats()
		_ = outOut
		out = append(out, StationStats{
			ID:          int32(st.ID),
			Name:        st.Name,
			Position:    st.Position,
			EventsIn:    in,
			EventsOut:   outCount,
			EventsTry:   try,
			InputLen:    st.Input.Len(),
			OutputLen:   outLen,
			Attachments: st.AttachmentCount(),
		})
	}
	return sys, out
}

// Histogram buckets every station's input-list occupancy against the
// total pool size, as a coarse backlog indicator (spec §6.1 SYS_HISTOGRAM,
// supplemented per SPEC_FULL.md).
func (s *System) Histogram(numBuckets int) []int {
	if numBuckets <= 0 {
		numBuckets = 1
	}
	hist := make([]int, numBuckets)
	total := s.pool.NumEvents()
	if total <= 0 {
		total = 1
	}
	s.mu.RLock()
	stations := make([]*station.Station, len(s.stations))
	copy(stations, s.stations)
	s.mu.RUnlock()

	for _, st := range stations {
		l := st.Input.Len()
		bucket := (l * numBuckets) / total
		if bucket >= numBuckets {
			bucket = numBuckets - 1
		}
		hist[bucket]++
	}
	return hist
}
