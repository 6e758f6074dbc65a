package monitor

import (
	"time"

	"github.com/etbroker/et/internal/registry"
)

// StationCreatedEvent reports that a station joined the ring.
type StationCreatedEvent struct {
	StationID int32     `json:"station_id"`
	Name      string    `json:"name"`
	Position  int32     `json:"position"`
	At        time.Time `json:"at"`
}

func (StationCreatedEvent) Kind() string { return "station_created" }

// StationRemovedEvent reports that a station left the ring.
type StationRemovedEvent struct {
	StationID int32     `json:"station_id"`
	Name      string    `json:"name"`
	At        time.Time `json:"at"`
}

func (StationRemovedEvent) Kind() string { return "station_removed" }

// AttachmentEvent reports an attach or detach against a station.
type AttachmentEvent struct {
	AttachmentID int32     `json:"attachment_id"`
	StationID    int32     `json:"station_id"`
	Attached     bool      `json:"attached"`
	At           time.Time `json:"at"`
}

func (AttachmentEvent) Kind() string { return "attachment" }

// SystemSnapshotEvent is a periodic health/occupancy summary of the
// whole running system, for dashboards that don't want to track
// individual station events.
type SystemSnapshotEvent struct {
	System   registry.SystemStats    `json:"system"`
	Stations []registry.StationStats `json:"stations"`
	At       time.Time               `json:"at"`
}

func (SystemSnapshotEvent) Kind() string { return "snapshot" }
