package pipeline

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// RecirculationNotice is published whenever a conductor falls through the
// whole ring and restores an event to GRAND_CENTRAL's input — an
// operationally interesting event (it usually means no downstream station
// wanted the data) worth surfacing to an external consumer without making
// the hot path depend on that consumer being up.
type RecirculationNotice struct {
	Station   string    `json:"station"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the narrow watermill surface fanout needs, satisfied by
// the real AMQP publisher or by any in-memory double with the same
// Publish method (SPEC_FULL.md domain-stack entry for watermill/watermill-amqp).
type Publisher interface {
	Publish(topic string, messages ...*message.Message) error
}

// RecirculationTopic is the watermill topic recirculation notices are
// published to.
const RecirculationTopic = "et.recirculation"

// Fanout wraps a watermill publisher and turns it into the OnDeliver hook
// a Conductor calls with each batch's to-GRAND_CENTRAL count. A nil or
// failing publisher never blocks or fails routing: fanout is strictly
// best-effort telemetry, not part of the delivery guarantee.
type Fanout struct {
	pub     Publisher
	logger  *slog.Logger
	station string
}

// NewFanout returns a Fanout bound to a station name, or nil if pub is nil
// (callers should skip wiring OnDeliver in that case).
func NewFanout(pub Publisher, stationName string, logger *slog.Logger) *Fanout {
	if pub == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{pub: pub, logger: logger, station: stationName}
}

// Notify publishes a RecirculationNotice for count events recirculated
// through GRAND_CENTRAL. Errors are logged, never propagated: a wedged
// message broker must not back up into the event pipeline.
func (f *Fanout) Notify(count int) {
	if f == nil || count == 0 {
		return
	}
	notice := RecirculationNotice{Station: f.station, Count: count}
	payload, err := json.Marshal(notice)
	if err != nil {
		f.logger.Error("marshal recirculation notice", slog.Any("err", err))
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := f.pub.Publish(RecirculationTopic, msg); err != nil {
		f.logger.Warn("publish recirculation notice failed",
			slog.String("station", f.station), slog.Any("err", err))
	}
}
