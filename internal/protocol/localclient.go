package protocol

import (
	"time"

	"github.com/etbroker/et/internal/attachment"
	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/eventlist"
	"github.com/etbroker/et/internal/station"
)

// LocalClient is the in-process fast path: a client sharing the host with
// the server calls the same Dispatcher core directly, skipping the socket
// entirely (wire protocol §6.2). It exposes the subset of commands named
// as fast-path eligible: new_events, get_events, put_events, dump_events.
type LocalClient struct {
	dispatch *Dispatcher
}

// NewLocalClient wraps a dispatcher for same-host, in-process use.
func NewLocalClient(dispatch *Dispatcher) *LocalClient {
	return &LocalClient{dispatch: dispatch}
}

// NewEvents is the fast-path equivalent of EVS_NEW_GRP.
func (c *LocalClient) NewEvents(attID attachment.ID, mode eventlist.Mode, timeout time.Duration, count int, group int32) ([]*event.Event, error) {
	return c.dispatch.EvsNewGrp(attID, mode, timeout, count, group)
}

// GetEvents is the fast-path equivalent of EVS_GET.
func (c *LocalClient) GetEvents(attID attachment.ID, mode eventlist.Mode, timeout time.Duration, count int) ([]*event.Event, error) {
	return c.dispatch.EvsGet(attID, mode, timeout, count)
}

// PutEvents is the fast-path equivalent of EVS_PUT. Because there is no
// socket, callers pass the actual held event objects (already mutated in
// place) rather than a freshly decoded copy; EvsPut still re-resolves
// them through the attachment's held set to keep both paths identical.
func (c *LocalClient) PutEvents(attID attachment.ID, events []*event.Event) error {
	return c.dispatch.EvsPut(attID, events)
}

// DumpEvents is the fast-path equivalent of EVS_DUMP.
func (c *LocalClient) DumpEvents(attID attachment.ID, ids []int32) error {
	return c.dispatch.EvsDump(attID, ids)
}

// Attach and Detach are not framed commands but are needed to set up a
// local client's attachment before it can call the fast-path operations.
func (c *LocalClient) Attach(stationID station.ID, host string, pid int32) (*attachment.Attachment, error) {
	return c.dispatch.StationAttach(stationID, host, pid)
}

func (c *LocalClient) Detach(attID attachment.ID) error {
	return c.dispatch.StationDetach(attID)
}
