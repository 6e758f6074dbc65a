package protocol

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/etbroker/et/internal/attachment"
	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/eventlist"
	"github.com/etbroker/et/internal/station"
	"github.com/etbroker/et/internal/status"
)

// readTimeout is the mandated per-request socket read deadline
// (wire protocol §6.1: "the server assumes a 2-second read timeout on
// the socket").
const readTimeout = 2 * time.Second

// sysHistogramBuckets is the fixed bucket count for SYS_HISTOGRAM
// responses (spec §6.1 names the array length num_events+1, bucketed
// here at a fixed resolution instead of the full event count).
const sysHistogramBuckets = 16

// Server accepts TCP connections and serves the wire protocol against a
// Dispatcher (spec §4.7).
type Server struct {
	dispatch   *Dispatcher
	controlLen int
	logger     *slog.Logger

	ln net.Listener
}

// NewServer binds a listening socket at addr.
func NewServer(addr string, dispatch *Dispatcher, controlLen int, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{dispatch: dispatch, controlLen: controlLen, logger: logger, ln: ln}, nil
}

// Addr returns the bound listening address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve runs the accept loop until stop is closed (spec §4.7: "a single
// accept task per listening socket; one worker task per connected client").
func (s *Server) Serve(stop <-chan struct{}) error {
	go func() {
		<-stop
		s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

// handleConn serializes every request on one connection (spec §4.7: "no
// request pipelining per client"). On I/O error, every attachment this
// connection created is torn down so held events are restored (spec §4.5).
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	r := newFramedReader(conn)
	w := newFramedWriter(conn)

	var myAttachments []attachment.ID
	defer func() {
		for _, id := range myAttachments {
			_ = s.dispatch.StationDetach(id)
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		cmd, err := readInt32(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue // spec §6.1: transient read timeouts are retried transparently
			}
			return
		}

		attached, err := s.dispatch1(Command(cmd), r, w)
		if err != nil && errors.Is(err, errConnClosed) {
			w.Flush()
			return
		}
		if attached != 0 {
			myAttachments = append(myAttachments, attached)
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

var errConnClosed = errors.New("protocol: client requested close")

// dispatch1 decodes one request, runs it against the dispatcher, and
// writes the response. It returns a non-zero attachment id exactly when
// STATION_ATTACH just created one, so the caller can track it for
// teardown on disconnect.
func (s *Server) dispatch1(cmd Command, r framedReader, w framedWriter) (attachment.ID, error) {
	switch cmd {
	case CmdClose:
		writeInt32(w, 0)
		return 0, errConnClosed

	case CmdAlive:
		if s.dispatch.Alive() {
			writeInt32(w, 1)
		} else {
			writeInt32(w, 0)
		}

	case CmdWakeAtt:
		id, _ := readInt32(r)
		err := s.dispatch.WakeAtt(attachment.ID(id))
		writeInt32(w, int32(status.KindOf(err)))

	case CmdWakeAll:
		id, _ := readInt32(r)
		err := s.dispatch.WakeAll(station.ID(id))
		writeInt32(w, int32(status.KindOf(err)))

	case CmdStationCreateAt:
		cfg, name, position, parallelPosition, err := s.readStationCreateArgs(r)
		if err != nil {
			return 0, err
		}
		st, cerr := s.dispatch.StationCreateAt(name, cfg, position, parallelPosition)
		writeInt32(w, int32(status.KindOf(cerr)))
		if cerr != nil {
			writeInt32(w, 0)
		} else {
			writeInt32(w, int32(st.ID))
		}

	case CmdStationRemove:
		id, _ := readInt32(r)
		err := s.dispatch.StationRemove(station.ID(id))
		writeInt32(w, int32(status.KindOf(err)))

	case CmdStationSetPos:
		id, _ := readInt32(r)
		pos, _ := readInt32(r)
		ppos, _ := readInt32(r)
		err := s.dispatch.StationSetPos(station.ID(id), pos, ppos)
		writeInt32(w, int32(status.KindOf(err)))

	case CmdStationGetPos:
		id, _ := readInt32(r)
		pos, ppos, err := s.dispatch.StationGetPos(station.ID(id))
		writeInt32(w, int32(status.KindOf(err)))
		writeInt32(w, pos)
		writeInt32(w, ppos)

	case CmdStationExists:
		name, err := readNulString(r)
		if err != nil {
			return 0, err
		}
		id, ok := s.dispatch.StationExists(name)
		if ok {
			writeInt32(w, 1)
		} else {
			writeInt32(w, 0)
		}
		writeInt32(w, int32(id))

	case CmdStationAttach:
		sid, _ := readInt32(r)
		pid, _ := readInt32(r)
		host, err := readNulString(r)
		if err != nil {
			return 0, err
		}
		att, aerr := s.dispatch.StationAttach(station.ID(sid), host, pid)
		writeInt32(w, int32(status.KindOf(aerr)))
		if aerr != nil {
			writeInt32(w, 0)
			break
		}
		writeInt32(w, int32(att.ID))
		return att.ID, nil

	case CmdStationDetach:
		id, _ := readInt32(r)
		err := s.dispatch.StationDetach(attachment.ID(id))
		writeInt32(w, int32(status.KindOf(err)))

	case CmdStationIsAttached:
		sid, _ := readInt32(r)
		aid, _ := readInt32(r)
		if s.dispatch.StationIsAttached(station.ID(sid), attachment.ID(aid)) {
			writeInt32(w, 1)
		} else {
			writeInt32(w, 0)
		}

	case CmdEvsNewGrp, CmdEvsGet:
		if err := s.handleEvsAcquire(cmd, r, w); err != nil {
			return 0, err
		}

	case CmdEvsPut:
		if err := s.handleEvsPut(r, w); err != nil {
			return 0, err
		}

	case CmdEvsDump:
		if err := s.handleEvsDump(r, w); err != nil {
			return 0, err
		}

	case CmdSysData:
		sys, stations := s.dispatch.SysData()
		writeInt32(w, 0)
		writeInt32(w, int32(len(stations)))
		for _, st := range stations {
			writeInt32(w, st.ID)
			writeInt32(w, st.Position)
			writeInt64(w, int64(st.EventsIn))
			writeInt64(w, int64(st.EventsOut))
			writeInt64(w, int64(st.EventsTry))
			writeInt32(w, int32(st.InputLen))
			writeInt32(w, int32(st.OutputLen))
			writeInt32(w, int32(st.Attachments))
		}
		writeInt32(w, int32(sys.NumAttachments))
		writeInt32(w, int32(sys.NumStations))
		writeInt32(w, int32(sys.MaxStations))
		writeInt32(w, int32(sys.MaxAttachments))

	case CmdSysHistogram:
		hist := s.dispatch.SysHistogram(sysHistogramBuckets)
		writeInt32(w, 0)
		writeInt32(w, int32(len(hist)))
		for _, v := range hist {
			writeInt32(w, int32(v))
		}

	default:
		writeInt32(w, int32(status.KindGeneric))
	}
	return 0, nil
}

func (s *Server) readStationCreateArgs(r framedReader) (station.Config, string, int32, int32, error) {
	var cfg station.Config
	flow, err := readInt32(r)
	if err != nil {
		return cfg, "", 0, 0, err
	}
	block, _ := readInt32(r)
	selectMode, _ := readInt32(r)
	restore, _ := readInt32(r)
	prescale, _ := readInt32(r)
	cue, _ := readInt32(r)
	k, _ := readInt32(r)
	selectVector, err := readInt32Vector(r, int(k))
	if err != nil {
		return cfg, "", 0, 0, err
	}
	userPred, err := readNulString(r)
	if err != nil {
		return cfg, "", 0, 0, err
	}
	funcLib, err := readNulString(r)
	if err != nil {
		return cfg, "", 0, 0, err
	}
	funcClass, err := readNulString(r)
	if err != nil {
		return cfg, "", 0, 0, err
	}
	name, err := readNulString(r)
	if err != nil {
		return cfg, "", 0, 0, err
	}
	position, _ := readInt32(r)
	parallelPosition, _ := readInt32(r)

	cfg = station.Config{
		Flow:          station.FlowMode(flow),
		Block:         station.BlockMode(block),
		Select:        station.SelectMode(selectMode),
		Restore:       station.RestoreMode(restore),
		Prescale:      prescale,
		Cue:           cue,
		SelectVector:  selectVector,
		UserPredicate: userPred,
		FuncLib:       funcLib,
		FuncClass:     funcClass,
	}
	return cfg, name, position, parallelPosition, nil
}

func (s *Server) handleEvsAcquire(cmd Command, r framedReader, w framedWriter) error {
	attID, err := readInt32(r)
	if err != nil {
		return err
	}
	mode, _ := readInt32(r)
	count, _ := readInt32(r)
	var group int32
	if cmd == CmdEvsNewGrp {
		if _, err := readInt64(r); err != nil { // size hint, advisory only
			return err
		}
		group, _ = readInt32(r)
	}
	sec, _ := readInt32(r)
	nsec, _ := readInt32(r)
	timeout := time.Duration(sec)*time.Second + time.Duration(nsec)*time.Nanosecond

	evs, gerr := s.dispatch.EvsNewGrp(attachment.ID(attID), eventlist.Mode(mode), timeout, int(count), group)
	writeInt32(w, int32(status.KindOf(gerr)))
	if gerr != nil {
		return nil
	}
	writeInt32(w, int32(len(evs)))
	for _, ev := range evs {
		writeInt32(w, ev.ID)
	}
	return nil
}

func (s *Server) handleEvsPut(r framedReader, w framedWriter) error {
	attID, err := readInt32(r)
	if err != nil {
		return err
	}
	n, _ := readInt32(r)
	if _, err := readInt64(r); err != nil { // total_bytes, advisory
		return err
	}
	evs := make([]*event.Event, 0, n)
	for i := int32(0); i < n; i++ {
		ev, err := readEventHeader(r, s.controlLen)
		if err != nil {
			return err
		}
		if ev.Length > 0 {
			ev.Data = make([]byte, ev.Length)
			if _, err := io.ReadFull(r, ev.Data); err != nil {
				return err
			}
		}
		evs = append(evs, ev)
	}
	err = s.dispatch.EvsPut(attachment.ID(attID), evs)
	writeInt32(w, int32(status.KindOf(err)))
	return nil
}

func (s *Server) handleEvsDump(r framedReader, w framedWriter) error {
	attID, err := readInt32(r)
	if err != nil {
		return err
	}
	n, _ := readInt32(r)
	ids, err := readInt32Vector(r, int(n))
	if err != nil {
		return err
	}
	derr := s.dispatch.EvsDump(attachment.ID(attID), ids)
	writeInt32(w, int32(status.KindOf(derr)))
	return nil
}
