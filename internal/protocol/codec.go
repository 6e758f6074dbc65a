package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/etbroker/et/internal/event"
)

// Command is the wire command code, always the first int32 of a request
// (spec §6.1).
type Command int32

const (
	CmdClose Command = iota + 1
	CmdAlive
	CmdWakeAtt
	CmdWakeAll
	CmdStationCreateAt
	CmdStationRemove
	CmdStationSetPos
	CmdStationGetPos
	CmdStationExists
	CmdStationAttach
	CmdStationDetach
	CmdStationIsAttached
	CmdEvsNewGrp
	CmdEvsGet
	CmdEvsPut
	CmdEvsDump
	CmdSysData
	CmdSysHistogram
)

// readInt32/writeInt32/readInt64/writeInt64 are the fixed-width big-endian
// primitives every request and response field is built from (spec §6.1
// "all integers big-endian, fixed-width").

func readInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func writeInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

func readInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func writeInt64(w io.Writer, v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func readInt32Vector(r io.Reader, n int) ([]int32, error) {
	out := make([]int32, n)
	for i := range out {
		v, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func writeInt32Vector(w io.Writer, vs []int32) error {
	for _, v := range vs {
		if err := writeInt32(w, v); err != nil {
			return err
		}
	}
	return nil
}

// readNulString reads a length-prefixed, NUL-terminated ASCII string:
// int32 length (including the trailing NUL), then that many bytes.
func readNulString(r io.Reader) (string, error) {
	n, err := readInt32(r)
	if err != nil {
		return "", err
	}
	if n <= 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	if buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf), nil
}

func writeNulString(w io.Writer, s string) error {
	if err := writeInt32(w, int32(len(s)+1)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}

// eventHeaderFixedInt32s is the fixed int32 count of an event header before its
// K-length control vector (spec §6.1 "Event header: 9 ints + K select
// ints"): length/mem_size are int64 (2 ints each), leaving 5 plain int32
// fields plus the two wide ones.
const eventHeaderFixedInt32s = 5

// writeEventHeader encodes one event header: length(i64), mem_size(i64),
// pri_and_status, id, reserved, byte_order, reserved, control[K].
func writeEventHeader(w io.Writer, ev *event.Event) error {
	if err := writeInt64(w, int64(ev.Length)); err != nil {
		return err
	}
	if err := writeInt64(w, int64(ev.Capacity)); err != nil {
		return err
	}
	priAndStatus := int32(ev.Priority)<<8 | int32(ev.DataStatus)
	fields := []int32{priAndStatus, ev.ID, 0, int32(ev.ByteOrder), 0}
	if len(fields) != eventHeaderFixedInt32s {
		return fmt.Errorf("protocol: event header field count mismatch")
	}
	if err := writeInt32Vector(w, fields); err != nil {
		return err
	}
	return writeInt32Vector(w, ev.Control)
}

// readEventHeader decodes one event header into a freshly allocated event
// whose Data is left nil; callers that need payload bytes read them
// separately (spec §6.1 "followed by length payload bytes if modifying").
func readEventHeader(r io.Reader, controlLen int) (*event.Event, error) {
	length, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	capacity, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	fields, err := readInt32Vector(r, eventHeaderFixedInt32s)
	if err != nil {
		return nil, err
	}
	control, err := readInt32Vector(r, controlLen)
	if err != nil {
		return nil, err
	}
	return &event.Event{
		Length:     int(length),
		Capacity:   int(capacity),
		Priority:   event.Priority(fields[0] >> 8),
		DataStatus: event.DataStatus(fields[0] & 0xff),
		ID:         fields[1],
		ByteOrder:  event.ByteOrder(fields[3]),
		Control:    control,
	}, nil
}

// framedReader/framedWriter are the buffered halves of one connection
// (spec §6.1: "one bidirectional framed stream").
type framedReader struct{ *bufio.Reader }
type framedWriter struct{ *bufio.Writer }

func newFramedReader(r io.Reader) framedReader { return framedReader{bufio.NewReader(r)} }
func newFramedWriter(w io.Writer) framedWriter { return framedWriter{bufio.NewWriter(w)} }
