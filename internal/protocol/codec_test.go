package protocol

import (
	"bytes"
	"testing"

	"github.com/etbroker/et/internal/event"
)

func TestInt32RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeInt32(&buf, -42); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readInt32(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != -42 {
		t.Fatalf("got %d, want -42", got)
	}
}

func TestInt64RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := int64(1) << 40
	writeInt64(&buf, want)
	got, err := readInt64(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestNulStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeNulString(&buf, "filter"); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readNulString(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "filter" {
		t.Fatalf("got %q, want %q", got, "filter")
	}
}

func TestEventHeaderRoundTrip(t *testing.T) {
	ev := &event.Event{
		ID:         7,
		Length:     10,
		Capacity:   64,
		Priority:   event.PriorityHigh,
		DataStatus: event.StatusPossiblyCorrupt,
		ByteOrder:  event.ByteOrderBigEndian,
		Control:    []int32{1, 2, 3},
	}
	var buf bytes.Buffer
	if err := writeEventHeader(&buf, ev); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readEventHeader(&buf, 3)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ID != ev.ID || got.Length != ev.Length || got.Capacity != ev.Capacity ||
		got.Priority != ev.Priority || got.DataStatus != ev.DataStatus || got.ByteOrder != ev.ByteOrder {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, ev)
	}
	for i, c := range got.Control {
		if c != ev.Control[i] {
			t.Errorf("control[%d]: got %d, want %d", i, c, ev.Control[i])
		}
	}
}
