package protocol

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/etbroker/et/internal/monitor"
)

func TestWSBridgeStreamsBroadcast(t *testing.T) {
	hub := monitor.NewHub(4, nil)
	bridge := NewWSBridge(hub, nil)

	srv := httptest.NewServer(bridge)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the handler a moment to register its subscriber before broadcasting.
	deadline := time.Now().Add(time.Second)
	for hub.Snapshot().Observers == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscriber to attach")
		}
		time.Sleep(time.Millisecond)
	}

	hub.Broadcast(monitor.StationCreatedEvent{StationID: 1, Name: "filter"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got monitor.StationCreatedEvent
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != "filter" {
		t.Fatalf("got %+v, want Name=filter", got)
	}
}
