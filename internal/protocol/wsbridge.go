package protocol

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/etbroker/et/internal/monitor"
)

// WSBridge upgrades incoming HTTP connections to websockets and streams
// monitor.Event broadcasts to each one (SPEC_FULL.md domain-stack entry
// for gorilla/websocket, serving the monitoring fan-out over the wire).
type WSBridge struct {
	hub      *monitor.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSBridge returns a bridge fed by hub. Origin checking is left wide
// open here (the monitoring surface is meant for trusted operators on an
// internal network, not for public exposure).
func NewWSBridge(hub *monitor.Hub, logger *slog.Logger) *WSBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSBridge{
		hub:      hub,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects.
func (b *WSBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

	sub := b.hub.Attach()
	defer b.hub.Detach(sub.ID())

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case ev, ok := <-sub.Recv():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
