package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/kindred/internal/engine"
)

const (
	streamCatchUp   = 50
	streamHeartbeat = 15 * time.Second
	streamSnapshots = 2 * time.Second
	writeWait       = 5 * time.Second
)

// frame is one websocket text message.
type frame struct {
	Type     string           `json:"type"` // "event" or "snapshot"
	Event    *engine.Event    `json:"event,omitempty"`
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
}

// handleStream upgrades to a websocket and pushes chronicle events as they
// happen, starting with a short catch-up of recent history. The current
// snapshot follows whenever the tick has moved on.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if n := s.streams.Add(1); s.maxStreams > 0 && n > s.maxStreams {
		s.streams.Add(-1)
		writeError(w, http.StatusServiceUnavailable, "too many stream connections")
		return
	}
	defer s.streams.Add(-1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	backlog, subID, ch := s.Sim.Follow(streamCatchUp)
	defer s.Sim.Unsubscribe(subID)
	for i := range backlog {
		if err := writeFrame(conn, frame{Type: "event", Event: &backlog[i]}); err != nil {
			return
		}
	}
	snap := s.Sim.Snapshot()
	if err := writeFrame(conn, frame{Type: "snapshot", Snapshot: snap}); err != nil {
		return
	}
	lastTick := snap.Tick
	slog.Info("stream client connected", "sub_id", subID)

	// Clients send nothing; reading surfaces the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	snapshots := time.NewTicker(streamSnapshots)
	defer snapshots.Stop()
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeFrame(conn, frame{Type: "event", Event: &e}); err != nil {
				return
			}
		case <-snapshots.C:
			snap := s.Sim.Snapshot()
			if snap.Tick == lastTick {
				continue
			}
			lastTick = snap.Tick
			if err := writeFrame(conn, frame{Type: "snapshot", Snapshot: snap}); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			slog.Info("stream client disconnected", "sub_id", subID)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, f frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
