package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/umar/roomsync/internal/chat"
	"github.com/umar/roomsync/internal/roomlist"
)

// TypeRooms carries the full room list to stream subscribers.
const TypeRooms = "rooms"

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// RoomWatcher streams the room cache as it changes.
type RoomWatcher interface {
	Watch() (<-chan roomlist.Rooms, func())
}

// StreamRooms upgrades to a websocket and pushes the room list every time it
// changes, starting with the current list.
func StreamRooms(watcher RoomWatcher, allowedOrigin string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("room stream upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		updates, cancel := watcher.Watch()
		defer cancel()

		gone := make(chan struct{})
		go readUntilClosed(ws, gone)

		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case rooms, ok := <-updates:
				if !ok {
					ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
					ws.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "session stopped"))
					return
				}
				if rooms == nil {
					rooms = roomlist.Rooms{}
				}
				frame, err := chat.NewWSMessage(TypeRooms, rooms)
				if err != nil {
					slog.Error("failed to encode room list", "error", err)
					return
				}
				ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}

			case <-ticker.C:
				ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}

			case <-gone:
				return
			}
		}
	}
}

// readUntilClosed drains client frames so pongs and the close handshake are
// processed, and closes gone when the client goes away.
func readUntilClosed(ws *websocket.Conn, gone chan struct{}) {
	defer close(gone)
	ws.SetReadLimit(512)
	ws.SetReadDeadline(time.Now().Add(streamPongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
