package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/umar/roomsync/internal/api"
	"github.com/umar/roomsync/internal/bus"
	"github.com/umar/roomsync/internal/models"
	"github.com/umar/roomsync/internal/roomlist"
)

// RoomViewer serves filtered views of the room cache.
type RoomViewer interface {
	View(ctx context.Context, query string) (roomlist.Rooms, error)
}

// RoomService performs room operations on the chat server.
type RoomService interface {
	Room(ctx context.Context, roomID string) (*models.RoomDetails, error)
	UpdateRoom(ctx context.Context, roomID string, update models.RoomUpdate) error
	LeaveRoom(ctx context.Context, roomID string) error
}

func ListRooms(viewer RoomViewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := viewer.View(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			slog.Error("failed to read room list", "error", err)
			writeError(w, http.StatusServiceUnavailable, "room list unavailable")
			return
		}
		if rooms == nil {
			rooms = roomlist.Rooms{}
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

func RefreshRooms(notifier bus.Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := notifier.Notify(r.Context()); err != nil {
			slog.Error("failed to publish room update", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
	}
}

func GetRoom(rooms RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["id"]

		details, err := rooms.Room(r.Context(), roomID)
		if err != nil {
			writeUpstreamError(w, "failed to get room", roomID, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
	}
}

func UpdateRoom(rooms RoomService, notifier bus.Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["id"]

		var update models.RoomUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if update.Name == nil && update.Description == nil {
			writeError(w, http.StatusBadRequest, "nothing to update")
			return
		}
		if update.Name != nil {
			name := strings.TrimSpace(*update.Name)
			if name == "" {
				writeError(w, http.StatusBadRequest, "name cannot be empty")
				return
			}
			update.Name = &name
		}

		if err := rooms.UpdateRoom(r.Context(), roomID, update); err != nil {
			writeUpstreamError(w, "failed to update room", roomID, err)
			return
		}
		publish(r.Context(), notifier)
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func LeaveRoom(rooms RoomService, notifier bus.Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["id"]

		if err := rooms.LeaveRoom(r.Context(), roomID); err != nil {
			writeUpstreamError(w, "failed to leave room", roomID, err)
			return
		}
		publish(r.Context(), notifier)
		writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
	}
}

// publish reports a room change made through the REST API. The change
// already succeeded upstream, so a failed publish is only logged.
func publish(ctx context.Context, notifier bus.Notifier) {
	if err := notifier.Notify(ctx); err != nil {
		slog.Error("failed to publish room update", "error", err)
	}
}

// writeUpstreamError passes client errors from the chat server through and
// reports everything else as a bad gateway.
func writeUpstreamError(w http.ResponseWriter, msg, roomID string, err error) {
	slog.Error(msg, "room_id", roomID, "error", err)

	var se *api.StatusError
	if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
		text := se.Message
		if text == "" {
			text = http.StatusText(se.StatusCode)
		}
		writeError(w, se.StatusCode, text)
		return
	}
	writeError(w, http.StatusBadGateway, "chat server unavailable")
}
