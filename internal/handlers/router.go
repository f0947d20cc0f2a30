package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/umar/roomsync/internal/bus"
	"github.com/umar/roomsync/internal/middleware"
)

// Deps are the collaborators behind the view API.
type Deps struct {
	Viewer     RoomViewer
	Watcher    RoomWatcher
	State      StateReporter
	Rooms      RoomService
	Notifier   bus.Notifier
	CORSOrigin string
}

func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(d.CORSOrigin))

	router.HandleFunc("/health", Health(d.State)).Methods("GET", "OPTIONS")
	router.HandleFunc("/rooms", ListRooms(d.Viewer)).Methods("GET", "OPTIONS")
	router.HandleFunc("/rooms/ws", StreamRooms(d.Watcher, d.CORSOrigin)).Methods("GET")

	// the fixed paths claim every method so they never fall through to {id}
	router.HandleFunc("/rooms/refresh", RefreshRooms(d.Notifier)).Methods("POST", "OPTIONS")
	router.HandleFunc("/rooms/refresh", methodNotAllowed)
	router.HandleFunc("/rooms/ws", methodNotAllowed)

	router.HandleFunc("/rooms/{id}", GetRoom(d.Rooms)).Methods("GET", "OPTIONS")
	router.HandleFunc("/rooms/{id}", UpdateRoom(d.Rooms, d.Notifier)).Methods("PUT")
	router.HandleFunc("/rooms/{id}/leave", LeaveRoom(d.Rooms, d.Notifier)).Methods("POST", "OPTIONS")

	return router
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
