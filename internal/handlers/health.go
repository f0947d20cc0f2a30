package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/umar/roomsync/internal/chat"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StateReporter exposes the realtime connection state.
type StateReporter interface {
	ConnState() chat.State
}

func Health(state StateReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":     "healthy",
			"service":    "roomsync",
			"connection": state.ConnState().String(),
		})
	}
}
