package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles websocket upgrade requests for room connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stateProvider     StateProvider
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(cm *ConnectionManager, provider StateProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stateProvider:     provider,
	}
}

// HandleRoomConnection handles GET /ws/room?code=&participant_id=. Without a
// participant id the connection only observes the room.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if !store.ValidCode(code) {
		http.Error(w, "valid code is required", http.StatusBadRequest)
		return
	}
	participantID := r.URL.Query().Get("participant_id")

	room, rev, err := h.stateProvider.Load(r.Context(), code)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, roomerr.ErrFatal) {
			status = http.StatusNotFound
		}
		http.Error(w, "failed to load room", status)
		return
	}
	if participantID != "" && room.Players[participantID] == nil {
		http.Error(w, "participant is not in the room", http.StatusForbidden)
		return
	}

	initial := NewRoomState(code, room, rev, h.connectionManager.deps.Clock.Now())
	if err := h.connectionManager.UpgradeConnection(w, r, code, participantID, initial); err != nil {
		// The upgrader has already written the HTTP error.
		log.Error().
			Err(err).
			Str("room", code).
			Str("participant_id", participantID).
			Msg("failed to upgrade websocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers websocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/room", h.HandleRoomConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
