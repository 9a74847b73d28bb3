package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/rs/zerolog/log"
)

// StateProvider reads the current record of a room.
type StateProvider interface {
	Load(ctx context.Context, code string) (*models.Room, uint64, error)
}

// StateHandler handles HTTP requests for room state
type StateHandler struct {
	stateProvider StateProvider
	clock         clockwork.Clock
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider, clock clockwork.Clock) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
		clock:         clock,
	}
}

// HandleGetRoomState handles GET /api/rooms/{code}/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !store.ValidCode(code) {
		http.Error(w, "Invalid room code", http.StatusBadRequest)
		return
	}

	room, rev, err := h.stateProvider.Load(r.Context(), code)
	if err != nil {
		if errors.Is(err, roomerr.ErrFatal) {
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("room", code).Msg("failed to get room state")
		http.Error(w, "Failed to get room state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(NewRoomState(code, room, rev, h.clock.Now())); err != nil {
		log.Error().Err(err).Str("room", code).Msg("failed to encode room state")
	}
}

// RegisterStateRoutes registers state routes with an HTTP mux
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/{code}/state", h.HandleGetRoomState)
}
