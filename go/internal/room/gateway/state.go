package gateway

import (
	"time"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/score"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/mcdev12/buzzroom/go/internal/room/turn"
)

// RoomState is the view of a room pushed to clients and served over HTTP.
type RoomState struct {
	Code        string               `json:"code"`
	Revision    uint64               `json:"revision,omitempty"`
	Deleted     bool                 `json:"deleted,omitempty"`
	Room        *models.Room         `json:"room,omitempty"`
	Leaderboard []*models.Player     `json:"leaderboard,omitempty"`
	Teams       []score.TeamStanding `json:"teams,omitempty"`
	// AdvantageRemainingSec is set while a turn's advantage window is open.
	AdvantageRemainingSec *int      `json:"advantage_remaining_sec,omitempty"`
	ServerTime            time.Time `json:"server_time"`
}

// NewRoomState builds the client view of room at serverTime.
func NewRoomState(code string, room *models.Room, revision uint64, serverTime time.Time) *RoomState {
	state := &RoomState{
		Code:       code,
		Revision:   revision,
		Room:       room,
		ServerTime: serverTime,
	}
	if room == nil {
		state.Deleted = true
		return state
	}

	state.Leaderboard = score.Leaderboard(room)
	if room.GameMode.Mode == models.ModeTeams {
		state.Teams = score.TeamStandings(room)
	}
	if room.Turn != nil && room.Turn.AdvantagePhase {
		remaining := int(turn.AdvantageDeadline(room).Sub(serverTime).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		state.AdvantageRemainingSec = &remaining
	}
	return state
}

// stateFromSnapshot converts a store observation into a client view.
func stateFromSnapshot(snap store.Snapshot, serverTime time.Time) *RoomState {
	if snap.Deleted {
		return NewRoomState(snap.Code, nil, snap.Revision, serverTime)
	}
	return NewRoomState(snap.Code, snap.Room, snap.Revision, serverTime)
}
