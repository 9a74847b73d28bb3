package service

import (
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/score"
)

// Every request names the acting participant; there is no authentication.

type Empty struct{}

type CreateRoomRequest struct {
	Code     string      `json:"code"`
	HostID   string      `json:"host_id"`
	HostName string      `json:"host_name"`
	Mode     models.Mode `json:"mode,omitempty"`
}

type RoomResponse struct {
	Room *models.Room `json:"room"`
}

type GetRoomRequest struct {
	Code string `json:"code"`
}

type JoinRoomRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Team          string `json:"team,omitempty"`
}

type PlayerResponse struct {
	Player *models.Player `json:"player"`
}

// ParticipantRequest is used by actions that need nothing but the actor.
type ParticipantRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participant_id"`
}

type KickPlayerRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participant_id"`
	TargetID      string `json:"target_id"`
}

type AttemptSignalRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name,omitempty"`
}

type AttemptSignalResponse struct {
	Won         bool                 `json:"won"`
	Reason      string               `json:"reason,omitempty"`
	ConfigError bool                 `json:"config_error,omitempty"`
	Winner      *models.WinnerRecord `json:"winner,omitempty"`
}

type SubmitAnswerRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participant_id"`
	Text          string `json:"text"`
}

type AdjudicateRequest struct {
	Code          string         `json:"code"`
	ParticipantID string         `json:"participant_id"`
	Verdict       models.Verdict `json:"verdict"`
}

type AdjudicateResponse struct {
	Player *models.Player `json:"player"`
	Delta  int            `json:"delta"`
}

type SetModeRequest struct {
	Code          string               `json:"code"`
	ParticipantID string               `json:"participant_id"`
	Mode          models.Mode          `json:"mode"`
	Settings      *models.ModeSettings `json:"settings,omitempty"`
}

type SetModeResponse struct {
	GameMode models.GameMode `json:"game_mode"`
}

type StartCountdownRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participant_id"`
	ItemID        string `json:"item_id"`
}

type TurnResponse struct {
	Turn *models.TurnState `json:"turn"`
}

type StandingsResponse struct {
	Players []*models.Player     `json:"players"`
	Teams   []score.TeamStanding `json:"teams,omitempty"`
}

// ReportMediaRequest relays a playback notification from the host's player.
type ReportMediaRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participant_id"`
	ItemID        string `json:"item_id"`
	Kind          string `json:"kind"` // started or ended
}
