package models

import (
	"sort"
	"time"
)

// Phase is the authoritative state of a room's round state machine.
type Phase string

const (
	PhaseIdle           Phase = "IDLE"
	PhaseCountingDown   Phase = "COUNTING_DOWN"
	PhaseDelayedOpen    Phase = "DELAYED_OPEN"
	PhaseAwaitingSignal Phase = "AWAITING_SIGNAL"
	PhaseSignalReceived Phase = "SIGNAL_RECEIVED"
	PhaseAdjudicated    Phase = "ADJUDICATED"
)

// Room is the root aggregate of a buzzer session. It is always read and
// written as a whole.
type Room struct {
	Code            string                     `json:"code"`
	HostID          string                     `json:"host_id"`
	Players         map[string]*Player         `json:"players"`
	GameMode        GameMode                   `json:"game_mode"`
	Phase           Phase                      `json:"phase"`
	SignalEnabled   bool                       `json:"signal_enabled"`
	Playing         bool                       `json:"playing"`
	Winner          *WinnerRecord              `json:"winner,omitempty"`
	Countdown       *CountdownState            `json:"countdown,omitempty"`
	Turn            *TurnState                 `json:"turn,omitempty"`
	AttemptsPerItem map[string]map[string]bool `json:"attempts_per_item,omitempty"`
	CurrentItemID   string                     `json:"current_item_id,omitempty"`
	PlayedItems     []string                   `json:"played_items,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

// WinnerRecord is the single first responder of the current round.
type WinnerRecord struct {
	ParticipantID   string    `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	Timestamp       time.Time `json:"timestamp"`
	AnswerText      *string   `json:"answer_text,omitempty"`
}

// CountdownState is the shared pre-playback countdown.
type CountdownState struct {
	Active    bool      `json:"active"`
	Value     int       `json:"value"`
	StartedAt time.Time `json:"started_at"`
}

// TurnState tracks the rotation under turn-based mode.
type TurnState struct {
	Order           []string  `json:"order"`
	TurnNumber      int       `json:"turn_number"`
	CurrentPlayerID string    `json:"current_player_id"`
	StartedAt       time.Time `json:"started_at"`
	AdvantagePhase  bool      `json:"advantage_phase"`
	NextIndex       int       `json:"next_index"`
	// ItemID is the media item this turn was opened for; empty until the
	// turn has served an item.
	ItemID string `json:"item_id,omitempty"`
}

// NewRoom returns an empty room owned by hostID. The host is registered as a player.
func NewRoom(code, hostID, hostName string, mode GameMode, now time.Time) *Room {
	return &Room{
		Code:   code,
		HostID: hostID,
		Players: map[string]*Player{
			hostID: {ID: hostID, Name: hostName, IsHost: true, JoinedAt: now},
		},
		GameMode:        mode,
		Phase:           PhaseIdle,
		AttemptsPerItem: make(map[string]map[string]bool),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsHost reports whether participantID owns the room.
func (r *Room) IsHost(participantID string) bool {
	return participantID != "" && r.HostID == participantID
}

// HasAttempted reports whether participantID already signalled for itemID.
func (r *Room) HasAttempted(itemID, participantID string) bool {
	return r.AttemptsPerItem[itemID][participantID]
}

// RecordAttempt adds participantID to the attempt set of itemID. Adding twice is a no-op.
func (r *Room) RecordAttempt(itemID, participantID string) {
	if r.AttemptsPerItem == nil {
		r.AttemptsPerItem = make(map[string]map[string]bool)
	}
	set := r.AttemptsPerItem[itemID]
	if set == nil {
		set = make(map[string]bool)
		r.AttemptsPerItem[itemID] = set
	}
	set[participantID] = true
}

// ClearAttempt removes participantID from the attempt set of itemID.
func (r *Room) ClearAttempt(itemID, participantID string) {
	set := r.AttemptsPerItem[itemID]
	if set == nil {
		return
	}
	delete(set, participantID)
	if len(set) == 0 {
		delete(r.AttemptsPerItem, itemID)
	}
}

// CountdownActive reports whether a countdown is currently running.
func (r *Room) CountdownActive() bool {
	return r.Countdown != nil && r.Countdown.Active
}

// Contestants returns the non-host players in stable join order.
func (r *Room) Contestants() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.IsHost {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
