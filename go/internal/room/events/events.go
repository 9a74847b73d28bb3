// Package events defines the closed set of messages the orchestrator emits to
// subscribed components.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/buzzroom/go/internal/models"
)

// Type identifies a message.
type Type string

const (
	TypeModeChanged       Type = "ModeChanged"
	TypeCountdownTick     Type = "CountdownTick"
	TypeSignalingOpened   Type = "SignalingOpened"
	TypeSignalingClosed   Type = "SignalingClosed"
	TypeTurnStarted       Type = "TurnStarted"
	TypeAdvantageEnded    Type = "AdvantageEnded"
	TypeSignalWon         Type = "SignalWon"
	TypePauseBacking      Type = "PauseBacking"
	TypeAnswerSubmitted   Type = "AnswerSubmitted"
	TypeAdjudicated       Type = "Adjudicated"
	TypeRoundReset        Type = "RoundReset"
	TypeConfigError       Type = "ConfigError"
	TypeSessionTerminated Type = "SessionTerminated"
)

// Event is the envelope of every message.
type Event struct {
	ID        string          `json:"id"`
	Room      string          `json:"room"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type ModeChangedPayload struct {
	GameMode models.GameMode `json:"game_mode"`
}

type CountdownTickPayload struct {
	Active bool `json:"active"`
	Value  int  `json:"value"`
}

type SignalingOpenedPayload struct {
	ItemID string `json:"item_id"`
}

type SignalingClosedPayload struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

type TurnStartedPayload struct {
	TurnNumber       int       `json:"turn_number"`
	CurrentPlayerID  string    `json:"current_player_id"`
	StartedAt        time.Time `json:"started_at"`
	AdvantageSeconds int       `json:"advantage_seconds"`
}

type AdvantageEndedPayload struct {
	TurnNumber int `json:"turn_number"`
}

type SignalWonPayload struct {
	ParticipantID   string    `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	ItemID          string    `json:"item_id"`
	WonAt           time.Time `json:"won_at"`
}

type PauseBackingPayload struct {
	ItemID string `json:"item_id"`
}

type AnswerSubmittedPayload struct {
	ParticipantID string `json:"participant_id"`
	AnswerText    string `json:"answer_text"`
}

type AdjudicatedPayload struct {
	ParticipantID string         `json:"participant_id"`
	Verdict       models.Verdict `json:"verdict"`
	Points        int            `json:"points"`
	Delta         int            `json:"delta"`
	Streak        int            `json:"streak"`
}

type RoundResetPayload struct {
	SignalEnabled bool `json:"signal_enabled"`
}

type ConfigErrorPayload struct {
	Message string `json:"message"`
}

type SessionTerminatedPayload struct {
	Reason string `json:"reason"`
}

// New wraps payload in an envelope.
func New(room string, typ Type, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{
		ID:        uuid.New().String(),
		Room:      room,
		Type:      typ,
		Timestamp: at,
		Data:      data,
	}, nil
}

// Decode parses the payload of e into its concrete type.
func Decode(e Event) (any, error) {
	var target any
	switch e.Type {
	case TypeModeChanged:
		target = &ModeChangedPayload{}
	case TypeCountdownTick:
		target = &CountdownTickPayload{}
	case TypeSignalingOpened:
		target = &SignalingOpenedPayload{}
	case TypeSignalingClosed:
		target = &SignalingClosedPayload{}
	case TypeTurnStarted:
		target = &TurnStartedPayload{}
	case TypeAdvantageEnded:
		target = &AdvantageEndedPayload{}
	case TypeSignalWon:
		target = &SignalWonPayload{}
	case TypePauseBacking:
		target = &PauseBackingPayload{}
	case TypeAnswerSubmitted:
		target = &AnswerSubmittedPayload{}
	case TypeAdjudicated:
		target = &AdjudicatedPayload{}
	case TypeRoundReset:
		target = &RoundResetPayload{}
	case TypeConfigError:
		target = &ConfigErrorPayload{}
	case TypeSessionTerminated:
		target = &SessionTerminatedPayload{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", e.Type)
	}
	if err := json.Unmarshal(e.Data, target); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}
	return target, nil
}
