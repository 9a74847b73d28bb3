// Package gate decides whether a participant may currently try to signal.
package gate

import "github.com/mcdev12/buzzroom/go/internal/models"

// Reason explains a decision.
type Reason string

const (
	ReasonAllowed            Reason = "allowed"
	ReasonUnknownParticipant Reason = "unknown participant"
	ReasonHost               Reason = "host cannot signal"
	ReasonCountdownActive    Reason = "countdown active"
	ReasonSignalDisabled     Reason = "signaling closed"
	ReasonAlreadyWon         Reason = "already won"
	ReasonAlreadyAttempted   Reason = "already attempted this item"
	ReasonNotYourTurn        Reason = "advantage window belongs to another player"
	ReasonRotationMissing    Reason = "turn rotation not initialized"
)

// Decision is the verdict of MayAttemptSignal.
type Decision struct {
	Allowed bool
	Reason  Reason
	// ConfigError marks a denial caused by room misconfiguration; it is
	// surfaced to the host rather than the participant.
	ConfigError bool
}

func allow() Decision        { return Decision{Allowed: true, Reason: ReasonAllowed} }
func deny(r Reason) Decision { return Decision{Reason: r} }

// MayAttemptSignal reports whether participantID may attempt to signal in
// room right now. It has no side effects.
func MayAttemptSignal(room *models.Room, participantID string) Decision {
	p, ok := room.Players[participantID]
	if !ok {
		return deny(ReasonUnknownParticipant)
	}
	if p.IsHost {
		return deny(ReasonHost)
	}
	// countdown wins over every mode rule
	if room.CountdownActive() {
		return deny(ReasonCountdownActive)
	}

	switch room.GameMode.Mode {
	case models.ModeTurnBased:
		if room.Turn == nil {
			return Decision{Reason: ReasonRotationMissing, ConfigError: true}
		}
		if room.Turn.AdvantagePhase && participantID != room.Turn.CurrentPlayerID {
			return deny(ReasonNotYourTurn)
		}
	case models.ModeExpert:
		if room.HasAttempted(room.CurrentItemID, participantID) {
			return deny(ReasonAlreadyAttempted)
		}
	}

	return base(room)
}

// base is the gate shared by every mode.
func base(room *models.Room) Decision {
	if room.Winner != nil {
		return deny(ReasonAlreadyWon)
	}
	if !room.SignalEnabled {
		return deny(ReasonSignalDisabled)
	}
	return allow()
}
