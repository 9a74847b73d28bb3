// Package race resolves which participant signals first.
package race

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/mcdev12/buzzroom/go/internal/room/gate"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/rs/zerolog/log"
)

// Outcome is the result of a signal attempt.
type Outcome struct {
	Won    bool
	Reason gate.Reason // why the attempt was rejected
	// ConfigError is set when the rejection stems from room misconfiguration.
	ConfigError bool
	Winner      *models.WinnerRecord
}

// Rejected reports whether the attempt lost.
func (o Outcome) Rejected() bool { return !o.Won }

// Resolver arbitrates signal attempts through the room store.
type Resolver struct {
	repo      *store.Repository
	publisher events.Publisher
	clock     clockwork.Clock
}

// NewResolver creates a resolver.
func NewResolver(repo *store.Repository, publisher events.Publisher, clock clockwork.Clock) *Resolver {
	return &Resolver{repo: repo, publisher: publisher, clock: clock}
}

// AttemptSignal tries to make participantID the winner of the current round.
// Exactly one of any number of concurrent callers wins: the winner is set by
// a single conditional write whose precondition is an absent winner with
// signaling enabled. Losers never change scores.
//
// Under expert mode the attempt is recorded in the same write, also when the
// attempt loses to an existing winner.
func (r *Resolver) AttemptSignal(ctx context.Context, code, participantID, name string) (Outcome, error) {
	var out Outcome

	room, err := r.repo.Mutate(ctx, code, func(room *models.Room) error {
		out = Outcome{}
		decision := gate.MayAttemptSignal(room, participantID)
		expert := room.GameMode.Mode == models.ModeExpert && room.CurrentItemID != ""

		if !decision.Allowed {
			out.Reason = decision.Reason
			out.ConfigError = decision.ConfigError
			if expert && decision.Reason == gate.ReasonAlreadyWon {
				room.RecordAttempt(room.CurrentItemID, participantID)
				room.UpdatedAt = r.clock.Now()
				return nil
			}
			return store.ErrNoChange
		}

		if expert {
			room.RecordAttempt(room.CurrentItemID, participantID)
		}

		winnerName := name
		if winnerName == "" {
			winnerName = room.Players[participantID].Name
		}
		now := r.clock.Now()
		room.Winner = &models.WinnerRecord{
			ParticipantID:   participantID,
			ParticipantName: winnerName,
			Timestamp:       now,
		}
		room.SignalEnabled = false
		room.Phase = models.PhaseSignalReceived
		room.UpdatedAt = now

		out.Won = true
		out.Winner = room.Winner
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if !out.Won {
		log.Debug().
			Str("room", code).
			Str("participant_id", participantID).
			Str("reason", string(out.Reason)).
			Msg("signal attempt rejected")
		return out, nil
	}

	log.Info().
		Str("room", code).
		Str("participant_id", participantID).
		Str("item_id", room.CurrentItemID).
		Msg("signal won")

	r.emit(ctx, code, events.TypeSignalWon, events.SignalWonPayload{
		ParticipantID:   out.Winner.ParticipantID,
		ParticipantName: out.Winner.ParticipantName,
		ItemID:          room.CurrentItemID,
		WonAt:           out.Winner.Timestamp,
	})
	r.emit(ctx, code, events.TypePauseBacking, events.PauseBackingPayload{ItemID: room.CurrentItemID})
	return out, nil
}

func (r *Resolver) emit(ctx context.Context, code string, typ events.Type, payload any) {
	e, err := events.New(code, typ, payload, r.clock.Now())
	if err == nil {
		err = r.publisher.Publish(ctx, e)
	}
	if err != nil {
		log.Error().Err(err).Str("room", code).Str("event_type", string(typ)).Msg("failed to publish event")
	}
}
