package orchestrator

import (
	"context"
	"strings"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/mcdev12/buzzroom/go/internal/room/race"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
	"github.com/mcdev12/buzzroom/go/internal/room/score"
	"github.com/mcdev12/buzzroom/go/internal/room/turn"
	"github.com/rs/zerolog/log"
)

const maxAnswerLength = 500

// AttemptSignal races participantID for the current round.
func (o *Orchestrator) AttemptSignal(ctx context.Context, code, participantID, name string) (out race.Outcome, err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "AttemptSignal", code, start, err) }()

	out, err = o.resolver.AttemptSignal(ctx, code, participantID, name)
	if err != nil {
		return race.Outcome{}, err
	}

	room, _, loadErr := o.repo.Load(ctx, code)
	mode := ""
	if loadErr == nil {
		mode = string(room.GameMode.Mode)
	}
	o.metrics.RecordSignalAttempt(mode, out.Won, string(out.Reason))

	if out.ConfigError {
		o.emit(ctx, code, events.TypeConfigError, events.ConfigErrorPayload{Message: string(out.Reason)})
	}
	if out.Won {
		o.cancelDelayedOpen(code)
		if err := o.media.Pause(ctx, code); err != nil {
			log.Warn().Err(err).Str("room", code).Msg("failed to pause playback")
		}
	}
	return out, nil
}

// SubmitAnswer attaches the winner's answer to the winner record.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, code, participantID, text string) (err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "SubmitAnswer", code, start, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return roomerr.Validation("answer is empty")
	}
	if len([]rune(text)) > maxAnswerLength {
		return roomerr.Validation("answer longer than %d characters", maxAnswerLength)
	}

	_, err = o.repo.Mutate(ctx, code, func(room *models.Room) error {
		if room.Winner == nil || room.Winner.ParticipantID != participantID {
			return roomerr.Validation("only the current winner may answer")
		}
		answer := text
		room.Winner.AnswerText = &answer
		room.UpdatedAt = o.clock.Now()
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(ctx, code, events.TypeAnswerSubmitted, events.AnswerSubmittedPayload{ParticipantID: participantID, AnswerText: text})
	return nil
}

// Adjudicate applies the host's verdict to the current winner.
func (o *Orchestrator) Adjudicate(ctx context.Context, code, actor string, verdict models.Verdict) (res *score.Result, err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "Adjudicate", code, start, err) }()

	var mode models.Mode
	_, err = o.repo.Mutate(ctx, code, func(room *models.Room) error {
		if err := requireHost(room, actor, "adjudicate"); err != nil {
			return err
		}
		mode = room.GameMode.Mode
		r, err := score.Adjudicate(room, verdict, o.clock.Now())
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.metrics.RecordAdjudication(string(mode), string(verdict))
	log.Info().
		Str("room", code).
		Str("participant_id", res.Player.ID).
		Str("verdict", string(verdict)).
		Int("delta", res.Delta).
		Msg("winner adjudicated")
	o.emit(ctx, code, events.TypeAdjudicated, events.AdjudicatedPayload{
		ParticipantID: res.Player.ID,
		Verdict:       verdict,
		Points:        res.Player.Points,
		Delta:         res.Delta,
		Streak:        res.Player.CurrentStreak,
	})
	return res, nil
}

// SetMode activates mode. Zero-valued overrides take the preset settings.
// Activating turn-based mode builds the rotation in the same write when the
// room has players.
func (o *Orchestrator) SetMode(ctx context.Context, code, actor string, mode models.Mode, overrides *models.ModeSettings) (gm models.GameMode, err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "SetMode", code, start, err) }()

	if !mode.Valid() {
		return models.GameMode{}, roomerr.Validation("unknown mode %q", mode)
	}
	gm = o.presets.GameMode(mode)
	if overrides != nil {
		gm.Settings = merge(gm.Settings, *overrides)
	}
	if err := gm.Validate(); err != nil {
		return models.GameMode{}, roomerr.Validation("%v", err)
	}

	var rotationErr error
	_, err = o.repo.Mutate(ctx, code, func(room *models.Room) error {
		rotationErr = nil
		if err := requireHost(room, actor, "change the mode"); err != nil {
			return err
		}
		switch room.Phase {
		case models.PhaseCountingDown, models.PhaseSignalReceived:
			return roomerr.Validation("cannot change mode during phase %s", room.Phase)
		}
		room.GameMode = gm
		room.Turn = nil
		if mode == models.ModeTurnBased {
			_, rotationErr = turn.Initialize(room)
		}
		room.UpdatedAt = o.clock.Now()
		return nil
	})
	if err != nil {
		return models.GameMode{}, err
	}

	o.turns.Cancel(code)
	o.cancelDelayedOpen(code)
	log.Info().Str("room", code).Str("mode", string(mode)).Msg("mode changed")
	o.emit(ctx, code, events.TypeModeChanged, events.ModeChangedPayload{GameMode: gm})
	if rotationErr != nil {
		o.emit(ctx, code, events.TypeConfigError, events.ConfigErrorPayload{Message: rotationErr.Error()})
	}
	return gm, nil
}

// InitializeRotation rebuilds the turn order from the players now in the room.
func (o *Orchestrator) InitializeRotation(ctx context.Context, code, actor string) (ts *models.TurnState, err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "InitializeRotation", code, start, err) }()

	room, err := o.loadAsHost(ctx, code, actor, "initialize the rotation")
	if err != nil {
		return nil, err
	}
	if room.GameMode.Mode != models.ModeTurnBased {
		return nil, roomerr.Validation("room %s is not in turn-based mode", code)
	}
	return o.turns.InitializeRotation(ctx, code)
}

// AdvanceTurn hands the advantage window to the next player.
func (o *Orchestrator) AdvanceTurn(ctx context.Context, code, actor string) (ts *models.TurnState, err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "AdvanceTurn", code, start, err) }()

	room, err := o.loadAsHost(ctx, code, actor, "advance the turn")
	if err != nil {
		return nil, err
	}
	if room.GameMode.Mode != models.ModeTurnBased {
		return nil, roomerr.Validation("room %s is not in turn-based mode", code)
	}
	return o.turns.Advance(ctx, code)
}

// Standings returns the leaderboard and, in teams mode, the team totals.
func (o *Orchestrator) Standings(ctx context.Context, code string) ([]*models.Player, []score.TeamStanding, error) {
	room, err := o.Snapshot(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	var teams []score.TeamStanding
	if room.GameMode.Mode == models.ModeTeams {
		teams = score.TeamStandings(room)
	}
	return score.Leaderboard(room), teams, nil
}

func merge(base, o models.ModeSettings) models.ModeSettings {
	if o.PointsCorrect != 0 {
		base.PointsCorrect = o.PointsCorrect
	}
	if o.PointsWrong != 0 {
		base.PointsWrong = o.PointsWrong
	}
	if o.PointsExcellent != 0 {
		base.PointsExcellent = o.PointsExcellent
	}
	if o.BuzzDelaySeconds != 0 {
		base.BuzzDelaySeconds = o.BuzzDelaySeconds
	}
	if o.AdvantageSeconds != 0 {
		base.AdvantageSeconds = o.AdvantageSeconds
	}
	if o.CountdownSteps != 0 {
		base.CountdownSteps = o.CountdownSteps
	}
	return base
}
