package orchestrator

import (
	"context"
	"strings"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
	"github.com/rs/zerolog/log"
)

const maxNameLength = 64

// CreateRoom registers a new room owned by hostID.
func (o *Orchestrator) CreateRoom(ctx context.Context, code, hostID, hostName string, mode models.Mode) (room *models.Room, err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "CreateRoom", code, start, err) }()

	if mode == "" {
		mode = models.ModeClassic
	}
	if !mode.Valid() {
		return nil, roomerr.Validation("unknown mode %q", mode)
	}
	if hostID == "" {
		return nil, roomerr.Validation("host id is required")
	}
	name, err := cleanName(hostName)
	if err != nil {
		return nil, err
	}

	room = models.NewRoom(code, hostID, name, o.presets.GameMode(mode), o.clock.Now())
	if err := o.repo.Create(ctx, room); err != nil {
		return nil, err
	}
	log.Info().Str("room", code).Str("host_id", hostID).Str("mode", string(mode)).Msg("room created")
	return room, nil
}

// JoinRoom adds a participant. Joining again updates name and team.
func (o *Orchestrator) JoinRoom(ctx context.Context, code, participantID, name, team string) (player *models.Player, err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "JoinRoom", code, start, err) }()

	if participantID == "" {
		return nil, roomerr.Validation("participant id is required")
	}
	name, err = cleanName(name)
	if err != nil {
		return nil, err
	}
	team = strings.TrimSpace(team)

	_, err = o.repo.Mutate(ctx, code, func(room *models.Room) error {
		now := o.clock.Now()
		if p, ok := room.Players[participantID]; ok {
			p.Name = name
			if !p.IsHost {
				p.Team = team
			}
			player = p
		} else {
			player = &models.Player{ID: participantID, Name: name, Team: team, JoinedAt: now}
			room.Players[participantID] = player
		}
		room.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("room", code).Str("participant_id", participantID).Msg("participant joined")
	return player, nil
}

// LeaveRoom removes a participant. The host cannot leave; it deletes the room.
func (o *Orchestrator) LeaveRoom(ctx context.Context, code, participantID string) (err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "LeaveRoom", code, start, err) }()

	return o.removePlayer(ctx, code, participantID, "left")
}

// KickPlayer removes a participant on behalf of the host.
func (o *Orchestrator) KickPlayer(ctx context.Context, code, actor, participantID string) (err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "KickPlayer", code, start, err) }()

	if _, err := o.loadAsHost(ctx, code, actor, "kick players"); err != nil {
		return err
	}
	return o.removePlayer(ctx, code, participantID, "kicked")
}

func (o *Orchestrator) removePlayer(ctx context.Context, code, participantID, how string) error {
	var closedAdvantage int
	_, err := o.repo.Mutate(ctx, code, func(room *models.Room) error {
		closedAdvantage = 0
		p, ok := room.Players[participantID]
		if !ok {
			return roomerr.Validation("participant %s is not in room %s", participantID, code)
		}
		if p.IsHost {
			return roomerr.Validation("the host cannot leave; delete the room instead")
		}
		delete(room.Players, participantID)

		// a departed winner cannot be adjudicated
		if room.Winner != nil && room.Winner.ParticipantID == participantID {
			room.Winner = nil
			room.Phase = models.PhaseAdjudicated
		}
		// nobody else may signal while the window belongs to a departed player
		if t := room.Turn; t != nil && t.AdvantagePhase && t.CurrentPlayerID == participantID {
			t.AdvantagePhase = false
			closedAdvantage = t.TurnNumber
		}
		room.UpdatedAt = o.clock.Now()
		return nil
	})
	if err != nil {
		return err
	}
	if closedAdvantage > 0 {
		o.turns.Cancel(code)
		o.emit(ctx, code, events.TypeAdvantageEnded, events.AdvantageEndedPayload{TurnNumber: closedAdvantage})
	}
	log.Info().Str("room", code).Str("participant_id", participantID).Msgf("participant %s", how)
	return nil
}

// DeleteRoom removes the room and ends its session.
func (o *Orchestrator) DeleteRoom(ctx context.Context, code, actor string) (err error) {
	start := o.clock.Now()
	defer func() {
		err = o.observe(ctx, "DeleteRoom", code, start, err)
		o.forget(code)
	}()

	if _, err := o.loadAsHost(ctx, code, actor, "delete the room"); err != nil {
		return err
	}
	o.cancelTasks(code)
	if err := o.repo.Delete(ctx, code); err != nil {
		return err
	}
	o.terminate(ctx, code, "room deleted by host")
	return nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", roomerr.Validation("name is required")
	}
	if len([]rune(name)) > maxNameLength {
		return "", roomerr.Validation("name longer than %d characters", maxNameLength)
	}
	return name, nil
}
