package turn

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/rs/zerolog/log"
)

// Scheduler applies rotation changes to stored rooms and owns the timers that
// close advantage windows.
type Scheduler struct {
	repo      *store.Repository
	publisher events.Publisher
	clock     clockwork.Clock
	onError   func(code string, err error)

	timersMu sync.Mutex
	timers   map[string]advantageTimer
}

type advantageTimer struct {
	timer      clockwork.Timer
	turnNumber int
}

// NewScheduler creates a scheduler. onError receives failures of timer
// driven writes, which have no caller to return to.
func NewScheduler(repo *store.Repository, publisher events.Publisher, clock clockwork.Clock, onError func(code string, err error)) *Scheduler {
	if onError == nil {
		onError = func(string, error) {}
	}
	return &Scheduler{
		repo:      repo,
		publisher: publisher,
		clock:     clock,
		onError:   onError,
		timers:    make(map[string]advantageTimer),
	}
}

// InitializeRotation builds the rotation of a stored room.
func (s *Scheduler) InitializeRotation(ctx context.Context, code string) (*models.TurnState, error) {
	s.Cancel(code)
	room, err := s.repo.Mutate(ctx, code, func(room *models.Room) error {
		if _, err := Initialize(room); err != nil {
			return err
		}
		room.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("room", code).Strs("order", room.Turn.Order).Msg("turn rotation initialized")
	return room.Turn, nil
}

// Advance moves to the next turn and schedules the end of its advantage
// window. The previous turn's timer is replaced only once the write commits.
func (s *Scheduler) Advance(ctx context.Context, code string) (*models.TurnState, error) {
	room, err := s.repo.Mutate(ctx, code, func(room *models.Room) error {
		now := s.clock.Now()
		if _, err := Advance(room, now); err != nil {
			return err
		}
		room.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Schedule(ctx, room)
	return room.Turn, nil
}

// StartTurn opens the turn serving itemID inside the caller's own write. The
// caller must call Schedule once that write is committed.
func (s *Scheduler) StartTurn(room *models.Room, itemID string) (*models.TurnState, error) {
	return Begin(room, itemID, s.clock.Now())
}

// Schedule announces the current turn of room and arms its advantage timer.
func (s *Scheduler) Schedule(ctx context.Context, room *models.Room) {
	t := room.Turn
	if t == nil || !t.AdvantagePhase {
		return
	}
	code, number := room.Code, t.TurnNumber

	s.emit(ctx, code, events.TypeTurnStarted, events.TurnStartedPayload{
		TurnNumber:       number,
		CurrentPlayerID:  t.CurrentPlayerID,
		StartedAt:        t.StartedAt,
		AdvantageSeconds: room.GameMode.Settings.AdvantageSeconds,
	})

	d := AdvantageDeadline(room).Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	timer := s.clock.AfterFunc(d, func() {
		s.removeTimer(code, number)
		if _, err := s.EndAdvantage(context.Background(), code, number); err != nil {
			s.onError(code, err)
		}
	})
	s.replaceTimer(code, number, timer)

	log.Debug().
		Str("room", code).
		Int("turn_number", number).
		Str("current_player_id", t.CurrentPlayerID).
		Dur("advantage", d).
		Msg("scheduled advantage window end")
}

// EndAdvantage opens signaling to everyone for turnNumber. It is a no-op when
// the rotation has moved on or the window of turnNumber was restarted and has
// not run out, so late timers cannot close a newer window.
func (s *Scheduler) EndAdvantage(ctx context.Context, code string, turnNumber int) (bool, error) {
	ended := false
	_, err := s.repo.Mutate(ctx, code, func(room *models.Room) error {
		ended = false
		if room.Turn != nil && s.clock.Now().Before(AdvantageDeadline(room)) {
			return store.ErrNoChange
		}
		ended = EndAdvantage(room, turnNumber)
		if !ended {
			return store.ErrNoChange
		}
		room.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return false, err
	}
	if ended {
		log.Info().Str("room", code).Int("turn_number", turnNumber).Msg("advantage window ended")
		s.emit(ctx, code, events.TypeAdvantageEnded, events.AdvantageEndedPayload{TurnNumber: turnNumber})
	}
	return ended, nil
}

// Cancel stops the pending advantage timer of a room.
func (s *Scheduler) Cancel(code string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if t, ok := s.timers[code]; ok {
		t.timer.Stop()
		delete(s.timers, code)
	}
}

// Stop cancels every pending timer.
func (s *Scheduler) Stop() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	for code, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, code)
	}
}

func (s *Scheduler) replaceTimer(code string, number int, timer clockwork.Timer) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if existing, ok := s.timers[code]; ok {
		existing.timer.Stop()
		log.Debug().Str("room", code).Int("turn_number", number).Msg("replaced existing advantage timer")
	}
	s.timers[code] = advantageTimer{timer: timer, turnNumber: number}
}

// removeTimer forgets a fired timer unless a newer turn replaced it.
func (s *Scheduler) removeTimer(code string, number int) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if t, ok := s.timers[code]; ok && t.turnNumber == number {
		delete(s.timers, code)
	}
}

// Pending reports whether an advantage timer is armed for a room.
func (s *Scheduler) Pending(code string) bool {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	_, ok := s.timers[code]
	return ok
}

func (s *Scheduler) emit(ctx context.Context, code string, typ events.Type, payload any) {
	e, err := events.New(code, typ, payload, s.clock.Now())
	if err == nil {
		err = s.publisher.Publish(ctx, e)
	}
	if err != nil {
		log.Error().Err(err).Str("room", code).Str("event_type", string(typ)).Msg("failed to publish event")
	}
}
