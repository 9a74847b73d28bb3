// Package countdown drives the synchronized pre-playback countdown.
package countdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the time between two ticks.
const DefaultInterval = time.Second

// ErrRunning is returned when a countdown is already running for a room.
var ErrRunning = errors.New("countdown already running")

// Sequencer writes countdown ticks to rooms. At most one sequence runs per room.
type Sequencer struct {
	repo      *store.Repository
	publisher events.Publisher
	clock     clockwork.Clock
	interval  time.Duration

	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSequencer creates a sequencer ticking every interval.
func NewSequencer(repo *store.Repository, publisher events.Publisher, clock clockwork.Clock, interval time.Duration) *Sequencer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sequencer{
		repo:      repo,
		publisher: publisher,
		clock:     clock,
		interval:  interval,
		tasks:     make(map[string]*task),
	}
}

// Terminate forces the terminal countdown state on room. It reports whether
// anything changed.
func Terminate(room *models.Room) bool {
	if room.Countdown == nil || (!room.Countdown.Active && room.Countdown.Value == 0) {
		return false
	}
	room.Countdown.Active = false
	room.Countdown.Value = 0
	return true
}

// Run counts down from steps to 0, one write per interval, and blocks until
// the terminal write. then is applied to the room in the same write as the
// natural terminal state. When ctx ends early or a tick write fails the
// sequence stops and the terminal state is forced.
func (s *Sequencer) Run(ctx context.Context, code string, steps int, then store.MutateFunc) error {
	if steps < 0 {
		return fmt.Errorf("invalid countdown steps %d", steps)
	}
	startedAt := s.clock.Now()

	for v := steps; v > 0; v-- {
		if ctx.Err() != nil {
			return s.abort(code, ctx.Err())
		}
		value := v
		if _, err := s.repo.Mutate(ctx, code, func(room *models.Room) error {
			room.Countdown = &models.CountdownState{Active: true, Value: value, StartedAt: startedAt}
			room.UpdatedAt = s.clock.Now()
			return nil
		}); err != nil {
			return s.abort(code, err)
		}
		s.tick(ctx, code, true, value)

		select {
		case <-ctx.Done():
			return s.abort(code, ctx.Err())
		case <-s.clock.After(s.interval):
		}
	}

	if _, err := s.repo.Mutate(ctx, code, func(room *models.Room) error {
		room.Countdown = &models.CountdownState{Active: false, Value: 0, StartedAt: startedAt}
		room.UpdatedAt = s.clock.Now()
		if then != nil {
			return then(room)
		}
		return nil
	}); err != nil {
		return s.abort(code, err)
	}
	s.tick(ctx, code, false, 0)
	log.Info().Str("room", code).Int("steps", steps).Msg("countdown finished")
	return nil
}

// Start runs a countdown in the background. done, when not nil, receives the
// result of Run unless Stop or Cancel interrupted the sequence before its
// terminal write committed.
func (s *Sequencer) Start(code string, steps int, then store.MutateFunc, done func(error)) error {
	s.mu.Lock()
	if _, running := s.tasks[code]; running {
		s.mu.Unlock()
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[code] = t
	s.mu.Unlock()

	go func() {
		defer close(t.done)
		err := s.Run(ctx, code, steps, then)
		// a terminal write that committed is never reported as cancelled
		cancelled := err != nil && ctx.Err() != nil

		s.mu.Lock()
		if s.tasks[code] == t {
			delete(s.tasks, code)
		}
		s.mu.Unlock()
		cancel()

		if done != nil && !cancelled {
			done(err)
		}
	}()
	return nil
}

// Running reports whether a background countdown is in progress for a room.
func (s *Sequencer) Running(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[code]
	return ok
}

// Cancel stops the background countdown of a room, if any, and waits for it
// to exit, including its done callback. It does not write to the store.
func (s *Sequencer) Cancel(code string) {
	s.mu.Lock()
	t, ok := s.tasks[code]
	if ok {
		delete(s.tasks, code)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

// Stop cancels any running countdown and forces the terminal state. Calling
// it when nothing is running is safe and writes nothing.
func (s *Sequencer) Stop(ctx context.Context, code string) error {
	s.Cancel(code)
	changed := false
	_, err := s.repo.Mutate(ctx, code, func(room *models.Room) error {
		changed = Terminate(room)
		if !changed {
			return store.ErrNoChange
		}
		room.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.tick(ctx, code, false, 0)
	}
	return nil
}

// Shutdown cancels every running countdown and forces their terminal state.
// It returns the rooms whose countdown it stopped.
func (s *Sequencer) Shutdown(ctx context.Context) []string {
	s.mu.Lock()
	codes := make([]string, 0, len(s.tasks))
	for code := range s.tasks {
		codes = append(codes, code)
	}
	s.mu.Unlock()

	for _, code := range codes {
		if err := s.Stop(ctx, code); err != nil {
			log.Error().Err(err).Str("room", code).Msg("failed to stop countdown on shutdown")
		}
	}
	return codes
}

// abort forces the terminal state after an interrupted sequence. The write
// uses a fresh context since ctx may be the reason for the abort.
func (s *Sequencer) abort(code string, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changed := false
	_, err := s.repo.Mutate(ctx, code, func(room *models.Room) error {
		changed = Terminate(room)
		if !changed {
			return store.ErrNoChange
		}
		room.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("failed to force countdown terminal state")
	} else if changed {
		s.tick(ctx, code, false, 0)
	}

	if errors.Is(cause, context.Canceled) {
		log.Debug().Str("room", code).Msg("countdown cancelled")
	} else {
		log.Warn().Err(cause).Str("room", code).Msg("countdown aborted")
	}
	return fmt.Errorf("countdown aborted: %w", cause)
}

func (s *Sequencer) tick(ctx context.Context, code string, active bool, value int) {
	e, err := events.New(code, events.TypeCountdownTick, events.CountdownTickPayload{Active: active, Value: value}, s.clock.Now())
	if err == nil {
		err = s.publisher.Publish(ctx, e)
	}
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("failed to publish countdown tick")
	}
}
