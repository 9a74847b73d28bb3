// Package orchestrator owns the round state machine of every room hosted by
// this process. It sequences countdown, playback, gating, the signal race
// and scoring, and it owns every scheduled task of a room.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/countdown"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/mcdev12/buzzroom/go/internal/room/media"
	"github.com/mcdev12/buzzroom/go/internal/room/metrics"
	"github.com/mcdev12/buzzroom/go/internal/room/modes"
	"github.com/mcdev12/buzzroom/go/internal/room/race"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/mcdev12/buzzroom/go/internal/room/turn"
	"github.com/rs/zerolog/log"
)

// Config holds the dependencies of an Orchestrator.
type Config struct {
	Repository        *store.Repository
	Publisher         events.Publisher
	Media             media.Transport
	Metrics           metrics.Collector
	Clock             clockwork.Clock
	Presets           modes.Presets
	CountdownInterval time.Duration
}

type Orchestrator struct {
	repo      *store.Repository
	publisher events.Publisher
	media     media.Transport
	metrics   metrics.Collector
	clock     clockwork.Clock
	presets   modes.Presets

	resolver  *race.Resolver
	turns     *turn.Scheduler
	countdown *countdown.Sequencer

	// easy mode delayed openings, one per room
	delayedMu sync.Mutex
	delayed   map[string]delayedOpen

	// rooms served by this process; only these end their session when the
	// room disappears
	sessionsMu sync.Mutex
	sessions   map[string]struct{}
}

type delayedOpen struct {
	timer  clockwork.Timer
	itemID string
}

// New creates an orchestrator. Missing optional dependencies get no-op defaults.
func New(cfg Config) *Orchestrator {
	if cfg.Publisher == nil {
		cfg.Publisher = events.NewBus(64)
	}
	if cfg.Media == nil {
		cfg.Media = media.Noop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoOp{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Presets == nil {
		cfg.Presets = modes.Default()
	}

	o := &Orchestrator{
		repo:      cfg.Repository,
		publisher: cfg.Publisher,
		media:     cfg.Media,
		metrics:   cfg.Metrics,
		clock:     cfg.Clock,
		presets:   cfg.Presets,
		resolver:  race.NewResolver(cfg.Repository, cfg.Publisher, cfg.Clock),
		countdown: countdown.NewSequencer(cfg.Repository, cfg.Publisher, cfg.Clock, cfg.CountdownInterval),
		delayed:   make(map[string]delayedOpen),
		sessions:  make(map[string]struct{}),
	}
	o.turns = turn.NewScheduler(cfg.Repository, cfg.Publisher, cfg.Clock, o.taskFailed)
	return o
}

// Snapshot returns the current state of a room.
func (o *Orchestrator) Snapshot(ctx context.Context, code string) (*models.Room, error) {
	room, _, err := o.repo.Load(ctx, code)
	if err != nil {
		return nil, o.fail(ctx, code, err)
	}
	o.serve(code)
	return room, nil
}

// Shutdown cancels every scheduled task and leaves running countdowns in
// their terminal state.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	// countdowns first: one that completes while stopping still opens its round
	for _, code := range o.countdown.Shutdown(ctx) {
		if _, err := o.endCountdown(ctx, code); err != nil {
			log.Error().Err(err).Str("room", code).Msg("failed to idle room on shutdown")
		}
	}

	o.turns.Stop()

	o.delayedMu.Lock()
	for code, d := range o.delayed {
		d.timer.Stop()
		delete(o.delayed, code)
	}
	o.delayedMu.Unlock()

	log.Info().Msg("orchestrator shut down")
}

// fail inspects an error about to be returned for code. A fatal error ends
// the session of a served room: its tasks are cancelled and subscribers are
// told. An unknown code is only an error for the caller.
func (o *Orchestrator) fail(ctx context.Context, code string, err error) error {
	if err != nil && errors.Is(err, roomerr.ErrFatal) && o.serving(code) {
		o.terminate(ctx, code, err.Error())
	}
	return err
}

func (o *Orchestrator) serve(code string) {
	o.sessionsMu.Lock()
	o.sessions[code] = struct{}{}
	o.sessionsMu.Unlock()
}

func (o *Orchestrator) forget(code string) {
	o.sessionsMu.Lock()
	delete(o.sessions, code)
	o.sessionsMu.Unlock()
}

func (o *Orchestrator) serving(code string) bool {
	o.sessionsMu.Lock()
	defer o.sessionsMu.Unlock()
	_, ok := o.sessions[code]
	return ok
}

// taskFailed handles errors of timer driven writes.
func (o *Orchestrator) taskFailed(code string, err error) {
	log.Error().Err(err).Str("room", code).Msg("scheduled room task failed")
	_ = o.fail(context.Background(), code, err)
}

func (o *Orchestrator) terminate(ctx context.Context, code, reason string) {
	o.forget(code)
	o.cancelTasks(code)
	log.Warn().Str("room", code).Str("reason", reason).Msg("session terminated")
	o.emit(ctx, code, events.TypeSessionTerminated, events.SessionTerminatedPayload{Reason: reason})
}

func (o *Orchestrator) cancelTasks(code string) {
	o.countdown.Cancel(code)
	o.turns.Cancel(code)
	o.cancelDelayedOpen(code)
}

// observe records the outcome of a client action.
func (o *Orchestrator) observe(ctx context.Context, action, code string, start time.Time, err error) error {
	o.metrics.RecordAction(action, roomerr.Kind(err), o.clock.Since(start))
	if err != nil {
		log.Debug().Err(err).Str("room", code).Str("action", action).Msg("action failed")
		return o.fail(ctx, code, err)
	}
	o.serve(code)
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, code string, typ events.Type, payload any) {
	e, err := events.New(code, typ, payload, o.clock.Now())
	if err == nil {
		err = o.publisher.Publish(ctx, e)
	}
	if err != nil {
		log.Error().Err(err).Str("room", code).Str("event_type", string(typ)).Msg("failed to publish event")
	}
}

func requireHost(room *models.Room, actor, action string) error {
	if !room.IsHost(actor) {
		return roomerr.Validation("only the host may %s", action)
	}
	return nil
}

// loadAsHost reads a room and checks that actor hosts it. The host of a room
// never changes, so the check holds for later writes.
func (o *Orchestrator) loadAsHost(ctx context.Context, code, actor, action string) (*models.Room, error) {
	room, _, err := o.repo.Load(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := requireHost(room, actor, action); err != nil {
		return nil, err
	}
	return room, nil
}
