package orchestrator

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/countdown"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/mcdev12/buzzroom/go/internal/room/gate"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/rs/zerolog/log"
)

// opening describes what openRound did, for the effects that follow the write.
type opening struct {
	itemID      string
	delay       time.Duration // easy mode: signaling opens after delay
	turnStarted bool
	configError string
}

// openRound marks itemID as playing and opens signaling as the mode dictates.
func (o *Orchestrator) openRound(room *models.Room, itemID string, now time.Time) *opening {
	op := &opening{itemID: itemID}
	room.CurrentItemID = itemID
	room.Playing = true
	room.Winner = nil
	room.UpdatedAt = now

	settings := room.GameMode.Settings
	switch room.GameMode.Mode {
	case models.ModeEasy:
		if settings.BuzzDelaySeconds > 0 {
			room.SignalEnabled = false
			room.Phase = models.PhaseDelayedOpen
			op.delay = time.Duration(settings.BuzzDelaySeconds) * time.Second
			return op
		}
	case models.ModeTurnBased:
		if room.Turn == nil {
			op.configError = string(gate.ReasonRotationMissing)
		} else if _, err := o.turns.StartTurn(room, itemID); err != nil {
			op.configError = err.Error()
		} else {
			op.turnStarted = true
		}
	}
	room.SignalEnabled = true
	room.Phase = models.PhaseAwaitingSignal
	return op
}

// afterOpen runs the effects of a committed openRound.
func (o *Orchestrator) afterOpen(ctx context.Context, room *models.Room, op *opening) {
	if op.configError != "" {
		log.Warn().Str("room", room.Code).Str("error", op.configError).Msg("turn rotation misconfigured")
		o.emit(ctx, room.Code, events.TypeConfigError, events.ConfigErrorPayload{Message: op.configError})
	}
	if op.turnStarted {
		o.turns.Schedule(ctx, room)
	}
	if op.delay > 0 {
		o.scheduleDelayedOpen(room.Code, op.itemID, op.delay)
		return
	}
	o.emit(ctx, room.Code, events.TypeSignalingOpened, events.SignalingOpenedPayload{ItemID: op.itemID})
}

// StartCountdown begins the countdown that precedes playback of itemID.
func (o *Orchestrator) StartCountdown(ctx context.Context, code, actor, itemID string) (err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "StartCountdown", code, start, err) }()

	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return roomerr.Validation("item id is required")
	}
	if o.countdown.Running(code) {
		return roomerr.Validation("a countdown is already running")
	}

	var steps int
	var wasPlaying bool
	_, err = o.repo.Mutate(ctx, code, func(room *models.Room) error {
		if err := requireHost(room, actor, "start a countdown"); err != nil {
			return err
		}
		switch room.Phase {
		case models.PhaseCountingDown:
			return roomerr.Validation("a countdown is already running")
		case models.PhaseSignalReceived:
			return roomerr.Validation("adjudicate the current winner first")
		}
		wasPlaying = room.Playing
		steps = room.GameMode.Settings.CountdownSteps

		room.Phase = models.PhaseCountingDown
		room.CurrentItemID = itemID
		room.Playing = false
		room.SignalEnabled = false
		room.Winner = nil
		if !slices.Contains(room.PlayedItems, itemID) {
			room.PlayedItems = append(room.PlayedItems, itemID)
		}
		room.UpdatedAt = o.clock.Now()
		return nil
	})
	if err != nil {
		return err
	}

	o.cancelDelayedOpen(code)
	o.turns.Cancel(code)
	if wasPlaying {
		if err := o.media.Stop(ctx, code); err != nil {
			log.Warn().Err(err).Str("room", code).Msg("failed to stop previous item")
		}
	}

	var op *opening
	finish := func(room *models.Room) error {
		op = nil
		// a stop or reset raced the last tick
		if room.Phase != models.PhaseCountingDown || room.CurrentItemID != itemID {
			return nil
		}
		op = o.openRound(room, itemID, o.clock.Now())
		return nil
	}
	done := func(err error) {
		if err != nil {
			o.metrics.RecordCountdown("aborted")
			o.taskFailed(code, err)
			o.closeAfterAbort(code, itemID)
			return
		}
		o.metrics.RecordCountdown("completed")
		if op == nil {
			return
		}
		ctx := context.Background()
		room, _, err := o.repo.Load(ctx, code)
		if err != nil {
			o.taskFailed(code, err)
			return
		}
		o.afterOpen(ctx, room, op)
		if err := o.media.StartPlayback(ctx, code, itemID); err != nil {
			log.Error().Err(err).Str("room", code).Str("item_id", itemID).Msg("failed to start playback")
		}
	}

	if err := o.countdown.Start(code, steps, finish, done); err != nil {
		if errors.Is(err, countdown.ErrRunning) {
			return roomerr.Validation("a countdown is already running")
		}
		return err
	}
	log.Info().Str("room", code).Str("item_id", itemID).Int("steps", steps).Msg("countdown started")
	return nil
}

// closeAfterAbort returns a room whose countdown failed to idle.
func (o *Orchestrator) closeAfterAbort(code, itemID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := o.repo.Mutate(ctx, code, func(room *models.Room) error {
		if room.Phase != models.PhaseCountingDown || room.CurrentItemID != itemID {
			return store.ErrNoChange
		}
		countdown.Terminate(room)
		room.Phase = models.PhaseIdle
		room.UpdatedAt = o.clock.Now()
		return nil
	})
	if err != nil && !errors.Is(err, roomerr.ErrFatal) {
		log.Error().Err(err).Str("room", code).Msg("failed to idle room after countdown abort")
	}
}

// StopCountdown cancels a running countdown. Stopping twice is the same as once.
func (o *Orchestrator) StopCountdown(ctx context.Context, code, actor string) (err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "StopCountdown", code, start, err) }()

	if _, err := o.loadAsHost(ctx, code, actor, "stop a countdown"); err != nil {
		return err
	}
	o.countdown.Cancel(code)

	terminated, err := o.endCountdown(ctx, code)
	if err != nil {
		return err
	}
	if terminated {
		o.emit(ctx, code, events.TypeCountdownTick, events.CountdownTickPayload{Active: false, Value: 0})
	}
	return nil
}

// endCountdown forces the terminal countdown state and returns a room still
// counting down to idle. A round the countdown already opened is left alone.
func (o *Orchestrator) endCountdown(ctx context.Context, code string) (bool, error) {
	terminated := false
	_, err := o.repo.Mutate(ctx, code, func(room *models.Room) error {
		terminated = countdown.Terminate(room)
		changed := terminated
		if room.Phase == models.PhaseCountingDown {
			room.Phase = models.PhaseIdle
			changed = true
		}
		if !changed {
			return store.ErrNoChange
		}
		room.UpdatedAt = o.clock.Now()
		return nil
	})
	return terminated, err
}

// MediaStarted opens signaling for itemID when playback began outside a
// countdown. Repeated notifications for an open item are ignored.
func (o *Orchestrator) MediaStarted(ctx context.Context, code, itemID string) (err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "MediaStarted", code, start, err) }()

	var op *opening
	room, err := o.repo.Mutate(ctx, code, func(room *models.Room) error {
		op = nil
		if itemID == "" {
			itemID = room.CurrentItemID
		}
		if itemID == "" {
			return roomerr.Validation("item id is required")
		}
		switch room.Phase {
		case models.PhaseCountingDown, models.PhaseSignalReceived:
			return store.ErrNoChange
		case models.PhaseAwaitingSignal, models.PhaseDelayedOpen:
			if room.Playing && room.CurrentItemID == itemID {
				return store.ErrNoChange
			}
		}
		if !slices.Contains(room.PlayedItems, itemID) {
			room.PlayedItems = append(room.PlayedItems, itemID)
		}
		op = o.openRound(room, itemID, o.clock.Now())
		return nil
	})
	if err != nil {
		return err
	}
	if op == nil {
		log.Debug().Str("room", code).Str("item_id", itemID).Msg("ignoring media start")
		return nil
	}
	o.cancelDelayedOpen(code)
	o.afterOpen(ctx, room, op)
	return nil
}

// MediaEnded closes signaling when playback of itemID ends.
func (o *Orchestrator) MediaEnded(ctx context.Context, code, itemID string) (err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "MediaEnded", code, start, err) }()

	closed := false
	_, err = o.repo.Mutate(ctx, code, func(room *models.Room) error {
		closed = false
		if itemID != "" && itemID != room.CurrentItemID {
			return store.ErrNoChange
		}
		if !room.Playing && !room.SignalEnabled {
			return store.ErrNoChange
		}
		room.Playing = false
		room.SignalEnabled = false
		if room.Winner == nil && (room.Phase == models.PhaseAwaitingSignal || room.Phase == models.PhaseDelayedOpen) {
			room.Phase = models.PhaseIdle
		}
		room.UpdatedAt = o.clock.Now()
		closed = true
		return nil
	})
	if err != nil {
		return err
	}
	if closed {
		o.cancelDelayedOpen(code)
		o.emit(ctx, code, events.TypeSignalingClosed, events.SignalingClosedPayload{ItemID: itemID, Reason: "media ended"})
	}
	return nil
}

// ResetRound clears the winner. Signaling re-opens only while media plays.
func (o *Orchestrator) ResetRound(ctx context.Context, code, actor string) (err error) {
	start := o.clock.Now()
	defer func() { err = o.observe(ctx, "ResetRound", code, start, err) }()

	var reopened bool
	var itemID string
	_, err = o.repo.Mutate(ctx, code, func(room *models.Room) error {
		if err := requireHost(room, actor, "reset the round"); err != nil {
			return err
		}
		if room.Phase == models.PhaseCountingDown {
			return roomerr.Validation("stop the countdown before resetting")
		}
		room.Winner = nil
		countdown.Terminate(room)
		switch {
		case room.Playing && room.Phase == models.PhaseDelayedOpen:
			room.SignalEnabled = false
		case room.Playing:
			room.SignalEnabled = true
			room.Phase = models.PhaseAwaitingSignal
		default:
			room.SignalEnabled = false
			room.Phase = models.PhaseIdle
		}
		reopened = room.SignalEnabled
		itemID = room.CurrentItemID
		room.UpdatedAt = o.clock.Now()
		return nil
	})
	if err != nil {
		return err
	}

	o.emit(ctx, code, events.TypeRoundReset, events.RoundResetPayload{SignalEnabled: reopened})
	if reopened {
		if err := o.media.StartPlayback(ctx, code, itemID); err != nil {
			log.Warn().Err(err).Str("room", code).Msg("failed to resume playback")
		}
		o.emit(ctx, code, events.TypeSignalingOpened, events.SignalingOpenedPayload{ItemID: itemID})
	}
	return nil
}

func (o *Orchestrator) scheduleDelayedOpen(code, itemID string, delay time.Duration) {
	timer := o.clock.AfterFunc(delay, func() {
		o.delayedMu.Lock()
		if d, ok := o.delayed[code]; ok && d.itemID == itemID {
			delete(o.delayed, code)
		}
		o.delayedMu.Unlock()
		o.openDelayed(code, itemID)
	})

	o.delayedMu.Lock()
	if existing, ok := o.delayed[code]; ok {
		existing.timer.Stop()
	}
	o.delayed[code] = delayedOpen{timer: timer, itemID: itemID}
	o.delayedMu.Unlock()

	log.Debug().Str("room", code).Str("item_id", itemID).Dur("delay", delay).Msg("scheduled delayed signal opening")
}

func (o *Orchestrator) openDelayed(code, itemID string) {
	ctx := context.Background()
	opened := false
	_, err := o.repo.Mutate(ctx, code, func(room *models.Room) error {
		opened = false
		if room.Phase != models.PhaseDelayedOpen || room.CurrentItemID != itemID || !room.Playing || room.Winner != nil {
			return store.ErrNoChange
		}
		room.SignalEnabled = true
		room.Phase = models.PhaseAwaitingSignal
		room.UpdatedAt = o.clock.Now()
		opened = true
		return nil
	})
	if err != nil {
		o.taskFailed(code, err)
		return
	}
	if opened {
		o.emit(ctx, code, events.TypeSignalingOpened, events.SignalingOpenedPayload{ItemID: itemID})
	}
}

func (o *Orchestrator) cancelDelayedOpen(code string) {
	o.delayedMu.Lock()
	defer o.delayedMu.Unlock()
	if d, ok := o.delayed[code]; ok {
		d.timer.Stop()
		delete(o.delayed, code)
	}
}
