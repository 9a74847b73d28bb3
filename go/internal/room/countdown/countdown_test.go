package countdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/mcdev12/buzzroom/go/internal/room/gate"
	"github.com/mcdev12/buzzroom/go/internal/room/roomtest"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextTick(t *testing.T, sub <-chan events.Event) events.CountdownTickPayload {
	t.Helper()
	select {
	case e := <-sub:
		require.Equal(t, events.TypeCountdownTick, e.Type)
		payload, err := events.Decode(e)
		require.NoError(t, err)
		return *payload.(*events.CountdownTickPayload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for countdown tick")
	}
	return events.CountdownTickPayload{}
}

func TestRun_TickSequence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room := roomtest.Open(roomtest.Room("CD", models.ModeClassic, "a"), "item-1")
	repo, _ := roomtest.Repository(t, room)
	clock := clockwork.NewFakeClockAt(roomtest.Epoch)
	bus := events.NewBus(16)
	sub := bus.Subscribe(ctx, "CD")
	s := NewSequencer(repo, bus, clock, time.Second)

	finished := make(chan error, 1)
	require.NoError(t, s.Start("CD", 3, func(room *models.Room) error {
		room.Phase = models.PhaseAwaitingSignal
		return nil
	}, func(err error) { finished <- err }))

	var values []int
	var active []bool
	for i := 0; i < 4; i++ {
		tick := nextTick(t, sub)
		values = append(values, tick.Value)
		active = append(active, tick.Active)

		current := roomtest.Load(t, repo, "CD")
		if tick.Active {
			d := gate.MayAttemptSignal(current, "a")
			assert.False(t, d.Allowed)
			assert.Equal(t, gate.ReasonCountdownActive, d.Reason)
			require.NoError(t, clock.BlockUntilContext(ctx, 1))
			clock.Advance(time.Second)
		}
	}

	assert.Equal(t, []int{3, 2, 1, 0}, values)
	assert.Equal(t, []bool{true, true, true, false}, active)
	require.NoError(t, <-finished)

	final := roomtest.Load(t, repo, "CD")
	assert.False(t, final.Countdown.Active)
	assert.Equal(t, models.PhaseAwaitingSignal, final.Phase)
	assert.True(t, gate.MayAttemptSignal(final, "a").Allowed)
	assert.False(t, s.Running("CD"))
}

func TestStop_Idempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room := roomtest.Room("CD", models.ModeClassic, "a")
	repo, _ := roomtest.Repository(t, room)
	clock := clockwork.NewFakeClockAt(roomtest.Epoch)
	s := NewSequencer(repo, events.NewBus(16), clock, time.Second)

	require.NoError(t, s.Start("CD", 3, nil, nil))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.True(t, roomtest.Load(t, repo, "CD").CountdownActive())

	require.NoError(t, s.Stop(ctx, "CD"))
	once := roomtest.Load(t, repo, "CD")
	require.NoError(t, s.Stop(ctx, "CD"))
	twice := roomtest.Load(t, repo, "CD")

	assert.Equal(t, &models.CountdownState{Active: false, Value: 0, StartedAt: roomtest.Epoch}, once.Countdown)
	assert.Equal(t, once.Countdown, twice.Countdown)
	assert.Equal(t, once.UpdatedAt, twice.UpdatedAt)
	assert.False(t, s.Running("CD"))
}

func TestStop_NothingRunning(t *testing.T) {
	room := roomtest.Room("CD", models.ModeClassic, "a")
	repo, _ := roomtest.Repository(t, room)
	s := NewSequencer(repo, events.NewBus(1), clockwork.NewFakeClock(), time.Second)

	require.NoError(t, s.Stop(context.Background(), "CD"))
	assert.Nil(t, roomtest.Load(t, repo, "CD").Countdown)
}

func TestStart_AlreadyRunning(t *testing.T) {
	room := roomtest.Room("CD", models.ModeClassic, "a")
	repo, _ := roomtest.Repository(t, room)
	clock := clockwork.NewFakeClockAt(roomtest.Epoch)
	s := NewSequencer(repo, events.NewBus(16), clock, time.Second)
	defer s.Shutdown(context.Background())

	require.NoError(t, s.Start("CD", 3, nil, nil))
	assert.ErrorIs(t, s.Start("CD", 3, nil, nil), ErrRunning)
}

func TestCancel_DuringTerminalWriteStillReportsCompletion(t *testing.T) {
	room := roomtest.Room("CD", models.ModeClassic, "a")
	repo, _ := roomtest.Repository(t, room)
	s := NewSequencer(repo, events.NewBus(16), clockwork.NewFakeClockAt(roomtest.Epoch), time.Second)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	finished := make(chan error, 1)
	require.NoError(t, s.Start("CD", 0, func(room *models.Room) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		room.Phase = models.PhaseAwaitingSignal
		room.SignalEnabled = true
		return nil
	}, func(err error) { finished <- err }))

	<-entered
	cancelled := make(chan struct{})
	go func() {
		s.Cancel("CD")
		close(cancelled)
	}()
	require.Eventually(t, func() bool { return !s.Running("CD") }, time.Second, time.Millisecond)
	close(release)
	<-cancelled

	// Cancel waits for done, so the result is already there
	select {
	case err := <-finished:
		require.NoError(t, err)
	default:
		t.Fatal("committed terminal write was not reported")
	}
	final := roomtest.Load(t, repo, "CD")
	assert.Equal(t, models.PhaseAwaitingSignal, final.Phase)
	assert.False(t, final.CountdownActive())
}

// failingStore fails every update after the first n.
type failingStore struct {
	store.Store
	okUpdates int
	updates   int
}

func (f *failingStore) Update(ctx context.Context, room *models.Room, expected uint64) (uint64, error) {
	f.updates++
	if f.updates > f.okUpdates && room.CountdownActive() {
		return 0, errors.New("store unreachable")
	}
	return f.Store.Update(ctx, room, expected)
}

func TestRun_WriteFailureForcesTerminalState(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mem := store.NewMemoryStore()
	fs := &failingStore{Store: mem, okUpdates: 1}
	repo := store.NewRepository(fs, store.RepositoryConfig{MaxWriteAttempts: 4, RetryDelay: time.Millisecond})
	require.NoError(t, repo.Create(ctx, roomtest.Room("CD", models.ModeClassic, "a")))
	clock := clockwork.NewFakeClockAt(roomtest.Epoch)
	s := NewSequencer(repo, events.NewBus(16), clock, time.Second)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, "CD", 3, nil) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	err := <-errCh
	require.Error(t, err)
	final := roomtest.Load(t, repo, "CD")
	require.NotNil(t, final.Countdown)
	assert.False(t, final.Countdown.Active)
	assert.Zero(t, final.Countdown.Value)
}
