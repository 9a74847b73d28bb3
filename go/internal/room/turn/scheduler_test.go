package turn

import (
	"context"
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

// startTurn opens the turn for item the way a round opening does: inside a
// room write, scheduled after the commit.
func startTurn(t *testing.T, ctx context.Context, s *Scheduler, repo *store.Repository, code, item string) *models.TurnState {
	t.Helper()
	room, err := repo.Mutate(ctx, code, func(room *models.Room) error {
		_, err := s.StartTurn(room, item)
		return err
	})
	require.NoError(t, err)
	s.Schedule(ctx, room)
	return room.Turn
}

func TestScheduler_AdvantageWindow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room := roomtest.Open(roomtest.Room("TB", models.ModeTurnBased, "A", "B", "C"), "item-1")
	repo, _ := roomtest.Repository(t, room)
	clock := clockwork.NewFakeClockAt(roomtest.Epoch)
	bus := events.NewBus(16)
	sub := bus.Subscribe(ctx, "TB")
	s := NewScheduler(repo, bus, clock, nil)
	defer s.Stop()

	_, err := s.InitializeRotation(ctx, "TB")
	require.NoError(t, err)
	ts := startTurn(t, ctx, s, repo, "TB", "item-1")
	require.Equal(t, "A", ts.CurrentPlayerID)
	assert.Equal(t, events.TypeTurnStarted, (<-sub).Type)

	clock.Advance(9 * time.Second)
	current := roomtest.Load(t, repo, "TB")
	assert.False(t, gate.MayAttemptSignal(current, "B").Allowed)
	assert.True(t, gate.MayAttemptSignal(current, "A").Allowed)

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return !roomtest.Load(t, repo, "TB").Turn.AdvantagePhase
	}, time.Second, 5*time.Millisecond)
	assert.True(t, gate.MayAttemptSignal(roomtest.Load(t, repo, "TB"), "B").Allowed)
	assert.Equal(t, events.TypeAdvantageEnded, (<-sub).Type)
	assert.Eventually(t, func() bool { return !s.Pending("TB") }, time.Second, 5*time.Millisecond)
}

func TestScheduler_StaleTimerIsNoOp(t *testing.T) {
	ctx := context.Background()
	room := roomtest.Open(roomtest.Room("TB", models.ModeTurnBased, "A", "B"), "item-1")
	repo, _ := roomtest.Repository(t, room)
	clock := clockwork.NewFakeClockAt(roomtest.Epoch)
	s := NewScheduler(repo, events.NewBus(16), clock, nil)
	defer s.Stop()

	_, err := s.InitializeRotation(ctx, "TB")
	require.NoError(t, err)
	startTurn(t, ctx, s, repo, "TB", "item-1")

	clock.Advance(5 * time.Second)
	ts, err := s.Advance(ctx, "TB")
	require.NoError(t, err)
	require.Equal(t, 2, ts.TurnNumber)

	ended, err := s.EndAdvantage(ctx, "TB", 1)
	require.NoError(t, err)
	assert.False(t, ended)
	assert.True(t, roomtest.Load(t, repo, "TB").Turn.AdvantagePhase)

	// the first turn's deadline passes but the second window stays open
	clock.Advance(5 * time.Second)
	assert.True(t, roomtest.Load(t, repo, "TB").Turn.AdvantagePhase)

	clock.Advance(5 * time.Second)
	assert.Eventually(t, func() bool {
		return !roomtest.Load(t, repo, "TB").Turn.AdvantagePhase
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_CancelStopsTimer(t *testing.T) {
	ctx := context.Background()
	room := roomtest.Open(roomtest.Room("TB", models.ModeTurnBased, "A"), "item-1")
	repo, _ := roomtest.Repository(t, room)
	clock := clockwork.NewFakeClockAt(roomtest.Epoch)
	s := NewScheduler(repo, events.NewBus(16), clock, nil)

	_, err := s.InitializeRotation(ctx, "TB")
	require.NoError(t, err)
	startTurn(t, ctx, s, repo, "TB", "item-1")
	require.True(t, s.Pending("TB"))

	s.Cancel("TB")
	assert.False(t, s.Pending("TB"))
	clock.Advance(time.Minute)
	assert.True(t, roomtest.Load(t, repo, "TB").Turn.AdvantagePhase)
}

func TestScheduler_AdvancedTurnServesNextItem(t *testing.T) {
	ctx := context.Background()
	room := roomtest.Open(roomtest.Room("TB", models.ModeTurnBased, "A", "B", "C"), "item-1")
	repo, _ := roomtest.Repository(t, room)
	clock := clockwork.NewFakeClockAt(roomtest.Epoch)
	s := NewScheduler(repo, events.NewBus(16), clock, nil)
	defer s.Stop()

	_, err := s.InitializeRotation(ctx, "TB")
	require.NoError(t, err)
	startTurn(t, ctx, s, repo, "TB", "item-1")

	clock.Advance(20 * time.Second)
	ts, err := s.Advance(ctx, "TB")
	require.NoError(t, err)
	require.Equal(t, "B", ts.CurrentPlayerID)

	// the next item goes to B with a fresh window
	clock.Advance(4 * time.Second)
	ts = startTurn(t, ctx, s, repo, "TB", "item-2")
	assert.Equal(t, "B", ts.CurrentPlayerID)
	assert.Equal(t, 2, ts.TurnNumber)
	assert.True(t, clock.Now().Equal(ts.StartedAt))

	// the deadline of the window opened by Advance does not close the new one
	clock.Advance(6 * time.Second)
	ended, err := s.EndAdvantage(ctx, "TB", 2)
	require.NoError(t, err)
	assert.False(t, ended)
	assert.True(t, roomtest.Load(t, repo, "TB").Turn.AdvantagePhase)

	clock.Advance(4 * time.Second)
	assert.Eventually(t, func() bool {
		return !roomtest.Load(t, repo, "TB").Turn.AdvantagePhase
	}, time.Second, 5*time.Millisecond)

	ts = startTurn(t, ctx, s, repo, "TB", "item-3")
	assert.Equal(t, "C", ts.CurrentPlayerID)
}
