package store

import (
	"context"
	"testing"
	"time"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom(code string) *models.Room {
	mode := models.GameMode{Mode: models.ModeClassic, Settings: models.DefaultSettings()}
	return models.NewRoom(code, "host", "Host", mode, time.Unix(1700000000, 0))
}

func TestMemoryStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rev, err := s.Create(ctx, newTestRoom("ROOM1"))
	require.NoError(t, err)

	_, err = s.Create(ctx, newTestRoom("ROOM1"))
	assert.ErrorIs(t, err, ErrExists)

	room, got, err := s.Get(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Equal(t, rev, got)
	assert.True(t, room.IsHost("host"))

	room.SignalEnabled = true
	newRev, err := s.Update(ctx, room, rev)
	require.NoError(t, err)
	assert.Greater(t, newRev, rev)

	// a writer holding the old revision loses
	_, err = s.Update(ctx, room, rev)
	assert.ErrorIs(t, err, ErrRevisionMismatch)

	_, _, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReadsDoNotAlias(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Create(ctx, newTestRoom("ROOM1"))
	require.NoError(t, err)

	a, _, err := s.Get(ctx, "ROOM1")
	require.NoError(t, err)
	a.Players["host"].Points = 99

	b, _, err := s.Get(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Players["host"].Points)
}

func TestMemoryStore_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()
	rev, err := s.Create(ctx, newTestRoom("ROOM1"))
	require.NoError(t, err)

	ch, err := s.Watch(ctx, "ROOM1")
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, rev, first.Revision)
	require.NotNil(t, first.Room)

	room := first.Room
	room.SignalEnabled = true
	_, err = s.Update(ctx, room, rev)
	require.NoError(t, err)

	second := <-ch
	assert.True(t, second.Room.SignalEnabled)

	require.NoError(t, s.Delete(ctx, "ROOM1"))
	third := <-ch
	assert.True(t, third.Deleted)

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestOfferKeepsLatest(t *testing.T) {
	ch := make(chan Snapshot, 1)
	offer(ch, Snapshot{Revision: 1})
	offer(ch, Snapshot{Revision: 2})

	got := <-ch
	assert.Equal(t, uint64(2), got.Revision)
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("ABCD"))
	assert.True(t, ValidCode("room_1-x"))
	assert.False(t, ValidCode(""))
	assert.False(t, ValidCode("a.b"))
	assert.False(t, ValidCode("a b"))
}
