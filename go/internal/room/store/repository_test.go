package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepositoryConfig() RepositoryConfig {
	return RepositoryConfig{MaxWriteAttempts: 64, MaxReadRetries: 2, RetryDelay: time.Millisecond}
}

func TestRepository_MutateIsLinearizable(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore(), testRepositoryConfig())
	require.NoError(t, repo.Create(ctx, newTestRoom("ROOM1")))

	var conflicts atomic.Int64
	repo.OnConflict(func() { conflicts.Add(1) })

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(ctx, "ROOM1", func(room *models.Room) error {
				room.Players["host"].Points++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	room, _, err := repo.Load(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Equal(t, writers, room.Players["host"].Points)
	t.Logf("conflicts observed: %d", conflicts.Load())
}

func TestRepository_MutateNoChange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	repo := NewRepository(s, testRepositoryConfig())
	require.NoError(t, repo.Create(ctx, newTestRoom("ROOM1")))
	_, before, err := s.Get(ctx, "ROOM1")
	require.NoError(t, err)

	room, err := repo.Mutate(ctx, "ROOM1", func(room *models.Room) error {
		room.SignalEnabled = true
		return ErrNoChange
	})
	require.NoError(t, err)
	assert.NotNil(t, room)

	stored, after, err := s.Get(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, stored.SignalEnabled)
}

func TestRepository_MutateAbortDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	repo := NewRepository(s, testRepositoryConfig())
	require.NoError(t, repo.Create(ctx, newTestRoom("ROOM1")))

	boom := roomerr.Validation("nope")
	_, err := repo.Mutate(ctx, "ROOM1", func(room *models.Room) error {
		room.SignalEnabled = true
		return boom
	})
	assert.ErrorIs(t, err, roomerr.ErrValidation)

	stored, _, err := s.Get(ctx, "ROOM1")
	require.NoError(t, err)
	assert.False(t, stored.SignalEnabled)
}

func TestRepository_MissingRoomIsFatal(t *testing.T) {
	repo := NewRepository(NewMemoryStore(), testRepositoryConfig())
	_, err := repo.Mutate(context.Background(), "GONE", func(*models.Room) error { return nil })
	assert.ErrorIs(t, err, roomerr.ErrFatal)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_CreateDuplicateIsConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore(), testRepositoryConfig())
	require.NoError(t, repo.Create(ctx, newTestRoom("ROOM1")))
	assert.ErrorIs(t, repo.Create(ctx, newTestRoom("ROOM1")), roomerr.ErrConflict)
	assert.ErrorIs(t, repo.Create(ctx, newTestRoom("bad code")), roomerr.ErrValidation)
}

type flakyStore struct {
	Store
	failures int
	calls    int
}

func (f *flakyStore) Get(ctx context.Context, code string) (*models.Room, uint64, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, 0, errors.New("connection reset")
	}
	return f.Store.Get(ctx, code)
}

func TestRepository_LoadRetriesTransportErrors(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	_, err := mem.Create(ctx, newTestRoom("ROOM1"))
	require.NoError(t, err)

	flaky := &flakyStore{Store: mem, failures: 2}
	repo := NewRepository(flaky, testRepositoryConfig())
	room, _, err := repo.Load(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Equal(t, "ROOM1", room.Code)
	assert.Equal(t, 3, flaky.calls)

	flaky = &flakyStore{Store: mem, failures: 10}
	repo = NewRepository(flaky, testRepositoryConfig())
	_, _, err = repo.Load(ctx, "ROOM1")
	assert.ErrorIs(t, err, roomerr.ErrTransport)
}

type failingUpdateStore struct {
	Store
}

func (f failingUpdateStore) Update(context.Context, *models.Room, uint64) (uint64, error) {
	return 0, errors.New("timeout")
}

func TestRepository_WriteTransportErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	_, err := mem.Create(ctx, newTestRoom("ROOM1"))
	require.NoError(t, err)

	calls := 0
	repo := NewRepository(failingUpdateStore{Store: mem}, testRepositoryConfig())
	_, err = repo.Mutate(ctx, "ROOM1", func(*models.Room) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, roomerr.ErrTransport)
	assert.Equal(t, 1, calls)
}
