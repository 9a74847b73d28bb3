// Package roomtest builds rooms for tests.
package roomtest

import (
	"context"
	"testing"
	"time"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/stretchr/testify/require"
)

// Epoch is the creation time of every test room.
var Epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// Host is the id of the host of every test room.
const Host = "host"

// Room returns a room in mode with the given contestants joined one second apart.
func Room(code string, mode models.Mode, contestants ...string) *models.Room {
	room := models.NewRoom(code, Host, "Host", models.GameMode{Mode: mode, Settings: models.DefaultSettings()}, Epoch)
	for i, id := range contestants {
		room.Players[id] = &models.Player{ID: id, Name: id, JoinedAt: Epoch.Add(time.Duration(i+1) * time.Second)}
	}
	return room
}

// Open marks room as playing item with signaling enabled.
func Open(room *models.Room, item string) *models.Room {
	room.CurrentItemID = item
	room.Playing = true
	room.SignalEnabled = true
	room.Phase = models.PhaseAwaitingSignal
	return room
}

// Repository returns a memory-backed repository holding room.
func Repository(t *testing.T, room *models.Room) (*store.Repository, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	repo := store.NewRepository(mem, store.RepositoryConfig{MaxWriteAttempts: 64, MaxReadRetries: 1, RetryDelay: time.Millisecond})
	if room != nil {
		require.NoError(t, repo.Create(context.Background(), room))
	}
	return repo, mem
}

// Load reads the current room or fails the test.
func Load(t *testing.T, repo *store.Repository, code string) *models.Room {
	t.Helper()
	room, _, err := repo.Load(context.Background(), code)
	require.NoError(t, err)
	return room
}
