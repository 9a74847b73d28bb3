// Package store holds the shared room record. A room is stored as one value
// under one key, and every write is conditional on the revision that was read,
// so concurrent writers are linearized by the backing store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/mcdev12/buzzroom/go/internal/models"
)

var (
	ErrNotFound         = errors.New("room not found")
	ErrExists           = errors.New("room already exists")
	ErrRevisionMismatch = errors.New("revision mismatch")
)

// Snapshot is one observed version of a room. Deleted snapshots carry no room.
type Snapshot struct {
	Code     string
	Room     *models.Room
	Revision uint64
	Deleted  bool
}

// Store is the contract every backend implements.
type Store interface {
	// Get returns the room and the revision it was read at.
	Get(ctx context.Context, code string) (*models.Room, uint64, error)
	// Create writes room only if no room with the same code exists.
	Create(ctx context.Context, room *models.Room) (uint64, error)
	// Update writes room only if the stored revision still equals expected.
	Update(ctx context.Context, room *models.Room, expected uint64) (uint64, error)
	Delete(ctx context.Context, code string) error
	// Watch streams full-room snapshots until ctx is done. The current value,
	// if any, is delivered first.
	Watch(ctx context.Context, code string) (<-chan Snapshot, error)
}

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidCode reports whether code can be used as a room key on every backend.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

func encodeRoom(room *models.Room) ([]byte, error) {
	data, err := json.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("marshal room %s: %w", room.Code, err)
	}
	return data, nil
}

func decodeRoom(data []byte) (*models.Room, error) {
	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("unmarshal room: %w", err)
	}
	if room.Players == nil {
		room.Players = make(map[string]*models.Player)
	}
	if room.AttemptsPerItem == nil {
		room.AttemptsPerItem = make(map[string]map[string]bool)
	}
	return &room, nil
}

// offer delivers snap on ch, replacing the oldest pending snapshot when the
// subscriber is behind. Only the latest state matters to a subscriber.
func offer(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
