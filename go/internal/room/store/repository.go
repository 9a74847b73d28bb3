package store

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
	"github.com/rs/zerolog/log"
)

// ErrNoChange returned from a MutateFunc commits nothing and is not an error to the caller.
var ErrNoChange = errors.New("no change")

// MutateFunc edits room in place. It is re-run against a fresh read after
// every lost race, so it must derive everything from the room it is given.
type MutateFunc func(room *models.Room) error

// RepositoryConfig tunes retry behaviour.
type RepositoryConfig struct {
	MaxWriteAttempts int           // CAS attempts before giving up with a conflict
	MaxReadRetries   int           // retries of idempotent reads on transport errors
	RetryDelay       time.Duration // base delay, multiplied by the attempt number
}

// DefaultRepositoryConfig returns production defaults.
func DefaultRepositoryConfig() RepositoryConfig {
	return RepositoryConfig{
		MaxWriteAttempts: 32,
		MaxReadRetries:   3,
		RetryDelay:       100 * time.Millisecond,
	}
}

// Repository is the only way components touch room state.
type Repository struct {
	store      Store
	cfg        RepositoryConfig
	onConflict func()
}

// NewRepository wraps s.
func NewRepository(s Store, cfg RepositoryConfig) *Repository {
	if cfg.MaxWriteAttempts <= 0 {
		cfg.MaxWriteAttempts = 1
	}
	return &Repository{store: s, cfg: cfg, onConflict: func() {}}
}

// OnConflict registers a hook run on every lost compare-and-set.
func (r *Repository) OnConflict(fn func()) {
	if fn != nil {
		r.onConflict = fn
	}
}

// Load reads a room, retrying transport failures with a linear backoff.
func (r *Repository) Load(ctx context.Context, code string) (*models.Room, uint64, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxReadRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, 0, roomerr.Transport(ctx.Err(), "load room %s", code)
			case <-time.After(delay):
			}
		}

		room, rev, err := r.store.Get(ctx, code)
		if err == nil {
			return room, rev, nil
		}
		if errors.Is(err, ErrNotFound) {
			return nil, 0, roomerr.Fatal(err, "room %s", code)
		}
		lastErr = err
		log.Warn().Err(err).Str("room", code).Int("attempt", attempt+1).Msg("room read failed, retrying")
	}
	return nil, 0, roomerr.Transport(lastErr, "load room %s", code)
}

// Create stores a brand new room.
func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	if !ValidCode(room.Code) {
		return roomerr.Validation("invalid room code %q", room.Code)
	}
	if _, err := r.store.Create(ctx, room); err != nil {
		if errors.Is(err, ErrExists) {
			return roomerr.Conflict("room %s already exists", room.Code)
		}
		return roomerr.Transport(err, "create room %s", room.Code)
	}
	return nil
}

// Delete removes a room.
func (r *Repository) Delete(ctx context.Context, code string) error {
	if err := r.store.Delete(ctx, code); err != nil {
		if errors.Is(err, ErrNotFound) {
			return roomerr.Fatal(err, "room %s", code)
		}
		return roomerr.Transport(err, "delete room %s", code)
	}
	return nil
}

// Watch subscribes to snapshots of a room.
func (r *Repository) Watch(ctx context.Context, code string) (<-chan Snapshot, error) {
	ch, err := r.store.Watch(ctx, code)
	if err != nil {
		return nil, roomerr.Transport(err, "watch room %s", code)
	}
	return ch, nil
}

// Mutate applies fn as one atomic conditional write. A lost race re-reads and
// re-runs fn, so preconditions are always evaluated against the state that is
// actually overwritten. Write failures other than a lost race are returned
// without retry: the outcome of such a write is unknown and replaying fn could
// judge the caller's own write as someone else's.
func (r *Repository) Mutate(ctx context.Context, code string, fn MutateFunc) (*models.Room, error) {
	for attempt := 0; attempt < r.cfg.MaxWriteAttempts; attempt++ {
		room, rev, err := r.Load(ctx, code)
		if err != nil {
			return nil, err
		}

		if err := fn(room); err != nil {
			if errors.Is(err, ErrNoChange) {
				return room, nil
			}
			return nil, err
		}

		if _, err := r.store.Update(ctx, room, rev); err != nil {
			switch {
			case errors.Is(err, ErrRevisionMismatch):
				r.onConflict()
				log.Debug().Str("room", code).Int("attempt", attempt+1).Msg("lost compare-and-set, re-reading")
				continue
			case errors.Is(err, ErrNotFound):
				return nil, roomerr.Fatal(err, "room %s", code)
			default:
				return nil, roomerr.Transport(err, "write room %s", code)
			}
		}
		return room, nil
	}
	return nil, roomerr.Conflict("room %s is under heavy contention", code)
}
