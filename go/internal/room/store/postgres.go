package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Schema creates the rooms table used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
	code       TEXT PRIMARY KEY,
	revision   BIGINT NOT NULL,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresConfig configures PostgresStore.
type PostgresConfig struct {
	DatabaseURL   string
	NotifyChannel string
	PingInterval  time.Duration
}

// DefaultPostgresConfig returns defaults for everything but the DSN.
func DefaultPostgresConfig(dsn string) PostgresConfig {
	return PostgresConfig{
		DatabaseURL:   dsn,
		NotifyChannel: "room_updates",
		PingInterval:  90 * time.Second,
	}
}

// PostgresStore keeps one row per room. Writes run through pgx with a
// revision predicate; every write also issues pg_notify in the same
// transaction, and watchers are fed from a lib/pq LISTEN connection.
type PostgresStore struct {
	pool     *pgxpool.Pool
	listener *pq.Listener
	cfg      PostgresConfig

	mu       sync.Mutex
	watchers map[string]map[chan Snapshot]struct{}
}

// NewPostgresStore connects, ensures the schema and starts listening.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	l := pq.NewListener(cfg.DatabaseURL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Error().Err(err).Msg("room listener event")
		}
	})
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		pool.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.NotifyChannel, err)
	}

	s := &PostgresStore{
		pool:     pool,
		listener: l,
		cfg:      cfg,
		watchers: make(map[string]map[chan Snapshot]struct{}),
	}
	log.Info().Str("channel", cfg.NotifyChannel).Msg("listening for room updates")
	return s, nil
}

// Run dispatches notifications to watchers until ctx is done.
func (s *PostgresStore) Run(ctx context.Context) error {
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Close()
		case note := <-s.listener.Notify:
			if note == nil {
				// the connection was re-established and notifications may have been missed
				s.refreshAll(ctx)
				continue
			}
			s.refresh(ctx, note.Extra)
		case <-pingTicker.C:
			if err := s.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping room listener")
			}
		}
	}
}

// Close releases the listener and the pool.
func (s *PostgresStore) Close() error {
	err := s.listener.Close()
	s.pool.Close()
	return err
}

func (s *PostgresStore) Get(ctx context.Context, code string) (*models.Room, uint64, error) {
	var (
		rev int64
		doc []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT revision, doc FROM rooms WHERE code = $1`, code).Scan(&rev, &doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	room, err := decodeRoom(doc)
	if err != nil {
		return nil, 0, err
	}
	return room, uint64(rev), nil
}

func (s *PostgresStore) Create(ctx context.Context, room *models.Room) (uint64, error) {
	data, err := encodeRoom(room)
	if err != nil {
		return 0, err
	}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO rooms (code, revision, doc) VALUES ($1, 1, $2) ON CONFLICT (code) DO NOTHING`,
			room.Code, data)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrExists
		}
		return s.notify(ctx, tx, room.Code)
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *PostgresStore) Update(ctx context.Context, room *models.Room, expected uint64) (uint64, error) {
	data, err := encodeRoom(room)
	if err != nil {
		return 0, err
	}
	var rev int64
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE rooms SET doc = $1, revision = revision + 1, updated_at = now()
			 WHERE code = $2 AND revision = $3 RETURNING revision`,
			data, room.Code, int64(expected)).Scan(&rev)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE code = $1)`, room.Code).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrRevisionMismatch
		}
		if err != nil {
			return err
		}
		return s.notify(ctx, tx, room.Code)
	})
	if err != nil {
		return 0, err
	}
	return uint64(rev), nil
}

func (s *PostgresStore) Delete(ctx context.Context, code string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM rooms WHERE code = $1`, code)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return s.notify(ctx, tx, code)
	})
}

func (s *PostgresStore) Watch(ctx context.Context, code string) (<-chan Snapshot, error) {
	ch := make(chan Snapshot, 16)

	s.mu.Lock()
	if s.watchers[code] == nil {
		s.watchers[code] = make(map[chan Snapshot]struct{})
	}
	s.watchers[code][ch] = struct{}{}
	s.mu.Unlock()

	s.refresh(ctx, code)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers[code], ch)
		if len(s.watchers[code]) == 0 {
			delete(s.watchers, code)
		}
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *PostgresStore) notify(ctx context.Context, tx pgx.Tx, code string) error {
	_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.cfg.NotifyChannel, code)
	return err
}

// refresh reads the current row for code and hands it to its watchers.
func (s *PostgresStore) refresh(ctx context.Context, code string) {
	s.mu.Lock()
	_, watched := s.watchers[code]
	s.mu.Unlock()
	if !watched {
		return
	}

	snap := Snapshot{Code: code}
	room, rev, err := s.Get(ctx, code)
	switch {
	case errors.Is(err, ErrNotFound):
		snap.Deleted = true
	case err != nil:
		log.Error().Err(err).Str("room", code).Msg("failed to read room for watchers")
		return
	default:
		snap.Room, snap.Revision = room, rev
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers[code] {
		offer(ch, snap)
	}
}

func (s *PostgresStore) refreshAll(ctx context.Context) {
	s.mu.Lock()
	codes := make([]string, 0, len(s.watchers))
	for code := range s.watchers {
		codes = append(codes, code)
	}
	s.mu.Unlock()

	for _, code := range codes {
		s.refresh(ctx, code)
	}
}
