package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const roomKeyPrefix = "rooms."

// NATSStore keeps rooms in a JetStream key-value bucket. Create maps to the
// bucket's expected-absence write and Update to its expected-revision write.
type NATSStore struct {
	kv jetstream.KeyValue
}

// NewNATSStore creates or binds the bucket.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, bucket string) (*NATSStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "buzzroom shared room state",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create key-value bucket %s: %w", bucket, err)
	}
	log.Info().Str("bucket", bucket).Msg("room bucket ready")
	return NewNATSStoreFromKV(kv), nil
}

// NewNATSStoreFromKV wraps an existing bucket handle.
func NewNATSStoreFromKV(kv jetstream.KeyValue) *NATSStore {
	return &NATSStore{kv: kv}
}

func roomKey(code string) string { return roomKeyPrefix + code }

func (s *NATSStore) Get(ctx context.Context, code string) (*models.Room, uint64, error) {
	entry, err := s.kv.Get(ctx, roomKey(code))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	room, err := decodeRoom(entry.Value())
	if err != nil {
		return nil, 0, err
	}
	return room, entry.Revision(), nil
}

func (s *NATSStore) Create(ctx context.Context, room *models.Room) (uint64, error) {
	data, err := encodeRoom(room)
	if err != nil {
		return 0, err
	}
	rev, err := s.kv.Create(ctx, roomKey(room.Code), data)
	if err != nil {
		if isWrongLastSequence(err) {
			return 0, ErrExists
		}
		return 0, err
	}
	return rev, nil
}

func (s *NATSStore) Update(ctx context.Context, room *models.Room, expected uint64) (uint64, error) {
	data, err := encodeRoom(room)
	if err != nil {
		return 0, err
	}
	rev, err := s.kv.Update(ctx, roomKey(room.Code), data, expected)
	if err != nil {
		if isWrongLastSequence(err) {
			return 0, ErrRevisionMismatch
		}
		return 0, err
	}
	return rev, nil
}

func (s *NATSStore) Delete(ctx context.Context, code string) error {
	if _, _, err := s.Get(ctx, code); err != nil {
		return err
	}
	return s.kv.Delete(ctx, roomKey(code))
}

func (s *NATSStore) Watch(ctx context.Context, code string) (<-chan Snapshot, error) {
	w, err := s.kv.Watch(ctx, roomKey(code))
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", code, err)
	}

	out := make(chan Snapshot, 16)
	go func() {
		defer close(out)
		defer func() {
			if err := w.Stop(); err != nil {
				log.Debug().Err(err).Str("room", code).Msg("stop watcher")
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				// nil marks the end of the initial values
				if entry == nil {
					continue
				}
				if entry.Operation() != jetstream.KeyValuePut {
					offer(out, Snapshot{Code: code, Revision: entry.Revision(), Deleted: true})
					continue
				}
				room, err := decodeRoom(entry.Value())
				if err != nil {
					log.Error().Err(err).Str("room", code).Msg("skipping undecodable room snapshot")
					continue
				}
				offer(out, Snapshot{Code: code, Room: room, Revision: entry.Revision()})
			}
		}
	}()
	return out, nil
}

// isWrongLastSequence reports a failed expected-revision write.
func isWrongLastSequence(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
