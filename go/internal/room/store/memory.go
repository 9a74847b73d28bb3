package store

import (
	"context"
	"sync"

	"github.com/mcdev12/buzzroom/go/internal/models"
)

type memEntry struct {
	data     []byte
	revision uint64
}

// MemoryStore is a single-process Store. Rooms are kept encoded so readers
// never share memory with writers.
type MemoryStore struct {
	mu       sync.Mutex
	rooms    map[string]memEntry
	watchers map[string]map[chan Snapshot]struct{}
	seq      uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]memEntry),
		watchers: make(map[string]map[chan Snapshot]struct{}),
	}
}

func (s *MemoryStore) Get(ctx context.Context, code string) (*models.Room, uint64, error) {
	s.mu.Lock()
	e, ok := s.rooms[code]
	s.mu.Unlock()
	if !ok {
		return nil, 0, ErrNotFound
	}
	room, err := decodeRoom(e.data)
	if err != nil {
		return nil, 0, err
	}
	return room, e.revision, nil
}

func (s *MemoryStore) Create(ctx context.Context, room *models.Room) (uint64, error) {
	data, err := encodeRoom(room)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return 0, ErrExists
	}
	return s.put(room.Code, data), nil
}

func (s *MemoryStore) Update(ctx context.Context, room *models.Room, expected uint64) (uint64, error) {
	data, err := encodeRoom(room)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[room.Code]
	if !ok {
		return 0, ErrNotFound
	}
	if e.revision != expected {
		return 0, ErrRevisionMismatch
	}
	return s.put(room.Code, data), nil
}

func (s *MemoryStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return ErrNotFound
	}
	delete(s.rooms, code)
	s.seq++
	for ch := range s.watchers[code] {
		offer(ch, Snapshot{Code: code, Revision: s.seq, Deleted: true})
	}
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, code string) (<-chan Snapshot, error) {
	ch := make(chan Snapshot, 16)

	s.mu.Lock()
	if s.watchers[code] == nil {
		s.watchers[code] = make(map[chan Snapshot]struct{})
	}
	s.watchers[code][ch] = struct{}{}
	if e, ok := s.rooms[code]; ok {
		if room, err := decodeRoom(e.data); err == nil {
			offer(ch, Snapshot{Code: code, Room: room, Revision: e.revision})
		}
	}
	s.mu.Unlock()

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

// put stores data under a fresh revision and notifies watchers. Callers hold mu.
func (s *MemoryStore) put(code string, data []byte) uint64 {
	s.seq++
	s.rooms[code] = memEntry{data: data, revision: s.seq}
	for ch := range s.watchers[code] {
		room, err := decodeRoom(data)
		if err != nil {
			continue
		}
		offer(ch, Snapshot{Code: code, Room: room, Revision: s.seq})
	}
	return s.seq
}
