package store

import (
	"context"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKeyValue is a single-bucket stand-in for jetstream.KeyValue with
// revision semantics matching the server.
type fakeKeyValue struct {
	jetstream.KeyValue

	mu       sync.Mutex
	seq      uint64
	data     map[string]*fakeEntry
	watchers map[string][]chan jetstream.KeyValueEntry
}

func newFakeKeyValue() *fakeKeyValue {
	return &fakeKeyValue{
		data:     make(map[string]*fakeEntry),
		watchers: make(map[string][]chan jetstream.KeyValueEntry),
	}
}

func (f *fakeKeyValue) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.data[key]
	if !ok || e.op != jetstream.KeyValuePut {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

func (f *fakeKeyValue) Create(ctx context.Context, key string, value []byte, _ ...jetstream.KVCreateOpt) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.data[key]; ok && e.op == jetstream.KeyValuePut {
		return 0, jetstream.ErrKeyExists
	}
	return f.put(key, value, jetstream.KeyValuePut), nil
}

func (f *fakeKeyValue) Update(ctx context.Context, key string, value []byte, last uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.data[key]
	if !ok || e.rev != last {
		return 0, &jetstream.APIError{
			Code:        400,
			ErrorCode:   jetstream.JSErrCodeStreamWrongLastSequence,
			Description: "wrong last sequence",
		}
	}
	return f.put(key, value, jetstream.KeyValuePut), nil
}

func (f *fakeKeyValue) Delete(ctx context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(key, nil, jetstream.KeyValueDelete)
	return nil
}

func (f *fakeKeyValue) Watch(ctx context.Context, key string, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan jetstream.KeyValueEntry, 16)
	if e, ok := f.data[key]; ok {
		ch <- e
	}
	ch <- nil
	f.watchers[key] = append(f.watchers[key], ch)
	return &fakeWatcher{ch: ch}, nil
}

func (f *fakeKeyValue) put(key string, value []byte, op jetstream.KeyValueOp) uint64 {
	f.seq++
	e := &fakeEntry{key: key, value: value, rev: f.seq, op: op}
	f.data[key] = e
	for _, ch := range f.watchers[key] {
		ch <- e
	}
	return f.seq
}

type fakeEntry struct {
	jetstream.KeyValueEntry
	key   string
	value []byte
	rev   uint64
	op    jetstream.KeyValueOp
}

func (e *fakeEntry) Key() string                     { return e.key }
func (e *fakeEntry) Value() []byte                   { return e.value }
func (e *fakeEntry) Revision() uint64                { return e.rev }
func (e *fakeEntry) Operation() jetstream.KeyValueOp { return e.op }

type fakeWatcher struct {
	ch chan jetstream.KeyValueEntry
}

func (w *fakeWatcher) Updates() <-chan jetstream.KeyValueEntry { return w.ch }
func (w *fakeWatcher) Stop() error                             { return nil }

func TestNATSStore_ConditionalWrites(t *testing.T) {
	ctx := context.Background()
	s := NewNATSStoreFromKV(newFakeKeyValue())

	rev, err := s.Create(ctx, newTestRoom("ROOM1"))
	require.NoError(t, err)

	_, err = s.Create(ctx, newTestRoom("ROOM1"))
	assert.ErrorIs(t, err, ErrExists)

	room, got, err := s.Get(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Equal(t, rev, got)

	room.SignalEnabled = true
	_, err = s.Update(ctx, room, rev)
	require.NoError(t, err)

	_, err = s.Update(ctx, room, rev)
	assert.ErrorIs(t, err, ErrRevisionMismatch)

	require.NoError(t, s.Delete(ctx, "ROOM1"))
	_, _, err = s.Get(ctx, "ROOM1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "ROOM1"), ErrNotFound)
}

func TestNATSStore_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewNATSStoreFromKV(newFakeKeyValue())

	rev, err := s.Create(ctx, newTestRoom("ROOM1"))
	require.NoError(t, err)

	ch, err := s.Watch(ctx, "ROOM1")
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, rev, first.Revision)
	assert.Equal(t, "ROOM1", first.Room.Code)

	require.NoError(t, s.Delete(ctx, "ROOM1"))
	second := <-ch
	assert.True(t, second.Deleted)
}
