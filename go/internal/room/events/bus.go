package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Publisher delivers events to their subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus is an in-process Publisher with per-room subscriptions.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{} // room code, "" for every room
	size int
}

// NewBus creates a bus whose subscriber channels buffer size events.
func NewBus(size int) *Bus {
	return &Bus{subs: make(map[string]map[chan Event]struct{}), size: size}
}

// Subscribe returns a channel of events for room, or for every room when room
// is empty. The channel is closed once ctx is done.
func (b *Bus) Subscribe(ctx context.Context, room string) <-chan Event {
	ch := make(chan Event, b.size)

	b.mu.Lock()
	if b.subs[room] == nil {
		b.subs[room] = make(map[chan Event]struct{})
	}
	b.subs[room][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[room], ch)
		if len(b.subs[room]) == 0 {
			delete(b.subs, room)
		}
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}

// Publish never blocks: a subscriber that is too far behind misses events.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := []string{""}
	if e.Room != "" {
		keys = append(keys, e.Room)
	}
	for _, key := range keys {
		for ch := range b.subs[key] {
			select {
			case ch <- e:
			default:
				log.Warn().Str("room", e.Room).Str("event_type", string(e.Type)).Msg("subscriber buffer full, dropping event")
			}
		}
	}
	return nil
}

// Multi fans an event out to several publishers and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
