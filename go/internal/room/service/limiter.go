package service

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// ParticipantLimiter throttles signal attempts per participant so a stuck
// button cannot flood the store with conditional writes.
type ParticipantLimiter struct {
	clock clockwork.Clock
	limit rate.Limit
	burst int
	idle  time.Duration

	mu       sync.Mutex
	limiters map[string]*entry
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewParticipantLimiter allows perSecond attempts with the given burst.
// Limiters unused for idle are dropped.
func NewParticipantLimiter(clock clockwork.Clock, perSecond float64, burst int, idle time.Duration) *ParticipantLimiter {
	return &ParticipantLimiter{
		clock:    clock,
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		limiters: make(map[string]*entry),
	}
}

// Allow reports whether participantID of room may attempt now.
func (l *ParticipantLimiter) Allow(room, participantID string) bool {
	now := l.clock.Now()
	key := room + "/" + participantID

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Sweep drops limiters that have been idle. It returns how many were dropped.
func (l *ParticipantLimiter) Sweep() int {
	cutoff := l.clock.Now().Add(-l.idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for key, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			dropped++
		}
	}
	return dropped
}
