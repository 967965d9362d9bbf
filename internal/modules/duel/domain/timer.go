package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type TickFunc func(sessionID uuid.UUID, remaining time.Duration)

type ExpireFunc func(sessionID uuid.UUID)

// CountdownSet holds one cancellable countdown per in_progress session.
// Remaining time is recomputed from the wall clock on every tick, so a
// re-armed timer after recovery stays correct regardless of when ticks
// actually fire.
type CountdownSet struct {
	resolution time.Duration

	mu     sync.Mutex
	timers map[uuid.UUID]*countdown
}

type countdown struct {
	cancel chan struct{}
	once   sync.Once
}

func (c *countdown) stop() {
	c.once.Do(func() { close(c.cancel) })
}

func NewCountdownSet(resolution time.Duration) *CountdownSet {
	return &CountdownSet{
		resolution: resolution,
		timers:     make(map[uuid.UUID]*countdown),
	}
}

// Start arms a countdown for the session, replacing any previous one.
// tick fires once per resolution interval with the recomputed remaining
// time; when it hits zero the countdown disarms itself and fires expire
// exactly once - unless Cancel got there first.
func (s *CountdownSet) Start(
	sessionID uuid.UUID,
	startTime time.Time,
	duration time.Duration,
	tick TickFunc,
	expire ExpireFunc,
) {
	c := &countdown{cancel: make(chan struct{})}

	s.mu.Lock()
	if previous, ok := s.timers[sessionID]; ok {
		previous.stop()
	}
	s.timers[sessionID] = c
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.resolution)
		defer ticker.Stop()

		for {
			select {
			case <-c.cancel:
				return
			case now := <-ticker.C:
				remaining := duration - now.Sub(startTime)
				if remaining < 0 {
					remaining = 0
				}

				tick(sessionID, remaining)

				if remaining == 0 {
					// Only the countdown still registered for the session
					// may finalize it; a concurrent Cancel wins otherwise.
					if s.disarm(sessionID, c) {
						expire(sessionID)
					}
					return
				}
			}
		}
	}()
}

// Cancel stops the session's countdown. Reports whether one was armed.
func (s *CountdownSet) Cancel(sessionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.timers[sessionID]
	if !ok {
		return false
	}

	c.stop()
	delete(s.timers, sessionID)
	return true
}

func (s *CountdownSet) Active(sessionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.timers[sessionID]
	return ok
}

func (s *CountdownSet) disarm(sessionID uuid.UUID, c *countdown) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.timers[sessionID]
	if !ok || current != c {
		return false
	}

	c.stop()
	delete(s.timers, sessionID)
	return true
}
