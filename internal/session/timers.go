package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TimerRole names a delayed task. Each role holds at most one outstanding
// timer, enforced by cancel-then-reschedule.
type TimerRole string

const (
	RoleTypingDebounce   TimerRole = "typingDebounce"
	RoleReconnectBackoff TimerRole = "reconnectBackoff"
	RoleAutoJoinRetry    TimerRole = "autoJoinRetry"
)

// TimerSet is a registry of cancellable scheduled tasks keyed by role.
// Cancellation bumps the role's generation, so a callback whose timer already
// fired but has not started running yet finds its token stale and backs out;
// Timer.Stop alone cannot reach that window.
type TimerSet struct {
	mu     sync.Mutex
	log    zerolog.Logger
	timers map[TimerRole]*time.Timer
	gens   map[TimerRole]uint64
	closed bool
}

// NewTimerSet builds an empty registry.
func NewTimerSet(logger *zerolog.Logger) *TimerSet {
	return &TimerSet{
		log:    *logger,
		timers: make(map[TimerRole]*time.Timer),
		gens:   make(map[TimerRole]uint64),
	}
}

// Schedule arms fn to run after d, replacing any outstanding timer for the
// same role. A panic in fn is logged and contained; a retry chain must never
// die to a broken callback.
func (s *TimerSet) Schedule(role TimerRole, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[role]; ok {
		t.Stop()
	}
	s.gens[role]++
	gen := s.gens[role]

	var tmr *time.Timer
	tmr = time.AfterFunc(d, func() {
		if !s.claim(role, gen, tmr) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Str("role", string(role)).Msg("timer callback panicked")
			}
		}()
		fn()
	})
	s.timers[role] = tmr
}

// Cancel stops the outstanding timer for role, if any, and invalidates a
// callback that fired but has not claimed its token yet.
func (s *TimerSet) Cancel(role TimerRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(role)
}

// Pending reports whether role has an outstanding timer.
func (s *TimerSet) Pending(role TimerRole) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[role]
	return ok
}

// CancelAll stops every outstanding timer. The set stays usable.
func (s *TimerSet) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for role := range s.timers {
		s.cancelLocked(role)
	}
}

// Close cancels everything and rejects further scheduling. Used on teardown
// so a stale timer cannot revive a torn-down session.
func (s *TimerSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for role := range s.timers {
		s.cancelLocked(role)
	}
}

func (s *TimerSet) cancelLocked(role TimerRole) {
	if t, ok := s.timers[role]; ok {
		t.Stop()
		delete(s.timers, role)
	}
	s.gens[role]++
}

// claim validates a fired callback's token and removes the map entry, unless
// the role was cancelled or rescheduled since the callback was armed.
func (s *TimerSet) claim(role TimerRole, gen uint64, tmr *time.Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gens[role] != gen {
		return false
	}
	if cur, ok := s.timers[role]; ok && cur == tmr {
		delete(s.timers, role)
	}
	return true
}
