package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/log"
)

func TestScheduleReplacesOutstandingTimer(t *testing.T) {
	s := NewTimerSet(log.Nop())
	defer s.Close()

	var fired atomic.Int32
	s.Schedule(RoleTypingDebounce, 5*time.Millisecond, func() { fired.Add(1) })
	s.Schedule(RoleTypingDebounce, 5*time.Millisecond, func() { fired.Add(1) })
	s.Schedule(RoleTypingDebounce, 5*time.Millisecond, func() { fired.Add(1) })

	eventually(t, func() bool { return fired.Load() == 1 }, "rescheduled timer never fired")
	time.Sleep(20 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected exactly one firing, got %d", got)
	}
}

func TestCancelStopsTimer(t *testing.T) {
	s := NewTimerSet(log.Nop())
	defer s.Close()

	var fired atomic.Int32
	s.Schedule(RoleReconnectBackoff, 10*time.Millisecond, func() { fired.Add(1) })
	if !s.Pending(RoleReconnectBackoff) {
		t.Fatal("expected pending timer after schedule")
	}

	s.Cancel(RoleReconnectBackoff)
	if s.Pending(RoleReconnectBackoff) {
		t.Fatal("expected no pending timer after cancel")
	}

	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("cancelled timer fired %d times", got)
	}
}

func TestRolesAreIndependent(t *testing.T) {
	s := NewTimerSet(log.Nop())
	defer s.Close()

	var debounce, backoff atomic.Int32
	s.Schedule(RoleTypingDebounce, 5*time.Millisecond, func() { debounce.Add(1) })
	s.Schedule(RoleReconnectBackoff, 5*time.Millisecond, func() { backoff.Add(1) })

	eventually(t, func() bool { return debounce.Load() == 1 && backoff.Load() == 1 },
		"both roles should fire independently")
}

func TestCancelAllKeepsSetUsable(t *testing.T) {
	s := NewTimerSet(log.Nop())
	defer s.Close()

	var fired atomic.Int32
	s.Schedule(RoleTypingDebounce, 10*time.Millisecond, func() { fired.Add(1) })
	s.Schedule(RoleAutoJoinRetry, 10*time.Millisecond, func() { fired.Add(1) })
	s.CancelAll()

	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("cancelled timers fired %d times", got)
	}

	s.Schedule(RoleTypingDebounce, time.Millisecond, func() { fired.Add(1) })
	eventually(t, func() bool { return fired.Load() == 1 }, "set must stay usable after CancelAll")
}

func TestCloseRejectsFurtherScheduling(t *testing.T) {
	s := NewTimerSet(log.Nop())

	var fired atomic.Int32
	s.Close()
	s.Schedule(RoleAutoJoinRetry, time.Millisecond, func() { fired.Add(1) })

	time.Sleep(20 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("closed set scheduled a timer that fired %d times", got)
	}
}

func TestCancelInvalidatesFiredCallbackToken(t *testing.T) {
	s := NewTimerSet(log.Nop())
	defer s.Close()

	s.Schedule(RoleReconnectBackoff, time.Hour, func() {})
	s.Cancel(RoleReconnectBackoff)

	// A callback armed by the first Schedule carries generation 1. Stop
	// cannot reach a callback that already fired; the stale token must.
	if s.claim(RoleReconnectBackoff, 1, nil) {
		t.Fatal("cancelled generation must not claim")
	}

	s.Schedule(RoleReconnectBackoff, time.Hour, func() {})
	if !s.claim(RoleReconnectBackoff, 3, nil) {
		t.Fatal("current generation must claim")
	}
}

func TestTimerPanicIsContained(t *testing.T) {
	s := NewTimerSet(log.Nop())
	defer s.Close()

	var after atomic.Int32
	s.Schedule(RoleReconnectBackoff, time.Millisecond, func() { panic("boom") })
	time.Sleep(10 * time.Millisecond)

	// The set survives a panicking callback and keeps scheduling.
	s.Schedule(RoleReconnectBackoff, time.Millisecond, func() { after.Add(1) })
	eventually(t, func() bool { return after.Load() == 1 }, "scheduling after a panic must work")
}
