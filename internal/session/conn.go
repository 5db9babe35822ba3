package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ReconnectState tracks the two independent retry budgets: reconnection after
// a dropped connection and auto-rejoin after a restart.
type ReconnectState struct {
	Attempt         int
	AutoJoinAttempt int
}

// ConnectionManager owns the transport handle and decides, on every lifecycle
// callback, whether to reconnect, how long to wait, and when to give up. It
// is the only writer of the connection status. All methods suffixed Locked
// require the SessionStore mutex.
type ConnectionManager struct {
	dialer  Dialer
	conn    Conn
	status  Status
	state   ReconnectState
	backoff *backoff.ExponentialBackOff
	timers  *TimerSet
	log     zerolog.Logger

	maxReconnectAttempts int
	maxAutoJoinAttempts  int
	autoJoinRetryUnit    time.Duration
	autoJoinGraceDelay   time.Duration

	store *SessionStore
	ctx   context.Context
}

func newConnectionManager(store *SessionStore, dialer Dialer, timers *TimerSet, logger *zerolog.Logger, opts Options) *ConnectionManager {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.BackoffInitialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()

	return &ConnectionManager{
		dialer:               dialer,
		status:               StatusDisconnected,
		backoff:              b,
		timers:               timers,
		log:                  *logger,
		maxReconnectAttempts: opts.MaxReconnectAttempts,
		maxAutoJoinAttempts:  opts.MaxAutoJoinAttempts,
		autoJoinRetryUnit:    opts.AutoJoinRetryUnit,
		autoJoinGraceDelay:   opts.AutoJoinGraceDelay,
		store:                store,
	}
}

// connectLocked dials the transport and installs the resulting handle. A
// handle still present from a prior dial is closed first so it cannot leak.
func (cm *ConnectionManager) connectLocked() error {
	conn, err := cm.dialer.Connect(cm.ctx, cm.store.handler)
	if err != nil {
		return err
	}
	if cm.conn != nil {
		_ = cm.conn.Close()
	}
	cm.conn = conn
	return nil
}

// handleReadyLocked resets the reconnect budget once the transport reports
// ready.
func (cm *ConnectionManager) handleReadyLocked() {
	cm.log.Debug().Msg("connection ready")
	cm.state.Attempt = 0
	cm.backoff.Reset()
	cm.store.setStatusLocked(StatusConnected)
}

// handleClosedLocked classifies a dropped connection. With nothing joined
// there is nothing to resume; otherwise a retry is scheduled with exponential
// backoff until the budget runs out.
func (cm *ConnectionManager) handleClosedLocked() {
	if !cm.store.session.Joined {
		cm.store.setStatusLocked(StatusDisconnected)
		return
	}

	if cm.state.Attempt >= cm.maxReconnectAttempts {
		cm.store.setStatusLocked(StatusFailed)
		err := sessionError(ErrCodeReconnectExhausted, "reconnect attempts exhausted", nil)
		cm.log.Error().Err(err).Int("attempts", cm.state.Attempt).Msg("giving up on reconnect")
		cm.store.notifyNotice("Connection lost. Please restart the client to reconnect.")
		return
	}

	cm.store.setStatusLocked(StatusReconnecting)
	delay := cm.backoff.NextBackOff()
	cm.log.Info().
		Int("attempt", cm.state.Attempt).
		Dur("delay", delay).
		Msg("connection lost, scheduling reconnect")

	cm.timers.Schedule(RoleReconnectBackoff, delay, func() {
		cm.store.mu.Lock()
		defer cm.store.mu.Unlock()
		cm.reconnectTimerLocked()
	})
}

// reconnectTimerLocked is the backoff timer's entry point. The timer can race
// a sign-out past its cancellation token by blocking on the session mutex, so
// the joined flag is re-checked under the lock before dialing anything.
func (cm *ConnectionManager) reconnectTimerLocked() {
	if !cm.store.session.Joined {
		return
	}
	cm.state.Attempt++
	cm.reconnectLocked()
}

// reconnectLocked re-establishes the transport and re-issues the join with
// the session's credentials. A join failure does not reschedule here; the
// next closed callback owns that, which keeps a single scheduling path and
// avoids stacked timers.
func (cm *ConnectionManager) reconnectLocked() {
	cm.log.Info().
		Int("attempt", cm.state.Attempt).
		Int("max", cm.maxReconnectAttempts).
		Msg("reconnecting")

	if err := cm.connectLocked(); err != nil {
		cm.log.Warn().Err(err).Msg("reconnect dial failed")
		cm.handleClosedLocked()
		return
	}

	sess := cm.store.session
	if sess.RoomID == "" || sess.Nickname == "" || !sess.Joined {
		return
	}

	history, err := cm.conn.JoinRoom(cm.ctx, sess.Nickname, sess.RoomID, sess.UserIcon)
	if err != nil {
		cm.log.Warn().Err(err).Str("room_id", sess.RoomID).Msg("rejoin after reconnect failed")
		return
	}

	cm.log.Info().Str("room_id", sess.RoomID).Msg("reconnected and rejoined room")
	cm.store.adoptHistoryLocked(history, sess.Nickname)
}

// scheduleAutoJoinLocked starts the auto-rejoin sequence for a persisted
// session record, after a grace delay that lets the transport finish
// connecting.
func (cm *ConnectionManager) scheduleAutoJoinLocked(roomID, nickname string) {
	cm.store.setStatusLocked(StatusConnecting)
	cm.log.Info().Str("room_id", roomID).Str("nickname", nickname).Msg("auto-rejoin scheduled")
	cm.timers.Schedule(RoleAutoJoinRetry, cm.autoJoinGraceDelay, func() {
		cm.store.mu.Lock()
		defer cm.store.mu.Unlock()
		cm.autoJoinAttemptLocked(roomID, nickname)
	})
}

func (cm *ConnectionManager) autoJoinAttemptLocked(roomID, nickname string) {
	// The record is the source of truth for resume intent; a sign-out (or a
	// fresh create/join) between the timer firing and this running under the
	// lock invalidates the attempt.
	storedRoom, storedNick, hasJoined := cm.store.loadRecordLocked()
	if !hasJoined || storedRoom != roomID || storedNick != nickname {
		cm.log.Debug().Str("room_id", roomID).Msg("auto-rejoin superseded, dropping attempt")
		return
	}

	if cm.state.AutoJoinAttempt >= cm.maxAutoJoinAttempts {
		cm.exhaustAutoJoinLocked()
		return
	}

	cm.log.Info().
		Int("attempt", cm.state.AutoJoinAttempt+1).
		Str("room_id", roomID).
		Msg("auto-rejoin attempt")

	if cm.conn != nil {
		history, err := cm.conn.JoinRoom(cm.ctx, nickname, roomID, cm.store.session.UserIcon)
		if err == nil {
			cm.store.session.RoomID = roomID
			cm.store.session.Nickname = nickname
			cm.store.session.Joined = true
			cm.store.adoptHistoryLocked(history, nickname)
			cm.store.setStatusLocked(StatusConnected)
			cm.log.Info().Str("room_id", roomID).Msg("auto-rejoined room")
			return
		}
		cm.log.Warn().Err(err).Msg("auto-rejoin failed")
	}

	cm.state.AutoJoinAttempt++
	if cm.state.AutoJoinAttempt >= cm.maxAutoJoinAttempts {
		cm.exhaustAutoJoinLocked()
		return
	}

	delay := time.Duration(cm.state.AutoJoinAttempt) * cm.autoJoinRetryUnit
	cm.timers.Schedule(RoleAutoJoinRetry, delay, func() {
		cm.store.mu.Lock()
		defer cm.store.mu.Unlock()
		cm.autoJoinAttemptLocked(roomID, nickname)
	})
}

// exhaustAutoJoinLocked clears the persisted record so the next start does
// not loop through the same failing rejoin, and leaves the session in the
// plain not-joined state rather than a dangling failure.
func (cm *ConnectionManager) exhaustAutoJoinLocked() {
	err := sessionError(ErrCodeAutoJoinExhausted, "auto-rejoin attempts exhausted", nil)
	cm.log.Error().Err(err).Int("attempts", cm.state.AutoJoinAttempt).Msg("giving up on auto-rejoin")
	cm.store.clearRecordLocked()
	cm.store.session.Joined = false
	if cm.conn != nil {
		cm.store.setStatusLocked(StatusConnected)
	} else {
		cm.store.setStatusLocked(StatusDisconnected)
	}
	cm.store.notifyNotice("Could not rejoin your previous room; start over by creating or joining one.")
}

// teardownLocked cancels pending lifecycle timers and drops the handle.
func (cm *ConnectionManager) teardownLocked() {
	cm.timers.Cancel(RoleReconnectBackoff)
	cm.timers.Cancel(RoleAutoJoinRetry)
	if cm.conn != nil {
		_ = cm.conn.Close()
		cm.conn = nil
	}
	cm.status = StatusDisconnected
}
