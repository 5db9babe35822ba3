package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/proto"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/store"
)

// Session is the aggregate session identity. Owned exclusively by the
// SessionStore; the connection status is written only by the
// ConnectionManager.
type Session struct {
	RoomID        string
	Nickname      string
	UserIcon      string
	CurrentUserID string
	Joined        bool
}

// Options tunes the session core. Zero values fall back to the defaults the
// protocol was designed around.
type Options struct {
	MaxReconnectAttempts   int
	MaxAutoJoinAttempts    int
	TypingDebounce         time.Duration
	AutoJoinGraceDelay     time.Duration
	AutoJoinRetryUnit      time.Duration
	BackoffInitialInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.MaxAutoJoinAttempts == 0 {
		o.MaxAutoJoinAttempts = 3
	}
	if o.TypingDebounce == 0 {
		o.TypingDebounce = time.Second
	}
	if o.AutoJoinGraceDelay == 0 {
		o.AutoJoinGraceDelay = 1500 * time.Millisecond
	}
	if o.AutoJoinRetryUnit == 0 {
		o.AutoJoinRetryUnit = time.Second
	}
	if o.BackoffInitialInterval == 0 {
		o.BackoffInitialInterval = time.Second
	}
	return o
}

// Listener observes session changes for presentation. All methods are called
// with internal state already updated; implementations must not call back
// into the SessionStore.
type Listener interface {
	MessageAppended(msg Message)
	StatusChanged(status Status)
	Notice(text string)
}

// SessionStore holds the mutable session state and exposes the operations
// consumed by the presentation layer. A single mutex serializes transport
// events, timer callbacks, and user operations, which is the whole
// concurrency model: state changes have one serialization point.
type SessionStore struct {
	mu      sync.Mutex
	log     zerolog.Logger
	records store.RecordStore
	timers  *TimerSet
	cm      *ConnectionManager
	handler EventHandler
	opts    Options

	session   Session
	messages  []Message
	directory *UserDirectory
	presence  *PresenceAggregator
	dupFilter *DuplicateFilter
	visible   bool

	listener Listener
	ctx      context.Context
}

// New builds a session store around the given transport dialer and session
// record store.
func New(dialer Dialer, records store.RecordStore, logger *zerolog.Logger, opts Options) *SessionStore {
	opts = opts.withDefaults()
	timers := NewTimerSet(logger)

	s := &SessionStore{
		log:       *logger,
		records:   records,
		timers:    timers,
		opts:      opts,
		directory: NewUserDirectory(),
		presence:  NewPresenceAggregator(),
		dupFilter: NewDuplicateFilter(),
		visible:   true,
		ctx:       context.Background(),
	}
	s.handler = &transportHandler{store: s}
	s.cm = newConnectionManager(s, dialer, timers, logger, opts)
	return s
}

// SetListener installs the presentation observer. Call before Start.
func (s *SessionStore) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// Start connects the transport and, when a complete session record was
// persisted by a previous run, kicks off the auto-rejoin sequence.
func (s *SessionStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx
	s.cm.ctx = ctx
	s.setStatusLocked(StatusConnecting)

	if err := s.cm.connectLocked(); err != nil {
		s.setStatusLocked(StatusDisconnected)
		return sessionError(ErrCodeTransportClosed, "could not reach the chat server", err)
	}

	roomID, nickname, hasJoined := s.loadRecordLocked()
	if roomID != "" && nickname != "" && hasJoined {
		s.session.Nickname = nickname
		s.cm.scheduleAutoJoinLocked(roomID, nickname)
	}
	return nil
}

// Close tears down timers and the transport handle.
func (s *SessionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers.Close()
	s.cm.teardownLocked()
}

// CreateRoom creates a new room and joins it as nickname.
func (s *SessionStore) CreateRoom(ctx context.Context, nickname, icon string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return "", sessionError(ErrCodeBadRequest, "please enter a nickname", ErrBlankNickname)
	}
	if s.cm.conn == nil {
		return "", sessionError(ErrCodeTransportClosed, "not connected to the chat server", ErrNotConnected)
	}

	roomID, err := s.cm.conn.CreateRoom(ctx, nickname, icon)
	if err != nil {
		s.notifyNotice("Failed to create room. Please try again.")
		return "", sessionError(ErrCodeCreateFailed, "create room failed", err)
	}

	s.session = Session{RoomID: roomID, Nickname: nickname, UserIcon: icon, Joined: true}
	s.messages = nil
	if uid := s.cm.conn.UserID(); uid != "" {
		s.session.CurrentUserID = uid
		s.directory.Add(uid, nickname)
	}
	s.saveRecordLocked(roomID, nickname)
	s.log.Info().Str("room_id", roomID).Str("nickname", nickname).Msg("room created")
	return roomID, nil
}

// JoinRoom joins an existing room as nickname and adopts its history.
func (s *SessionStore) JoinRoom(ctx context.Context, nickname, roomID, icon string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nickname = strings.TrimSpace(nickname)
	roomID = strings.TrimSpace(roomID)
	if nickname == "" {
		return sessionError(ErrCodeBadRequest, "please enter a nickname", ErrBlankNickname)
	}
	if roomID == "" {
		return sessionError(ErrCodeBadRequest, "please enter a room id", ErrBlankRoomID)
	}
	if s.cm.conn == nil {
		return sessionError(ErrCodeTransportClosed, "not connected to the chat server", ErrNotConnected)
	}

	history, err := s.cm.conn.JoinRoom(ctx, nickname, roomID, icon)
	if err != nil {
		s.notifyNotice("Could not join the room. Make sure the Room ID is correct.")
		return sessionError(ErrCodeJoinFailed, "join room failed", err)
	}

	s.session = Session{RoomID: roomID, Nickname: nickname, UserIcon: icon, Joined: true}
	s.adoptHistoryLocked(history, nickname)
	s.saveRecordLocked(roomID, nickname)
	s.log.Info().Str("room_id", roomID).Str("nickname", nickname).Msg("room joined")
	return nil
}

// SendMessage sends a chat message. Blank bodies are a no-op. Sending implies
// the user stopped typing, so the debounce must not fire afterwards.
func (s *SessionStore) SendMessage(ctx context.Context, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(body) == "" || s.cm.conn == nil {
		return nil
	}

	payload := proto.SendMessageData{Body: body, UserIcon: s.session.UserIcon}
	if err := s.cm.conn.Send(ctx, proto.TypeSendMessage, payload); err != nil {
		return sessionError(ErrCodeTransportClosed, "send message failed", err)
	}

	s.timers.Cancel(RoleTypingDebounce)
	s.sendTypingLocked(ctx, false)
	return nil
}

// SetTyping records local typing intent and notifies the room. A true value
// (re)arms the debounce that flips it back off after inactivity.
func (s *SessionStore) SetTyping(ctx context.Context, typing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if typing && !s.visible {
		// A hidden client cannot meaningfully type; ignore stale intent.
		return nil
	}

	if typing {
		s.timers.Schedule(RoleTypingDebounce, s.opts.TypingDebounce, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.sendTypingLocked(s.ctx, false)
		})
		// An active burst was already announced; the re-armed debounce is
		// all the repeat keystroke needs.
		if s.presence.LocalTyping() {
			return nil
		}
	} else {
		s.timers.Cancel(RoleTypingDebounce)
	}
	s.sendTypingLocked(ctx, typing)
	return nil
}

// SetVisible tracks client visibility. Going hidden forces "not typing"
// immediately, regardless of the debounce; presence must never stay "typing"
// for a user who cannot act.
func (s *SessionStore) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.visible = visible
	if !visible {
		s.timers.Cancel(RoleTypingDebounce)
		s.sendTypingLocked(s.ctx, false)
	}
}

// SignOut clears in-memory and persisted session state and cancels every
// pending timer so a stale callback cannot revive the signed-out session.
func (s *SessionStore) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers.CancelAll()
	s.clearRecordLocked()

	s.session = Session{}
	s.messages = nil
	s.directory.Reset()
	s.presence.Reset()
	s.dupFilter.Reset()
	s.cm.state = ReconnectState{}
	s.cm.backoff.Reset()
	s.log.Info().Msg("signed out")
	return nil
}

// ---- snapshot accessors for the presentation layer ----

// Messages returns a copy of the visible message history.
func (s *SessionStore) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// TypingNicknames returns the remote users currently typing, sorted. The
// local nickname is never included.
func (s *SessionStore) TypingNicknames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence.RemoteNicknames()
}

// IsLocalTyping reports the local user's typing state.
func (s *SessionStore) IsLocalTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence.LocalTyping()
}

// Status returns the connection lifecycle state.
func (s *SessionStore) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cm.status
}

// Current returns a copy of the session identity.
func (s *SessionStore) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// KnownUsers reports the size of the user directory.
func (s *SessionStore) KnownUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directory.Len()
}

// Nickname resolves a transport user id through the directory.
func (s *SessionStore) Nickname(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directory.Nickname(userID)
}

// ---- event handling (content classification) ----

// transportHandler adapts transport callbacks onto the store, keeping the
// EventHandler surface off the public API.
type transportHandler struct {
	store *SessionStore
}

func (h *transportHandler) OnReady() {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.cm.handleReadyLocked()
}

func (h *transportHandler) OnClosed() {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.cm.handleClosedLocked()
}

func (h *transportHandler) OnEvent(evt proto.Envelope) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.handleEventLocked(evt)
}

func (s *SessionStore) handleEventLocked(evt proto.Envelope) {
	switch evt.Type {
	case proto.TypeSendMessage:
		var wire proto.ChatMessage
		if err := json.Unmarshal(evt.Data, &wire); err != nil {
			s.log.Warn().Err(err).Msg("malformed chat message")
			return
		}
		s.handleChatMessageLocked(MessageFromProto(wire))

	case proto.TypeSetTypingPresence:
		notice := proto.DecodeTyping(evt.Data)
		s.handleTypingLocked(notice)

	case proto.TypeUserJoined:
		var joined proto.UserJoinedData
		if err := json.Unmarshal(evt.Data, &joined); err != nil {
			s.log.Warn().Err(err).Msg("malformed userJoined event")
			return
		}
		s.directory.Add(joined.UserID, joined.UserNickname)

	default:
		s.log.Debug().Str("type", evt.Type).Msg("ignoring unknown event type")
	}
}

func (s *SessionStore) handleChatMessageLocked(msg Message) {
	if msg.UserID != "" && msg.UserNickname != "" {
		s.directory.Add(msg.UserID, msg.UserNickname)
	}

	localJoin := s.session.Nickname != "" &&
		msg.IsSystemMessage &&
		strings.Contains(msg.Body, s.session.Nickname+": "+joinedMarker)

	// The server re-announces our own join while we resume; drop it outright.
	if localJoin && s.cm.status == StatusReconnecting {
		s.log.Debug().Msg("skipping join re-announcement during reconnect")
		return
	}

	if s.dupFilter.Observe(msg) {
		s.log.Debug().Str("body", msg.Body).Msg("skipping duplicate message")
		return
	}

	if localJoin {
		for _, existing := range s.messages {
			if existing.IsSystemMessage && strings.Contains(existing.Body, s.session.Nickname+": "+joinedMarker) {
				s.log.Debug().Msg("skipping duplicate local join message")
				return
			}
		}
	}

	s.messages = append(s.messages, msg)
	s.notifyMessage(msg)
}

func (s *SessionStore) handleTypingLocked(notice proto.TypingNotice) {
	switch notice.Kind {
	case proto.TypingDirect:
		s.presence.ApplyDirect(notice.Direct, s.session.Nickname, s.session.CurrentUserID)
	case proto.TypingBatch:
		s.presence.ApplyBatch(notice.Batch, s.session.Nickname, s.session.CurrentUserID, s.directory.Nickname)
	default:
		s.log.Warn().Msg("typing presence without userNickname or usersTyping")
	}
}

// ---- internals ----

// adoptHistoryLocked merges a freshly fetched room history: directory entries
// from every message carrying both identity fields, the local user's own id,
// and the deduplicated message list.
func (s *SessionStore) adoptHistoryLocked(history History, nickname string) {
	for _, msg := range history.Messages {
		if msg.UserID != "" && msg.UserNickname != "" {
			s.directory.Add(msg.UserID, msg.UserNickname)
		}
	}
	if s.cm.conn != nil {
		if uid := s.cm.conn.UserID(); uid != "" {
			s.session.CurrentUserID = uid
			s.directory.Add(uid, nickname)
		}
	}
	s.messages = Deduplicate(history.Messages)
}

func (s *SessionStore) sendTypingLocked(ctx context.Context, typing bool) {
	s.presence.SetLocalTyping(typing)
	if s.cm.conn == nil {
		return
	}

	payload := proto.TypingPresenceData{
		Typing:       typing,
		UserNickname: s.session.Nickname,
		Timestamp:    time.Now().UnixMilli(),
		UserID:       s.session.CurrentUserID,
	}
	if err := s.cm.conn.Send(ctx, proto.TypeSetTypingPresence, payload); err != nil {
		s.log.Warn().Err(err).Msg("send typing presence failed")
	}
}

func (s *SessionStore) loadRecordLocked() (roomID, nickname string, hasJoined bool) {
	roomID, err := s.records.Get(s.ctx, store.KeyRoomID)
	if err != nil {
		s.log.Warn().Err(err).Msg("read session record")
		return "", "", false
	}
	nickname, err = s.records.Get(s.ctx, store.KeyNickname)
	if err != nil {
		s.log.Warn().Err(err).Msg("read session record")
		return "", "", false
	}
	joined, err := s.records.Get(s.ctx, store.KeyHasJoinedRoom)
	if err != nil {
		s.log.Warn().Err(err).Msg("read session record")
		return "", "", false
	}
	return roomID, nickname, joined == "true"
}

func (s *SessionStore) saveRecordLocked(roomID, nickname string) {
	for key, value := range map[string]string{
		store.KeyRoomID:        roomID,
		store.KeyNickname:      nickname,
		store.KeyHasJoinedRoom: "true",
	} {
		if err := s.records.Set(s.ctx, key, value); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("persist session record")
		}
	}
}

func (s *SessionStore) clearRecordLocked() {
	for _, key := range []string{store.KeyRoomID, store.KeyNickname, store.KeyHasJoinedRoom} {
		if err := s.records.Remove(s.ctx, key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("clear session record")
		}
	}
}

func (s *SessionStore) setStatusLocked(st Status) {
	if s.cm.status == st {
		return
	}
	s.cm.status = st
	if s.listener != nil {
		s.listener.StatusChanged(st)
	}
}

func (s *SessionStore) notifyMessage(msg Message) {
	if s.listener != nil {
		s.listener.MessageAppended(msg)
	}
}

func (s *SessionStore) notifyNotice(text string) {
	if s.listener != nil {
		s.listener.Notice(text)
	}
}
