package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/log"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/proto"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/session"
)

// scriptServer is a minimal chat server double. It answers createSession and
// joinSession requests by callbackId and lets tests push arbitrary frames.
type scriptServer struct {
	t *testing.T

	mu       sync.Mutex
	conn     *websocket.Conn
	joinErr  *proto.Error
	history  []proto.ChatMessage
	received []proto.Envelope
}

func startScriptServer(t *testing.T) (*scriptServer, string) {
	t.Helper()
	srv := &scriptServer{t: t}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Errorf("ws accept: %v", err)
			return
		}
		srv.mu.Lock()
		srv.conn = conn
		srv.mu.Unlock()
		srv.serve(r.Context(), conn)
	}))
	t.Cleanup(ts.Close)

	return srv, strings.Replace(ts.URL, "http", "ws", 1)
}

func (s *scriptServer) serve(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame proto.Envelope
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, frame)
		joinErr := s.joinErr
		history := s.history
		s.mu.Unlock()

		switch frame.Type {
		case proto.TypeCreateRoom:
			data, _ := json.Marshal(proto.CreateRoomResult{RoomID: "R1", UserID: "u1"})
			_ = wsjson.Write(ctx, conn, proto.Envelope{
				Type: frame.Type, Data: data, CallbackID: frame.CallbackID,
			})
		case proto.TypeJoinRoom:
			if joinErr != nil {
				_ = wsjson.Write(ctx, conn, proto.Envelope{
					Type: frame.Type, CallbackID: frame.CallbackID, Error: joinErr,
				})
				continue
			}
			data, _ := json.Marshal(proto.JoinRoomResult{Messages: history, UserID: "u2"})
			_ = wsjson.Write(ctx, conn, proto.Envelope{
				Type: frame.Type, Data: data, CallbackID: frame.CallbackID,
			})
		}
	}
}

// push sends a broadcast frame to the connected client.
func (s *scriptServer) push(t *testing.T, evt proto.Envelope) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NotNil(t, conn, "no client connected")
	require.NoError(t, wsjson.Write(context.Background(), conn, evt))
}

func (s *scriptServer) frames() []proto.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]proto.Envelope, len(s.received))
	copy(out, s.received)
	return out
}

// recordingHandler collects callbacks delivered by the transport.
type recordingHandler struct {
	mu     sync.Mutex
	ready  int
	closed int
	events []proto.Envelope
}

func (h *recordingHandler) OnReady() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready++
}

func (h *recordingHandler) OnClosed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
}

func (h *recordingHandler) OnEvent(evt proto.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, evt)
}

func (h *recordingHandler) snapshot() (ready, closed int, events []proto.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready, h.closed, append([]proto.Envelope(nil), h.events...)
}

func dialTest(t *testing.T, url string, h session.EventHandler) session.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, err := NewDialer(url, log.Nop()).Connect(ctx, h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnectSignalsReady(t *testing.T) {
	_, url := startScriptServer(t)
	h := &recordingHandler{}
	dialTest(t, url, h)

	waitFor(t, func() bool { ready, _, _ := h.snapshot(); return ready == 1 }, "ready never fired")
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewDialer("ws://127.0.0.1:1/ws", log.Nop()).Connect(ctx, &recordingHandler{})
	require.Error(t, err)
}

func TestCreateRoomRoundTrip(t *testing.T) {
	srv, url := startScriptServer(t)
	conn := dialTest(t, url, &recordingHandler{})

	ctx := context.Background()
	roomID, err := conn.CreateRoom(ctx, "alice", "cat.png")
	require.NoError(t, err)
	assert.Equal(t, "R1", roomID)
	assert.Equal(t, "u1", conn.UserID())

	frames := srv.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, proto.TypeCreateRoom, frames[0].Type)
	assert.NotEmpty(t, frames[0].CallbackID)

	var req proto.CreateRoomData
	require.NoError(t, json.Unmarshal(frames[0].Data, &req))
	assert.Equal(t, "alice", req.Nickname)
	assert.Equal(t, "cat.png", req.UserIcon)
}

func TestJoinRoomReturnsConvertedHistory(t *testing.T) {
	srv, url := startScriptServer(t)
	srv.mu.Lock()
	srv.history = []proto.ChatMessage{
		{
			Body:         "hello",
			UserID:       "u9",
			UserNickname: "Bob",
			Timestamp:    1700000000000,
			UserSettings: &proto.UserSettings{UserIcon: "dog.png"},
		},
		{Body: "Bob: joined the party", IsSystemMessage: true},
	}
	srv.mu.Unlock()

	conn := dialTest(t, url, &recordingHandler{})

	hist, err := conn.JoinRoom(context.Background(), "alice", "R1", "")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2)

	first := hist.Messages[0]
	assert.Equal(t, "hello", first.Body)
	assert.Equal(t, "Bob", first.UserNickname)
	assert.Equal(t, "dog.png", first.UserIcon, "icon promoted from userSettings")
	assert.Equal(t, time.UnixMilli(1700000000000), first.Timestamp)
	assert.True(t, hist.Messages[1].IsSystemMessage)
	assert.Equal(t, "u2", conn.UserID())
}

func TestJoinRoomServerError(t *testing.T) {
	srv, url := startScriptServer(t)
	srv.mu.Lock()
	srv.joinErr = &proto.Error{Code: "not_found", Msg: "no such room"}
	srv.mu.Unlock()

	conn := dialTest(t, url, &recordingHandler{})

	_, err := conn.JoinRoom(context.Background(), "alice", "NOPE", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such room")
	assert.Empty(t, conn.UserID(), "failed join must not assign an identity")
}

func TestBroadcastFramesReachHandler(t *testing.T) {
	srv, url := startScriptServer(t)
	h := &recordingHandler{}
	dialTest(t, url, h)

	waitFor(t, func() bool { ready, _, _ := h.snapshot(); return ready == 1 }, "ready never fired")

	data, _ := json.Marshal(proto.ChatMessage{Body: "hi", UserNickname: "Bob", UserID: "u9"})
	srv.push(t, proto.Envelope{Type: proto.TypeSendMessage, Data: data})

	waitFor(t, func() bool { _, _, evts := h.snapshot(); return len(evts) == 1 }, "event never delivered")

	_, _, evts := h.snapshot()
	assert.Equal(t, proto.TypeSendMessage, evts[0].Type)
}

func TestSendWritesEventFrame(t *testing.T) {
	srv, url := startScriptServer(t)
	conn := dialTest(t, url, &recordingHandler{})

	err := conn.Send(context.Background(), proto.TypeSetTypingPresence, proto.TypingPresenceData{
		Typing:       true,
		UserNickname: "alice",
		Timestamp:    time.Now().UnixMilli(),
	})
	require.NoError(t, err)

	waitFor(t, func() bool { return len(srv.frames()) == 1 }, "frame never arrived")

	frames := srv.frames()
	assert.Equal(t, proto.TypeSetTypingPresence, frames[0].Type)
	assert.Empty(t, frames[0].CallbackID, "events carry no callback id")
}

func TestServerCloseDeliversOnClosed(t *testing.T) {
	srv, url := startScriptServer(t)
	h := &recordingHandler{}
	dialTest(t, url, h)

	waitFor(t, func() bool { ready, _, _ := h.snapshot(); return ready == 1 }, "ready never fired")

	srv.mu.Lock()
	conn := srv.conn
	srv.mu.Unlock()
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	waitFor(t, func() bool { _, closed, _ := h.snapshot(); return closed == 1 }, "closed never fired")
}

func TestCloseFailsInflightCalls(t *testing.T) {
	// A server that never answers leaves the call parked until Close.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		for {
			var frame proto.Envelope
			if err := wsjson.Read(r.Context(), conn, &frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	h := &recordingHandler{}
	conn := dialTest(t, strings.Replace(ts.URL, "http", "ws", 1), h)

	done := make(chan error, 1)
	go func() {
		_, err := conn.CreateRoom(context.Background(), "alice", "")
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call never failed after close")
	}
}
