package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/log"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/proto"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/store"
)

type sentFrame struct {
	Type    string
	Payload any
}

// fakeConn scripts transport behaviour for the session core.
type fakeConn struct {
	mu sync.Mutex

	userID       string
	createRoomID string
	createErr    error
	joinHistory  History
	joinErr      error
	joinCalls    int
	sent         []sentFrame
	closed       bool
}

func (c *fakeConn) CreateRoom(_ context.Context, _, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	return c.createRoomID, nil
}

func (c *fakeConn) JoinRoom(_ context.Context, _, _, _ string) (History, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joinCalls++
	if c.joinErr != nil {
		return History{}, c.joinErr
	}
	return c.joinHistory, nil
}

func (c *fakeConn) Send(_ context.Context, msgType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentFrame{Type: msgType, Payload: payload})
	return nil
}

func (c *fakeConn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentFrames() []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentFrame, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) joins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joinCalls
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out fakeConns and records the handler so tests can inject
// transport callbacks.
type fakeDialer struct {
	mu      sync.Mutex
	conn    *fakeConn
	dialErr error
	dials   int
	handler EventHandler
}

func (d *fakeDialer) Connect(_ context.Context, h EventHandler) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.handler = h
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// fastOptions keeps timer-driven tests quick.
func fastOptions() Options {
	return Options{
		MaxReconnectAttempts:   5,
		MaxAutoJoinAttempts:    3,
		TypingDebounce:         20 * time.Millisecond,
		AutoJoinGraceDelay:     time.Millisecond,
		AutoJoinRetryUnit:      time.Millisecond,
		BackoffInitialInterval: time.Millisecond,
	}
}

func newTestSession(t *testing.T, dialer Dialer, records store.RecordStore, opts Options) *SessionStore {
	t.Helper()
	if records == nil {
		records = store.NewMemory()
	}
	s := New(dialer, records, log.Nop(), opts)
	t.Cleanup(s.Close)
	return s
}

func startedSession(t *testing.T, conn *fakeConn, records store.RecordStore, opts Options) (*SessionStore, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{conn: conn}
	s := newTestSession(t, dialer, records, opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start session: %v", err)
	}
	dialer.handler.OnReady()
	return s, dialer
}

func chatEnvelope(t *testing.T, msg proto.ChatMessage) proto.Envelope {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal chat message: %v", err)
	}
	return proto.Envelope{Type: proto.TypeSendMessage, Data: data}
}

func typingEnvelope(t *testing.T, payload string) proto.Envelope {
	t.Helper()
	return proto.Envelope{Type: proto.TypeSetTypingPresence, Data: json.RawMessage(payload)}
}

// chatSys builds a system message as it arrives on the wire.
func chatSys(body string) proto.ChatMessage {
	return proto.ChatMessage{Body: body, IsSystemMessage: true, Timestamp: time.Now().UnixMilli()}
}

func eventually(t *testing.T, cond func() bool, msg string) {
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

var errScripted = errors.New("scripted failure")
