// Package socket implements the websocket transport behind the session
// layer's Dialer and Conn interfaces. Request/response frames are correlated
// by callbackId; everything else is delivered to the session as an event.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/proto"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/session"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/utils"
)

// eventBuffer bounds the queue between the read loop and the session. When
// the session stalls long enough to fill it, events are dropped rather than
// blocking reads, which would also stall callback resolution.
const eventBuffer = 256

// Dialer opens websocket connections to a chat server.
type Dialer struct {
	url string
	log *zerolog.Logger
}

// NewDialer builds a Dialer for the given ws:// or wss:// URL.
func NewDialer(url string, logger *zerolog.Logger) *Dialer {
	return &Dialer{url: url, log: logger}
}

// Connect dials the server and starts the read and dispatch loops. Handler
// callbacks fire on a single dispatch goroutine: OnReady first, then OnEvent
// per broadcast frame in arrival order, then OnClosed exactly once when the
// connection dies.
func (d *Dialer) Connect(ctx context.Context, h session.EventHandler) (session.Conn, error) {
	ws, _, err := websocket.Dial(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.url, err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	c := &Conn{
		ws:      ws,
		log:     d.log,
		ctx:     connCtx,
		cancel:  cancel,
		handler: h,
		pending: make(map[string]chan rpcResult),
		events:  make(chan proto.Envelope, eventBuffer),
	}

	go c.readLoop()
	go c.dispatchLoop()
	return c, nil
}

type rpcResult struct {
	data json.RawMessage
	err  error
}

// Conn is a live websocket connection.
type Conn struct {
	ws     *websocket.Conn
	log    *zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	handler session.EventHandler
	events  chan proto.Envelope

	// writeMu serializes wsjson.Write calls.
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan rpcResult
	userID  string
	closed  bool
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		var frame proto.Envelope
		if err := wsjson.Read(c.ctx, c.ws, &frame); err != nil {
			if c.ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.log.Warn().Err(err).Msg("ws read failed")
			}
			c.failPending(err)
			return
		}

		if frame.CallbackID != "" {
			c.resolve(frame)
			continue
		}

		select {
		case c.events <- frame:
		default:
			c.log.Warn().Str("type", frame.Type).Msg("event queue full, dropping frame")
		}
	}
}

// dispatchLoop owns all handler callbacks so the session never sees
// concurrent or reentrant delivery.
func (c *Conn) dispatchLoop() {
	c.handler.OnReady()
	for evt := range c.events {
		c.handler.OnEvent(evt)
	}
	c.handler.OnClosed()
}

func (c *Conn) resolve(frame proto.Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[frame.CallbackID]
	if ok {
		delete(c.pending, frame.CallbackID)
	}
	c.mu.Unlock()
	if !ok {
		c.log.Debug().Str("callback_id", frame.CallbackID).Msg("response for unknown callback")
		return
	}

	res := rpcResult{data: frame.Data}
	if frame.Error != nil {
		res.err = frame.Error
	}
	ch <- res
}

func (c *Conn) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- rpcResult{err: fmt.Errorf("connection lost: %w", err)}
		delete(c.pending, id)
	}
}

// call sends a request frame and waits for the correlated response.
func (c *Conn) call(ctx context.Context, msgType string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", msgType, err)
	}

	id := utils.NewID()
	ch := make(chan rpcResult, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("connection closed")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	frame := proto.Envelope{Type: msgType, Data: data, CallbackID: id}
	if err := c.write(ctx, frame); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-ch:
		return res.data, res.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, errors.New("connection closed")
	}
}

func (c *Conn) write(ctx context.Context, frame proto.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsjson.Write(ctx, c.ws, frame); err != nil {
		return fmt.Errorf("write %s: %w", frame.Type, err)
	}
	return nil
}

// CreateRoom asks the server for a fresh room and returns its id.
func (c *Conn) CreateRoom(ctx context.Context, nickname, icon string) (string, error) {
	data, err := c.call(ctx, proto.TypeCreateRoom, proto.CreateRoomData{
		Nickname: nickname,
		UserIcon: icon,
	})
	if err != nil {
		return "", err
	}

	var res proto.CreateRoomResult
	if err := json.Unmarshal(data, &res); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	c.setUserID(res.UserID)
	return res.RoomID, nil
}

// JoinRoom joins an existing room and returns its message backlog.
func (c *Conn) JoinRoom(ctx context.Context, nickname, roomID, icon string) (session.History, error) {
	data, err := c.call(ctx, proto.TypeJoinRoom, proto.JoinRoomData{
		Nickname: nickname,
		RoomID:   roomID,
		UserIcon: icon,
	})
	if err != nil {
		return session.History{}, err
	}

	var res proto.JoinRoomResult
	if err := json.Unmarshal(data, &res); err != nil {
		return session.History{}, fmt.Errorf("decode join response: %w", err)
	}
	c.setUserID(res.UserID)

	hist := session.History{Messages: make([]session.Message, 0, len(res.Messages))}
	for _, m := range res.Messages {
		hist.Messages = append(hist.Messages, session.MessageFromProto(m))
	}
	return hist, nil
}

// Send fires an event frame without waiting for a response.
func (c *Conn) Send(ctx context.Context, msgType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	return c.write(ctx, proto.Envelope{Type: msgType, Data: data})
}

// UserID returns the server-assigned identity, empty before the first
// successful create or join.
func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Conn) setUserID(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

// Close tears the connection down. The dispatch loop still delivers OnClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	return c.ws.Close(websocket.StatusNormalClosure, "client closing")
}
