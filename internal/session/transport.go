package session

import (
	"context"

	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/proto"
)

// EventHandler receives transport lifecycle and event callbacks. The
// transport delivers callbacks one at a time, in arrival order.
type EventHandler interface {
	OnReady()
	OnClosed()
	OnEvent(evt proto.Envelope)
}

// History is the message backlog returned when joining a room.
type History struct {
	Messages []Message
}

// Conn is an established transport connection. UserID returns the
// transport-assigned identity, available at or after join/create success.
type Conn interface {
	CreateRoom(ctx context.Context, nickname, icon string) (string, error)
	JoinRoom(ctx context.Context, nickname, roomID, icon string) (History, error)
	Send(ctx context.Context, msgType string, payload any) error
	UserID() string
	Close() error
}

// Dialer establishes transport connections. The ConnectionManager is the
// only holder of the resulting Conn.
type Dialer interface {
	Connect(ctx context.Context, h EventHandler) (Conn, error)
}
