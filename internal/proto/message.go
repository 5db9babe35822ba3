package proto

import "encoding/json"

// Envelope is the frame exchanged with the chat server. Frames that belong to
// a request/response pair carry a CallbackID; everything else is a broadcast
// event addressed by Type alone.
type Envelope struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	CallbackID string          `json:"callbackId,omitempty"`
	Error      *Error          `json:"error,omitempty"`
}

const (
	// Event / outbound message types.
	TypeSendMessage       = "sendMessage"
	TypeSetTypingPresence = "setTypingPresence"
	TypeUserJoined        = "userJoined"

	// Request types answered via CallbackID.
	TypeCreateRoom = "createSession"
	TypeJoinRoom   = "joinSession"
)

// ChatMessage is a chat or system message as delivered by the server.
// System messages narrate join/leave events in Body ("<nickname>: joined the
// party", "<nickname>: left") and carry no author fields.
type ChatMessage struct {
	Body            string        `json:"body"`
	UserID          string        `json:"userId,omitempty"`
	UserNickname    string        `json:"userNickname,omitempty"`
	UserIcon        string        `json:"userIcon,omitempty"`
	IsSystemMessage bool          `json:"isSystemMessage,omitempty"`
	Timestamp       int64         `json:"timestamp,omitempty"`
	UserSettings    *UserSettings `json:"userSettings,omitempty"`
}

// UserSettings is the per-user settings blob some servers attach to messages.
type UserSettings struct {
	UserIcon string `json:"userIcon,omitempty"`
}

// UserJoinedData announces a participant identity for the directory.
type UserJoinedData struct {
	UserID       string `json:"userId"`
	UserNickname string `json:"userNickname"`
}

// SendMessageData is the outbound chat message payload.
type SendMessageData struct {
	Body     string `json:"body"`
	UserIcon string `json:"userIcon,omitempty"`
}

// TypingPresenceData is the outbound typing notification payload.
type TypingPresenceData struct {
	Typing       bool   `json:"typing"`
	UserNickname string `json:"userNickname"`
	Timestamp    int64  `json:"timestamp"`
	UserID       string `json:"userId,omitempty"`
}

// CreateRoomData requests a new room.
type CreateRoomData struct {
	Nickname string `json:"nickname"`
	UserIcon string `json:"userIcon,omitempty"`
}

// CreateRoomResult is the server's answer to a create request.
type CreateRoomResult struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

// JoinRoomData requests membership in an existing room.
type JoinRoomData struct {
	Nickname string `json:"nickname"`
	RoomID   string `json:"roomId"`
	UserIcon string `json:"userIcon,omitempty"`
}

// JoinRoomResult carries the room history returned on join.
type JoinRoomResult struct {
	Messages []ChatMessage `json:"messages"`
	UserID   string        `json:"userId,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Msg
}
