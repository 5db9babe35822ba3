package session

import (
	"time"

	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/proto"
)

// Message is the domain model for a chat or system message. Messages are
// immutable once appended to history.
type Message struct {
	UserID          string
	UserNickname    string
	UserIcon        string
	Body            string
	IsSystemMessage bool
	Timestamp       time.Time
}

// MessageFromProto converts a wire message into the domain model, promoting
// the icon from the userSettings blob when the top-level field is empty.
func MessageFromProto(m proto.ChatMessage) Message {
	icon := m.UserIcon
	if icon == "" && m.UserSettings != nil {
		icon = m.UserSettings.UserIcon
	}

	var ts time.Time
	if m.Timestamp != 0 {
		ts = time.UnixMilli(m.Timestamp)
	}

	return Message{
		UserID:          m.UserID,
		UserNickname:    m.UserNickname,
		UserIcon:        icon,
		Body:            m.Body,
		IsSystemMessage: m.IsSystemMessage,
		Timestamp:       ts,
	}
}

// key is the content address used for live-stream duplicate detection.
func (m Message) key() string {
	return m.UserID + ":" + m.Body
}
