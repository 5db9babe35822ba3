package proto

import "encoding/json"

// TypingKind discriminates the shapes a typing-presence payload arrives in.
type TypingKind int

const (
	// TypingDirect is the per-user form: {userNickname, typing, userId?}.
	TypingDirect TypingKind = iota
	// TypingBatch is the snapshot form: {usersTyping: [userId...]}.
	TypingBatch
	// TypingUnrecognized is anything matching neither shape.
	TypingUnrecognized
)

// TypingNotice is the decoded typing-presence payload.
type TypingNotice struct {
	Kind   TypingKind
	Direct DirectTyping
	Batch  BatchTyping
}

// DirectTyping reports one user's typing state.
type DirectTyping struct {
	UserNickname string
	Typing       bool
	UserID       string
}

// BatchTyping is an authoritative snapshot of every user currently typing,
// identified by transport user id.
type BatchTyping struct {
	UsersTyping []string
}

// DecodeTyping classifies a typing-presence payload by which discriminating
// field is present. A payload with userNickname is direct even when
// usersTyping is also set; servers have been observed sending both.
func DecodeTyping(raw json.RawMessage) TypingNotice {
	var probe struct {
		UserNickname *string   `json:"userNickname"`
		Typing       bool      `json:"typing"`
		UserID       string    `json:"userId"`
		UsersTyping  *[]string `json:"usersTyping"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return TypingNotice{Kind: TypingUnrecognized}
	}

	switch {
	case probe.UserNickname != nil:
		return TypingNotice{
			Kind: TypingDirect,
			Direct: DirectTyping{
				UserNickname: *probe.UserNickname,
				Typing:       probe.Typing,
				UserID:       probe.UserID,
			},
		}
	case probe.UsersTyping != nil:
		return TypingNotice{
			Kind:  TypingBatch,
			Batch: BatchTyping{UsersTyping: *probe.UsersTyping},
		}
	default:
		return TypingNotice{Kind: TypingUnrecognized}
	}
}
