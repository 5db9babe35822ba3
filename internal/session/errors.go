package session

import "errors"

// Error codes for session-level errors.
const (
	ErrCodeTransportClosed    = "transport_closed"
	ErrCodeCreateFailed       = "create_failed"
	ErrCodeJoinFailed         = "join_failed"
	ErrCodeReconnectExhausted = "reconnect_exhausted"
	ErrCodeAutoJoinExhausted  = "auto_join_exhausted"
	ErrCodeBadRequest         = "bad_request"
)

var (
	ErrNotConnected  = errors.New("not connected")
	ErrBlankNickname = errors.New("nickname is required")
	ErrBlankRoomID   = errors.New("room id is required")
)

// SessionError wraps a code, a user-facing message, and the underlying cause.
type SessionError struct {
	Code    string
	Message string
	Err     error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func sessionError(code, msg string, err error) *SessionError {
	return &SessionError{Code: code, Message: msg, Err: err}
}
