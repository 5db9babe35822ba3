package session

// Status is the connection lifecycle state. It is written only by the
// ConnectionManager.
type Status int

const (
	// StatusDisconnected means no transport connection exists.
	StatusDisconnected Status = iota
	// StatusConnecting covers the initial dial and the auto-rejoin-on-load path.
	StatusConnecting
	// StatusConnected means the transport is ready.
	StatusConnected
	// StatusReconnecting means the connection dropped and a retry is scheduled.
	StatusReconnecting
	// StatusFailed is terminal: reconnect attempts are exhausted and the user
	// must restart the client.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
