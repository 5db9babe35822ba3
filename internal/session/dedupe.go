package session

import "strings"

// System message bodies narrate membership changes as
// "<nickname>: joined the party" and "<nickname>: left".
const (
	joinedMarker = "joined the party"
	leftMarker   = "left"
)

// systemNickname derives the subject nickname from a system message body:
// everything before the first colon, trimmed. A body with nothing before the
// colon has no derivable nickname.
func systemNickname(body string) string {
	if i := strings.IndexByte(body, ':'); i >= 0 {
		return strings.TrimSpace(body[:i])
	}
	return strings.TrimSpace(body)
}

// Deduplicate removes system messages re-announced by the server when a room
// history is fetched again after a reconnect or reload. Non-system messages
// always pass.
//
// "joined" and "left" messages are kept on the first occurrence of their
// exact body and dropped on exact repeats, so a replayed [joined, left]
// narrative collapses back to one pair. The filter applies unconditionally to
// both markers, which makes the pass a fixed point: applying it to its own
// output changes nothing.
func Deduplicate(history []Message) []Message {
	seenJoins := make(map[string]struct{})
	seenLefts := make(map[string]struct{})
	out := make([]Message, 0, len(history))
	for _, msg := range history {
		if !msg.IsSystemMessage {
			out = append(out, msg)
			continue
		}

		if systemNickname(msg.Body) == "" {
			// No derivable nickname: the leave/join logic never filters these.
			out = append(out, msg)
			continue
		}

		switch {
		case strings.Contains(msg.Body, joinedMarker):
			if _, dup := seenJoins[msg.Body]; dup {
				continue
			}
			seenJoins[msg.Body] = struct{}{}
		case strings.Contains(msg.Body, leftMarker):
			if _, dup := seenLefts[msg.Body]; dup {
				continue
			}
			seenLefts[msg.Body] = struct{}{}
		}
		out = append(out, msg)
	}
	return out
}

// DuplicateFilter rejects live-stream messages whose (userId, body) pair has
// already been observed during the process lifetime. It guards against the
// transport redelivering an already-seen event after a reconnect. Cleared
// only on sign-out.
type DuplicateFilter struct {
	seen map[string]struct{}
}

// NewDuplicateFilter returns an empty filter.
func NewDuplicateFilter() *DuplicateFilter {
	return &DuplicateFilter{seen: make(map[string]struct{})}
}

// Observe reports whether the message was already seen, recording it otherwise.
func (f *DuplicateFilter) Observe(m Message) bool {
	key := m.key()
	if _, ok := f.seen[key]; ok {
		return true
	}
	f.seen[key] = struct{}{}
	return false
}

// Reset forgets every observed key.
func (f *DuplicateFilter) Reset() {
	f.seen = make(map[string]struct{})
}
