package session

import (
	"sort"

	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/proto"
)

// PresenceAggregator reconciles the two observed typing-notification shapes
// into one consistent view. Invariant: the local user's nickname never
// appears in the remote set. Not safe for concurrent use; the SessionStore
// serializes access.
type PresenceAggregator struct {
	localTyping bool
	remote      map[string]struct{}
}

// NewPresenceAggregator returns an aggregator with nobody typing.
func NewPresenceAggregator() *PresenceAggregator {
	return &PresenceAggregator{remote: make(map[string]struct{})}
}

// LocalTyping reports whether the local user is currently typing.
func (p *PresenceAggregator) LocalTyping() bool {
	return p.localTyping
}

// SetLocalTyping records the local user's typing intent. Local state is never
// reflected into the remote set.
func (p *PresenceAggregator) SetLocalTyping(typing bool) {
	p.localTyping = typing
}

// RemoteNicknames returns the sorted nicknames of remote users typing.
func (p *PresenceAggregator) RemoteNicknames() []string {
	names := make([]string, 0, len(p.remote))
	for name := range p.remote {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyDirect handles the per-user form. A notice about the local user (by
// nickname, or by user id when both sides are known) only updates the local
// flag and never touches the remote set.
func (p *PresenceAggregator) ApplyDirect(d proto.DirectTyping, localNickname, localUserID string) {
	aboutLocal := d.UserNickname == localNickname ||
		(d.UserID != "" && d.UserID == localUserID)
	if aboutLocal {
		p.localTyping = d.Typing
		return
	}

	if d.Typing {
		p.remote[d.UserNickname] = struct{}{}
	} else {
		delete(p.remote, d.UserNickname)
	}
	p.reconcile(localNickname)
}

// ApplyBatch handles the snapshot form. The snapshot is authoritative: it
// replaces the remote set wholesale. Ids resolve to nicknames through lookup,
// falling back to the raw id when unmapped. The local user's absence from the
// snapshot clears the local typing flag.
func (p *PresenceAggregator) ApplyBatch(b proto.BatchTyping, localNickname, localUserID string, lookup func(string) (string, bool)) {
	localInList := false
	for _, id := range b.UsersTyping {
		if id != "" && id == localUserID {
			localInList = true
			break
		}
	}
	if localInList {
		p.localTyping = true
	} else if p.localTyping {
		p.localTyping = false
	}

	next := make(map[string]struct{}, len(b.UsersTyping))
	for _, id := range b.UsersTyping {
		if id != "" && id == localUserID {
			continue
		}
		nick, ok := lookup(id)
		if !ok {
			nick = id
		}
		if nick == localNickname {
			continue
		}
		next[nick] = struct{}{}
	}
	p.remote = next
	p.reconcile(localNickname)
}

// reconcile restores the self-exclusion invariant. The local nickname can
// only land in the remote set through stale batch data; when it does, the
// user evidently is typing, so the flag is forced on instead of leaving the
// two pieces of state inconsistent.
func (p *PresenceAggregator) reconcile(localNickname string) {
	if localNickname == "" {
		return
	}
	if _, ok := p.remote[localNickname]; ok {
		delete(p.remote, localNickname)
		p.localTyping = true
	}
}

// Reset clears all typing state.
func (p *PresenceAggregator) Reset() {
	p.localTyping = false
	p.remote = make(map[string]struct{})
}
