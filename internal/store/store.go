package store

import "context"

// Keys for the persisted session record. Auto-rejoin triggers only when all
// three are present and KeyHasJoinedRoom holds "true".
const (
	KeyRoomID        = "roomId"
	KeyNickname      = "nickname"
	KeyHasJoinedRoom = "hasJoinedRoom"
)

// RecordStore persists the last joined session across process restarts.
// Get returns "" for an absent key.
type RecordStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
