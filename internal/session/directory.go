package session

// UserDirectory maps transport-assigned user ids to display nicknames. It
// grows monotonically during a session and is reset only on sign-out.
// Not safe for concurrent use; the SessionStore serializes access.
type UserDirectory struct {
	byID map[string]string
}

// NewUserDirectory returns an empty directory.
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{byID: make(map[string]string)}
}

// Add records the nickname for a user id. Later observations overwrite
// earlier ones so a renamed participant resolves to their latest nickname.
func (d *UserDirectory) Add(userID, nickname string) {
	if userID == "" || nickname == "" {
		return
	}
	d.byID[userID] = nickname
}

// Nickname resolves a user id to a nickname.
func (d *UserDirectory) Nickname(userID string) (string, bool) {
	nick, ok := d.byID[userID]
	return nick, ok
}

// Len reports the number of known users.
func (d *UserDirectory) Len() int {
	return len(d.byID)
}

// Reset drops every entry.
func (d *UserDirectory) Reset() {
	d.byID = make(map[string]string)
}
