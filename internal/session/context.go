// Package session carries the caller's identity and keeps the redis-backed
// registry of items open per session.
package session

// Privileges is the caller's privilege set as granted by the newsroom
// backend. The action table treats a missing set as no privileges.
type Privileges struct {
	Publish           bool `json:"publish"`
	Correct           bool `json:"correct"`
	Kill              bool `json:"kill"`
	Spike             bool `json:"spike"`
	Unspike           bool `json:"unspike"`
	Move              bool `json:"move"`
	Duplicate         bool `json:"duplicate"`
	Unlock            bool `json:"unlock"`
	MarkForHighlights bool `json:"mark_for_highlights"`
	ArchiveBroadcast  bool `json:"archive_broadcast"`
}

// Context identifies one editing session. Lock ownership compares
// SessionID, not UserID: the same user in two tabs holds two sessions.
type Context struct {
	SessionID  string
	UserID     string
	Desks      []string
	Privileges Privileges
}

// MemberOf reports whether the session's user belongs to the given desk.
func (c Context) MemberOf(desk string) bool {
	for _, d := range c.Desks {
		if d == desk {
			return true
		}
	}
	return false
}
