package util

import "github.com/google/uuid"

// NewSessionID returns the identifier carried in lock.session_id. It has to
// be globally unique across gateway restarts, so it is a UUID.
func NewSessionID() string {
	return uuid.NewString()
}
