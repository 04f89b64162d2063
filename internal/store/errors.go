package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("item not found")
	ErrForbidden = errors.New("store rejected the caller's credentials")
)

// LockedError means another session holds the item lock. Recoverable: the
// caller falls back to read-only mode.
type LockedError struct {
	ItemID    string
	UserID    string
	SessionID string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("item %s is locked by another session", e.ItemID)
}

// ConflictError means a conditional write presented a stale version tag.
// Recoverable by reload-and-retry; never auto-merged.
type ConflictError struct {
	ItemID string
	ETag   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("item %s changed since version %s was read", e.ItemID, e.ETag)
}

// ValidationError carries the store's field-level rejection of a write or
// publish attempt.
type ValidationError struct {
	Issues map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("store rejected the request: %v", e.Issues)
}

// UnavailableError wraps a transport failure. The caller must not assume
// the item's lock or version state changed.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("archive store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
