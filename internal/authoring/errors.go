package authoring

import (
	"errors"
	"fmt"

	"newsdesk/authoring/internal/archive"
)

// ErrCancelled means the user declined a confirmation prompt. It is an
// intentional abort, not a failure.
var ErrCancelled = errors.New("cancelled by user")

// ErrReadOnly rejects edits on a session that never obtained the lock or
// has since lost it.
var ErrReadOnly = errors.New("session is read-only")

// PrivilegeError means the caller requested an action the permission
// table does not grant. A UI that consulted the table first never
// triggers it.
type PrivilegeError struct {
	Action string
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("action %q not permitted", e.Action)
}

// TransitionError means the workflow graph has no such transition from
// the item's current state.
type TransitionError struct {
	From  archive.State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from state %q", e.Event, e.From)
}
