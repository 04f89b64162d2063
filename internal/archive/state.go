package archive

// State is the workflow state of an item. Transitions between states are
// gated by the workflow package; this package only knows the vocabulary.
type State string

const (
	StateDraft     State = "draft"
	StateSubmitted State = "submitted"
	StateRouted    State = "routed"
	StateFetched   State = "fetched"
	StateScheduled State = "scheduled"
	StatePublished State = "published"
	StateCorrected State = "corrected"
	StateKilled    State = "killed"
	StateSpiked    State = "spiked"
)

// IsPublished reports whether the state belongs to the published superstate:
// the item has gone through a publish action at least once.
func (s State) IsPublished() bool {
	switch s {
	case StatePublished, StateCorrected, StateScheduled, StateKilled:
		return true
	}
	return false
}

// IsReadOnly reports whether editing is closed for the state.
func (s State) IsReadOnly() bool {
	switch s {
	case StateSpiked, StateScheduled, StateKilled:
		return true
	}
	return false
}

// IsCanceled reports whether the item was withdrawn from the workflow.
func (s State) IsCanceled() bool {
	return s == StateSpiked || s == StateKilled
}

// InProduction reports whether the item is still being worked on.
func (s State) InProduction() bool {
	switch s {
	case StateDraft, StateSubmitted, StateRouted, StateFetched:
		return true
	}
	return false
}
