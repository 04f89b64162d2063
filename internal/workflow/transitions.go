// Package workflow gates state transitions and publish attempts before they
// reach the archive store.
package workflow

import (
	"github.com/looplab/fsm"

	"newsdesk/authoring/internal/archive"
)

// Transition events. The store performs the actual state change; the
// engine refuses to even attempt an event that the graph does not allow
// from the item's current state.
const (
	EventSubmit     = "submit"
	EventRoute      = "route"
	EventPublish    = "publish"
	EventCorrect    = "correct"
	EventKill       = "kill"
	EventSchedule   = "schedule"
	EventDeschedule = "deschedule"
	EventSpike      = "spike"
	EventUnspike    = "unspike"
)

// transitions is the append-only item workflow graph. killed is absorbing;
// scheduled can only move forward to published or killed.
var transitions = fsm.Events{
	{Name: EventSubmit, Src: []string{string(archive.StateDraft), string(archive.StateFetched)}, Dst: string(archive.StateSubmitted)},
	{Name: EventRoute, Src: []string{string(archive.StateDraft), string(archive.StateFetched)}, Dst: string(archive.StateRouted)},
	{Name: EventPublish, Src: []string{
		string(archive.StateSubmitted),
		string(archive.StateRouted),
		string(archive.StateFetched),
		string(archive.StateScheduled),
	}, Dst: string(archive.StatePublished)},
	{Name: EventCorrect, Src: []string{
		string(archive.StatePublished),
		string(archive.StateCorrected),
	}, Dst: string(archive.StateCorrected)},
	{Name: EventKill, Src: []string{
		string(archive.StatePublished),
		string(archive.StateCorrected),
		string(archive.StateScheduled),
	}, Dst: string(archive.StateKilled)},
	{Name: EventSchedule, Src: []string{
		string(archive.StateSubmitted),
		string(archive.StateRouted),
		string(archive.StatePublished),
		string(archive.StateCorrected),
	}, Dst: string(archive.StateScheduled)},
	{Name: EventDeschedule, Src: []string{string(archive.StateScheduled)}, Dst: string(archive.StateSubmitted)},
	{Name: EventSpike, Src: []string{
		string(archive.StateDraft),
		string(archive.StateSubmitted),
		string(archive.StateRouted),
		string(archive.StateFetched),
	}, Dst: string(archive.StateSpiked)},
	// unspike's real destination is the recorded prior state; the graph
	// only encodes that it leaves spiked. See UnspikeTarget.
	{Name: EventUnspike, Src: []string{string(archive.StateSpiked)}, Dst: string(archive.StateDraft)},
}

// CanTransition reports whether the event is legal from the given state.
func CanTransition(from archive.State, event string) bool {
	machine := fsm.NewFSM(string(from), transitions, fsm.Callbacks{})
	return machine.Can(event)
}

// UnspikeTarget resolves the state an unspiked item returns to.
func UnspikeTarget(item *archive.Item) archive.State {
	if item.PreviousState != "" && item.PreviousState != archive.StateSpiked {
		return item.PreviousState
	}
	return archive.StateDraft
}
