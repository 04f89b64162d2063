// Package actions decides which operations are legal on an item for a
// given caller. ForItem is a pure function over an item snapshot; it never
// fails. Ambiguous input degrades to a view-only action set so the caller
// can always render something safe.
package actions

import (
	"newsdesk/authoring/internal/archive"
	"newsdesk/authoring/internal/session"
)

// ItemActions is the fixed-shape menu of legal operations. The zero value
// is "nothing allowed"; defaults() additionally permits viewing.
type ItemActions struct {
	Publish         bool `json:"publish"`
	Correct         bool `json:"correct"`
	Kill            bool `json:"kill"`
	Deschedule      bool `json:"deschedule"`
	NewTake         bool `json:"new_take"`
	Rewrite         bool `json:"re_write"`
	Save            bool `json:"save"`
	Edit            bool `json:"edit"`
	MarkItem        bool `json:"mark_item"`
	Duplicate       bool `json:"duplicate"`
	Copy            bool `json:"copy"`
	View            bool `json:"view"`
	Spike           bool `json:"spike"`
	Unspike         bool `json:"unspike"`
	PackageItem     bool `json:"package_item"`
	MultiEdit       bool `json:"multi_edit"`
	Send            bool `json:"send"`
	CreateBroadcast bool `json:"create_broadcast"`
	AddToCurrent    bool `json:"add_to_current"`
	Resend          bool `json:"resend"`
}

func defaults() ItemActions {
	return ItemActions{View: true}
}

// ForItem maps (item, caller, stage placement) to the menu of legal
// actions. The guard clauses run in a fixed precedence order; reordering
// them changes behavior for combined edge cases.
func ForItem(item *archive.Item, ctx session.Context, readOnlyStage bool) ItemActions {
	action := defaults()

	// missing context, read-only stages and killed takes-packages are
	// terminally read-only
	if item == nil || readOnlyStage ||
		(item.Takes != nil && item.Takes.State == archive.StateKilled) {
		return action
	}

	if item.State == archive.StateSpiked {
		return ItemActions{Unspike: ctx.Privileges.Unspike}
	}

	priv := ctx.Privileges
	digitalPackage := item.PackageType == archive.PackageTakes
	readOnlyState := item.State.IsReadOnly() || digitalPackage

	// freeForMe: nobody else holds the lock. heldByMe: this session does.
	freeForMe := item.Lock == nil || item.Lock.SessionID == ctx.SessionID
	heldByMe := item.Lock != nil && item.Lock.SessionID == ctx.SessionID

	// a new take continues the story: only on saved text items that close
	// their take sequence, with no embargo, no pending schedule on an
	// unpublished item, no update in flight
	newTake := !readOnlyState && item.Type == archive.TypeText &&
		item.Embargo == nil &&
		(item.State.IsPublished() || item.PublishSchedule == nil) &&
		item.Version > 0 &&
		item.IsLastTake() &&
		!item.MoreComing &&
		!item.IsBroadcastScript() &&
		item.RewrittenBy == ""

	if item.State.IsPublished() {
		// a superseded published version offers nothing
		if item.IsStalePublished() {
			return defaults()
		}

		action.View = true
		if item.State == archive.StateScheduled && !digitalPackage {
			action.Deschedule = true
		} else if item.State == archive.StatePublished || item.State == archive.StateCorrected {
			action.Kill = priv.Kill && freeForMe && !readOnlyState
			action.Correct = priv.Correct && freeForMe && !readOnlyState
		}
	} else {
		// production states: draft, submitted, routed, fetched
		action.Save = true
		action.Publish = !item.Flags.MarkedForNotPublication &&
			item.Task != nil && item.Task.Desk != "" &&
			priv.Publish && item.State != archive.StateDraft
		action.Edit = !item.IsTakesPackage() && heldByMe
		// once the caller holds the lock, edit supersedes view
		action.View = !heldByMe
		action.Spike = priv.Spike && item.IsLastTake()
		action.Send = item.Version > 0 && priv.Move
	}

	action.NewTake = newTake
	action.Rewrite = !readOnlyState && item.Type == archive.TypeText &&
		item.Embargo == nil && item.RewrittenBy == "" && newTake &&
		(item.Broadcast == nil || item.Broadcast.MasterID == "") &&
		(item.RewriteOf == "" || item.State.IsPublished())

	action.Resend = item.Type == archive.TypeText && item.RewrittenBy == "" &&
		(item.State == archive.StatePublished ||
			item.State == archive.StateCorrected ||
			item.State == archive.StateKilled)

	action.MarkItem = item.Task != nil && item.Task.Desk != "" &&
		!readOnlyState && item.PackageType != archive.PackageTakes &&
		priv.MarkForHighlights

	action.PackageItem = !item.State.IsReadOnly() && item.Embargo == nil &&
		item.PackageType != archive.PackageTakes &&
		(item.State.IsPublished() || item.PublishSchedule == nil)

	action.CreateBroadcast = (item.State == archive.StatePublished ||
		item.State == archive.StateCorrected) &&
		(item.Type == archive.TypeText || item.Type == archive.TypePreformatted) &&
		!item.IsBroadcastScript() && priv.ArchiveBroadcast

	action.MultiEdit = !readOnlyState

	if item.Task != nil && item.Task.Desk != "" {
		// in production
		action.Duplicate = priv.Duplicate && !item.State.IsCanceled() &&
			item.PackageType != archive.PackageTakes
		action.AddToCurrent = !item.State.IsReadOnly() &&
			item.PackageType != archive.PackageTakes

		if !ctx.MemberOf(item.Task.Desk) {
			// non-members may still update the story, nothing more
			rewrite, take := action.Rewrite, action.NewTake
			action = defaults()
			action.Rewrite = rewrite
			action.NewTake = take
		}
	} else {
		// personal workspace
		action.Copy = true
		action.View = false
		action.PackageItem = false
		action.NewTake = false
		action.Rewrite = false
	}

	return action
}
