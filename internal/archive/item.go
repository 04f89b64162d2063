// Package archive defines the versioned item record exchanged with the
// archive store. It carries no behavior beyond patch application and
// diffing; all workflow decisions live elsewhere.
package archive

import (
	"reflect"
	"time"
)

const (
	TypeText         = "text"
	TypePicture      = "picture"
	TypeComposite    = "composite"
	TypePreformatted = "preformatted"

	// PackageTakes marks a digital package: a read-only composite grouping
	// the takes of a running story.
	PackageTakes = "takes"

	genreBroadcast = "Broadcast Script"
)

// Lock records the single session allowed to write the item. The store
// enforces that at most one non-nil lock exists per item.
type Lock struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"holder_id"`
	Time      time.Time `json:"time,omitempty"`
}

// Task is the item's placement in the production pipeline. A nil task means
// the item lives in a personal workspace.
type Task struct {
	Desk  string `json:"desk,omitempty"`
	Stage string `json:"stage,omitempty"`
	User  string `json:"user,omitempty"`
}

// Takes chains successive published updates to the same running story.
type Takes struct {
	Sequence int    `json:"sequence,omitempty"`
	LastTake string `json:"last_take,omitempty"`
	State    State  `json:"state,omitempty"`
}

type Genre struct {
	Name string `json:"name"`
}

type Broadcast struct {
	MasterID string `json:"master_id,omitempty"`
}

type Flags struct {
	MarkedForNotPublication bool `json:"marked_for_not_publication,omitempty"`
}

// Item is the canonical unit of work. ETag changes on every successful
// store write and must accompany every conditional write.
type Item struct {
	ID              string     `json:"_id"`
	ETag            string     `json:"_etag,omitempty"`
	Version         int        `json:"_current_version,omitempty"`
	State           State      `json:"state,omitempty"`
	PreviousState   State      `json:"previous_state,omitempty"`
	Type            string     `json:"type,omitempty"`
	Lock            *Lock      `json:"lock,omitempty"`
	Task            *Task      `json:"task,omitempty"`
	Takes           *Takes     `json:"takes,omitempty"`
	RewriteOf       string     `json:"rewrite_of,omitempty"`
	RewrittenBy     string     `json:"rewritten_by,omitempty"`
	Embargo         *time.Time `json:"embargo,omitempty"`
	PublishSchedule *time.Time `json:"publish_schedule,omitempty"`
	MoreComing      bool       `json:"more_coming,omitempty"`
	PackageType     string     `json:"package_type,omitempty"`
	Genre           []Genre    `json:"genre,omitempty"`
	Broadcast       *Broadcast `json:"broadcast,omitempty"`
	Flags           Flags      `json:"flags,omitempty"`

	// LastPublishedVersion is set by the store on items in the published
	// superstate; false means the caller holds a superseded version. Absent
	// on production items.
	LastPublishedVersion *bool `json:"last_published_version,omitempty"`

	// Fields holds the editorial content (headline, slugline, body_html,
	// alt_text, ...). The engine treats them as opaque.
	Fields map[string]any `json:"fields,omitempty"`
}

// Patch is a partial update keyed by field name. Keys the engine knows
// about (embargo, publish_schedule, more_coming, task) update the typed
// metadata; everything else lands in Fields.
type Patch map[string]any

// IsTakesPackage reports whether the item is a digital package.
func (i *Item) IsTakesPackage() bool {
	return i.Type == TypeComposite && i.PackageType == PackageTakes
}

// IsBroadcastScript reports whether the item carries the broadcast genre.
func (i *Item) IsBroadcastScript() bool {
	if i.Type != TypeText && i.Type != TypePreformatted {
		return false
	}
	for _, genre := range i.Genre {
		if genre.Name == genreBroadcast {
			return true
		}
	}
	return false
}

// IsStalePublished reports whether the caller holds a version of a
// published item that the store has since superseded.
func (i *Item) IsStalePublished() bool {
	return i.LastPublishedVersion != nil && !*i.LastPublishedVersion
}

// IsLastTake reports whether the item closes its take sequence. Items
// outside a take sequence trivially qualify.
func (i *Item) IsLastTake() bool {
	return i.Takes == nil || i.Takes.LastTake == i.ID
}

// Clone returns a deep copy, so a working copy can diverge from the
// canonical item without sharing maps or pointers.
func (i *Item) Clone() *Item {
	clone := *i
	if i.Lock != nil {
		lock := *i.Lock
		clone.Lock = &lock
	}
	if i.Task != nil {
		task := *i.Task
		clone.Task = &task
	}
	if i.Takes != nil {
		takes := *i.Takes
		clone.Takes = &takes
	}
	if i.Broadcast != nil {
		broadcast := *i.Broadcast
		clone.Broadcast = &broadcast
	}
	if i.Embargo != nil {
		embargo := *i.Embargo
		clone.Embargo = &embargo
	}
	if i.PublishSchedule != nil {
		schedule := *i.PublishSchedule
		clone.PublishSchedule = &schedule
	}
	if i.LastPublishedVersion != nil {
		last := *i.LastPublishedVersion
		clone.LastPublishedVersion = &last
	}
	if i.Genre != nil {
		clone.Genre = append([]Genre(nil), i.Genre...)
	}
	if i.Fields != nil {
		fields := make(map[string]any, len(i.Fields))
		for key, value := range i.Fields {
			fields[key] = value
		}
		clone.Fields = fields
	}
	return &clone
}

// Apply merges a patch into the item in place.
func (i *Item) Apply(patch Patch) {
	for key, value := range patch {
		switch key {
		case "embargo":
			i.Embargo = asTime(value)
		case "publish_schedule":
			i.PublishSchedule = asTime(value)
		case "more_coming":
			i.MoreComing, _ = value.(bool)
		case "task":
			if task, ok := value.(*Task); ok {
				i.Task = task
			}
		default:
			if i.Fields == nil {
				i.Fields = make(map[string]any)
			}
			i.Fields[key] = value
		}
	}
}

// Diff returns the patch that turns orig into i, skipping unchanged fields
// so a save never reports conflicts on fields the session did not touch.
func (i *Item) Diff(orig *Item) Patch {
	patch := make(Patch)
	for key, value := range i.Fields {
		if orig == nil || !reflect.DeepEqual(value, orig.Fields[key]) {
			patch[key] = value
		}
	}
	if orig == nil {
		return patch
	}
	if !timesEqual(i.Embargo, orig.Embargo) {
		patch["embargo"] = i.Embargo
	}
	if !timesEqual(i.PublishSchedule, orig.PublishSchedule) {
		patch["publish_schedule"] = i.PublishSchedule
	}
	if i.MoreComing != orig.MoreComing {
		patch["more_coming"] = i.MoreComing
	}
	return patch
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func asTime(value any) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case *time.Time:
		return v
	case time.Time:
		return &v
	case string:
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil
		}
		return &parsed
	}
	return nil
}
