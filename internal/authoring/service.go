// Package authoring orchestrates a single open, edit, autosave, close or
// publish cycle per item and session, composing the lock coordinator, the
// autosave planner, the action table and the workflow gates.
package authoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"newsdesk/authoring/internal/actions"
	"newsdesk/authoring/internal/archive"
	"newsdesk/authoring/internal/autosave"
	"newsdesk/authoring/internal/lock"
	"newsdesk/authoring/internal/metrics"
	"newsdesk/authoring/internal/session"
	"newsdesk/authoring/internal/store"
	"newsdesk/authoring/internal/workflow"
)

// Confirmer answers the confirmation prompts that guard destructive
// steps (discarding a dirty draft, publishing with unsaved edits). The
// HTTP layer satisfies it from a request flag; a UI would ask the user.
type Confirmer interface {
	Confirm(prompt string) bool
}

// StaticConfirmer answers every prompt the same way.
type StaticConfirmer bool

func (c StaticConfirmer) Confirm(string) bool { return bool(c) }

type itemStore interface {
	GetItem(ctx context.Context, id string) (*archive.Item, error)
	SaveItem(ctx context.Context, id, etag string, patch archive.Patch) (*archive.Item, error)
	PublishItem(ctx context.Context, action store.PublishAction, id, etag string, patch archive.Patch) (*archive.Item, error)
	MoveItem(ctx context.Context, id string, task archive.Task) (*archive.Item, error)
	SpikeItem(ctx context.Context, id, etag string) (*archive.Item, error)
	UnspikeItem(ctx context.Context, id, etag string, target archive.State) (*archive.Item, error)
	CreateRewrite(ctx context.Context, id, desk string) (*archive.Item, error)
}

type workqueueRegistry interface {
	Add(ctx context.Context, entry session.WorkqueueEntry) error
	List(ctx context.Context, userID string) ([]session.WorkqueueEntry, error)
	Remove(ctx context.Context, userID, itemID string) error
}

// Session is one open editing cycle: the canonical item as last seen at
// the store, the working copy the edits land on, and the dirty flag that
// separates them.
type Session struct {
	ItemID string
	Ctx    session.Context

	mu        sync.Mutex
	readOnly  bool
	dirty     bool
	canonical *archive.Item
	working   *archive.Item

	// Shadow is the recovered autosave draft, offered once on open.
	Shadow *archive.Item
}

// ReadOnly reports whether the session may write the item.
func (s *Session) ReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOnly
}

// Dirty reports whether the working copy has unsaved edits.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Item returns a copy of the working item.
func (s *Session) Item() *archive.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working.Clone()
}

// snapshot is handed to the autosave planner; it runs at timer fire time
// so the shadow reflects the latest edits, not the edits at arm time.
func (s *Session) snapshot() *archive.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working.Clone()
}

// Service runs lifecycle operations over open sessions. Every method
// returns either a result or one of the error kinds in errors.go and the
// store package; nothing panics across a session.
type Service struct {
	store     itemStore
	locks     *lock.Coordinator
	autosave  *autosave.Planner
	validator *workflow.Validator
	workqueue workqueueRegistry
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewService(s itemStore, locks *lock.Coordinator, planner *autosave.Planner, validator *workflow.Validator, wq workqueueRegistry, logger zerolog.Logger, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.Nop()
	}
	return &Service{
		store:     s,
		locks:     locks,
		autosave:  planner,
		validator: validator,
		workqueue: wq,
		logger:    logger.With().Str("component", "authoring").Logger(),
		metrics:   m,
		sessions:  make(map[string]*Session),
	}
}

func sessionKey(sessionID, itemID string) string {
	return sessionID + "/" + itemID
}

// Lookup finds the open session this caller has on the item.
func (svc *Service) Lookup(ctx session.Context, itemID string) (*Session, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	s, ok := svc.sessions[sessionKey(ctx.SessionID, itemID)]
	return s, ok
}

// Open fetches the item and starts an editing session. A lock failure
// degrades the session to read-only instead of failing the open; only a
// missing item errors. Editable sessions get the stored autosave shadow
// back for draft recovery.
func (svc *Service) Open(ctx context.Context, sess session.Context, itemID string, readOnly bool) (*Session, error) {
	item, err := svc.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	editable := false
	if !readOnly && !item.State.IsReadOnly() {
		locked, err := svc.locks.Acquire(ctx, sess, item)
		if err != nil {
			svc.logger.Info().Err(err).Str("item", itemID).Msg("open degraded to read-only")
		} else {
			item = locked
			editable = true
		}
	}

	shadow, err := svc.autosave.Open(ctx, itemID, editable)
	if err != nil {
		svc.logger.Warn().Err(err).Str("item", itemID).Msg("autosave recovery unavailable")
		shadow = nil
	}

	s := &Session{
		ItemID:    itemID,
		Ctx:       sess,
		readOnly:  !editable,
		canonical: item,
		working:   item.Clone(),
		Shadow:    shadow,
	}

	svc.mu.Lock()
	svc.sessions[sessionKey(sess.SessionID, itemID)] = s
	svc.mu.Unlock()

	if svc.workqueue != nil {
		entry := session.WorkqueueEntry{
			ItemID:    itemID,
			SessionID: sess.SessionID,
			UserID:    sess.UserID,
			ReadOnly:  !editable,
			OpenedAt:  time.Now(),
		}
		if err := svc.workqueue.Add(ctx, entry); err != nil {
			svc.logger.Warn().Err(err).Str("item", itemID).Msg("workqueue registration failed")
		}
	}
	return s, nil
}

// Edit merges the patch into the working copy, marks the session dirty
// and arms the autosave timer. Schedule fields are validated before they
// touch the working copy, so a bad timestamp surfaces inline and the
// draft stays clean.
func (svc *Service) Edit(s *Session, patch archive.Patch) error {
	if err := svc.validateSchedulePatch(s, patch); err != nil {
		return err
	}

	s.mu.Lock()
	if s.readOnly {
		s.mu.Unlock()
		return ErrReadOnly
	}
	s.working.Apply(patch)
	s.dirty = true
	s.mu.Unlock()

	svc.autosave.Schedule(s.ItemID, s.snapshot)
	return nil
}

// Save writes the field-level diff between working copy and canonical
// under the canonical etag. The pending autosave timer is cancelled first
// so a firing autosave and a save never interleave. A conflict leaves the
// working copy untouched; an empty diff is a no-op that still clears the
// dirty flag and drops the shadow.
func (svc *Service) Save(ctx context.Context, s *Session) (*archive.Item, error) {
	svc.autosave.Cancel(s.ItemID)

	s.mu.Lock()
	if s.readOnly {
		s.mu.Unlock()
		return nil, ErrReadOnly
	}
	diff := s.working.Diff(s.canonical)
	etag := s.canonical.ETag
	s.mu.Unlock()

	if len(diff) == 0 {
		s.mu.Lock()
		s.dirty = false
		item := s.canonical
		s.mu.Unlock()
		svc.dropShadow(ctx, s.ItemID)
		return item, nil
	}

	updated, err := svc.store.SaveItem(ctx, s.ItemID, etag, diff)
	if err != nil {
		var conflict *store.ConflictError
		var held *store.LockedError
		switch {
		case errors.As(err, &conflict):
			svc.metrics.ConflictsTotal.Inc()
			svc.metrics.SavesTotal.WithLabelValues("conflict").Inc()
			svc.logger.Info().Str("item", s.ItemID).Msg("save rejected on stale etag, reload required")
		case errors.As(err, &held):
			// the lock was lost mid-session: stop writing, keep the draft
			s.mu.Lock()
			s.readOnly = true
			s.mu.Unlock()
			svc.metrics.SavesTotal.WithLabelValues("lock_lost").Inc()
			svc.logger.Warn().Str("item", s.ItemID).Str("holder", held.UserID).Msg("lock lost, session now read-only")
		default:
			svc.metrics.SavesTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	s.mu.Lock()
	s.canonical = updated
	s.working = updated.Clone()
	s.dirty = false
	s.mu.Unlock()

	svc.dropShadow(ctx, s.ItemID)
	svc.metrics.SavesTotal.WithLabelValues("ok").Inc()
	return updated, nil
}

// Close ends the session. A dirty session needs confirmation before the
// draft is discarded; decline aborts with ErrCancelled, keeping both the
// lock and the draft. Once past the prompt the lock is released unless
// keepLock asks to hand the slot to the next workflow step.
func (svc *Service) Close(ctx context.Context, s *Session, confirm Confirmer, keepLock bool) error {
	s.mu.Lock()
	dirty := s.dirty
	editable := !s.readOnly
	working := s.working
	s.mu.Unlock()

	if dirty {
		if confirm == nil || !confirm.Confirm("discard unsaved changes") {
			return ErrCancelled
		}
	}

	svc.autosave.Cancel(s.ItemID)
	svc.dropShadow(ctx, s.ItemID)

	var releaseErr error
	if editable && !keepLock {
		if _, err := svc.locks.Release(ctx, s.Ctx, working); err != nil {
			releaseErr = err
		}
	}

	svc.forget(ctx, s)
	return releaseErr
}

// Publish runs one of the publish verbs. Deschedule is not a store verb:
// it clears the publish schedule and saves. The rest validate, gate
// against the action table and the transition graph, carry any unsaved
// diff (after confirmation) and release the lock on success.
func (svc *Service) Publish(ctx context.Context, s *Session, action store.PublishAction, confirm Confirmer) (*archive.Item, error) {
	s.mu.Lock()
	dirty := s.dirty
	working := s.working
	etag := s.canonical.ETag
	s.mu.Unlock()

	allowed := actions.ForItem(working, s.Ctx, false)

	var permitted bool
	var event string
	switch action {
	case store.ActionPublish:
		permitted, event = allowed.Publish, workflow.EventPublish
	case store.ActionCorrect:
		permitted, event = allowed.Correct, workflow.EventCorrect
	case store.ActionKill:
		permitted, event = allowed.Kill, workflow.EventKill
	default:
		return nil, &PrivilegeError{Action: string(action)}
	}
	if !permitted {
		svc.metrics.PublishesTotal.WithLabelValues(string(action), "denied").Inc()
		return nil, &PrivilegeError{Action: string(action)}
	}
	if !workflow.CanTransition(working.State, event) {
		return nil, &TransitionError{From: working.State, Event: event}
	}
	if err := svc.validator.ValidatePublishPreconditions(working); err != nil {
		svc.metrics.PublishesTotal.WithLabelValues(string(action), "invalid").Inc()
		return nil, err
	}

	if dirty {
		if confirm == nil || !confirm.Confirm("publish with unsaved changes") {
			return nil, ErrCancelled
		}
	}

	svc.autosave.Cancel(s.ItemID)

	s.mu.Lock()
	diff := s.working.Diff(s.canonical)
	s.mu.Unlock()

	updated, err := svc.store.PublishItem(ctx, action, s.ItemID, etag, diff)
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			svc.metrics.ConflictsTotal.Inc()
			svc.metrics.PublishesTotal.WithLabelValues(string(action), "conflict").Inc()
			svc.logger.Info().Str("item", s.ItemID).Msg("publish lost the race, reload and compare")
		} else {
			svc.metrics.PublishesTotal.WithLabelValues(string(action), "error").Inc()
		}
		return nil, err
	}

	svc.finishTransition(ctx, s, updated)
	svc.metrics.PublishesTotal.WithLabelValues(string(action), "ok").Inc()
	return updated, nil
}

// Deschedule takes a scheduled item back off the calendar: it clears the
// publish schedule and saves, no publish verb involved. Scheduled items
// open read-only, so the write goes straight to the store.
func (svc *Service) Deschedule(ctx context.Context, s *Session) (*archive.Item, error) {
	working := s.Item()
	allowed := actions.ForItem(working, s.Ctx, false)
	if !allowed.Deschedule {
		return nil, &PrivilegeError{Action: "deschedule"}
	}

	updated, err := svc.store.SaveItem(ctx, s.ItemID, working.ETag, archive.Patch{"publish_schedule": nil})
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			svc.metrics.ConflictsTotal.Inc()
		}
		return nil, err
	}

	s.mu.Lock()
	s.canonical = updated
	s.working = updated.Clone()
	s.dirty = false
	s.mu.Unlock()
	return updated, nil
}

// Spike removes the item from production circulation.
func (svc *Service) Spike(ctx context.Context, s *Session) (*archive.Item, error) {
	working := s.Item()
	allowed := actions.ForItem(working, s.Ctx, false)
	if !allowed.Spike {
		return nil, &PrivilegeError{Action: "spike"}
	}
	if !workflow.CanTransition(working.State, workflow.EventSpike) {
		return nil, &TransitionError{From: working.State, Event: workflow.EventSpike}
	}

	svc.autosave.Cancel(s.ItemID)
	updated, err := svc.store.SpikeItem(ctx, s.ItemID, working.ETag)
	if err != nil {
		return nil, err
	}
	svc.finishTransition(ctx, s, updated)
	return updated, nil
}

// Unspike restores a spiked item to its recorded prior state.
func (svc *Service) Unspike(ctx context.Context, s *Session) (*archive.Item, error) {
	working := s.Item()
	allowed := actions.ForItem(working, s.Ctx, false)
	if !allowed.Unspike {
		return nil, &PrivilegeError{Action: "unspike"}
	}

	target := workflow.UnspikeTarget(working)
	updated, err := svc.store.UnspikeItem(ctx, s.ItemID, working.ETag, target)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.canonical = updated
	s.working = updated.Clone()
	s.dirty = false
	s.mu.Unlock()
	return updated, nil
}

// Rewrite creates a linked follow-up draft and opens it as a fresh
// editable session. The original stays open; the link makes the action
// table stop offering rewrite on it.
func (svc *Service) Rewrite(ctx context.Context, s *Session) (*Session, error) {
	working := s.Item()
	allowed := actions.ForItem(working, s.Ctx, false)
	if !allowed.Rewrite {
		return nil, &PrivilegeError{Action: "rewrite"}
	}

	desk := ""
	if working.Task != nil {
		desk = working.Task.Desk
	}
	draft, err := svc.store.CreateRewrite(ctx, s.ItemID, desk)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.canonical.RewrittenBy = draft.ID
	s.working.RewrittenBy = draft.ID
	s.mu.Unlock()

	return svc.Open(ctx, s.Ctx, draft.ID, false)
}

// SendTo moves the item to another desk and stage. A dirty draft is
// saved first (after confirmation); the lock is released as part of the
// move and deliberately not reacquired on failure, the caller re-opens.
func (svc *Service) SendTo(ctx context.Context, s *Session, desk, stage string, confirm Confirmer) (*archive.Item, error) {
	working := s.Item()
	allowed := actions.ForItem(working, s.Ctx, false)
	if !allowed.Send {
		return nil, &PrivilegeError{Action: "send"}
	}

	if s.Dirty() {
		if confirm == nil || !confirm.Confirm("save before sending") {
			return nil, ErrCancelled
		}
		if _, err := svc.Save(ctx, s); err != nil {
			return nil, err
		}
	}

	if !s.ReadOnly() {
		if _, err := svc.locks.Release(ctx, s.Ctx, s.Item()); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.readOnly = true
		s.working.Lock = nil
		s.canonical.Lock = nil
		s.mu.Unlock()
	}

	moved, err := svc.store.MoveItem(ctx, s.ItemID, archive.Task{Desk: desk, Stage: stage})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.canonical = moved
	s.working = moved.Clone()
	s.dirty = false
	s.mu.Unlock()

	svc.forget(ctx, s)
	return moved, nil
}

// Actions returns the permitted action set for the session's working copy.
func (svc *Service) Actions(s *Session) actions.ItemActions {
	return actions.ForItem(s.Item(), s.Ctx, false)
}

// Workqueue lists the caller's open items from the registry.
func (svc *Service) Workqueue(ctx context.Context, sess session.Context) ([]session.WorkqueueEntry, error) {
	if svc.workqueue == nil {
		return nil, nil
	}
	return svc.workqueue.List(ctx, sess.UserID)
}

// finishTransition settles a session after a successful store-side state
// change: the lock is gone, the draft is obsolete, the session stays
// open for inspection but can no longer write.
func (svc *Service) finishTransition(ctx context.Context, s *Session, updated *archive.Item) {
	s.mu.Lock()
	wasEditable := !s.readOnly
	s.canonical = updated
	s.working = updated.Clone()
	s.dirty = false
	s.readOnly = true
	s.mu.Unlock()

	if wasEditable && updated.Lock != nil {
		if released, err := svc.locks.Release(ctx, s.Ctx, updated); err == nil {
			s.mu.Lock()
			s.canonical = released
			s.working = released.Clone()
			s.mu.Unlock()
		}
	}
	svc.dropShadow(ctx, s.ItemID)
	if svc.workqueue != nil {
		if err := svc.workqueue.Remove(ctx, s.Ctx.UserID, s.ItemID); err != nil {
			svc.logger.Warn().Err(err).Str("item", s.ItemID).Msg("workqueue removal failed")
		}
	}
}

// validateSchedulePatch checks embargo and publish_schedule values sent
// as timestamps. The future requirement is relaxed for embargoes on items
// that already left production.
func (svc *Service) validateSchedulePatch(s *Session, patch archive.Patch) error {
	for _, field := range []string{"publish_schedule", "embargo"} {
		raw, ok := patch[field].(string)
		if !ok || raw == "" {
			continue
		}
		datePart, timePart, _ := strings.Cut(raw, "T")
		relax := field == "embargo" && s.Item().State.IsPublished()
		if err := svc.validator.ValidateSchedule(datePart, timePart, raw, "", field, relax); err != nil {
			return err
		}
	}
	return nil
}

func (svc *Service) dropShadow(ctx context.Context, itemID string) {
	if err := svc.autosave.Drop(ctx, itemID); err != nil {
		svc.logger.Warn().Err(err).Str("item", itemID).Msg("autosave shadow not dropped")
	}
}

func (svc *Service) forget(ctx context.Context, s *Session) {
	svc.mu.Lock()
	delete(svc.sessions, sessionKey(s.Ctx.SessionID, s.ItemID))
	svc.mu.Unlock()

	if svc.workqueue != nil {
		if err := svc.workqueue.Remove(ctx, s.Ctx.UserID, s.ItemID); err != nil {
			svc.logger.Warn().Err(err).Str("item", s.ItemID).Msg("workqueue removal failed")
		}
	}
}
