// Package autosave persists a working draft periodically without advancing
// the canonical version, so an interrupted session can be recovered. The
// shadow copy lives in the store keyed by item id; only one debounce timer
// per item is ever armed.
package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"newsdesk/authoring/internal/archive"
	"newsdesk/authoring/internal/metrics"
	"newsdesk/authoring/internal/store"
)

type shadowStore interface {
	SaveAutosave(ctx context.Context, id string, snapshot *archive.Item) error
	GetAutosave(ctx context.Context, id string) (*archive.Item, error)
	DeleteAutosave(ctx context.Context, id string) error
}

const persistTimeout = 10 * time.Second

type Planner struct {
	store   shadowStore
	delay   time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewPlanner(s shadowStore, delay time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Planner {
	if m == nil {
		m = metrics.Nop()
	}
	return &Planner{
		store:   s,
		delay:   delay,
		logger:  logger.With().Str("component", "autosave").Logger(),
		metrics: m,
		timers:  make(map[string]*time.Timer),
	}
}

// Schedule arms the debounce timer for the item, superseding any pending
// one. The snapshot function runs when the timer fires, so the persisted
// shadow reflects the latest edits at fire time, not at schedule time. The
// resulting write is fire-and-forget: it must never block typing.
func (p *Planner) Schedule(itemID string, snapshot func() *archive.Item) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if timer, ok := p.timers[itemID]; ok {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(p.delay, func() {
		p.mu.Lock()
		// a later Schedule may have superseded this timer already
		if p.timers[itemID] == timer {
			delete(p.timers, itemID)
		}
		p.mu.Unlock()
		p.persist(itemID, snapshot())
	})
	p.timers[itemID] = timer
}

// Cancel disarms a pending timer without saving.
func (p *Planner) Cancel(itemID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if timer, ok := p.timers[itemID]; ok {
		timer.Stop()
		delete(p.timers, itemID)
	}
}

// Open fetches the existing autosave shadow on session start, so the
// caller can offer "restore unsaved changes". Items the session cannot
// edit never expose a shadow.
func (p *Planner) Open(ctx context.Context, itemID string, editable bool) (*archive.Item, error) {
	if !editable {
		return nil, nil
	}
	shadow, err := p.store.GetAutosave(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return shadow, nil
}

// Drop stops any pending timer and deletes the stored shadow, called
// after a successful real save made the draft obsolete.
func (p *Planner) Drop(ctx context.Context, itemID string) error {
	p.Cancel(itemID)
	return p.store.DeleteAutosave(ctx, itemID)
}

func (p *Planner) persist(itemID string, snapshot *archive.Item) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := p.store.SaveAutosave(ctx, itemID, snapshot); err != nil {
		p.metrics.AutosaveFailuresTotal.Inc()
		p.logger.Warn().Err(err).Str("item", itemID).Msg("autosave write failed, draft kept in memory")
		return
	}
	p.metrics.AutosaveWritesTotal.Inc()
	p.logger.Debug().Str("item", itemID).Msg("autosave shadow persisted")
}
