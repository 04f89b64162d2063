package autosave

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"newsdesk/authoring/internal/archive"
	"newsdesk/authoring/internal/store"
)

type fakeShadowStore struct {
	mu      sync.Mutex
	shadows map[string]*archive.Item
	saves   chan *archive.Item
	deletes int
}

func newFakeShadowStore() *fakeShadowStore {
	return &fakeShadowStore{
		shadows: make(map[string]*archive.Item),
		saves:   make(chan *archive.Item, 16),
	}
}

func (f *fakeShadowStore) SaveAutosave(ctx context.Context, id string, snapshot *archive.Item) error {
	f.mu.Lock()
	f.shadows[id] = snapshot
	f.mu.Unlock()
	f.saves <- snapshot
	return nil
}

func (f *fakeShadowStore) GetAutosave(ctx context.Context, id string) (*archive.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	shadow, ok := f.shadows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return shadow, nil
}

func (f *fakeShadowStore) DeleteAutosave(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.shadows, id)
	f.deletes++
	return nil
}

func waitForSave(t *testing.T, saves chan *archive.Item) *archive.Item {
	t.Helper()
	select {
	case snapshot := <-saves:
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for autosave write")
		return nil
	}
}

func TestDebounceCollapsing(t *testing.T) {
	fake := newFakeShadowStore()
	planner := NewPlanner(fake, 30*time.Millisecond, zerolog.Nop(), nil)

	var mu sync.Mutex
	headline := ""
	snapshot := func() *archive.Item {
		mu.Lock()
		defer mu.Unlock()
		return &archive.Item{ID: "item-1", Fields: map[string]any{"headline": headline}}
	}

	// rapid typing: five edits within a single debounce window
	for _, text := range []string{"h", "he", "hea", "head", "headline"} {
		mu.Lock()
		headline = text
		mu.Unlock()
		planner.Schedule("item-1", snapshot)
		time.Sleep(2 * time.Millisecond)
	}

	saved := waitForSave(t, fake.saves)
	if saved.Fields["headline"] != "headline" {
		t.Errorf("expected snapshot at fire time, got %v", saved.Fields["headline"])
	}

	// no further writes follow
	select {
	case extra := <-fake.saves:
		t.Errorf("expected a single collapsed write, got another: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelDisarmsTimer(t *testing.T) {
	fake := newFakeShadowStore()
	planner := NewPlanner(fake, 20*time.Millisecond, zerolog.Nop(), nil)

	planner.Schedule("item-1", func() *archive.Item {
		return &archive.Item{ID: "item-1"}
	})
	planner.Cancel("item-1")

	select {
	case <-fake.saves:
		t.Error("cancelled timer must not fire")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestDropDeletesShadowAndCancels(t *testing.T) {
	fake := newFakeShadowStore()
	fake.shadows["item-1"] = &archive.Item{ID: "item-1"}
	planner := NewPlanner(fake, 20*time.Millisecond, zerolog.Nop(), nil)

	planner.Schedule("item-1", func() *archive.Item {
		return &archive.Item{ID: "item-1"}
	})
	if err := planner.Drop(context.Background(), "item-1"); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}

	if _, err := fake.GetAutosave(context.Background(), "item-1"); err != store.ErrNotFound {
		t.Errorf("expected shadow to be deleted")
	}
	select {
	case <-fake.saves:
		t.Error("dropped timer must not fire")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestOpenReturnsShadowForEditableItem(t *testing.T) {
	fake := newFakeShadowStore()
	fake.shadows["item-1"] = &archive.Item{ID: "item-1", Fields: map[string]any{"headline": "draft"}}
	planner := NewPlanner(fake, time.Second, zerolog.Nop(), nil)

	shadow, err := planner.Open(context.Background(), "item-1", true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if shadow == nil || shadow.Fields["headline"] != "draft" {
		t.Errorf("expected stored shadow, got %+v", shadow)
	}

	// read-only sessions never see a shadow
	shadow, err = planner.Open(context.Background(), "item-1", false)
	if err != nil || shadow != nil {
		t.Errorf("expected no shadow for read-only open, got %+v, %v", shadow, err)
	}

	// no shadow stored is not an error
	shadow, err = planner.Open(context.Background(), "item-2", true)
	if err != nil || shadow != nil {
		t.Errorf("expected missing shadow to be nil/nil, got %+v, %v", shadow, err)
	}
}

func TestScheduleSupersedesPerItem(t *testing.T) {
	fake := newFakeShadowStore()
	planner := NewPlanner(fake, 30*time.Millisecond, zerolog.Nop(), nil)

	planner.Schedule("item-1", func() *archive.Item {
		return &archive.Item{ID: "item-1", Fields: map[string]any{"headline": "one"}}
	})
	planner.Schedule("item-2", func() *archive.Item {
		return &archive.Item{ID: "item-2", Fields: map[string]any{"headline": "two"}}
	})

	first := waitForSave(t, fake.saves)
	second := waitForSave(t, fake.saves)
	ids := map[string]bool{first.ID: true, second.ID: true}
	if !ids["item-1"] || !ids["item-2"] {
		t.Errorf("expected independent timers per item, got %v", ids)
	}
}
