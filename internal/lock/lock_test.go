package lock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"newsdesk/authoring/internal/archive"
	"newsdesk/authoring/internal/metrics"
	"newsdesk/authoring/internal/session"
	"newsdesk/authoring/internal/store"
)

// fakeLockStore enforces the store's conditional write on the lock field.
type fakeLockStore struct {
	mu    sync.Mutex
	items map[string]*archive.Item

	lockItemFn   func(context.Context, string, archive.Lock) (*archive.Item, error)
	unlockItemFn func(context.Context, string) (*archive.Item, error)
}

func newFakeLockStore(items ...*archive.Item) *fakeLockStore {
	f := &fakeLockStore{items: make(map[string]*archive.Item)}
	for _, item := range items {
		f.items[item.ID] = item
	}
	return f
}

func (f *fakeLockStore) LockItem(ctx context.Context, id string, lock archive.Lock) (*archive.Item, error) {
	if f.lockItemFn != nil {
		return f.lockItemFn(ctx, id, lock)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if item.Lock != nil && item.Lock.SessionID != lock.SessionID {
		return nil, &store.LockedError{ItemID: id, UserID: item.Lock.UserID, SessionID: item.Lock.SessionID}
	}
	item.Lock = &lock
	return item.Clone(), nil
}

func (f *fakeLockStore) UnlockItem(ctx context.Context, id string) (*archive.Item, error) {
	if f.unlockItemFn != nil {
		return f.unlockItemFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	item.Lock = nil
	return item.Clone(), nil
}

func testSession(id string) session.Context {
	return session.Context{SessionID: "sess-" + id, UserID: "user-" + id}
}

func TestAcquireAndRelease(t *testing.T) {
	fake := newFakeLockStore(&archive.Item{ID: "item-1", State: archive.StateDraft})
	coordinator := NewCoordinator(fake, zerolog.Nop(), nil)
	sess := testSession("a")

	locked, err := coordinator.Acquire(context.Background(), sess, &archive.Item{ID: "item-1"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !coordinator.IsHeldByCurrentSession(sess, locked) {
		t.Errorf("expected lock to be held by acquiring session")
	}

	unlocked, err := coordinator.Release(context.Background(), sess, locked)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if unlocked.Lock != nil {
		t.Errorf("expected lock to be cleared")
	}
}

func TestMutualExclusion(t *testing.T) {
	fake := newFakeLockStore(&archive.Item{ID: "item-1", State: archive.StateDraft})
	coordinator := NewCoordinator(fake, zerolog.Nop(), nil)

	first := testSession("a")
	second := testSession("b")

	// both sessions observed the item unlocked
	unlockedView := &archive.Item{ID: "item-1"}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, sess := range []session.Context{first, second} {
		wg.Add(1)
		go func(i int, sess session.Context) {
			defer wg.Done()
			_, results[i] = coordinator.Acquire(context.Background(), sess, unlockedView.Clone())
		}(i, sess)
	}
	wg.Wait()

	var successes, denials int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		var locked *store.LockedError
		if errors.As(err, &locked) {
			denials++
		} else {
			t.Fatalf("unexpected acquire error: %v", err)
		}
	}
	if successes != 1 || denials != 1 {
		t.Errorf("expected exactly one winner, got %d successes and %d denials", successes, denials)
	}
}

func TestAcquireSeenLockShortCircuits(t *testing.T) {
	fake := newFakeLockStore()
	fake.lockItemFn = func(context.Context, string, archive.Lock) (*archive.Item, error) {
		t.Fatal("the store must not be asked to lock an item already locked elsewhere")
		return nil, nil
	}
	coordinator := NewCoordinator(fake, zerolog.Nop(), nil)

	item := &archive.Item{
		ID:   "item-1",
		Lock: &archive.Lock{SessionID: "sess-other", UserID: "user-2"},
	}
	_, err := coordinator.Acquire(context.Background(), testSession("a"), item)
	var locked *store.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if locked.UserID != "user-2" {
		t.Errorf("expected holder identity in error, got %+v", locked)
	}
}

func TestAcquireIdempotentForOwnSession(t *testing.T) {
	fake := newFakeLockStore()
	coordinator := NewCoordinator(fake, zerolog.Nop(), nil)
	sess := testSession("a")

	item := &archive.Item{
		ID:   "item-1",
		Lock: &archive.Lock{SessionID: sess.SessionID, UserID: sess.UserID},
	}
	got, err := coordinator.Acquire(context.Background(), sess, item)
	if err != nil {
		t.Fatalf("re-acquire of own lock failed: %v", err)
	}
	if got != item {
		t.Errorf("expected own lock to be returned unchanged")
	}
}

func TestAcquireStoreFailureStaysConservative(t *testing.T) {
	fake := newFakeLockStore()
	fake.lockItemFn = func(context.Context, string, archive.Lock) (*archive.Item, error) {
		return nil, &store.UnavailableError{Op: "POST item_lock", Err: errors.New("connection refused")}
	}
	coordinator := NewCoordinator(fake, zerolog.Nop(), nil)

	_, err := coordinator.Acquire(context.Background(), testSession("a"), &archive.Item{ID: "item-1"})
	var unavailable *store.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
}

func TestReleaseTelemetryDistinguishesForcedUnlock(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	fake := newFakeLockStore(&archive.Item{
		ID:   "item-1",
		Lock: &archive.Lock{SessionID: "sess-other", UserID: "user-2"},
	})
	coordinator := NewCoordinator(fake, zerolog.Nop(), m)

	admin := testSession("admin")
	item := &archive.Item{
		ID:   "item-1",
		Lock: &archive.Lock{SessionID: "sess-other", UserID: "user-2"},
	}
	if _, err := coordinator.Release(context.Background(), admin, item); err != nil {
		t.Fatalf("forced release failed: %v", err)
	}

	forced := testutil.ToFloat64(m.LockReleasedTotal.WithLabelValues("forced"))
	self := testutil.ToFloat64(m.LockReleasedTotal.WithLabelValues("self"))
	if forced != 1 || self != 0 {
		t.Errorf("expected forced=1 self=0, got forced=%v self=%v", forced, self)
	}
}

func TestIsHeldByOther(t *testing.T) {
	coordinator := NewCoordinator(newFakeLockStore(), zerolog.Nop(), nil)
	sess := testSession("a")

	if coordinator.IsHeldByOther(sess, &archive.Item{ID: "i"}) {
		t.Errorf("unlocked item is not held by another session")
	}
	mine := &archive.Item{ID: "i", Lock: &archive.Lock{SessionID: sess.SessionID}}
	if coordinator.IsHeldByOther(sess, mine) {
		t.Errorf("own lock must not count as held by other")
	}
	other := &archive.Item{ID: "i", Lock: &archive.Lock{SessionID: "sess-x"}}
	if !coordinator.IsHeldByOther(sess, other) {
		t.Errorf("foreign lock must count as held by other")
	}
}
