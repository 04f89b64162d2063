package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestAddAndListWorkqueue(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	first := WorkqueueEntry{
		ItemID:    "item-1",
		SessionID: "sess-1",
		UserID:    "user-1",
		OpenedAt:  time.Now().Add(-time.Minute),
	}
	second := WorkqueueEntry{
		ItemID:    "item-2",
		SessionID: "sess-1",
		UserID:    "user-1",
		ReadOnly:  true,
		OpenedAt:  time.Now(),
	}

	if err := store.Add(ctx, second); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Add(ctx, first); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	entries, err := store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ItemID != "item-1" || entries[1].ItemID != "item-2" {
		t.Errorf("expected oldest-first ordering, got %q then %q", entries[0].ItemID, entries[1].ItemID)
	}
	if !entries[1].ReadOnly {
		t.Errorf("expected read-only flag to round-trip")
	}
}

func TestRemoveWorkqueueEntry(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	entry := WorkqueueEntry{ItemID: "item-1", SessionID: "sess-1", UserID: "user-1", OpenedAt: time.Now()}

	if err := store.Add(ctx, entry); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Remove(ctx, "user-1", "item-1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	entries, err := store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty queue after remove, got %d entries", len(entries))
	}
}

func TestWorkqueueExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	entry := WorkqueueEntry{ItemID: "item-1", SessionID: "sess-1", UserID: "user-1", OpenedAt: time.Now()}
	if err := store.Add(ctx, entry); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Fast-forward time in miniredis past the queue TTL
	s.FastForward(2 * time.Minute)

	entries, err := store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected expired queue, got %d entries", len(entries))
	}
}

func TestMemberOf(t *testing.T) {
	ctx := Context{SessionID: "sess-1", UserID: "user-1", Desks: []string{"sports", "politics"}}
	if !ctx.MemberOf("sports") {
		t.Errorf("expected membership of sports desk")
	}
	if ctx.MemberOf("finance") {
		t.Errorf("did not expect membership of finance desk")
	}
}
