package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"newsdesk/authoring/internal/archive"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, "test-token", zerolog.Nop(), nil)
	client.retryInterval = time.Millisecond
	return client, server
}

func TestGetItem(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/item/item-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewEncoder(w).Encode(archive.Item{ID: "item-1", ETag: "v1", State: archive.StateDraft})
	}))
	defer server.Close()

	item, err := client.GetItem(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.ETag != "v1" || item.State != archive.StateDraft {
		t.Errorf("unexpected item %+v", item)
	}
}

func TestGetItemRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(archive.Item{ID: "item-1", ETag: "v1"})
	}))
	defer server.Close()

	item, err := client.GetItem(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("GetItem failed after retries: %v", err)
	}
	if item.ETag != "v1" {
		t.Errorf("unexpected item %+v", item)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestGetItemNotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := client.GetItem(context.Background(), "item-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("404 must not be retried, got %d attempts", calls.Load())
	}
}

func TestSaveItemSendsIfMatch(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if r.Header.Get("If-Match") != "v1" {
			t.Errorf("expected If-Match v1, got %q", r.Header.Get("If-Match"))
		}
		var patch map[string]any
		_ = json.NewDecoder(r.Body).Decode(&patch)
		if patch["headline"] != "updated" {
			t.Errorf("unexpected patch %v", patch)
		}
		_ = json.NewEncoder(w).Encode(archive.Item{ID: "item-1", ETag: "v2"})
	}))
	defer server.Close()

	item, err := client.SaveItem(context.Background(), "item-1", "v1", archive.Patch{"headline": "updated"})
	if err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if item.ETag != "v2" {
		t.Errorf("expected new etag v2, got %q", item.ETag)
	}
}

func TestSaveItemStaleTag(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer server.Close()

	_, err := client.SaveItem(context.Background(), "item-1", "v0", archive.Patch{"headline": "x"})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.ItemID != "item-1" || conflict.ETag != "v0" {
		t.Errorf("unexpected conflict details %+v", conflict)
	}
}

func TestLockItemHeldElsewhere(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"lock": archive.Lock{SessionID: "sess-other", UserID: "user-2"},
		})
	}))
	defer server.Close()

	_, err := client.LockItem(context.Background(), "item-1", archive.Lock{SessionID: "sess-1", UserID: "user-1"})
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if locked.SessionID != "sess-other" || locked.UserID != "user-2" {
		t.Errorf("expected holder details, got %+v", locked)
	}
}

func TestPublishValidationIssues(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/item_publish/item-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"_issues": map[string]string{"headline": "required field"},
		})
	}))
	defer server.Close()

	_, err := client.PublishItem(context.Background(), ActionPublish, "item-1", "v1", nil)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validation.Issues["headline"] != "required field" {
		t.Errorf("unexpected issues %v", validation.Issues)
	}
}

func TestDeleteAutosaveIdempotent(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if err := client.DeleteAutosave(context.Background(), "item-1"); err != nil {
		t.Fatalf("expected missing shadow deletion to succeed, got %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	_, err := client.UnlockItem(context.Background(), "item-1")
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
}
