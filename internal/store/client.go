// Package store is the REST client for the archive store, the external
// system of record for items, locks and autosave shadows. All writes are
// conditional on the item's version tag.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"newsdesk/authoring/internal/archive"
	"newsdesk/authoring/internal/metrics"
)

// PublishAction selects the transition endpoint.
type PublishAction string

const (
	ActionPublish PublishAction = "publish"
	ActionCorrect PublishAction = "correct"
	ActionKill    PublishAction = "kill"
)

type Client struct {
	base          string
	token         string
	httpc         *http.Client
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	retryInterval time.Duration
}

func NewClient(baseURL, token string, logger zerolog.Logger, m *metrics.Metrics) *Client {
	if m == nil {
		m = metrics.Nop()
	}
	return &Client{
		base:          strings.TrimRight(baseURL, "/"),
		token:         token,
		httpc:         &http.Client{Timeout: 15 * time.Second},
		logger:        logger.With().Str("component", "store").Logger(),
		metrics:       m,
		retryInterval: 500 * time.Millisecond,
	}
}

// GetItem fetches the canonical item. Transient failures are retried with
// exponential backoff before surfacing UnavailableError.
func (c *Client) GetItem(ctx context.Context, id string) (*archive.Item, error) {
	var item archive.Item
	operation := func() error {
		err := c.do(ctx, http.MethodGet, "item/"+id, "", nil, &item)
		var unavailable *UnavailableError
		if errors.As(err, &unavailable) {
			return err // retryable
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(exponential, 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return &item, nil
}

// LockItem asks the store for the exclusive write lock. The store's write
// is conditional on the lock field being empty, so a concurrent acquire
// loses with LockedError instead of silently overwriting.
func (c *Client) LockItem(ctx context.Context, id string, lock archive.Lock) (*archive.Item, error) {
	var item archive.Item
	if err := c.do(ctx, http.MethodPost, "item_lock/"+id, "", lock, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UnlockItem clears the lock unconditionally.
func (c *Client) UnlockItem(ctx context.Context, id string) (*archive.Item, error) {
	var item archive.Item
	if err := c.do(ctx, http.MethodPost, "item_unlock/"+id, "", nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// SaveItem writes a field diff conditionally on the version tag last read.
func (c *Client) SaveItem(ctx context.Context, id, etag string, patch archive.Patch) (*archive.Item, error) {
	var item archive.Item
	if err := c.do(ctx, http.MethodPatch, "item/"+id, etag, patch, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetAutosave fetches the item's autosave shadow, ErrNotFound if none.
func (c *Client) GetAutosave(ctx context.Context, id string) (*archive.Item, error) {
	var shadow archive.Item
	if err := c.do(ctx, http.MethodGet, "item_autosave/"+id, "", nil, &shadow); err != nil {
		return nil, err
	}
	return &shadow, nil
}

// SaveAutosave replaces the autosave shadow. Last write wins; there are no
// version tag semantics on shadows.
func (c *Client) SaveAutosave(ctx context.Context, id string, snapshot *archive.Item) error {
	return c.do(ctx, http.MethodPost, "item_autosave/"+id, "", snapshot, nil)
}

// DeleteAutosave drops the autosave shadow. A missing shadow is not an
// error, deletion is idempotent.
func (c *Client) DeleteAutosave(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "item_autosave/"+id, "", nil, nil)
	if err == ErrNotFound {
		return nil
	}
	return err
}

// PublishItem performs a publish-class transition conditionally on the
// version tag. A 412 means someone else published first.
func (c *Client) PublishItem(ctx context.Context, action PublishAction, id, etag string, patch archive.Patch) (*archive.Item, error) {
	var item archive.Item
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("item_%s/%s", action, id), etag, patch, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// MoveItem sends the item to another desk/stage.
func (c *Client) MoveItem(ctx context.Context, id string, task archive.Task) (*archive.Item, error) {
	var item archive.Item
	body := map[string]any{"task": task}
	if err := c.do(ctx, http.MethodPost, "move/"+id, "", body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// SpikeItem withdraws the item from the workflow; UnspikeItem restores it
// to the given state.
func (c *Client) SpikeItem(ctx context.Context, id, etag string) (*archive.Item, error) {
	var item archive.Item
	if err := c.do(ctx, http.MethodPost, "item_spike/"+id, etag, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) UnspikeItem(ctx context.Context, id, etag string, target archive.State) (*archive.Item, error) {
	var item archive.Item
	body := map[string]any{"state": target}
	if err := c.do(ctx, http.MethodPost, "item_unspike/"+id, etag, body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateRewrite asks the store for a new draft linked to the original via
// rewrite_of/rewritten_by, placed on the given desk.
func (c *Client) CreateRewrite(ctx context.Context, id, desk string) (*archive.Item, error) {
	var item archive.Item
	body := map[string]any{"desk_id": desk}
	if err := c.do(ctx, http.MethodPost, "item_rewrite/"+id, "", body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Ping checks store reachability for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", "", nil, nil)
}

type issuesPayload struct {
	Issues map[string]string `json:"_issues"`
	Lock   *archive.Lock     `json:"lock"`
}

func (c *Client) do(ctx context.Context, method, path, etag string, body, out any) error {
	started := time.Now()
	operation := method + " " + strings.SplitN(path, "/", 2)[0]
	defer func() {
		c.metrics.StoreRequestDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+"/"+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &UnavailableError{Op: operation, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return ErrForbidden
	case resp.StatusCode == http.StatusConflict:
		payload := decodeIssues(resp.Body)
		locked := &LockedError{ItemID: itemIDFromPath(path)}
		if payload.Lock != nil {
			locked.UserID = payload.Lock.UserID
			locked.SessionID = payload.Lock.SessionID
		}
		return locked
	case resp.StatusCode == http.StatusPreconditionFailed:
		return &ConflictError{ItemID: itemIDFromPath(path), ETag: etag}
	case resp.StatusCode == http.StatusBadRequest:
		payload := decodeIssues(resp.Body)
		if len(payload.Issues) > 0 {
			return &ValidationError{Issues: payload.Issues}
		}
		return &ValidationError{Issues: map[string]string{"request": "rejected"}}
	case resp.StatusCode >= 500:
		return &UnavailableError{Op: operation, Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return fmt.Errorf("unexpected store response %d for %s", resp.StatusCode, operation)
	}
}

func decodeIssues(body io.Reader) issuesPayload {
	var payload issuesPayload
	_ = json.NewDecoder(body).Decode(&payload)
	return payload
}

func itemIDFromPath(path string) string {
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}
