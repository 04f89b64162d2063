package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// WorkqueueEntry records one item a session has open, so an interrupted
// session can find its way back after a crash or tab close.
type WorkqueueEntry struct {
	ItemID    string    `json:"item_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ReadOnly  bool      `json:"read_only"`
	OpenedAt  time.Time `json:"opened_at"`
}

// RedisStore implements the work-queue registry using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed work-queue registry
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "workqueue:",
		ttl:    ttl,
	}, nil
}

// NewRedisStoreWithClient creates a registry from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "workqueue:",
		ttl:    ttl,
	}
}

// key generates the Redis key for a user's work queue
func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// Add records an open item for the user. Re-adding the same item replaces
// the previous entry and refreshes the queue TTL.
func (s *RedisStore) Add(ctx context.Context, entry WorkqueueEntry) error {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal workqueue entry: %w", err)
	}

	key := s.key(entry.UserID)
	if err := s.client.HSet(ctx, key, entry.ItemID, jsonData).Err(); err != nil {
		return fmt.Errorf("add workqueue entry: %w", err)
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("refresh workqueue ttl: %w", err)
	}

	return nil
}

// List returns the user's open items, oldest first.
func (s *RedisStore) List(ctx context.Context, userID string) ([]WorkqueueEntry, error) {
	values, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list workqueue: %w", err)
	}

	entries := make([]WorkqueueEntry, 0, len(values))
	for _, value := range values {
		var entry WorkqueueEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			continue // skip entries written by incompatible versions
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].OpenedAt.Before(entries[j].OpenedAt)
	})

	return entries, nil
}

// Remove deletes the entry for an item the user closed.
func (s *RedisStore) Remove(ctx context.Context, userID, itemID string) error {
	if err := s.client.HDel(ctx, s.key(userID), itemID).Err(); err != nil {
		return fmt.Errorf("remove workqueue entry: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
