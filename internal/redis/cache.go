package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RecordingCache holds recording links that arrive before their call is logged.
type RecordingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRecordingCache(client *redis.Client, ttl time.Duration) *RecordingCache {
	return &RecordingCache{client: client, ttl: ttl}
}

func (c *RecordingCache) Put(ctx context.Context, sessionID, link string) error {
	if err := c.client.Set(ctx, RecordingLinkKey(sessionID), link, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache recording link: %w", err)
	}
	return nil
}

// Take returns and removes the cached link. Empty string when nothing is cached.
func (c *RecordingCache) Take(ctx context.Context, sessionID string) (string, error) {
	link, err := c.client.GetDel(ctx, RecordingLinkKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("take recording link: %w", err)
	}
	return link, nil
}

// ClaimStore grants short-lived exclusive claims on external event ids.
type ClaimStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClaimStore(client *redis.Client, ttl time.Duration) *ClaimStore {
	return &ClaimStore{client: client, ttl: ttl}
}

// Claim returns false when another request already holds the key.
func (s *ClaimStore) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, time.Now().UnixMilli(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

func (s *ClaimStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
