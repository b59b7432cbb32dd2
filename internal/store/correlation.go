package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CorrelationStore maps call-leg correlation keys to conversation ids.
// Keys carry a short TTL by default; Persist lifts the TTL so a key survives
// until the matching call_ended event consumes it.
type CorrelationStore struct {
	client *redis.Client
}

func NewCorrelationStore(client *redis.Client) *CorrelationStore {
	return &CorrelationStore{client: client}
}

func (s *CorrelationStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("correlation get %s: %w", key, err)
	}
	return val, nil
}

func (s *CorrelationStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("correlation set %s: %w", key, err)
	}
	return nil
}

func (s *CorrelationStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("correlation exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Persist clears the key's TTL so it no longer expires.
func (s *CorrelationStore) Persist(ctx context.Context, key string) error {
	if err := s.client.Persist(ctx, key).Err(); err != nil {
		return fmt.Errorf("correlation persist %s: %w", key, err)
	}
	return nil
}

func (s *CorrelationStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("correlation expire %s: %w", key, err)
	}
	return nil
}
