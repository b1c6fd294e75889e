package credential

import (
	"context"
	"errors"
	"fmt"

	sharedredis "characterchat/backend/shared/redis"
)

// RedisStore keeps the key in Redis under StorageKey.
type RedisStore struct {
	client *sharedredis.RedisClient
}

func NewRedisStore(client *sharedredis.RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context) (string, error) {
	value, err := s.client.Get(ctx, StorageKey)
	if errors.Is(err, sharedredis.ErrNotFound) || (err == nil && value == "") {
		return "", ErrNotSet
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key from redis: %w", err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, value string) error {
	if err := s.client.Set(ctx, StorageKey, value, 0); err != nil {
		return fmt.Errorf("failed to write key to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, StorageKey); err != nil {
		return fmt.Errorf("failed to delete key from redis: %w", err)
	}
	return nil
}
