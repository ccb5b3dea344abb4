package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// defaultRedisKey is the single logical key holding the serialized table.
const defaultRedisKey = "taskbeacon:notifications"

// RedisStorage persists snapshots under a single Redis key. Useful when the
// producer CLI and the daemon run in containers without a shared disk.
type RedisStorage struct {
	client *redis.Client
	key    string
}

// RedisStorageOption configures a RedisStorage.
type RedisStorageOption func(*RedisStorage)

// WithRedisKey overrides the snapshot key.
func WithRedisKey(key string) RedisStorageOption {
	return func(s *RedisStorage) {
		if key != "" {
			s.key = key
		}
	}
}

// NewRedisStorage creates a Redis-backed storage using the given client.
// The caller retains ownership of the client and is responsible for closing it.
func NewRedisStorage(client *redis.Client, opts ...RedisStorageOption) *RedisStorage {
	s := &RedisStorage{
		client: client,
		key:    defaultRedisKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStorage) Read(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("notify: read snapshot from redis: %w", err)
	}
	return data, nil
}

func (s *RedisStorage) Write(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("notify: write snapshot to redis: %w", err)
	}
	return nil
}
