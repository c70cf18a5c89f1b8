package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefleet/backend/internal/infrastructure/config"
)

// RedisKV implements KVStore on top of Redis. The registry document is a
// plain string value; no TTL is set since the store list must never expire.
type RedisKV struct {
	client     *redis.Client
	ownsClient bool // true if we created the client and should close it
}

// NewRedisKV creates a Redis-backed key-value store with its own client
func NewRedisKV(cfg config.RedisConfig) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 3,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisKV{client: client, ownsClient: true}, nil
}

// NewRedisKVWithClient creates a key-value store sharing an existing Redis client.
// The caller retains ownership of the client and is responsible for closing it.
func NewRedisKVWithClient(client *redis.Client) *RedisKV {
	return &RedisKV{client: client, ownsClient: false}
}

// Get returns the value stored at key
func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// Set writes the value at key without expiration
func (s *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Delete removes the key. Redis DEL of an absent key is silently a no-op.
func (s *RedisKV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisKV) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client if this store owns it
func (s *RedisKV) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (s *RedisKV) GetClient() *redis.Client {
	return s.client
}

// Ensure RedisKV implements KVStore
var _ KVStore = (*RedisKV)(nil)
