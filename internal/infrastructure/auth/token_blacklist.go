package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefleet/backend/internal/infrastructure/config"
)

// TokenBlacklist records revoked JWT tokens so logout takes effect before
// the token's natural expiry. There is a single admin account, so revoking
// "all sessions" is a global cutoff rather than a per-user one.
type TokenBlacklist interface {
	// Revoke adds a token's JTI (JWT ID) to the blacklist.
	// ttl should be the remaining time until the token would expire anyway.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error

	// IsRevoked checks whether a token's JTI has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// RevokeAllSessions invalidates every token issued up to now by storing
	// a cutoff timestamp. Tokens issued at or before the cutoff are rejected.
	RevokeAllSessions(ctx context.Context, ttl time.Duration) error

	// IsSessionRevoked reports whether a token issued at the given time falls
	// before the global cutoff.
	IsSessionRevoked(ctx context.Context, issuedAt time.Time) (bool, error)
}

// RedisTokenBlacklist implements TokenBlacklist using Redis
type RedisTokenBlacklist struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisTokenBlacklist creates a Redis-based token blacklist with its own client
func NewRedisTokenBlacklist(cfg config.RedisConfig) (*RedisTokenBlacklist, error) {
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
		return nil, fmt.Errorf("failed to connect to Redis for token blacklist: %w", err)
	}

	return NewRedisTokenBlacklistWithClient(client), nil
}

// NewRedisTokenBlacklistWithClient creates a token blacklist sharing an existing Redis client
func NewRedisTokenBlacklistWithClient(client *redis.Client) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{
		client:    client,
		keyPrefix: "storefleet:token:revoked:",
	}
}

// jtiKey returns the Redis key for a revoked JTI
func (b *RedisTokenBlacklist) jtiKey(jti string) string {
	return b.keyPrefix + "jti:" + jti
}

// cutoffKey returns the Redis key holding the global session cutoff timestamp
func (b *RedisTokenBlacklist) cutoffKey() string {
	return b.keyPrefix + "sessions"
}

// Revoke adds a token's JTI to the blacklist
func (b *RedisTokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	err := b.client.Set(ctx, b.jtiKey(jti), "1", ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked checks if a token's JTI is in the blacklist
func (b *RedisTokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := b.client.Exists(ctx, b.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists > 0, nil
}

// RevokeAllSessions stores the current Unix timestamp as the session cutoff.
// Any token issued at or before this instant is considered revoked.
func (b *RedisTokenBlacklist) RevokeAllSessions(ctx context.Context, ttl time.Duration) error {
	cutoff := time.Now().Unix()
	err := b.client.Set(ctx, b.cutoffKey(), cutoff, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}

// IsSessionRevoked checks if a token was issued before the session cutoff
func (b *RedisTokenBlacklist) IsSessionRevoked(ctx context.Context, issuedAt time.Time) (bool, error) {
	cutoffStr, err := b.client.Get(ctx, b.cutoffKey()).Result()
	if err == redis.Nil {
		// No cutoff recorded, token is valid
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check session cutoff: %w", err)
	}

	var cutoff int64
	if _, err := fmt.Sscanf(cutoffStr, "%d", &cutoff); err != nil {
		return false, fmt.Errorf("failed to parse session cutoff: %w", err)
	}

	return issuedAt.Unix() <= cutoff, nil
}

// Close closes the Redis client
func (b *RedisTokenBlacklist) Close() error {
	return b.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (b *RedisTokenBlacklist) GetClient() *redis.Client {
	return b.client
}

// Ensure RedisTokenBlacklist implements TokenBlacklist
var _ TokenBlacklist = (*RedisTokenBlacklist)(nil)

// InMemoryTokenBlacklist provides an in-memory implementation used by the
// memory and sqlite database drivers, where no Redis connection exists.
// WARNING: revocations do not survive a restart or span multiple instances.
type InMemoryTokenBlacklist struct {
	mu            sync.RWMutex
	revokedJTIs   map[string]time.Time // JTI -> blacklist entry expiration
	sessionCutoff time.Time
}

// NewInMemoryTokenBlacklist creates a new in-memory token blacklist
func NewInMemoryTokenBlacklist() *InMemoryTokenBlacklist {
	return &InMemoryTokenBlacklist{
		revokedJTIs: make(map[string]time.Time),
	}
}

// Revoke adds a token's JTI to the in-memory blacklist
func (b *InMemoryTokenBlacklist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revokedJTIs[jti] = time.Now().Add(ttl)
	return nil
}

// IsRevoked checks if a token's JTI is revoked (and the entry has not expired)
func (b *InMemoryTokenBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiration, exists := b.revokedJTIs[jti]
	if !exists {
		return false, nil
	}

	// Entries past their TTL are swept lazily
	if time.Now().After(expiration) {
		delete(b.revokedJTIs, jti)
		return false, nil
	}

	return true, nil
}

// RevokeAllSessions records the current time as the session cutoff
func (b *InMemoryTokenBlacklist) RevokeAllSessions(_ context.Context, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionCutoff = time.Now()
	return nil
}

// IsSessionRevoked checks if a token was issued before the session cutoff
func (b *InMemoryTokenBlacklist) IsSessionRevoked(_ context.Context, issuedAt time.Time) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.sessionCutoff.IsZero() {
		return false, nil
	}

	// UnixNano keeps sub-second precision for tests
	return issuedAt.UnixNano() <= b.sessionCutoff.UnixNano(), nil
}

// Ensure InMemoryTokenBlacklist implements TokenBlacklist
var _ TokenBlacklist = (*InMemoryTokenBlacklist)(nil)
