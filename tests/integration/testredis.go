// Package integration provides end-to-end tests for the StoreFleet backend.
// Registry persistence tests use testcontainers to run against a real Redis
// instance; API tests run the full HTTP stack in-process.
package integration

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	// Shared container for all tests in the package
	sharedRedis    *tcredis.RedisContainer
	sharedRedisMu  sync.Mutex
	sharedRedisURL string
	sharedRedisErr error
)

// TestRedis wraps a client connected to the shared Redis test container.
type TestRedis struct {
	Client *goredis.Client
	URL    string
	t      *testing.T
}

// NewTestRedis connects to the shared Redis container, starting it on first
// use. Tests are skipped when no container runtime is available. The database
// is flushed before the client is handed out so every test starts clean.
func NewTestRedis(t *testing.T) *TestRedis {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping container test in short mode")
	}

	url := startSharedRedis(t)

	opts, err := goredis.ParseURL(url)
	require.NoError(t, err, "Failed to parse Redis URL")

	client := goredis.NewClient(opts)
	t.Cleanup(func() {
		_ = client.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.FlushAll(ctx).Err(), "Failed to flush Redis")

	return &TestRedis{Client: client, URL: url, t: t}
}

// startSharedRedis starts the container once per package run. A startup
// failure is remembered so later tests skip without retrying the runtime.
func startSharedRedis(t *testing.T) string {
	t.Helper()

	sharedRedisMu.Lock()
	defer sharedRedisMu.Unlock()

	if sharedRedis == nil && sharedRedisErr == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			sharedRedisErr = err
		} else if url, err := container.ConnectionString(ctx); err != nil {
			sharedRedisErr = err
			_ = container.Terminate(ctx)
		} else {
			sharedRedis = container
			sharedRedisURL = url
		}
	}

	if sharedRedisErr != nil {
		t.Skipf("Skipping: cannot start Redis container: %v", sharedRedisErr)
	}

	return sharedRedisURL
}

// CleanupSharedRedis terminates the shared container. Called from TestMain
// once the package finishes.
func CleanupSharedRedis() {
	sharedRedisMu.Lock()
	defer sharedRedisMu.Unlock()

	if sharedRedis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = sharedRedis.Terminate(ctx)
		sharedRedis = nil
		sharedRedisURL = ""
	}
}

func TestMain(m *testing.M) {
	code := m.Run()
	CleanupSharedRedis()
	os.Exit(code)
}
