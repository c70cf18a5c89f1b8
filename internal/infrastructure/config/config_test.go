package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"STOREFLEET_APP_NAME":              os.Getenv("STOREFLEET_APP_NAME"),
		"STOREFLEET_APP_ENV":               os.Getenv("STOREFLEET_APP_ENV"),
		"STOREFLEET_APP_PORT":              os.Getenv("STOREFLEET_APP_PORT"),
		"STOREFLEET_DATABASE_DRIVER":       os.Getenv("STOREFLEET_DATABASE_DRIVER"),
		"STOREFLEET_DATABASE_SQLITE_PATH":  os.Getenv("STOREFLEET_DATABASE_SQLITE_PATH"),
		"STOREFLEET_REDIS_HOST":            os.Getenv("STOREFLEET_REDIS_HOST"),
		"STOREFLEET_REDIS_PORT":            os.Getenv("STOREFLEET_REDIS_PORT"),
		"STOREFLEET_MONITOR_INTERVAL":      os.Getenv("STOREFLEET_MONITOR_INTERVAL"),
		"STOREFLEET_MONITOR_PROBE_TIMEOUT": os.Getenv("STOREFLEET_MONITOR_PROBE_TIMEOUT"),
		"STOREFLEET_MONITOR_PROBE_RETRIES": os.Getenv("STOREFLEET_MONITOR_PROBE_RETRIES"),
		"STOREFLEET_EXPORT_PAGE_SIZE":      os.Getenv("STOREFLEET_EXPORT_PAGE_SIZE"),
		"STOREFLEET_JWT_SECRET":            os.Getenv("STOREFLEET_JWT_SECRET"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "storefleet-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "memory", cfg.Database.Driver)
		assert.Equal(t, "storefleet.db", cfg.Database.SQLitePath)
		assert.Equal(t, "localhost", cfg.Redis.Host)
		assert.Equal(t, 6379, cfg.Redis.Port)
		assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
		assert.Equal(t, 10*time.Second, cfg.Monitor.ProbeTimeout)
		assert.Equal(t, 2, cfg.Monitor.ProbeRetries)
		assert.Equal(t, 100, cfg.Export.PageSize)
		assert.Equal(t, 50, cfg.Export.MaxPages)
		assert.Equal(t, "admin", cfg.Auth.AdminUsername)
	})

	t.Run("loads values from environment variables with STOREFLEET prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFLEET_APP_NAME", "test-app")
		os.Setenv("STOREFLEET_APP_ENV", "testing")
		os.Setenv("STOREFLEET_APP_PORT", "9000")
		os.Setenv("STOREFLEET_DATABASE_DRIVER", "redis")
		os.Setenv("STOREFLEET_REDIS_HOST", "cache.local")
		os.Setenv("STOREFLEET_REDIS_PORT", "6380")
		os.Setenv("STOREFLEET_MONITOR_INTERVAL", "30s")
		os.Setenv("STOREFLEET_MONITOR_PROBE_TIMEOUT", "3s")
		os.Setenv("STOREFLEET_MONITOR_PROBE_RETRIES", "1")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "redis", cfg.Database.Driver)
		assert.Equal(t, "cache.local", cfg.Redis.Host)
		assert.Equal(t, 6380, cfg.Redis.Port)
		assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
		assert.Equal(t, 3*time.Second, cfg.Monitor.ProbeTimeout)
		assert.Equal(t, 1, cfg.Monitor.ProbeRetries)
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFLEET_DATABASE_DRIVER", "postgres")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver must be one of")
	})

	t.Run("zero probe retries uses default", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFLEET_MONITOR_PROBE_RETRIES", "0")

		cfg, err := Load()
		require.NoError(t, err)
		// 0 is treated as "not set", so default (2) is used
		assert.Equal(t, 2, cfg.Monitor.ProbeRetries)
	})

	t.Run("validates probe retries cannot be negative", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFLEET_MONITOR_PROBE_RETRIES", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "probe_retries cannot be negative")
	})

	t.Run("validates export page size bounds", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFLEET_EXPORT_PAGE_SIZE", "500")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "export.page_size must be between 1 and 100")
	})

	t.Run("falls back to throwaway admin password in development", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "admin", cfg.Auth.AdminPassword)
		assert.Empty(t, cfg.Auth.AdminPasswordHash)
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	originalEnv := map[string]string{
		"STOREFLEET_APP_ENV":                   os.Getenv("STOREFLEET_APP_ENV"),
		"STOREFLEET_JWT_SECRET":                os.Getenv("STOREFLEET_JWT_SECRET"),
		"STOREFLEET_AUTH_ADMIN_PASSWORD":       os.Getenv("STOREFLEET_AUTH_ADMIN_PASSWORD"),
		"STOREFLEET_AUTH_ADMIN_PASSWORD_HASH":  os.Getenv("STOREFLEET_AUTH_ADMIN_PASSWORD_HASH"),
		"STOREFLEET_TELEMETRY_DB_LOG_FULL_SQL": os.Getenv("STOREFLEET_TELEMETRY_DB_LOG_FULL_SQL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	// Helper to set valid production base config
	setValidProductionBase := func() {
		os.Setenv("STOREFLEET_APP_ENV", "production")
		os.Setenv("STOREFLEET_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		os.Setenv("STOREFLEET_AUTH_ADMIN_PASSWORD_HASH", "$2a$10$N9qo8uLOickgx2ZMRZoMye.IjPeGvGzjDZzS1Lq0CYKF3G3bn0p0W")
	}

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFLEET_APP_ENV", "production")
		os.Setenv("STOREFLEET_AUTH_ADMIN_PASSWORD_HASH", "$2a$10$N9qo8uLOickgx2ZMRZoMye.IjPeGvGzjDZzS1Lq0CYKF3G3bn0p0W")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFLEET_APP_ENV", "production")
		os.Setenv("STOREFLEET_JWT_SECRET", "short-secret")
		os.Setenv("STOREFLEET_AUTH_ADMIN_PASSWORD_HASH", "$2a$10$N9qo8uLOickgx2ZMRZoMye.IjPeGvGzjDZzS1Lq0CYKF3G3bn0p0W")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires admin password hash in production", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFLEET_APP_ENV", "production")
		os.Setenv("STOREFLEET_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth.admin_password_hash is required in production")
	})

	t.Run("rejects plaintext admin password in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("STOREFLEET_AUTH_ADMIN_PASSWORD", "hunter2")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth.admin_password must not be set in production")
	})

	t.Run("rejects full SQL logging in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("STOREFLEET_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_log_full_sql must be false in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
		assert.Empty(t, cfg.Auth.AdminPassword)
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	t.Run("joins host and port", func(t *testing.T) {
		cfg := RedisConfig{Host: "cache.local", Port: 6380}
		assert.Equal(t, "cache.local:6380", cfg.Addr())
	})

	t.Run("handles default port", func(t *testing.T) {
		cfg := RedisConfig{Host: "localhost", Port: 6379}
		assert.Equal(t, "localhost:6379", cfg.Addr())
	})
}
