package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/storefleet/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T, cfg config.StorageConfig, opts ...S3ArchiveStorageOption) *S3ArchiveStorage {
	t.Helper()
	if cfg.Bucket == "" {
		cfg.Bucket = "exports"
	}
	if cfg.AccessKey == "" {
		cfg.AccessKey = "test-access"
	}
	if cfg.SecretKey == "" {
		cfg.SecretKey = "test-secret"
	}
	store, err := NewS3ArchiveStorage(context.Background(), &cfg, opts...)
	require.NoError(t, err)
	return store
}

func TestNewS3ArchiveStorage_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.StorageConfig
		want string
	}{
		{"nil config", nil, "configuration is required"},
		{"missing bucket", &config.StorageConfig{AccessKey: "ak", SecretKey: "sk"}, "bucket is required"},
		{"missing access key", &config.StorageConfig{Bucket: "exports", SecretKey: "sk"}, "access key is required"},
		{"missing secret key", &config.StorageConfig{Bucket: "exports", AccessKey: "ak"}, "secret key is required"},
		{"endpoint without host", &config.StorageConfig{Bucket: "exports", AccessKey: "ak", SecretKey: "sk", Endpoint: "http://"}, "invalid storage endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3ArchiveStorage(context.Background(), tt.cfg)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StorageConfig
		want string
	}{
		{"empty falls back to local MinIO", config.StorageConfig{}, "http://localhost:9000"},
		{"bare host gets http", config.StorageConfig{Endpoint: "minio.internal:9000"}, "http://minio.internal:9000"},
		{"bare host gets https with SSL on", config.StorageConfig{Endpoint: "minio.internal:9000", UseSSL: true}, "https://minio.internal:9000"},
		{"explicit scheme wins over the SSL flag", config.StorageConfig{Endpoint: "http://minio.internal:9000", UseSSL: true}, "http://minio.internal:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveEndpoint(&tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewS3ArchiveStorage_Defaults(t *testing.T) {
	store := newTestStore(t, config.StorageConfig{Bucket: "order-archives"})

	assert.Equal(t, "order-archives", store.GetBucket())
	assert.Equal(t, defaultPresignExpiration, store.presignExpiry)
}

func TestNewS3ArchiveStorage_Options(t *testing.T) {
	store := newTestStore(t, config.StorageConfig{},
		WithLogger(zaptest.NewLogger(t)),
		WithPresignExpiration(time.Hour),
	)

	assert.Equal(t, time.Hour, store.presignExpiry)
}

func TestGenerateDownloadURL(t *testing.T) {
	store := newTestStore(t, config.StorageConfig{
		Endpoint:          "minio.internal:9000",
		UsePathStyle:      true,
		PresignExpiration: 20 * time.Minute,
	})
	ctx := context.Background()

	t.Run("empty key", func(t *testing.T) {
		_, _, err := store.GenerateDownloadURL(ctx, "", time.Hour)
		assert.ErrorContains(t, err, "storage key is required")
	})

	t.Run("signs bucket and key", func(t *testing.T) {
		link, expiresAt, err := store.GenerateDownloadURL(ctx, "2026/orders.csv", time.Hour)
		require.NoError(t, err)
		assert.Contains(t, link, "minio.internal:9000/exports/2026/orders.csv")
		assert.Contains(t, link, "X-Amz-Expires=3600")
		assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)
	})

	t.Run("falls back to the configured validity", func(t *testing.T) {
		link, _, err := store.GenerateDownloadURL(ctx, "2026/orders.csv", 0)
		require.NoError(t, err)
		assert.Contains(t, link, "X-Amz-Expires=1200")
	})
}

func TestS3ArchiveStorage_RequiresKey(t *testing.T) {
	store := newTestStore(t, config.StorageConfig{})
	ctx := context.Background()

	assert.ErrorContains(t, store.Upload(ctx, "", []byte("id\n"), "text/csv"), "storage key is required")
	assert.ErrorContains(t, store.DeleteObject(ctx, ""), "storage key is required")

	_, err := store.ObjectExists(ctx, "")
	assert.ErrorContains(t, err, "storage key is required")
}

// fakeS3 is a minimal path-style S3 endpoint covering the calls the archive
// storage makes. Misses are status-only responses, which is also how real S3
// answers HEAD requests.
type fakeS3 struct {
	mu              sync.Mutex
	buckets         map[string]bool
	objects         map[string][]byte
	lastContentType string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
		}
	case key == "" && r.Method == http.MethodPut:
		f.buckets[bucket] = true
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+key] = body
		f.lastContentType = r.Header.Get("Content-Type")
	case r.Method == http.MethodHead:
		if _, ok := f.objects[bucket+"/"+key]; !ok {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodDelete:
		delete(f.objects, bucket+"/"+key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) object(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[path]
}

func (f *fakeS3) contentType() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastContentType
}

func TestS3ArchiveStorage_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store := newTestStore(t, config.StorageConfig{
		Endpoint:     srv.URL,
		UsePathStyle: true,
	}, WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	require.NoError(t, store.EnsureBucket(ctx), "missing bucket gets created")
	require.NoError(t, store.EnsureBucket(ctx), "existing bucket is left alone")

	exists, err := store.ObjectExists(ctx, "2026/orders.csv")
	require.NoError(t, err)
	assert.False(t, exists)

	data := []byte("store_id,order_id,total\n1f7c,9001,129.90\n")
	require.NoError(t, store.Upload(ctx, "2026/orders.csv", data, "text/csv"))
	assert.Equal(t, data, fake.object("exports/2026/orders.csv"))
	assert.Equal(t, "text/csv", fake.contentType())

	exists, err = store.ObjectExists(ctx, "2026/orders.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.DeleteObject(ctx, "2026/orders.csv"))

	exists, err = store.ObjectExists(ctx, "2026/orders.csv")
	require.NoError(t, err)
	assert.False(t, exists)
}
