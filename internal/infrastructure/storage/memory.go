package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	commerceapp "github.com/storefleet/backend/internal/application/commerce"
)

// Ensure MemoryArchiveStorage implements ArchiveStorage
var _ commerceapp.ArchiveStorage = (*MemoryArchiveStorage)(nil)

// memoryObject holds an uploaded archive and its content type.
type memoryObject struct {
	data        []byte
	contentType string
	uploadedAt  time.Time
}

// MemoryArchiveStorage is an in-memory ArchiveStorage for development and tests.
// Archives live in process memory, so download URLs only resolve while the
// process that produced them is still running and serving them.
type MemoryArchiveStorage struct {
	// BaseURL is the base URL used when generating download links
	BaseURL string

	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemoryArchiveStorage creates an empty in-memory archive storage.
func NewMemoryArchiveStorage(baseURL string) *MemoryArchiveStorage {
	if baseURL == "" {
		baseURL = "http://localhost:8080/exports"
	}
	return &MemoryArchiveStorage{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string]memoryObject),
	}
}

// Upload stores the archive bytes under the given key, replacing any
// previous archive with the same key.
func (m *MemoryArchiveStorage) Upload(ctx context.Context, storageKey string, data []byte, contentType string) error {
	if storageKey == "" {
		return errors.New("storage key is required")
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[storageKey] = memoryObject{
		data:        buf,
		contentType: contentType,
		uploadedAt:  time.Now(),
	}
	return nil
}

// GenerateDownloadURL returns an unsigned URL under BaseURL for a stored
// archive. The key must have been uploaded first.
func (m *MemoryArchiveStorage) GenerateDownloadURL(
	ctx context.Context,
	storageKey string,
	expiresIn time.Duration,
) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, errors.New("storage key is required")
	}

	m.mu.RLock()
	_, ok := m.objects[storageKey]
	m.mu.RUnlock()
	if !ok {
		return "", time.Time{}, fmt.Errorf("archive not found: %s", storageKey)
	}

	if expiresIn <= 0 {
		expiresIn = 15 * time.Minute
	}
	expiresAt := time.Now().Add(expiresIn)

	url := fmt.Sprintf("%s/%s?expires=%s", m.BaseURL, storageKey, expiresAt.UTC().Format(time.RFC3339))
	return url, expiresAt, nil
}

// DeleteObject removes a stored archive. Deleting a missing key is not an error.
func (m *MemoryArchiveStorage) DeleteObject(ctx context.Context, storageKey string) error {
	if storageKey == "" {
		return errors.New("storage key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, storageKey)
	return nil
}

// ObjectExists reports whether an archive is stored under the given key.
func (m *MemoryArchiveStorage) ObjectExists(ctx context.Context, storageKey string) (bool, error) {
	if storageKey == "" {
		return false, errors.New("storage key is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[storageKey]
	return ok, nil
}

// Object returns a copy of the stored archive bytes and its content type.
// It reports false when no archive is stored under the key.
func (m *MemoryArchiveStorage) Object(storageKey string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[storageKey]
	if !ok {
		return nil, "", false
	}
	buf := make([]byte, len(obj.data))
	copy(buf, obj.data)
	return buf, obj.contentType, true
}

// Len returns the number of stored archives.
func (m *MemoryArchiveStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
