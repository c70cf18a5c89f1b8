package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storefleet/backend/internal/domain/registry"
	"github.com/storefleet/backend/internal/domain/shared"
)

// RegistryKey is the fixed key the whole store list is persisted under
const RegistryKey = "storefleet:stores"

// storeRecord is the persisted shape of one store inside the registry document
type storeRecord struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	BaseURL            string     `json:"base_url"`
	ConsumerKey        string     `json:"consumer_key"`
	ConsumerSecret     string     `json:"consumer_secret"`
	IsActive           bool       `json:"is_active"`
	Status             string     `json:"status"`
	LastCheckedAt      *time.Time `json:"last_checked_at,omitempty"`
	LastErrorMessage   string     `json:"last_error_message,omitempty"`
	LastResponseTimeMs *int64     `json:"last_response_time_ms,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// KVStoreRepository implements registry.StoreRepository over a KVStore.
// The full store list is serialized as one JSON array under RegistryKey,
// so every mutation is a read-modify-write of the whole document. The
// mutex serializes those cycles within this process.
type KVStoreRepository struct {
	kv KVStore
	mu sync.Mutex
}

// NewKVStoreRepository creates a store repository backed by the given KV store
func NewKVStoreRepository(kv KVStore) *KVStoreRepository {
	return &KVStoreRepository{kv: kv}
}

// List returns all registered stores in stored order
func (r *KVStoreRepository) List(ctx context.Context) ([]*registry.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	stores := make([]*registry.Store, 0, len(records))
	for _, rec := range records {
		store, err := toStore(rec)
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	return stores, nil
}

// FindByID returns the store with the given ID
func (r *KVStoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*registry.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		if rec.ID == id.String() {
			return toStore(rec)
		}
	}
	return nil, registry.ErrStoreNotFound
}

// Insert appends a new store to the registry document
func (r *KVStoreRepository) Insert(ctx context.Context, store *registry.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if rec.ID == store.ID.String() {
			return shared.ErrAlreadyExists
		}
	}

	records = append(records, toRecord(store))
	return r.save(ctx, records)
}

// Update replaces the stored record matching the store's ID
func (r *KVStoreRepository) Update(ctx context.Context, store *registry.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx)
	if err != nil {
		return err
	}

	for i, rec := range records {
		if rec.ID == store.ID.String() {
			records[i] = toRecord(store)
			return r.save(ctx, records)
		}
	}
	return registry.ErrStoreNotFound
}

// Delete removes the store with the given ID from the registry document
func (r *KVStoreRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx)
	if err != nil {
		return err
	}

	remaining := make([]storeRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID != id.String() {
			remaining = append(remaining, rec)
		}
	}
	if len(remaining) == len(records) {
		return registry.ErrStoreNotFound
	}
	return r.save(ctx, remaining)
}

// load reads the registry document. A missing key is an empty registry;
// an unreachable store surfaces as ErrStorageFailure so the API answers
// 503 rather than a generic 500.
func (r *KVStoreRepository) load(ctx context.Context) ([]storeRecord, error) {
	raw, err := r.kv.Get(ctx, RegistryKey)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading store registry: %w: %w", shared.ErrStorageFailure, err)
	}

	var records []storeRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to decode store registry: %w", err)
	}
	return records, nil
}

// save writes the whole registry document back
func (r *KVStoreRepository) save(ctx context.Context, records []storeRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode store registry: %w", err)
	}
	if err := r.kv.Set(ctx, RegistryKey, raw); err != nil {
		return fmt.Errorf("saving store registry: %w: %w", shared.ErrStorageFailure, err)
	}
	return nil
}

// toRecord maps a domain store to its persisted shape
func toRecord(store *registry.Store) storeRecord {
	return storeRecord{
		ID:                 store.ID.String(),
		Name:               store.Name,
		BaseURL:            store.BaseURL,
		ConsumerKey:        store.ConsumerKey,
		ConsumerSecret:     store.ConsumerSecret,
		IsActive:           store.IsActive,
		Status:             store.Status.String(),
		LastCheckedAt:      store.LastCheckedAt,
		LastErrorMessage:   store.LastErrorMessage,
		LastResponseTimeMs: store.LastResponseTimeMs,
		CreatedAt:          store.CreatedAt,
		UpdatedAt:          store.UpdatedAt,
	}
}

// toStore hydrates a domain store from its persisted shape
func toStore(rec storeRecord) (*registry.Store, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid store id %q in registry: %w", rec.ID, err)
	}

	// Tolerate documents written by older builds or edited by hand
	status := registry.StoreStatus(rec.Status)
	if !status.IsValid() {
		status = registry.StoreStatusUnknown
	}

	return &registry.Store{
		BaseEntity:         shared.RestoreBaseEntity(id, rec.CreatedAt, rec.UpdatedAt),
		Name:               rec.Name,
		BaseURL:            rec.BaseURL,
		ConsumerKey:        rec.ConsumerKey,
		ConsumerSecret:     rec.ConsumerSecret,
		IsActive:           rec.IsActive,
		Status:             status,
		LastCheckedAt:      rec.LastCheckedAt,
		LastErrorMessage:   rec.LastErrorMessage,
		LastResponseTimeMs: rec.LastResponseTimeMs,
	}, nil
}

// Ensure KVStoreRepository implements registry.StoreRepository
var _ registry.StoreRepository = (*KVStoreRepository)(nil)
