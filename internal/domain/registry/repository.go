package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/storefleet/backend/internal/domain/shared"
)

// ErrStoreNotFound is returned when a store ID is not present in the registry
var ErrStoreNotFound = shared.NewDomainError("STORE_NOT_FOUND", "Store not found")

// StoreRepository defines the persistence port for the store registry.
// The backing storage holds the whole registry as one serialized document
// under a fixed key; every write replaces the full collection. There are no
// partial writes and no transactions.
type StoreRepository interface {
	// List returns all registered stores in stored order
	List(ctx context.Context) ([]*Store, error)

	// FindByID returns the store with the given ID, or ErrStoreNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*Store, error)

	// Insert appends a new store to the registry
	Insert(ctx context.Context, store *Store) error

	// Update replaces the stored record matching the store's ID
	Update(ctx context.Context, store *Store) error

	// Delete removes the store with the given ID
	Delete(ctx context.Context, id uuid.UUID) error
}
