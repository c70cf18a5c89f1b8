// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"github.com/storefleet/backend/internal/domain/registry"
)

// RegistryStatusProvider implements StoreStatusProvider on top of the store
// repository. The registry holds the whole fleet under one key, so a single
// List covers every status bucket.
type RegistryStatusProvider struct {
	stores registry.StoreRepository
}

// NewRegistryStatusProvider creates a new RegistryStatusProvider.
func NewRegistryStatusProvider(stores registry.StoreRepository) *RegistryStatusProvider {
	return &RegistryStatusProvider{stores: stores}
}

// GetStoreStatusCounts returns the number of registered stores per health status.
// Every known status appears in the result, zero counts included, so gauges
// reset when the last store leaves a status.
func (p *RegistryStatusProvider) GetStoreStatusCounts(ctx context.Context) (map[string]int64, error) {
	stores, err := p.stores.List(ctx)
	if err != nil {
		return nil, err
	}

	counts := map[string]int64{
		registry.StoreStatusUnknown.String(): 0,
		registry.StoreStatusOnline.String():  0,
		registry.StoreStatusOffline.String(): 0,
		registry.StoreStatusError.String():   0,
	}
	for _, store := range stores {
		counts[store.Status.String()]++
	}

	return counts, nil
}
