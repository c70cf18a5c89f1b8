// Package registry implements the store registry application service: CRUD
// over the registered stores plus the observer fan-out that pushes the full
// updated list to every subscriber after each mutation.
package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefleet/backend/internal/domain/registry"
	"github.com/storefleet/backend/internal/infrastructure/monitor"
	"github.com/storefleet/backend/internal/infrastructure/telemetry"
)

// observerBuffer is the per-observer channel capacity; list events to a full
// observer are dropped rather than blocking the mutation path.
const observerBuffer = 8

// StoreService owns the registered stores and their observers. Every
// successful mutation, health writes included, notifies all observers with
// the full updated list. It also feeds the health monitor: the monitor lists
// stores through it and records changed probe results back through it.
type StoreService struct {
	stores  registry.StoreRepository
	metrics *telemetry.FleetMetrics
	logger  *zap.Logger

	mu        sync.RWMutex
	observers map[uuid.UUID]chan []*registry.Store
}

// The health monitor feeds from this service
var _ monitor.StoreHealthSource = (*StoreService)(nil)

// NewStoreService creates the store registry service. metrics may be nil
// when telemetry is disabled.
func NewStoreService(stores registry.StoreRepository, metrics *telemetry.FleetMetrics, logger *zap.Logger) *StoreService {
	return &StoreService{
		stores:    stores,
		metrics:   metrics,
		logger:    logger,
		observers: make(map[uuid.UUID]chan []*registry.Store),
	}
}

// ListStores returns every registered store in stored order
func (s *StoreService) ListStores(ctx context.Context) ([]*registry.Store, error) {
	return s.stores.List(ctx)
}

// GetStore returns one store by ID
func (s *StoreService) GetStore(ctx context.Context, id uuid.UUID) (*registry.Store, error) {
	return s.stores.FindByID(ctx, id)
}

// CreateStore registers a new store. The ID is generated and the status
// starts unknown until the first probe.
func (s *StoreService) CreateStore(ctx context.Context, input CreateStoreInput) (store *registry.Store, err error) {
	ctx, span := telemetry.StartSpan(ctx, "store_registry.create")
	defer func() { telemetry.EndSpan(span, err) }()

	s.logger.Info("Registering store",
		zap.String("name", input.Name),
		zap.String("base_url", input.BaseURL))

	store, err = registry.NewStore(input.Name, input.BaseURL, input.ConsumerKey, input.ConsumerSecret, input.IsActive)
	if err != nil {
		return nil, err
	}

	if err := s.stores.Insert(ctx, store); err != nil {
		s.logger.Error("Failed to persist store", zap.String("name", input.Name), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(telemetry.AttrStoreID.String(store.GetID().String()))
	s.logger.Info("Store registered",
		zap.String("store_id", store.GetID().String()),
		zap.String("name", store.Name))
	s.notifyObservers(ctx)
	return store, nil
}

// UpdateStore applies a partial update to a store
func (s *StoreService) UpdateStore(ctx context.Context, id uuid.UUID, input UpdateStoreInput) (store *registry.Store, err error) {
	ctx, span := telemetry.StartSpan(ctx, "store_registry.update",
		telemetry.AttrStoreID.String(id.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	store, err = s.stores.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if err := store.Rename(*input.Name); err != nil {
			return nil, err
		}
	}
	if input.BaseURL != nil {
		if err := store.UpdateBaseURL(*input.BaseURL); err != nil {
			return nil, err
		}
	}
	if input.ConsumerKey != nil || input.ConsumerSecret != nil {
		key := store.ConsumerKey
		secret := store.ConsumerSecret
		if input.ConsumerKey != nil {
			key = *input.ConsumerKey
		}
		if input.ConsumerSecret != nil {
			secret = *input.ConsumerSecret
		}
		if err := store.UpdateCredentials(key, secret); err != nil {
			return nil, err
		}
	}
	if input.IsActive != nil {
		store.SetActive(*input.IsActive)
	}

	if err := s.stores.Update(ctx, store); err != nil {
		s.logger.Error("Failed to update store", zap.String("store_id", id.String()), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Store updated",
		zap.String("store_id", id.String()),
		zap.String("name", store.Name))
	s.notifyObservers(ctx)
	return store, nil
}

// DeleteStore removes a store from the registry
func (s *StoreService) DeleteStore(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "store_registry.delete",
		telemetry.AttrStoreID.String(id.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.stores.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Store removed", zap.String("store_id", id.String()))
	s.notifyObservers(ctx)
	return nil
}

// ToggleActive flips a store's active flag
func (s *StoreService) ToggleActive(ctx context.Context, id uuid.UUID) (store *registry.Store, err error) {
	ctx, span := telemetry.StartSpan(ctx, "store_registry.toggle_active",
		telemetry.AttrStoreID.String(id.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	store, err = s.stores.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	active := store.ToggleActive()
	if err := s.stores.Update(ctx, store); err != nil {
		s.logger.Error("Failed to toggle store", zap.String("store_id", id.String()), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Store active flag toggled",
		zap.String("store_id", id.String()),
		zap.Bool("is_active", active))
	s.notifyObservers(ctx)
	return store, nil
}

// RecordHealth applies a probe result to a store. The monitor calls it only
// when the derived health actually changed, so every call here is a
// transition worth persisting and broadcasting.
func (s *StoreService) RecordHealth(ctx context.Context, storeID uuid.UUID, report registry.HealthReport) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "store_registry.record_health",
		telemetry.AttrStoreID.String(storeID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return err
	}

	previous := store.Status
	store.ApplyHealth(report)

	if err := s.stores.Update(ctx, store); err != nil {
		return err
	}

	span.SetAttributes(telemetry.AttrStoreStatus.String(store.Status.String()))
	if s.metrics != nil {
		s.metrics.RecordHealthTransition(ctx, storeID, previous.String(), store.Status.String())
	}

	s.notifyObservers(ctx)
	return nil
}

// Subscribe registers a store list observer. The channel receives the full
// updated list after every mutation until Unsubscribe closes it.
func (s *StoreService) Subscribe() (uuid.UUID, <-chan []*registry.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	ch := make(chan []*registry.Store, observerBuffer)
	s.observers[id] = ch

	s.logger.Debug("Store list observer added",
		zap.String("observer_id", id.String()),
		zap.Int("observers", len(s.observers)))

	return id, ch
}

// Unsubscribe removes an observer and closes its channel
func (s *StoreService) Unsubscribe(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.observers[id]
	if !ok {
		return
	}
	delete(s.observers, id)
	close(ch)
}

// ObserverCount returns the number of attached store list observers
func (s *StoreService) ObserverCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers)
}

// notifyObservers loads the full list and sends it to every observer with a
// non-blocking send. A load failure only logs; the mutation that triggered
// the notification already succeeded.
func (s *StoreService) notifyObservers(ctx context.Context) {
	list, err := s.stores.List(ctx)
	if err != nil {
		s.logger.Warn("Failed to load stores for observer notification", zap.Error(err))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ch := range s.observers {
		select {
		case ch <- list:
		default:
			s.logger.Debug("Store list observer buffer full, dropping event",
				zap.String("observer_id", id.String()))
		}
	}
}
