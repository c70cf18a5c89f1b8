// Package commerce implements the cross-store application services: the
// fetch aggregator that merges per-store pages into one deduplicated
// collection, the coupon fan-out and the orders CSV export.
package commerce

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefleet/backend/internal/domain/commerce"
	"github.com/storefleet/backend/internal/domain/registry"
	"github.com/storefleet/backend/internal/infrastructure/logger"
	"github.com/storefleet/backend/internal/infrastructure/telemetry"
)

// AggregationService fetches orders, products and coupons from the selected
// stores in parallel and merges the pages into one deduplicated collection.
// A failing store contributes an empty page and rides along in the result's
// failure list; partial failure never aborts an aggregation.
type AggregationService struct {
	stores  registry.StoreRepository
	factory commerce.StorefrontFactory
	metrics *telemetry.FleetMetrics
	logger  *zap.Logger
}

// NewAggregationService creates the aggregation service. metrics may be nil
// when telemetry is disabled.
func NewAggregationService(
	stores registry.StoreRepository,
	factory commerce.StorefrontFactory,
	metrics *telemetry.FleetMetrics,
	logger *zap.Logger,
) *AggregationService {
	return &AggregationService{
		stores:  stores,
		factory: factory,
		metrics: metrics,
		logger:  logger,
	}
}

// ListOrders aggregates one page of orders across the selected stores. Each
// order's notes are fetched through the secondary per-order request; a notes
// failure degrades to an empty list and never fails the order fetch. The
// merged page is sorted by creation date, newest first.
func (s *AggregationService) ListOrders(ctx context.Context, input FetchInput) (result *commerce.PageResult[commerce.Order], err error) {
	ctx, span := telemetry.StartSpan(ctx, "aggregation.list_orders",
		telemetry.AttrResource.String("orders"))
	defer func() { telemetry.EndSpan(span, err) }()

	conns, err := resolveConnections(ctx, s.stores, input.StoreIDs)
	if err != nil {
		return nil, err
	}
	query := input.query()

	start := time.Now()
	items, fetched, failures := aggregatePage(ctx, s, conns, query, "orders", input.Progress,
		commerce.NewKeySet(), nil, s.fetchOrdersWithNotes)
	sortOrdersNewestFirst(items)
	s.recordAggregation(ctx, "orders", start)

	span.SetAttributes(
		telemetry.AttrPage.Int(query.Page),
		telemetry.AttrStoresQueried.Int(len(conns)),
		telemetry.AttrStoresFailed.Int(len(failures)))
	return pageResult(items, fetched, conns, query, failures), nil
}

// ListProducts aggregates one page of products across the selected stores
func (s *AggregationService) ListProducts(ctx context.Context, input FetchInput) (result *commerce.PageResult[commerce.Product], err error) {
	ctx, span := telemetry.StartSpan(ctx, "aggregation.list_products",
		telemetry.AttrResource.String("products"))
	defer func() { telemetry.EndSpan(span, err) }()

	conns, err := resolveConnections(ctx, s.stores, input.StoreIDs)
	if err != nil {
		return nil, err
	}
	query := input.query()

	start := time.Now()
	items, fetched, failures := aggregatePage(ctx, s, conns, query, "products", input.Progress,
		commerce.NewKeySet(), nil,
		func(ctx context.Context, client commerce.Storefront, q commerce.ListQuery) ([]commerce.Product, error) {
			return client.ListProducts(ctx, q)
		})
	s.recordAggregation(ctx, "products", start)

	span.SetAttributes(
		telemetry.AttrPage.Int(query.Page),
		telemetry.AttrStoresQueried.Int(len(conns)),
		telemetry.AttrStoresFailed.Int(len(failures)))
	return pageResult(items, fetched, conns, query, failures), nil
}

// ListCoupons aggregates one page of coupons across the selected stores
func (s *AggregationService) ListCoupons(ctx context.Context, input FetchInput) (result *commerce.PageResult[commerce.Coupon], err error) {
	ctx, span := telemetry.StartSpan(ctx, "aggregation.list_coupons",
		telemetry.AttrResource.String("coupons"))
	defer func() { telemetry.EndSpan(span, err) }()

	conns, err := resolveConnections(ctx, s.stores, input.StoreIDs)
	if err != nil {
		return nil, err
	}
	query := input.query()

	start := time.Now()
	items, fetched, failures := aggregatePage(ctx, s, conns, query, "coupons", input.Progress,
		commerce.NewKeySet(), nil,
		func(ctx context.Context, client commerce.Storefront, q commerce.ListQuery) ([]commerce.Coupon, error) {
			return client.ListCoupons(ctx, q)
		})
	s.recordAggregation(ctx, "coupons", start)

	span.SetAttributes(
		telemetry.AttrPage.Int(query.Page),
		telemetry.AttrStoresQueried.Int(len(conns)),
		telemetry.AttrStoresFailed.Int(len(failures)))
	return pageResult(items, fetched, conns, query, failures), nil
}

// fetchOrdersWithNotes lists one page of orders and attaches each order's
// notes. Note fetches run concurrently; a failed notes request leaves that
// order with an empty notes list.
func (s *AggregationService) fetchOrdersWithNotes(ctx context.Context, client commerce.Storefront, query commerce.ListQuery) ([]commerce.Order, error) {
	orders, err := client.ListOrders(ctx, query)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	for i := range orders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			notes, err := client.ListOrderNotes(ctx, orders[i].ID)
			if err != nil {
				s.logger.Debug("Order notes fetch failed",
					zap.Int64("order_id", orders[i].ID),
					zap.String("store_name", orders[i].Store.Name),
					zap.Error(err))
				return
			}
			orders[i].Notes = notes
		}(i)
	}
	wg.Wait()

	return orders, nil
}

func (s *AggregationService) recordAggregation(ctx context.Context, resource string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordAggregation(ctx, resource, time.Since(start))
}

// ---------------------------------------------------------------------------
// Fan-out plumbing
// ---------------------------------------------------------------------------

// fetchFunc issues the one-page list request against a single store client
type fetchFunc[T commerce.Keyed] func(ctx context.Context, client commerce.Storefront, query commerce.ListQuery) ([]T, error)

// storePage is one store's contribution to a merged page
type storePage[T commerce.Keyed] struct {
	items []T
	err   error
}

// aggregatePage fans one paginated request out to every connection, waits
// for all of them and merges the results in store order, deduplicating
// against seen and appending to acc. Failed stores contribute an empty page
// and are returned as failures. fetched is the raw entity count before
// deduplication; the continuation heuristic is computed from it.
func aggregatePage[T commerce.Keyed](
	ctx context.Context,
	s *AggregationService,
	conns []commerce.StoreConnection,
	query commerce.ListQuery,
	entity string,
	progress commerce.ProgressFunc,
	seen commerce.KeySet,
	acc []T,
	fetch fetchFunc[T],
) (items []T, fetched int, failures []commerce.StoreFailure) {
	results := make([]storePage[T], len(conns))

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn commerce.StoreConnection) {
			defer wg.Done()
			if progress != nil {
				progress(commerce.NewProgress(len(conns), i+1, conn.Name, entity))
			}
			ctx, log := logger.WithStoreID(ctx, s.logger, conn.ID.String())
			client := s.factory.StorefrontFor(conn)
			page, err := fetch(ctx, client, query)
			if err != nil {
				log.Warn("Store fetch failed",
					zap.String("store_name", conn.Name),
					zap.String("entity", entity),
					zap.Int("page", query.Page),
					zap.Error(err))
			}
			results[i] = storePage[T]{items: page, err: err}
		}(i, conn)
	}
	wg.Wait()

	items = acc
	for i, result := range results {
		conn := conns[i]
		if result.err != nil {
			failures = append(failures, commerce.StoreFailure{
				StoreID:   conn.ID,
				StoreName: conn.Name,
				Reason:    result.err.Error(),
			})
			telemetry.AddSpanEvent(ctx, "store_fetch_failed",
				telemetry.AttrStoreID.String(conn.ID.String()),
				telemetry.AttrResource.String(entity))
			if s.metrics != nil {
				s.metrics.RecordStoreFetchError(ctx, conn.ID, entity)
			}
			continue
		}
		fetched += len(result.items)
		items = commerce.DedupeAppend(items, seen, result.items)
	}
	return items, fetched, failures
}

// pageResult assembles the merged page and its continuation heuristic
func pageResult[T commerce.Keyed](
	items []T,
	fetched int,
	conns []commerce.StoreConnection,
	query commerce.ListQuery,
	failures []commerce.StoreFailure,
) *commerce.PageResult[T] {
	return &commerce.PageResult[T]{
		Items:         items,
		Fetched:       fetched,
		StoresQueried: len(conns),
		HasMore:       commerce.HasMorePages(fetched, len(conns), query.PageSize),
		Failures:      failures,
	}
}

// resolveConnections loads the selected stores and builds their API
// connections. An empty selection means every active store. Unknown IDs are
// skipped rather than failing the operation; repository failures propagate.
func resolveConnections(ctx context.Context, stores registry.StoreRepository, storeIDs []uuid.UUID) ([]commerce.StoreConnection, error) {
	all, err := stores.List(ctx)
	if err != nil {
		return nil, err
	}

	var selected []*registry.Store
	if len(storeIDs) == 0 {
		for _, store := range all {
			if store.IsActive {
				selected = append(selected, store)
			}
		}
	} else {
		wanted := make(map[uuid.UUID]struct{}, len(storeIDs))
		for _, id := range storeIDs {
			wanted[id] = struct{}{}
		}
		for _, store := range all {
			if _, ok := wanted[store.GetID()]; ok {
				selected = append(selected, store)
			}
		}
	}

	conns := make([]commerce.StoreConnection, 0, len(selected))
	for _, store := range selected {
		conns = append(conns, commerce.StoreConnection{
			ID:             store.GetID(),
			Name:           store.Name,
			BaseURL:        store.BaseURL,
			ConsumerKey:    store.ConsumerKey,
			ConsumerSecret: store.ConsumerSecret,
		})
	}
	return conns, nil
}

// sortOrdersNewestFirst sorts merged orders by creation date descending.
// sort.Slice is not stable; orders with equal timestamps keep no particular
// relative order. Orders without a timestamp sort last.
func sortOrdersNewestFirst(orders []commerce.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orderTime(orders[i]).After(orderTime(orders[j]))
	})
}

func orderTime(o commerce.Order) time.Time {
	if o.CreatedAt == nil {
		return time.Time{}
	}
	return *o.CreatedAt
}
