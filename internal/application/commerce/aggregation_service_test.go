package commerce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefleet/backend/internal/domain/commerce"
	"github.com/storefleet/backend/internal/domain/registry"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

// stubStoreRepository serves a fixed store list
type stubStoreRepository struct {
	stores  []*registry.Store
	listErr error
}

func (r *stubStoreRepository) List(ctx context.Context) ([]*registry.Store, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.stores, nil
}

func (r *stubStoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*registry.Store, error) {
	for _, store := range r.stores {
		if store.GetID() == id {
			return store, nil
		}
	}
	return nil, registry.ErrStoreNotFound
}

func (r *stubStoreRepository) Insert(ctx context.Context, store *registry.Store) error {
	r.stores = append(r.stores, store)
	return nil
}

func (r *stubStoreRepository) Update(ctx context.Context, store *registry.Store) error { return nil }

func (r *stubStoreRepository) Delete(ctx context.Context, id uuid.UUID) error { return nil }

// fakeStorefront serves canned pages for one store, annotating entities with
// the store reference the way the real API client does.
type fakeStorefront struct {
	ref commerce.StoreRef

	mu         sync.Mutex
	orderPages map[int][]commerce.Order
	products   []commerce.Product
	coupons    []commerce.Coupon
	notes      map[int64][]commerce.OrderNote
	listErr    error
	notesErr   error
	couponErr  error
	drafts     []commerce.CouponDraft
	orderCalls int
}

var _ commerce.Storefront = (*fakeStorefront)(nil)

func (f *fakeStorefront) ListOrders(ctx context.Context, query commerce.ListQuery) ([]commerce.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := f.orderPages[query.Page]
	orders := make([]commerce.Order, len(page))
	copy(orders, page)
	for i := range orders {
		orders[i].Store = f.ref
	}
	return orders, nil
}

func (f *fakeStorefront) ListOrderNotes(ctx context.Context, orderID int64) ([]commerce.OrderNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notesErr != nil {
		return nil, f.notesErr
	}
	return f.notes[orderID], nil
}

func (f *fakeStorefront) ListProducts(ctx context.Context, query commerce.ListQuery) ([]commerce.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	products := make([]commerce.Product, len(f.products))
	copy(products, f.products)
	for i := range products {
		products[i].Store = f.ref
	}
	return products, nil
}

func (f *fakeStorefront) ListCoupons(ctx context.Context, query commerce.ListQuery) ([]commerce.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	coupons := make([]commerce.Coupon, len(f.coupons))
	copy(coupons, f.coupons)
	for i := range coupons {
		coupons[i].Store = f.ref
	}
	return coupons, nil
}

func (f *fakeStorefront) CreateCoupon(ctx context.Context, draft commerce.CouponDraft) (*commerce.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.couponErr != nil {
		return nil, f.couponErr
	}
	f.drafts = append(f.drafts, draft)
	return &commerce.Coupon{
		ID:           int64(1000 + len(f.drafts)),
		Code:         draft.Code,
		DiscountType: draft.DiscountType,
		Amount:       draft.Amount,
		Store:        f.ref,
	}, nil
}

func (f *fakeStorefront) SystemStatus(ctx context.Context) (*commerce.SystemStatus, error) {
	return &commerce.SystemStatus{Version: "9.6.0"}, nil
}

func (f *fakeStorefront) listOrderCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderCalls
}

func (f *fakeStorefront) createdDrafts() []commerce.CouponDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]commerce.CouponDraft, len(f.drafts))
	copy(out, f.drafts)
	return out
}

// fakeFactory hands each connection its scripted client
type fakeFactory struct {
	clients map[uuid.UUID]*fakeStorefront
}

func (f *fakeFactory) StorefrontFor(conn commerce.StoreConnection) commerce.Storefront {
	if client, ok := f.clients[conn.ID]; ok {
		return client
	}
	return &fakeStorefront{ref: conn.Ref()}
}

// testFleet wires registered stores to scripted clients
type testFleet struct {
	repo    *stubStoreRepository
	factory *fakeFactory
	stores  map[string]*registry.Store
	clients map[string]*fakeStorefront
}

func newTestFleet(t *testing.T, names ...string) *testFleet {
	t.Helper()
	fleet := &testFleet{
		repo:    &stubStoreRepository{},
		factory: &fakeFactory{clients: make(map[uuid.UUID]*fakeStorefront)},
		stores:  make(map[string]*registry.Store),
		clients: make(map[string]*fakeStorefront),
	}
	for _, name := range names {
		store, err := registry.NewStore(name, "https://"+name+".example.com", "ck_test", "cs_test", true)
		require.NoError(t, err)
		client := &fakeStorefront{
			ref:        commerce.StoreRef{ID: store.GetID(), Name: name},
			orderPages: make(map[int][]commerce.Order),
			notes:      make(map[int64][]commerce.OrderNote),
		}
		fleet.repo.stores = append(fleet.repo.stores, store)
		fleet.factory.clients[store.GetID()] = client
		fleet.stores[name] = store
		fleet.clients[name] = client
	}
	return fleet
}

func (f *testFleet) aggregation() *AggregationService {
	return NewAggregationService(f.repo, f.factory, nil, zap.NewNop())
}

var testEpoch = time.Date(2026, 1, 5, 10, 30, 0, 0, time.UTC)

func orderAt(id int64, createdAt time.Time) commerce.Order {
	return commerce.Order{
		ID:        id,
		Number:    fmt.Sprintf("#%d", id),
		Status:    "processing",
		Currency:  "USD",
		Total:     decimal.NewFromInt(id * 10),
		ItemCount: 1,
		CreatedAt: &createdAt,
	}
}

// manyOrders builds n orders with ascending IDs and creation times
func manyOrders(firstID int64, n int) []commerce.Order {
	orders := make([]commerce.Order, 0, n)
	for i := 0; i < n; i++ {
		id := firstID + int64(i)
		orders = append(orders, orderAt(id, testEpoch.Add(time.Duration(id)*time.Minute)))
	}
	return orders
}

func orderIDs(orders []commerce.Order) []int64 {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

// ---------------------------------------------------------------------------
// Order Aggregation Tests
// ---------------------------------------------------------------------------

func TestAggregationService_ListOrders(t *testing.T) {
	ctx := context.Background()

	t.Run("merges store pages newest first with notes attached", func(t *testing.T) {
		fleet := newTestFleet(t, "alpha", "beta")
		fleet.clients["alpha"].orderPages[1] = []commerce.Order{
			orderAt(1, testEpoch),
			orderAt(2, testEpoch.Add(3*time.Minute)),
		}
		fleet.clients["beta"].orderPages[1] = []commerce.Order{
			orderAt(1, testEpoch.Add(time.Minute)),
			orderAt(9, testEpoch.Add(5*time.Minute)),
		}
		fleet.clients["alpha"].notes[1] = []commerce.OrderNote{{ID: 11, Note: "Shipped via DHL"}}

		result, err := fleet.aggregation().ListOrders(ctx, FetchInput{})
		require.NoError(t, err)

		assert.Equal(t, []int64{9, 2, 1, 1}, orderIDs(result.Items))
		assert.Equal(t, "beta", result.Items[0].Store.Name)
		assert.Equal(t, 4, result.Fetched)
		assert.Equal(t, 2, result.StoresQueried)
		assert.False(t, result.HasMore)
		assert.Empty(t, result.Failures)

		// Order 1 exists on both stores; the (store, ID) pair keeps both.
		var sameID int
		for _, o := range result.Items {
			if o.ID == 1 {
				sameID++
			}
		}
		assert.Equal(t, 2, sameID)

		// Only alpha's order 1 has notes.
		for _, o := range result.Items {
			if o.ID == 1 && o.Store.Name == "alpha" {
				require.Len(t, o.Notes, 1)
				assert.Equal(t, "Shipped via DHL", o.Notes[0].Note)
			} else {
				assert.Empty(t, o.Notes)
			}
		}
	})

	t.Run("duplicate entity within a store collapses but still counts as fetched", func(t *testing.T) {
		fleet := newTestFleet(t, "alpha")
		fleet.clients["alpha"].orderPages[1] = []commerce.Order{
			orderAt(5, testEpoch),
			orderAt(5, testEpoch),
		}

		result, err := fleet.aggregation().ListOrders(ctx, FetchInput{})
		require.NoError(t, err)

		assert.Len(t, result.Items, 1)
		assert.Equal(t, 2, result.Fetched)
	})

	t.Run("failing store contributes an empty page and is reported", func(t *testing.T) {
		fleet := newTestFleet(t, "alpha", "beta")
		fleet.clients["alpha"].orderPages[1] = manyOrders(1, 2)
		fleet.clients["beta"].listErr = fmt.Errorf("%w: connection refused", commerce.ErrStoreUnavailable)

		result, err := fleet.aggregation().ListOrders(ctx, FetchInput{})
		require.NoError(t, err)

		assert.Len(t, result.Items, 2)
		assert.Equal(t, 2, result.StoresQueried)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, fleet.stores["beta"].GetID(), result.Failures[0].StoreID)
		assert.Equal(t, "beta", result.Failures[0].StoreName)
		assert.Contains(t, result.Failures[0].Reason, "connection refused")
	})

	t.Run("notes failure degrades to an empty notes list", func(t *testing.T) {
		fleet := newTestFleet(t, "alpha")
		fleet.clients["alpha"].orderPages[1] = manyOrders(1, 2)
		fleet.clients["alpha"].notes[1] = []commerce.OrderNote{{ID: 11, Note: "unreachable"}}
		fleet.clients["alpha"].notesErr = fmt.Errorf("%w: notes endpoint", commerce.ErrStoreRequestFailed)

		result, err := fleet.aggregation().ListOrders(ctx, FetchInput{})
		require.NoError(t, err)

		require.Len(t, result.Items, 2)
		for _, o := range result.Items {
			assert.Empty(t, o.Notes)
		}
		assert.Empty(t, result.Failures)
	})

	t.Run("continuation requires every store to fill its page", func(t *testing.T) {
		fleet := newTestFleet(t, "alpha", "beta")
		fleet.clients["alpha"].orderPages[1] = manyOrders(1, 2)
		fleet.clients["beta"].orderPages[1] = manyOrders(11, 2)

		result, err := fleet.aggregation().ListOrders(ctx, FetchInput{PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 4, result.Fetched)
		assert.True(t, result.HasMore)

		// A short page from one store reports "no more" even though the
		// other store may go deeper; documented approximation.
		fleet.clients["beta"].orderPages[1] = manyOrders(11, 1)
		result, err = fleet.aggregation().ListOrders(ctx, FetchInput{PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Fetched)
		assert.False(t, result.HasMore)
	})

	t.Run("failing store suppresses the continuation flag", func(t *testing.T) {
		fleet := newTestFleet(t, "alpha", "beta")
		fleet.clients["alpha"].orderPages[1] = manyOrders(1, 2)
		fleet.clients["beta"].listErr = commerce.ErrStoreTimeout

		result, err := fleet.aggregation().ListOrders(ctx, FetchInput{PageSize: 2})
		require.NoError(t, err)
		assert.False(t, result.HasMore)
	})

	t.Run("repository failure aborts the aggregation", func(t *testing.T) {
		fleet := newTestFleet(t, "alpha")
		fleet.repo.listErr = errors.New("kv read failed")

		_, err := fleet.aggregation().ListOrders(ctx, FetchInput{})
		assert.Error(t, err)
	})

	t.Run("progress reports every store", func(t *testing.T) {
		fleet := newTestFleet(t, "alpha", "beta")
		fleet.clients["alpha"].orderPages[1] = manyOrders(1, 1)
		fleet.clients["beta"].orderPages[1] = manyOrders(11, 1)

		var mu sync.Mutex
		var updates []commerce.AggregationProgress
		progress := func(p commerce.AggregationProgress) {
			mu.Lock()
			updates = append(updates, p)
			mu.Unlock()
		}

		_, err := fleet.aggregation().ListOrders(ctx, FetchInput{Progress: progress})
		require.NoError(t, err)

		require.Len(t, updates, 2)
		names := make(map[string]bool)
		for _, u := range updates {
			assert.Equal(t, 2, u.TotalStores)
			assert.Contains(t, u.StatusMessage, "orders")
			names[u.CurrentStoreName] = true
		}
		assert.True(t, names["alpha"])
		assert.True(t, names["beta"])
	})
}

// ---------------------------------------------------------------------------
// Store Selection Tests
// ---------------------------------------------------------------------------

func TestAggregationService_StoreSelection(t *testing.T) {
	ctx := context.Background()

	fleet := newTestFleet(t, "alpha", "beta", "gamma")
	fleet.stores["gamma"].SetActive(false)
	for name, client := range fleet.clients {
		client.orderPages[1] = manyOrders(int64(len(name)*100), 1)
	}

	t.Run("empty selection targets active stores only", func(t *testing.T) {
		result, err := fleet.aggregation().ListOrders(ctx, FetchInput{})
		require.NoError(t, err)
		assert.Equal(t, 2, result.StoresQueried)
		for _, o := range result.Items {
			assert.NotEqual(t, "gamma", o.Store.Name)
		}
	})

	t.Run("explicit selection includes inactive stores", func(t *testing.T) {
		result, err := fleet.aggregation().ListOrders(ctx, FetchInput{
			StoreIDs: []uuid.UUID{fleet.stores["gamma"].GetID()},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.StoresQueried)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "gamma", result.Items[0].Store.Name)
	})

	t.Run("unknown IDs are skipped", func(t *testing.T) {
		result, err := fleet.aggregation().ListOrders(ctx, FetchInput{
			StoreIDs: []uuid.UUID{fleet.stores["alpha"].GetID(), uuid.New()},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.StoresQueried)
	})
}

// ---------------------------------------------------------------------------
// Product and Coupon Aggregation Tests
// ---------------------------------------------------------------------------

func TestAggregationService_ListProducts(t *testing.T) {
	ctx := context.Background()

	t.Run("merges in store order keeping same IDs across stores", func(t *testing.T) {
		fleet := newTestFleet(t, "alpha", "beta")
		fleet.clients["alpha"].products = []commerce.Product{
			{ID: 7, Name: "Mug", Price: decimal.NewFromInt(12)},
		}
		fleet.clients["beta"].products = []commerce.Product{
			{ID: 7, Name: "Mug", Price: decimal.NewFromInt(14)},
			{ID: 8, Name: "Shirt", Price: decimal.NewFromInt(25)},
		}

		result, err := fleet.aggregation().ListProducts(ctx, FetchInput{})
		require.NoError(t, err)

		require.Len(t, result.Items, 3)
		assert.Equal(t, "alpha", result.Items[0].Store.Name)
		assert.Equal(t, "beta", result.Items[1].Store.Name)
		assert.Equal(t, int64(8), result.Items[2].ID)
		assert.Equal(t, 3, result.Fetched)
	})

	t.Run("failing store is reported alongside the merged page", func(t *testing.T) {
		fleet := newTestFleet(t, "alpha", "beta")
		fleet.clients["alpha"].products = []commerce.Product{{ID: 1, Name: "Mug"}}
		fleet.clients["beta"].listErr = commerce.ErrStoreAuthFailed

		result, err := fleet.aggregation().ListProducts(ctx, FetchInput{})
		require.NoError(t, err)
		assert.Len(t, result.Items, 1)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, "beta", result.Failures[0].StoreName)
	})
}

func TestAggregationService_ListCoupons(t *testing.T) {
	ctx := context.Background()

	fleet := newTestFleet(t, "alpha", "beta")
	fleet.clients["alpha"].coupons = []commerce.Coupon{
		{ID: 1, Code: "SUMMER10", DiscountType: "percent", Amount: decimal.NewFromInt(10)},
	}
	fleet.clients["beta"].listErr = commerce.ErrStoreTimeout

	result, err := fleet.aggregation().ListCoupons(ctx, FetchInput{})
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, "SUMMER10", result.Items[0].Code)
	assert.Equal(t, "alpha", result.Items[0].Store.Name)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "beta", result.Failures[0].StoreName)
	assert.False(t, result.HasMore)
}
